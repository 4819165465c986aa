package signer

import (
	"xmrhwsigner/types"
	"xmrhwsigner/xmrcrypto"
)

// subaddress is a precomputed (major, minor) lookup entry, keyed by
// its encoded spend public key; the table is built in Init and looked
// up in SetInput to classify each real output.
type subaddress struct {
	Major, Minor uint32
}

// keyImageResult is key_image_helper's output: the one-time spend
// secret, the key image, and the derivation used to compute it.
type keyImageResult struct {
	Secret     xmrcrypto.Scalar
	KeyImage   xmrcrypto.Point
	Derivation xmrcrypto.Point
}

// deriveKeyImage implements key_image_helper (§4.5.2): given the
// spender's credentials and a source entry's real output, recover the
// one-time private key x and its key image x·Hp(x·G).
//
// subMinor/subMajor identify the subaddress (0,0 for the primary
// address) the real output was sent to, resolved by the caller via
// subaddrs lookup against out_pub.
func deriveKeyImage(creds types.Credentials, txPubKey xmrcrypto.Point, additionalTxPubKeys []xmrcrypto.Point, realOutTxIndex int, subMajor, subMinor uint32, isSubaddress bool) keyImageResult {
	pubKey := txPubKey
	if isSubaddress && realOutTxIndex < len(additionalTxPubKeys) {
		pubKey = additionalTxPubKeys[realOutTxIndex]
	}

	derivation := xmrcrypto.ScalarMult(creds.ViewSecret, pubKey)
	derivBytes := derivation.Bytes()
	idxVarint := serializeVarint(uint64(realOutTxIndex))
	scalarDerived := xmrcrypto.HashToScalar(derivBytes[:], idxVarint)

	spend := creds.SpendSecret
	if subMajor != 0 || subMinor != 0 {
		spend = spend.Add(subaddressSpendOffset(creds, subMajor, subMinor))
	}
	secret := scalarDerived.Add(spend)

	pub := xmrcrypto.ScalarMultBase(secret)
	hp := xmrcrypto.HashToPoint(pointBytesSlice(pub))
	ki := xmrcrypto.ScalarMult(secret, hp)

	return keyImageResult{Secret: secret, KeyImage: ki, Derivation: derivation}
}

// subaddressSpendOffset is m = Hs("SubAddr" ‖ view_secret ‖ major ‖ minor),
// Monero's subaddress private-key offset.
func subaddressSpendOffset(creds types.Credentials, major, minor uint32) xmrcrypto.Scalar {
	viewBytes := creds.ViewSecret.Bytes()
	return xmrcrypto.HashToScalar([]byte("SubAddr\x00"), viewBytes[:], uint32LE(major), uint32LE(minor))
}

func uint32LE(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func serializeVarint(v uint64) []byte {
	w := canonicalWriter()
	w.WriteUvarint(v)
	return w.Bytes()
}

func pointBytesSlice(p xmrcrypto.Point) []byte {
	b := p.Bytes()
	return b[:]
}

// deriveSubaddressTable precomputes (major, minor) → public-spend-key
// entries for the requested minor indices under one account, per
// Init's "precompute subaddresses" action. Index 0 maps to the
// primary address and is always present. Keyed by the encoded public
// key (not the Point value itself, which wraps a pointer and is not
// comparable across distinct computations of the same point).
func deriveSubaddressTable(creds types.Credentials, account uint32, minorIndices []uint32) map[[32]byte]subaddress {
	table := make(map[[32]byte]subaddress)
	table[creds.SpendPublic.Bytes()] = subaddress{0, 0}
	for _, minor := range minorIndices {
		if account == 0 && minor == 0 {
			continue
		}
		offset := subaddressSpendOffset(creds, account, minor)
		pub := xmrcrypto.ScalarMultBase(offset).Add(creds.SpendPublic)
		table[pub.Bytes()] = subaddress{account, minor}
	}
	return table
}
