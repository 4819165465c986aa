// Package keyschedule derives the per-transaction master key and its
// tagged subkeys (spec.md §4.4). Every HMAC and AEAD key the signing
// state machine uses to pin host-held fragments flows through here.
package keyschedule

import (
	"crypto/rand"
	"fmt"

	"xmrhwsigner/serialize"
	"xmrhwsigner/xmrcrypto"
)

// Tag identifies which subkey family a derivation belongs to (§4.4's
// table).
type Tag string

const (
	TagTxin      Tag = "txin"
	TagTxinComm  Tag = "txin-comm"
	TagTxdest    Tag = "txdest"
	TagTxout     Tag = "txout"
	TagTxoutAsig Tag = "txout-asig"
	TagTxinAlpha Tag = "txin-alpha"
	TagCout      Tag = "cout"
)

// Schedule holds the master/hmac/enc keys derived at Init. It has no
// exported constructor other than Derive: every schedule must be built
// from the same inputs the Python reference hashes, so ad-hoc
// zero-value Schedules are not a valid state.
type Schedule struct {
	keyMaster [32]byte
	keyHmac   [32]byte
	keyEnc    [32]byte
}

// randSource is overridden in tests to make key-schedule determinism
// (spec.md §8) checkable by injecting a fixed randomness source.
var randSource = rand.Read

// Derive computes key_master from the canonical TsxData bytes, the
// encoded tx secret r, and the tx counter, mixed with fresh randomness,
// then splits key_hmac and key_enc from it (§4.4).
func Derive(tsxDataBytes []byte, encR []byte, txCounter uint64) (*Schedule, error) {
	w := serialize.NewWriter()
	w.WriteRaw(tsxDataBytes)
	w.WriteBlob(encR)
	w.WriteUvarint(txCounter)
	digest := xmrcrypto.Keccak256(w.Bytes())

	var randomness [32]byte
	if _, err := randSource(randomness[:]); err != nil {
		return nil, fmt.Errorf("keyschedule: reading randomness: %w", err)
	}
	keyMaster := xmrcrypto.Keccak2Hash(digest[:], randomness[:])

	s := &Schedule{keyMaster: keyMaster}
	s.keyHmac = xmrcrypto.Keccak2Hash([]byte("hmac"), keyMaster[:])
	s.keyEnc = xmrcrypto.Keccak2Hash([]byte("enc"), keyMaster[:])
	return s, nil
}

func subkey(parent [32]byte, tag Tag, index uint64) [32]byte {
	return xmrcrypto.Keccak2Hash(parent[:], []byte(tag), serialize.DumpUvarint(index))
}

// HmacKey derives an HMAC subkey under the given tag and index. tag
// must be one of the hmac-parented tags (TagTxin, TagTxinComm,
// TagTxdest, TagTxout, TagTxoutAsig); passing an enc-parented tag is a
// caller bug.
func (s *Schedule) HmacKey(tag Tag, index int) [32]byte {
	switch tag {
	case TagTxin, TagTxinComm, TagTxdest, TagTxout, TagTxoutAsig:
		return subkey(s.keyHmac, tag, uint64(index))
	default:
		panic(fmt.Sprintf("keyschedule: %q is not an hmac-parented tag", tag))
	}
}

// EncKey derives an AEAD subkey under the given tag and index. tag
// must be TagTxinAlpha or TagCout.
func (s *Schedule) EncKey(tag Tag, index int) [32]byte {
	switch tag {
	case TagTxinAlpha, TagCout:
		return subkey(s.keyEnc, tag, uint64(index))
	default:
		panic(fmt.Sprintf("keyschedule: %q is not an enc-parented tag", tag))
	}
}

// Hmac computes the HMAC over msg under the derived subkey.
func (s *Schedule) Hmac(tag Tag, index int, msg []byte) [32]byte {
	return xmrcrypto.ComputeHMAC(s.HmacKey(tag, index), msg)
}

// VerifyHmac constant-time compares a claimed HMAC against the
// recomputed one.
func (s *Schedule) VerifyHmac(tag Tag, index int, msg []byte, claimed [32]byte) bool {
	got := s.Hmac(tag, index, msg)
	return xmrcrypto.CtEqual(got[:], claimed[:])
}

// Seal AEAD-encrypts plaintext under the derived enc subkey.
func (s *Schedule) Seal(tag Tag, index int, plaintext []byte) ([]byte, error) {
	return xmrcrypto.Seal(s.EncKey(tag, index), plaintext)
}

// Open AEAD-decrypts a blob sealed by Seal with the same tag/index.
func (s *Schedule) Open(tag Tag, index int, blob []byte) ([]byte, error) {
	return xmrcrypto.Open(s.EncKey(tag, index), blob)
}

// FinalTxKey realizes the Final-stage deterministic AEAD key (§4.5.9,
// §9 Open Question #2, decided in SPEC_FULL.md §C):
//
//	tx_key = keccak_2hash(spend_secret ‖ salt ‖ encode(rand_mult·hash_to_point(tx_prefix_hash)))
//
// salt and rand_mult are fresh per call and returned so the host can
// disclose them; given spend_secret, tx_prefix_hash, salt, and
// rand_mult, the holder of spend_secret can recompute tx_key, and no
// one else can.
func FinalTxKey(spendSecret xmrcrypto.Scalar, txPrefixHash [32]byte) (txKey [32]byte, salt [32]byte, randMult [32]byte, err error) {
	if _, err = randSource(salt[:]); err != nil {
		return txKey, salt, randMult, fmt.Errorf("keyschedule: reading salt: %w", err)
	}
	randScalar := xmrcrypto.RandomScalar()
	randMult = randScalar.Bytes()

	prefixPoint := xmrcrypto.HashToPoint(txPrefixHash[:])
	mixed := xmrcrypto.ScalarMult(randScalar, prefixPoint)
	mixedBytes := mixed.Bytes()

	spendBytes := spendSecret.Bytes()
	txKey = xmrcrypto.Keccak2Hash(spendBytes[:], salt[:], mixedBytes[:])
	return txKey, salt, randMult, nil
}
