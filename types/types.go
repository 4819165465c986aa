// Package types holds the data model shared across the signing core:
// credentials, the host-supplied transaction intent, the Monero wire
// structures (TxinToKey, TxoutToKey, TxOut, CtKey, EcdhTuple, range sig,
// MgSig), and the nine SignTx sub-messages. Field order in the wire
// structs matches xmrtypes.py's MFIELDS exactly — wire.go's
// WriteCanonical methods depend on it.
package types

import "xmrhwsigner/xmrcrypto"

// RctType selects which RingCT signature shape a transaction uses. The
// core implements Full and Simple; the Bulletproof variants are
// surfaced so a future RangeProofSigner can plug in but are rejected
// today (see signer.ErrBulletproofUnsupported).
type RctType int

const (
	RctFull RctType = iota
	RctSimple
	RctFullBulletproof
	RctSimpleBulletproof
)

// Credentials are immutable for the lifetime of a signing session.
type Credentials struct {
	SpendSecret xmrcrypto.Scalar
	ViewSecret  xmrcrypto.Scalar
	SpendPublic xmrcrypto.Point
	ViewPublic  xmrcrypto.Point
	Primary     Address
	NetworkTag  byte
}

// Address is a two-key Monero-style public address.
type Address struct {
	SpendPub     xmrcrypto.Point
	ViewPub      xmrcrypto.Point
	IsSubaddress bool
}

// TxDestinationEntry describes one transaction output before stealth
// derivation.
type TxDestinationEntry struct {
	Amount uint64
	Addr   Address
}

// SourceOutput is one ring member: a global output index, its stealth
// public key, and its Pedersen commitment.
type SourceOutput struct {
	GlobalIndex uint64
	DestPub     xmrcrypto.Point
	MaskCommit  xmrcrypto.Point
}

// TxSourceEntry describes one transaction input: the decoy ring plus
// the real output's position and the spender's knowledge of it.
type TxSourceEntry struct {
	Outputs                []SourceOutput
	RealOutput              int
	RealOutTxKey            xmrcrypto.Point
	RealOutAdditionalTxKeys []xmrcrypto.Point
	RealOutputInTxIndex     int
	Amount                  uint64
	Rct                     bool
	Mask                    xmrcrypto.Scalar
	MultisigKLRki           *MultisigKLRki
}

// MultisigKLRki carries the multisig data-plumbing fields spec.md
// §4.5.8/§4.6 requires passed through but not interpreted.
type MultisigKLRki struct {
	K  xmrcrypto.Scalar
	L  xmrcrypto.Point
	R  xmrcrypto.Point
	KI xmrcrypto.Point
}

// TsxData is the host's request intent, presented at Init.
type TsxData struct {
	NumInputs        uint32
	Mixin            uint32
	Fee              uint64
	UnlockTime       uint64
	IsMultisig       bool
	Outputs          []TxDestinationEntry
	ChangeDts        *TxDestinationEntry
	PaymentID        []byte
	Account          uint32
	MinorIndices     []uint32
	ExpTxPrefixHash  []byte
	UseTxKeys        []xmrcrypto.Scalar
}

// TxinToKey is the wire vin variant (variant code 0x02). Field order:
// amount, key_offsets, k_image.
type TxinToKey struct {
	Amount     uint64
	KeyOffsets []uint64
	KImage     xmrcrypto.Point
}

// TxoutToKey is the wire vout target variant (variant code 0x02).
type TxoutToKey struct {
	Key xmrcrypto.Point
}

// TxOut is a transaction output: amount (always 0 pre-RCT-reveal) and
// the target variant.
type TxOut struct {
	Amount uint64
	Target TxoutToKey
}

// CtKey pairs a one-time destination key with its Pedersen commitment.
type CtKey struct {
	Dest xmrcrypto.Point
	Mask xmrcrypto.Point
}

// EcdhTuple is the per-output amount/mask obfuscation blob.
type EcdhTuple struct {
	Mask   xmrcrypto.Scalar
	Amount [8]byte
}

// BoroSig is a Borromean ring signature over 64 bit-commitments.
type BoroSig struct {
	S0 [64][32]byte
	S1 [64][32]byte
	EE [32]byte
}

// RangeSig is a per-output Borromean range proof: the signature plus
// the 64 per-bit commitments it is built over.
type RangeSig struct {
	Asig BoroSig
	Ci   [64][32]byte
}

// MgSig is an MLSAG ring signature: a matrix of response scalars plus
// the initial challenge. Key images are carried alongside in the
// caller's vin, not inside MgSig itself (matching xmrtypes.py, whose
// II field is reconstructed by the verifier rather than serialized).
type MgSig struct {
	Ss [][]xmrcrypto.Scalar
	Cc xmrcrypto.Scalar
}
