package types

import "xmrhwsigner/xmrcrypto"

// The nine SignTx sub-messages, named after the stages in §4.5, and
// their responses. Wire codec is out of scope (spec.md §6): these are
// the in-process Go values a transport-layer decoder produces and a
// transport-layer encoder consumes; the device core never touches a
// byte stream directly.

// MsgInit is stage 1's input.
type MsgInit struct {
	Tsx TsxData
}

// RespInit acknowledges Init: per-output HMACs pinning the destination
// entries the host must re-present unchanged, plus whether in-memory
// mode is active (always false in this implementation — see
// SPEC_FULL.md §C offload-always decision).
type RespInit struct {
	HmacDests [][32]byte
	InMemory  bool
}

// MsgSetInput is stage 2's repeated input.
type MsgSetInput struct {
	Src TxSourceEntry
}

// RespSetInput carries everything the host must store and later
// re-present for this input.
type RespSetInput struct {
	VinBytes      []byte
	HmacVin       [32]byte
	PseudoOut     [32]byte
	PseudoOutHmac [32]byte
	AlphaEnc      []byte
}

// MsgInputsPermutation is stage 3's input: the host's chosen ordering.
type MsgInputsPermutation struct {
	Perm []int
}

// RespInputsPermutation is empty on success; failures surface as
// RespError.
type RespInputsPermutation struct{}

// MsgInputVinI is stage 4's repeated input: the host re-presenting one
// input's fragments in permuted order.
type MsgInputVinI struct {
	Src           TxSourceEntry
	VinBytes      []byte
	HmacVin       [32]byte
	PseudoOut     [32]byte
	PseudoOutHmac [32]byte
}

type RespInputVinI struct{}

// MsgSetOutput is stage 5's repeated input.
type MsgSetOutput struct {
	Dst      TxDestinationEntry
	HmacDest [32]byte
}

// RespSetOutput carries the output's serialized fragments for the host
// to store and fold into the transaction.
type RespSetOutput struct {
	TxOutBytes []byte
	HmacVout   [32]byte
	RsigBytes  []byte
	OutPkBytes []byte
	EcdhBytes  []byte
}

// MsgAllOutputsSet has no fields; it signals the host is done streaming
// outputs.
type MsgAllOutputsSet struct{}

// RespAllOutputsSet carries the finalized prefix materials.
type RespAllOutputsSet struct {
	ExtraBytes     []byte
	TxPrefixHash   [32]byte
	RctSigBaseType RctType
}

// MsgMlsagDone has no fields.
type MsgMlsagDone struct{}

// RespMlsagDone carries the 32-byte RingCT signing challenge.
type RespMlsagDone struct {
	FullMessage [32]byte
}

// MsgSignInput is stage 8's repeated input: the host re-presenting one
// input's fragments, in permuted order, for final signing.
type MsgSignInput struct {
	Src           TxSourceEntry
	VinBytes      []byte
	HmacVin       [32]byte
	PseudoOut     [32]byte
	PseudoOutHmac [32]byte
	AlphaEnc      []byte
}

// RespSignInput carries the MLSAG signature and, for multisig, the
// AEAD-sealed c-value.
type RespSignInput struct {
	Signature MgSig
	CoutEnc   []byte
}

// MsgFinal has no fields.
type MsgFinal struct{}

// RespFinal carries the Final-stage AEAD material (§4.5.9).
type RespFinal struct {
	CoutKeyEnc []byte
	Salt       [32]byte
	RandMult   [32]byte
	TxEncKeys  []byte
}

// RespError is the distinguished error response every stage can return
// in place of its normal Resp*. Status distinguishes PrefixMismatch
// (the one kind multisig flows recover from by restarting) from every
// other fatal kind, which the host treats identically: restart from
// Init.
type RespError struct {
	Status RespStatus
	Exc    string
}

type RespStatus int

const (
	StatusFatal RespStatus = iota
	StatusPrefixMismatch
	StatusUserRejection
)

// KiSyncRecord is one streamed item in the key-image sync flow (§4.6).
type KiSyncRecord struct {
	OutKey               xmrcrypto.Point
	TxPubKey             xmrcrypto.Point
	AdditionalTxPubKeys  []xmrcrypto.Point
	InternalOutputIndex  int
}

// KiSyncResult pairs a derived key image with its proof of knowledge.
type KiSyncResult struct {
	KeyImage xmrcrypto.Point
	Sig      SchnorrSig
}

// SchnorrSig is a Schnorr-like proof of knowledge of the discrete log
// of a key image with respect to Hp(out_key).
type SchnorrSig struct {
	C xmrcrypto.Scalar
	R xmrcrypto.Scalar
}
