// Package txhash implements the two incremental hashers the signing
// state machine drives as fragments arrive (spec.md §4.3): the
// transaction-prefix Keccak and the RingCT "full message" hash. Both
// are append-only and panic if driven out of order — a violation here
// is always a programming error in the stage dispatcher, never
// attacker-controlled input, matching spec's own characterization.
package txhash

import (
	"hash"

	"xmrhwsigner/serialize"
	"xmrhwsigner/xmrcrypto"
)

// TxPrefixHasher absorbs version, unlock_time, the vin count, each
// vin_i, the vout count, each tx_out_i, and finally the extra blob, in
// that order, finalizing to tx_prefix_hash.
type TxPrefixHasher struct {
	h         hash.Hash
	voutSeen  bool
	finalized bool
}

// NewTxPrefixHasher primes the hasher with version, unlock_time, and
// the vin count, matching Init's "prime TxPrefixHasher" action.
func NewTxPrefixHasher(version, unlockTime uint64, vinCount int) *TxPrefixHasher {
	t := &TxPrefixHasher{h: xmrcrypto.NewKeccakState()}
	w := serialize.NewWriter()
	w.WriteUvarint(version)
	w.WriteUvarint(unlockTime)
	w.WriteContainerSize(vinCount)
	t.h.Write(w.Bytes())
	return t
}

// AbsorbVin feeds one vin_i's already-serialized tagged-variant bytes.
func (t *TxPrefixHasher) AbsorbVin(vinBytes []byte) {
	t.mustNotFinalized()
	t.h.Write(vinBytes)
}

// AbsorbVoutCount feeds the vout-count varint, emitted once before the
// first output.
func (t *TxPrefixHasher) AbsorbVoutCount(n int) {
	t.mustNotFinalized()
	if t.voutSeen {
		panic("txhash: AbsorbVoutCount called more than once")
	}
	t.voutSeen = true
	t.h.Write(serialize.DumpUvarint(uint64(n)))
}

// AbsorbTxOut feeds one tx_out_i's serialized bytes.
func (t *TxPrefixHasher) AbsorbTxOut(txOutBytes []byte) {
	t.mustNotFinalized()
	if !t.voutSeen {
		panic("txhash: AbsorbTxOut called before AbsorbVoutCount")
	}
	t.h.Write(txOutBytes)
}

// Finalize feeds the extra blob and returns tx_prefix_hash. Only
// callable once.
func (t *TxPrefixHasher) Finalize(extra []byte) [32]byte {
	t.mustNotFinalized()
	t.h.Write(extra)
	t.finalized = true
	var out [32]byte
	copy(out[:], t.h.Sum(nil))
	return out
}

func (t *TxPrefixHasher) mustNotFinalized() {
	if t.finalized {
		panic("txhash: TxPrefixHasher used after Finalize")
	}
}

// preMlsagState tracks which of the five ordered sub-states
// PreMlsagHasher has reached, so an out-of-order call panics instead
// of silently producing a wrong digest.
type preMlsagState int

const (
	preMlsagInit preMlsagState = iota
	preMlsagTypeFee
	preMlsagPseudoOuts
	preMlsagMessage
	preMlsagOutputs
	preMlsagDone
)

// PreMlsagHasher builds the RingCT signing challenge ("full message"):
// type+fee, pseudo-outs (Simple RCT only), prefix hash, ecdh info, and
// outPk, each absorbed through an explicit call in that fixed order.
type PreMlsagHasher struct {
	h          hash.Hash
	useSimple  bool
	state      preMlsagState
	digest     [32]byte
}

// NewPreMlsagHasher is PreMlsagHasher.init(use_simple): fresh state,
// records whether pseudo-outs will be fed.
func NewPreMlsagHasher(useSimple bool) *PreMlsagHasher {
	return &PreMlsagHasher{h: xmrcrypto.NewKeccakState(), useSimple: useSimple, state: preMlsagInit}
}

// SetTypeFee absorbs the RCT type byte and varint fee.
func (p *PreMlsagHasher) SetTypeFee(rctType byte, fee uint64) {
	if p.state != preMlsagInit {
		panic("txhash: SetTypeFee out of order")
	}
	w := serialize.NewWriter()
	w.WriteRaw([]byte{rctType})
	w.WriteUvarint(fee)
	p.h.Write(w.Bytes())
	p.state = preMlsagTypeFee
}

// SetPseudoOut absorbs one per-input pseudo-out commitment. Valid only
// for Simple RCT, between SetTypeFee and SetMessage.
func (p *PreMlsagHasher) SetPseudoOut(c xmrcrypto.Point) {
	if !p.useSimple {
		panic("txhash: SetPseudoOut called but use_simple is false")
	}
	if p.state != preMlsagTypeFee && p.state != preMlsagPseudoOuts {
		panic("txhash: SetPseudoOut out of order")
	}
	b := c.Bytes()
	p.h.Write(b[:])
	p.state = preMlsagPseudoOuts
}

// SetMessage absorbs tx_prefix_hash, closing the pseudo-out phase.
func (p *PreMlsagHasher) SetMessage(txPrefixHash [32]byte) {
	allowed := p.state == preMlsagTypeFee || (p.useSimple && p.state == preMlsagPseudoOuts)
	if !allowed {
		panic("txhash: SetMessage out of order")
	}
	p.h.Write(txPrefixHash[:])
	p.state = preMlsagMessage
}

// AbsorbRsig feeds one output's range-signature bytes directly into
// the running hash, per §4.5.5's "absorb rsig_j raw bytes" action.
// Unlike SetEcdh/SetOutPk this has no dedicated sub-state of its own —
// it may be called any time between SetMessage and RctSigBaseDone,
// interleaved freely with the per-output ecdh/out_pk calls.
func (p *PreMlsagHasher) AbsorbRsig(rsigBytes []byte) {
	if p.state != preMlsagMessage && p.state != preMlsagOutputs {
		panic("txhash: AbsorbRsig out of order")
	}
	p.h.Write(rsigBytes)
}

// SetEcdh absorbs one output's ecdh tuple bytes.
func (p *PreMlsagHasher) SetEcdh(ecdhBytes []byte) {
	if p.state != preMlsagMessage && p.state != preMlsagOutputs {
		panic("txhash: SetEcdh out of order")
	}
	p.h.Write(ecdhBytes)
	p.state = preMlsagOutputs
}

// SetOutPk absorbs one output's (dest, commitment) pair.
func (p *PreMlsagHasher) SetOutPk(dest, mask xmrcrypto.Point) {
	if p.state != preMlsagOutputs {
		panic("txhash: SetOutPk out of order")
	}
	d, m := dest.Bytes(), mask.Bytes()
	p.h.Write(d[:])
	p.h.Write(m[:])
}

// RctSigBaseDone snapshots the digest. Only GetDigest may follow.
func (p *PreMlsagHasher) RctSigBaseDone() {
	if p.state != preMlsagOutputs {
		panic("txhash: RctSigBaseDone out of order")
	}
	copy(p.digest[:], p.h.Sum(nil))
	p.state = preMlsagDone
}

// GetDigest returns the finalized full_message.
func (p *PreMlsagHasher) GetDigest() [32]byte {
	if p.state != preMlsagDone {
		panic("txhash: GetDigest called before RctSigBaseDone")
	}
	return p.digest
}
