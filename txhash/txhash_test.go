package txhash

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"xmrhwsigner/xmrcrypto"
)

func TestTxPrefixHasherDeterministic(t *testing.T) {
	build := func() [32]byte {
		h := NewTxPrefixHasher(2, 0, 2)
		h.AbsorbVin([]byte("vin-0"))
		h.AbsorbVin([]byte("vin-1"))
		h.AbsorbVoutCount(1)
		h.AbsorbTxOut([]byte("vout-0"))
		return h.Finalize([]byte("extra-blob"))
	}
	assert.Equal(t, build(), build())
}

func TestTxPrefixHasherChangesWithInput(t *testing.T) {
	h1 := NewTxPrefixHasher(2, 0, 1)
	h1.AbsorbVin([]byte("vin-a"))
	h1.AbsorbVoutCount(0)
	d1 := h1.Finalize(nil)

	h2 := NewTxPrefixHasher(2, 0, 1)
	h2.AbsorbVin([]byte("vin-b"))
	h2.AbsorbVoutCount(0)
	d2 := h2.Finalize(nil)

	assert.NotEqual(t, d1, d2)
}

func TestTxPrefixHasherPanicsOnDoubleVoutCount(t *testing.T) {
	h := NewTxPrefixHasher(2, 0, 0)
	h.AbsorbVoutCount(1)
	assert.Panics(t, func() { h.AbsorbVoutCount(1) })
}

func TestTxPrefixHasherPanicsOnTxOutBeforeVoutCount(t *testing.T) {
	h := NewTxPrefixHasher(2, 0, 0)
	assert.Panics(t, func() { h.AbsorbTxOut([]byte("x")) })
}

func TestTxPrefixHasherPanicsAfterFinalize(t *testing.T) {
	h := NewTxPrefixHasher(2, 0, 0)
	h.AbsorbVoutCount(0)
	h.Finalize(nil)
	assert.Panics(t, func() { h.AbsorbVin([]byte("late")) })
}

func TestPreMlsagHasherSimpleOrderedFlow(t *testing.T) {
	p := NewPreMlsagHasher(true)
	p.SetTypeFee(1, 1000)
	p.SetPseudoOut(xmrcrypto.ScalarMultBase(xmrcrypto.RandomScalar()))
	p.SetMessage([32]byte{1, 2, 3})
	p.AbsorbRsig([]byte("rsig-bytes"))
	p.SetEcdh([]byte("ecdh-bytes"))
	p.SetOutPk(xmrcrypto.ScalarMultBase(xmrcrypto.RandomScalar()), xmrcrypto.ScalarMultBase(xmrcrypto.RandomScalar()))
	p.RctSigBaseDone()
	digest := p.GetDigest()
	assert.NotEqual(t, [32]byte{}, digest)
}

func TestPreMlsagHasherFullRejectsPseudoOut(t *testing.T) {
	p := NewPreMlsagHasher(false)
	p.SetTypeFee(0, 1000)
	assert.Panics(t, func() { p.SetPseudoOut(xmrcrypto.BasePoint()) })
}

func TestPreMlsagHasherPanicsOnOutOfOrderSetMessage(t *testing.T) {
	p := NewPreMlsagHasher(false)
	assert.Panics(t, func() { p.SetMessage([32]byte{}) })
}

func TestPreMlsagHasherPanicsOnEarlyGetDigest(t *testing.T) {
	p := NewPreMlsagHasher(false)
	p.SetTypeFee(0, 1000)
	p.SetMessage([32]byte{})
	assert.Panics(t, func() { p.GetDigest() })
}

func TestPreMlsagHasherPanicsOnOutPkBeforeEcdh(t *testing.T) {
	p := NewPreMlsagHasher(false)
	p.SetTypeFee(0, 1000)
	p.SetMessage([32]byte{})
	assert.Panics(t, func() { p.SetOutPk(xmrcrypto.BasePoint(), xmrcrypto.BasePoint()) })
}

func TestPreMlsagHasherDeterministic(t *testing.T) {
	build := func() [32]byte {
		p := NewPreMlsagHasher(false)
		p.SetTypeFee(0, 500)
		p.SetMessage([32]byte{9, 9, 9})
		p.SetEcdh([]byte("ecdh"))
		p.SetOutPk(xmrcrypto.BasePoint(), xmrcrypto.BasePoint())
		p.RctSigBaseDone()
		return p.GetDigest()
	}
	assert.Equal(t, build(), build())
}
