package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xmrhwsigner/serialize"
	"xmrhwsigner/xmrcrypto"
)

func TestToRelativeOffsets(t *testing.T) {
	got := ToRelativeOffsets([]uint64{5, 5, 12, 100})
	assert.Equal(t, []uint64{5, 0, 7, 88}, got)
}

func TestToRelativeOffsetsSingle(t *testing.T) {
	assert.Equal(t, []uint64{42}, ToRelativeOffsets([]uint64{42}))
}

func TestExtraRoundTripPubKeyAndNonce(t *testing.T) {
	pub := xmrcrypto.ScalarMultBase(xmrcrypto.RandomScalar())
	pubBytes := pub.Bytes()

	fields := []ExtraField{
		{Tag: extraTagPubKey, Value: pubBytes[:]},
		{Tag: extraTagNonce, Value: []byte{0xde, 0xad, 0xbe, 0xef}},
	}
	encoded := WriteExtra(fields)
	decoded, err := ReadExtra(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, byte(extraTagPubKey), decoded[0].Tag)
	assert.Equal(t, pubBytes[:], decoded[0].Value)
	assert.Equal(t, byte(extraTagNonce), decoded[1].Tag)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, decoded[1].Value)
}

func TestExtraRoundTripAdditionalPubKeys(t *testing.T) {
	k1 := xmrcrypto.ScalarMultBase(xmrcrypto.RandomScalar()).Bytes()
	k2 := xmrcrypto.ScalarMultBase(xmrcrypto.RandomScalar()).Bytes()
	value := append(append([]byte{}, k1[:]...), k2[:]...)

	fields := []ExtraField{{Tag: extraTagAdditionalPubKeys, Value: value}}
	encoded := WriteExtra(fields)
	decoded, err := ReadExtra(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, value, decoded[0].Value)
}

func TestExtraEmptyRoundTrip(t *testing.T) {
	decoded, err := ReadExtra(nil)
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestTxinToKeyWriteCanonical(t *testing.T) {
	ki := xmrcrypto.ScalarMultBase(xmrcrypto.RandomScalar())
	vin := TxinToKey{Amount: 0, KeyOffsets: []uint64{1, 2, 3}, KImage: ki}
	w := serialize.NewWriter()
	vin.WriteCanonical(w)

	r := serialize.NewReader(w.Bytes())
	assert.Equal(t, byte(0x02), r.ReadVariantTag())
	assert.Equal(t, uint64(0), r.ReadUvarint())
	n := r.ReadContainerSize()
	require.Equal(t, 3, n)
	for i := 0; i < n; i++ {
		r.ReadUvarint()
	}
	kiBytes := ki.Bytes()
	assert.Equal(t, kiBytes[:], r.ReadFixedBlob(32))
	require.NoError(t, r.Err())
}

func TestCtKeyWriteCanonical(t *testing.T) {
	dest := xmrcrypto.ScalarMultBase(xmrcrypto.RandomScalar())
	mask := xmrcrypto.ScalarMultBase(xmrcrypto.RandomScalar())
	ck := CtKey{Dest: dest, Mask: mask}
	w := serialize.NewWriter()
	ck.WriteCanonical(w)
	assert.Equal(t, 64, w.Len())
}

func TestEcdhTupleWriteCanonical(t *testing.T) {
	e := EcdhTuple{Mask: xmrcrypto.RandomScalar(), Amount: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}}
	w := serialize.NewWriter()
	e.WriteCanonical(w)
	assert.Equal(t, 40, w.Len())
}
