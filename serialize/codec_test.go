package serialize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUvarintRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 300, 16384, 1 << 40, ^uint64(0)}
	for _, v := range cases {
		w := NewWriter()
		w.WriteUvarint(v)
		r := NewReader(w.Bytes())
		got := r.ReadUvarint()
		require.NoError(t, r.Err())
		assert.Equal(t, v, got, "round trip for %d", v)
	}
}

func TestUvarintShortEncodingForSmallValues(t *testing.T) {
	w := NewWriter()
	w.WriteUvarint(1)
	assert.Equal(t, 1, w.Len())
}

func TestFixedUintRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteFixedUint(0x0102030405060708, 8)
	r := NewReader(w.Bytes())
	got := r.ReadFixedUint(8)
	require.NoError(t, r.Err())
	assert.Equal(t, uint64(0x0102030405060708), got)
}

func TestBlobRoundTrip(t *testing.T) {
	payload := []byte("a variable length blob of bytes")
	w := NewWriter()
	w.WriteBlob(payload)
	r := NewReader(w.Bytes())
	got := r.ReadBlob()
	require.NoError(t, r.Err())
	assert.Equal(t, payload, got)
}

func TestFixedBlobRoundTrip(t *testing.T) {
	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	w := NewWriter()
	w.WriteFixedBlob(key[:])
	r := NewReader(w.Bytes())
	got := r.ReadFixedBlob(32)
	require.NoError(t, r.Err())
	assert.Equal(t, key[:], got)
}

func TestContainerAndVariantTag(t *testing.T) {
	w := NewWriter()
	w.WriteVariantTag(0x02)
	w.WriteContainerSize(3)
	w.WriteUvarint(10)
	w.WriteUvarint(20)
	w.WriteUvarint(30)

	r := NewReader(w.Bytes())
	assert.Equal(t, byte(0x02), r.ReadVariantTag())
	n := r.ReadContainerSize()
	require.Equal(t, 3, n)
	vals := make([]uint64, n)
	for i := range vals {
		vals[i] = r.ReadUvarint()
	}
	require.NoError(t, r.Err())
	assert.Equal(t, []uint64{10, 20, 30}, vals)
}

func TestReaderErrorsOnTruncatedInput(t *testing.T) {
	r := NewReader([]byte{0x80}) // continuation bit set, no following byte
	r.ReadUvarint()
	assert.Error(t, r.Err())

	r2 := NewReader([]byte{0x01, 0x02})
	r2.ReadFixedBlob(10)
	assert.Error(t, r2.Err())
}

func TestDumpUvarint(t *testing.T) {
	assert.Equal(t, []byte{0x80, 0x01}, DumpUvarint(128))
	assert.Equal(t, []byte{0x00}, DumpUvarint(0))
}
