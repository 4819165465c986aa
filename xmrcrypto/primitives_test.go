package xmrcrypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalarArithmetic(t *testing.T) {
	a := RandomScalar()
	b := RandomScalar()

	assert.True(t, a.Add(b).Sub(b).Eq(a))
	assert.True(t, ZeroScalar().IsZero())
	assert.False(t, a.IsZero(), "RandomScalar should essentially never be zero")
}

func TestScalarRoundTrip(t *testing.T) {
	s := RandomScalar()
	b := s.Bytes()
	decoded, err := DecodeScalar(b[:])
	require.NoError(t, err)
	assert.True(t, s.Eq(decoded))
}

func TestScalarFromUint64(t *testing.T) {
	a := ScalarFromUint64(5)
	b := ScalarFromUint64(3)
	sum := ScalarFromUint64(8)
	assert.True(t, a.Add(b).Eq(sum))
}

func TestPointRoundTrip(t *testing.T) {
	p := ScalarMultBase(RandomScalar())
	b := p.Bytes()
	decoded, err := DecodePoint(b[:])
	require.NoError(t, err)
	assert.True(t, p.Eq(decoded))
}

func TestPointAddSub(t *testing.T) {
	g := BasePoint()
	two := ScalarMultBase(ScalarFromUint64(2))
	assert.True(t, g.Add(g).Eq(two))
	assert.True(t, two.Sub(g).Eq(g))
}

func TestGenCMatchesManualCommitment(t *testing.T) {
	mask := RandomScalar()
	amount := uint64(123456789)
	commit := GenC(mask, amount)
	manual := ScalarMultBase(mask).Add(ScalarMultH(ScalarFromUint64(amount)))
	assert.True(t, commit.Eq(manual))
}

func TestJSONRoundTrip(t *testing.T) {
	s := RandomScalar()
	data, err := s.MarshalJSON()
	require.NoError(t, err)
	var decoded Scalar
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.True(t, s.Eq(decoded))

	p := ScalarMultBase(s)
	pdata, err := p.MarshalJSON()
	require.NoError(t, err)
	var pdecoded Point
	require.NoError(t, pdecoded.UnmarshalJSON(pdata))
	assert.True(t, p.Eq(pdecoded))
}

func TestKeccak256Deterministic(t *testing.T) {
	a := Keccak256([]byte("monero"))
	b := Keccak256([]byte("monero"))
	assert.Equal(t, a, b)

	c := Keccak256([]byte("not monero"))
	assert.NotEqual(t, a, c)
}

func TestHashToScalarAndPointAreDeterministic(t *testing.T) {
	data := []byte("a fixed message")
	assert.True(t, HashToScalar(data).Eq(HashToScalar(data)))
	assert.True(t, HashToPoint(data).Eq(HashToPoint(data)))
}

func TestCtEqual(t *testing.T) {
	a := []byte{1, 2, 3}
	b := []byte{1, 2, 3}
	c := []byte{1, 2, 4}
	assert.True(t, CtEqual(a, b))
	assert.False(t, CtEqual(a, c))
	assert.False(t, CtEqual(a, []byte{1, 2}))
}

func TestSealOpenRoundTrip(t *testing.T) {
	var key [32]byte
	copy(key[:], Keccak256([]byte("key"))[:])
	plaintext := []byte("alpha scalar bytes go here, 32b")

	ct, err := Seal(key, plaintext)
	require.NoError(t, err)

	pt, err := Open(key, ct)
	require.NoError(t, err)
	assert.Equal(t, plaintext, pt)
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	var key [32]byte
	copy(key[:], Keccak256([]byte("key"))[:])
	ct, err := Seal(key, []byte("secret payload"))
	require.NoError(t, err)

	tampered := append([]byte{}, ct...)
	tampered[len(tampered)-1] ^= 0xff

	_, err = Open(key, tampered)
	assert.Error(t, err)
}

func TestOpenRejectsWrongKey(t *testing.T) {
	var key1, key2 [32]byte
	copy(key1[:], Keccak256([]byte("key1"))[:])
	copy(key2[:], Keccak256([]byte("key2"))[:])

	ct, err := Seal(key1, []byte("secret payload"))
	require.NoError(t, err)

	_, err = Open(key2, ct)
	assert.Error(t, err)
}
