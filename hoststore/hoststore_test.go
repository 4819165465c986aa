package hoststore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndListTransferDetails(t *testing.T) {
	s := openTestStore(t)

	td1 := TransferDetails{
		OutKey:              [32]byte{1},
		TxPubKey:            [32]byte{2},
		AdditionalTxPubKeys: [][32]byte{{3}, {4}},
		InternalOutputIndex: 0,
	}
	td2 := TransferDetails{
		OutKey:              [32]byte{5},
		TxPubKey:            [32]byte{6},
		InternalOutputIndex: 1,
	}

	require.NoError(t, s.SaveTransferDetails(td1))
	require.NoError(t, s.SaveTransferDetails(td2))

	got, err := s.ListTransferDetails()
	require.NoError(t, err)
	require.Len(t, got, 2)

	byOutKey := make(map[[32]byte]TransferDetails)
	for _, td := range got {
		byOutKey[td.OutKey] = td
	}
	assert.Equal(t, td1, byOutKey[td1.OutKey])
	assert.Equal(t, td2, byOutKey[td2.OutKey])
}

func TestListTransferDetailsEmptyStore(t *testing.T) {
	s := openTestStore(t)
	got, err := s.ListTransferDetails()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSaveLoadInputFragmentRoundTrip(t *testing.T) {
	s := openTestStore(t)

	f := InputFragment{
		VinBytes:      []byte("vin-bytes"),
		HmacVin:       [32]byte{1, 2, 3},
		PseudoOut:     [32]byte{4, 5, 6},
		PseudoOutHmac: [32]byte{7, 8, 9},
		AlphaEnc:      []byte("alpha-enc"),
	}
	require.NoError(t, s.SaveInputFragment("session-a", 0, f))

	got, err := s.LoadInputFragment("session-a", 0)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestLoadInputFragmentMissingReturnsError(t *testing.T) {
	s := openTestStore(t)
	_, err := s.LoadInputFragment("nonexistent", 0)
	assert.Error(t, err)
}

func TestPurgeSessionRemovesOnlyThatSessionsFragments(t *testing.T) {
	s := openTestStore(t)

	fa := InputFragment{VinBytes: []byte("a")}
	fb := InputFragment{VinBytes: []byte("b")}
	require.NoError(t, s.SaveInputFragment("session-a", 0, fa))
	require.NoError(t, s.SaveInputFragment("session-a", 1, fa))
	require.NoError(t, s.SaveInputFragment("session-b", 0, fb))

	require.NoError(t, s.PurgeSession("session-a"))

	_, err := s.LoadInputFragment("session-a", 0)
	assert.Error(t, err)
	_, err = s.LoadInputFragment("session-a", 1)
	assert.Error(t, err)

	got, err := s.LoadInputFragment("session-b", 0)
	require.NoError(t, err)
	assert.Equal(t, fb, got)
}
