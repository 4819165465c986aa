package kisync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xmrhwsigner/types"
	"xmrhwsigner/xmrcrypto"
)

type autoConfirm struct{}

func (autoConfirm) ConfirmSync() (bool, error) { return true, nil }

type rejectConfirm struct{}

func (rejectConfirm) ConfirmSync() (bool, error) { return false, nil }

func newTestCreds() types.Credentials {
	spendSecret := xmrcrypto.RandomScalar()
	viewSecret := xmrcrypto.RandomScalar()
	return types.Credentials{
		SpendSecret: spendSecret,
		ViewSecret:  viewSecret,
		SpendPublic: xmrcrypto.ScalarMultBase(spendSecret),
		ViewPublic:  xmrcrypto.ScalarMultBase(viewSecret),
	}
}

func sampleRecord() types.KiSyncRecord {
	return types.KiSyncRecord{
		OutKey:              xmrcrypto.ScalarMultBase(xmrcrypto.RandomScalar()),
		TxPubKey:            xmrcrypto.ScalarMultBase(xmrcrypto.RandomScalar()),
		InternalOutputIndex: 0,
	}
}

func TestStartRejectsSecondCall(t *testing.T) {
	s, err := NewSession(newTestCreds(), autoConfirm{}, 1)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	assert.Error(t, s.Start())
}

func TestStartPropagatesUserRejection(t *testing.T) {
	s, err := NewSession(newTestCreds(), rejectConfirm{}, 1)
	require.NoError(t, err)
	assert.Error(t, s.Start())
}

func TestSyncBeforeStartIsRejected(t *testing.T) {
	s, err := NewSession(newTestCreds(), autoConfirm{}, 1)
	require.NoError(t, err)
	_, err = s.Sync(sampleRecord())
	assert.Error(t, err)
}

func TestSyncAfterRejectedStartIsRejected(t *testing.T) {
	s, err := NewSession(newTestCreds(), rejectConfirm{}, 1)
	require.NoError(t, err)
	require.Error(t, s.Start())
	_, err = s.Sync(sampleRecord())
	assert.Error(t, err)
}

func TestSyncProducesVerifiableSchnorrProof(t *testing.T) {
	creds := newTestCreds()
	s, err := NewSession(creds, autoConfirm{}, 1)
	require.NoError(t, err)
	require.NoError(t, s.Start())

	rec := sampleRecord()
	res, err := s.Sync(rec)
	require.NoError(t, err)

	outBytes := rec.OutKey.Bytes()
	hp := xmrcrypto.HashToPoint(outBytes[:])

	// Recompute the verifier's side: k'·hp = r·hp + c·ki, then the
	// challenge must equal c = Hs(hp ‖ k'·hp ‖ ki).
	rG := xmrcrypto.ScalarMult(res.Sig.R, hp)
	cKi := xmrcrypto.ScalarMult(res.Sig.C, res.KeyImage)
	commit := rG.Add(cKi)

	hpb, cb, kib := hp.Bytes(), commit.Bytes(), res.KeyImage.Bytes()
	recomputedC := xmrcrypto.HashToScalar(hpb[:], cb[:], kib[:])
	assert.Equal(t, res.Sig.C, recomputedC)
}

func TestSyncChainsSessionHashAcrossCalls(t *testing.T) {
	creds := newTestCreds()
	s, err := NewSession(creds, autoConfirm{}, 1)
	require.NoError(t, err)
	require.NoError(t, s.Start())

	h0 := s.sessionH
	_, err = s.Sync(sampleRecord())
	require.NoError(t, err)
	h1 := s.sessionH
	assert.NotEqual(t, h0, h1)

	_, err = s.Sync(sampleRecord())
	require.NoError(t, err)
	h2 := s.sessionH
	assert.NotEqual(t, h1, h2)
}

func TestSyncDifferentRecordsProduceDifferentKeyImages(t *testing.T) {
	creds := newTestCreds()
	s, err := NewSession(creds, autoConfirm{}, 1)
	require.NoError(t, err)
	require.NoError(t, s.Start())

	res1, err := s.Sync(sampleRecord())
	require.NoError(t, err)
	res2, err := s.Sync(sampleRecord())
	require.NoError(t, err)

	assert.NotEqual(t, res1.KeyImage.Bytes(), res2.KeyImage.Bytes())
}

func TestKeyImageIndependentOfSessionCounter(t *testing.T) {
	creds := newTestCreds()
	s1, err := NewSession(creds, autoConfirm{}, 1)
	require.NoError(t, err)
	s2, err := NewSession(creds, autoConfirm{}, 2)
	require.NoError(t, err)

	require.NoError(t, s1.Start())
	require.NoError(t, s2.Start())

	rec := sampleRecord()
	res1, err := s1.Sync(rec)
	require.NoError(t, err)
	res2, err := s2.Sync(rec)
	require.NoError(t, err)

	// Same record, same creds, different session counter: key images
	// derive from creds and the record alone, so they match.
	assert.Equal(t, res1.KeyImage.Bytes(), res2.KeyImage.Bytes())
}
