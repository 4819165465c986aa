// Package kisync implements the key-image sync engine (spec.md §4.6):
// a stateful flow, separate from but sharing primitives with signer,
// that derives key images and proof-of-knowledge signatures for
// previously received outputs.
package kisync

import (
	"xmrhwsigner/keyschedule"
	"xmrhwsigner/serialize"
	"xmrhwsigner/sigerr"
	"xmrhwsigner/types"
	"xmrhwsigner/xmrcrypto"
)

// Confirmer is the subset of signer.Confirmer a sync session needs.
type Confirmer interface {
	ConfirmSync() (bool, error)
}

type sessionStage int

const (
	stageNotStarted sessionStage = iota
	stageActive
	stageTerminal
)

// Session is one key-image-sync flow: confirmed once at start, then
// streamed one record at a time.
type Session struct {
	creds     types.Credentials
	confirmer Confirmer
	schedule  *keyschedule.Schedule

	st         sessionStage
	sessionH   [32]byte
	recordIdx  int
}

// NewSession derives a session-local key schedule from the
// credentials' view secret and a fresh counter, per §4.4/§4.6 ("keys
// and HMACs are derived from a per-session master similar to §4.4").
func NewSession(creds types.Credentials, confirmer Confirmer, sessionCounter uint64) (*Session, error) {
	viewBytes := creds.ViewSecret.Bytes()
	sched, err := keyschedule.Derive(viewBytes[:], []byte("kisync"), sessionCounter)
	if err != nil {
		return nil, err
	}
	return &Session{creds: creds, confirmer: confirmer, schedule: sched}, nil
}

// Start confirms the sync session with the user once.
func (s *Session) Start() error {
	if s.st != stageNotStarted {
		return sigerr.New(sigerr.ProtocolOrder, "kisync: Start called more than once")
	}
	ok, err := s.confirmer.ConfirmSync()
	if err != nil {
		s.st = stageTerminal
		return sigerr.Wrap(sigerr.Semantic, "kisync: confirm failed", err)
	}
	if !ok {
		s.st = stageTerminal
		return sigerr.New(sigerr.UserRejection, "kisync: user rejected sync session")
	}
	s.st = stageActive
	s.sessionH = xmrcrypto.Keccak256([]byte("kisync-session"))
	return nil
}

// Sync computes (key_image, proof) for one streamed record and
// absorbs it into the session hash tying the response to its input.
func (s *Session) Sync(rec types.KiSyncRecord) (types.KiSyncResult, error) {
	if s.st != stageActive {
		return types.KiSyncResult{}, sigerr.New(sigerr.ProtocolOrder, "kisync: Sync called before Start or after Terminal")
	}

	derivation := xmrcrypto.ScalarMult(s.creds.ViewSecret, rec.TxPubKey)
	derivBytes := derivation.Bytes()
	idxVarint := serialize.DumpUvarint(uint64(rec.InternalOutputIndex))
	scalarDerived := xmrcrypto.HashToScalar(derivBytes[:], idxVarint)
	secret := scalarDerived.Add(s.creds.SpendSecret)

	hp := xmrcrypto.HashToPoint(pointBytes(rec.OutKey))
	ki := xmrcrypto.ScalarMult(secret, hp)

	sig := schnorrProve(secret, hp, ki)

	w := serialize.NewWriter()
	ob, tb := rec.OutKey.Bytes(), rec.TxPubKey.Bytes()
	w.WriteFixedBlob(ob[:])
	w.WriteFixedBlob(tb[:])
	w.WriteContainerSize(len(rec.AdditionalTxPubKeys))
	for _, p := range rec.AdditionalTxPubKeys {
		pb := p.Bytes()
		w.WriteFixedBlob(pb[:])
	}
	w.WriteUvarint(uint64(rec.InternalOutputIndex))
	entryHash := xmrcrypto.Keccak256(w.Bytes())
	s.sessionH = xmrcrypto.Keccak256(s.sessionH[:], entryHash[:])

	s.recordIdx++
	return types.KiSyncResult{KeyImage: ki, Sig: sig}, nil
}

func pointBytes(p xmrcrypto.Point) []byte {
	b := p.Bytes()
	return b[:]
}

// schnorrProve produces a Schnorr-like proof of knowledge of secret,
// the discrete log of ki with respect to base hp: sample nonce k,
// challenge c = Hs(hp ‖ k·hp ‖ ki), response r = k − c·secret.
func schnorrProve(secret xmrcrypto.Scalar, hp, ki xmrcrypto.Point) types.SchnorrSig {
	k := xmrcrypto.RandomScalar()
	commit := xmrcrypto.ScalarMult(k, hp)
	hpb, cb, kib := hp.Bytes(), commit.Bytes(), ki.Bytes()
	c := xmrcrypto.HashToScalar(hpb[:], cb[:], kib[:])
	r := k.Sub(c.Mul(secret))
	return types.SchnorrSig{C: c, R: r}
}
