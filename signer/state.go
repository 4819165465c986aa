// Package signer implements the transaction-signing state machine
// (spec.md §4.5): the core engine that owns all per-transaction secret
// state and drives the nine-stage SignTx protocol. Unlike the
// teacher's ledger/consensus state (guarded by sync.RWMutex for
// concurrent block processing), a TsxSigner is exclusively owned by
// one cooperative flow at a time (spec.md §5: "single-threaded,
// cooperative... no internal parallelism, no shared mutable state
// between flows") — stage methods take an exclusive receiver and no
// lock is taken.
package signer

import (
	"xmrhwsigner/keyschedule"
	"xmrhwsigner/sigerr"
	"xmrhwsigner/txhash"
	"xmrhwsigner/types"
	"xmrhwsigner/xmrcrypto"
)

// stage enumerates SigningState's lifecycle (§4.5's state diagram).
type stage int

const (
	stageStart stage = iota
	stageInitDone
	stageInputsLoading
	stageInputsDone
	stageInputsPermutation
	stageInputsVinIHashed
	stageOutputsLoading
	stageOutputsDone
	stageMlsagDone
	stageSigning
	stageFinal
	stageTerminal
)

// inputState is the per-input secret material the device retains
// between a source entry's first presentation (SetInput) and its
// later re-presentations (InputVinI, SignInput).
type inputState struct {
	secret    xmrcrypto.Scalar // x_i
	keyImage  xmrcrypto.Point
	alpha     xmrcrypto.Scalar
	pseudoOut xmrcrypto.Point
	src       types.TxSourceEntry
}

// outputState is the per-output secret material retained from
// SetOutput through MlsagDone.
type outputState struct {
	mask   xmrcrypto.Scalar // output_sk_j
	destPk types.CtKey       // out_pk_j
}

// TsxSigner is the per-session signing engine. Created at Init,
// destroyed at Final or on any fatal error (Terminal, purged).
type TsxSigner struct {
	creds     types.Credentials
	confirmer Confirmer
	rangeSign RangeProofSigner

	st stage

	tsx            types.TsxData
	numInputs      int
	numOutputs     int
	useSimpleRct   bool
	useBulletproof bool
	useRct         bool
	fee            uint64

	r                    xmrcrypto.Scalar
	rPub                 xmrcrypto.Point
	additionalTxKeys     []xmrcrypto.Scalar
	additionalTxPubKeys  []xmrcrypto.Point
	needAdditionalTxKeys bool
	changeDts            *types.TxDestinationEntry
	numStdDest           int
	numSubDest           int

	subaddrs map[[32]byte]subaddress

	schedule *keyschedule.Schedule

	prefixHasher *txhash.TxPrefixHasher
	mlsagHasher  *txhash.PreMlsagHasher

	inpIdx int
	inputs []inputState // load order until permutation, then permuted order

	sourcePermutation []int // π: permuted index -> original load index

	sumPoutsAlphas xmrcrypto.Scalar

	outIdx  int
	outputs []outputState
	sumOut  xmrcrypto.Scalar
	extra   []types.ExtraField

	sumInputAmounts  uint64
	sumOutputAmounts uint64

	txPrefixHash [32]byte
	fullMessage  [32]byte

	txCounter uint64
}

// New constructs an un-initialized signer bound to one set of
// credentials. Call Init to begin a session.
func New(creds types.Credentials, confirmer Confirmer, rangeSign RangeProofSigner, txCounter uint64) *TsxSigner {
	if rangeSign == nil {
		rangeSign = BorromeanSigner{}
	}
	return &TsxSigner{
		creds:     creds,
		confirmer: confirmer,
		rangeSign: rangeSign,
		st:        stageStart,
		txCounter: txCounter,
	}
}

func (s *TsxSigner) requireStage(want stage) error {
	if s.st != want {
		s.purge()
		return sigerr.New(sigerr.ProtocolOrder, "signer: request at wrong stage")
	}
	return nil
}

// purge zeroes secret state and moves the signer to Terminal. Called
// on every fatal error per spec.md §7's propagation policy.
func (s *TsxSigner) purge() {
	s.st = stageTerminal
	s.r = xmrcrypto.Scalar{}
	for i := range s.inputs {
		s.inputs[i] = inputState{}
	}
	for i := range s.outputs {
		s.outputs[i] = outputState{}
	}
	s.subaddrs = nil
}

func (s *TsxSigner) fail(kind sigerr.Kind, msg string) error {
	s.purge()
	return sigerr.New(kind, msg)
}

func (s *TsxSigner) failWrap(kind sigerr.Kind, msg string, err error) error {
	s.purge()
	return sigerr.Wrap(kind, msg, err)
}
