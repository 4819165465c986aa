package signer

import (
	"xmrhwsigner/keyschedule"
	"xmrhwsigner/sigerr"
	"xmrhwsigner/txhash"
	"xmrhwsigner/types"
	"xmrhwsigner/xmrcrypto"
)

const txVersionRct = 2

// Init runs stage 1 (§4.5.1): confirms with the user, derives the key
// schedule, classifies outputs, primes both incremental hashers, and
// emits per-destination pinning HMACs.
func (s *TsxSigner) Init(tsx types.TsxData) (types.RespInit, error) {
	if err := s.requireStage(stageStart); err != nil {
		return types.RespInit{}, err
	}

	ok, err := s.confirmer.Confirm(tsx)
	if err != nil {
		return types.RespInit{}, s.failWrap(sigerr.Semantic, "signer: confirm failed", err)
	}
	if !ok {
		s.purge()
		return types.RespInit{}, sigerr.New(sigerr.UserRejection, "signer: user rejected transaction")
	}

	s.tsx = tsx
	s.numInputs = int(tsx.NumInputs)
	s.numOutputs = len(tsx.Outputs)
	s.fee = tsx.Fee
	s.useSimpleRct = tsx.NumInputs > 1
	s.useBulletproof = false
	s.useRct = true
	s.changeDts = tsx.ChangeDts

	if err := s.classifyOutputs(); err != nil {
		return types.RespInit{}, err
	}

	if err := s.deriveTxKeys(); err != nil {
		return types.RespInit{}, err
	}

	if err := s.seedExtraPaymentID(); err != nil {
		return types.RespInit{}, err
	}

	if err := s.deriveKeySchedule(); err != nil {
		return types.RespInit{}, err
	}

	s.subaddrs = deriveSubaddressTable(s.creds, tsx.Account, tsx.MinorIndices)

	s.prefixHasher = txhash.NewTxPrefixHasher(txVersionRct, tsx.UnlockTime, s.numInputs)
	s.mlsagHasher = txhash.NewPreMlsagHasher(s.useSimpleRct)
	s.mlsagHasher.SetTypeFee(s.rctTypeByte(), s.fee)

	hmacDests, err := s.hmacDestinations()
	if err != nil {
		return types.RespInit{}, err
	}

	s.inpIdx = -1
	s.outIdx = -1
	s.sumPoutsAlphas = xmrcrypto.ZeroScalar()
	s.sumOut = xmrcrypto.ZeroScalar()
	s.inputs = make([]inputState, s.numInputs)
	s.outputs = make([]outputState, s.numOutputs)

	s.st = stageInitDone
	return types.RespInit{HmacDests: hmacDests, InMemory: false}, nil
}

func (s *TsxSigner) rctTypeByte() byte {
	if s.useSimpleRct {
		return byte(types.RctSimple)
	}
	return byte(types.RctFull)
}

// classifyOutputs counts standard vs. subaddress destinations, checks
// the change address is among the outputs, and, per §4.5.1, decides
// need_additional_txkeys. R itself is computed later in deriveTxKeys.
func (s *TsxSigner) classifyOutputs() error {
	s.numStdDest = 0
	s.numSubDest = 0
	changeFound := s.changeDts == nil
	for _, o := range s.tsx.Outputs {
		if o.Addr.IsSubaddress {
			s.numSubDest++
		} else {
			s.numStdDest++
		}
		if s.changeDts != nil && sameAddr(o.Addr, s.changeDts.Addr) {
			changeFound = true
		}
	}
	if !changeFound {
		return s.fail(sigerr.Semantic, "signer: change address not found among outputs")
	}
	s.needAdditionalTxKeys = s.numSubDest > 0 && (s.numStdDest > 0 || s.numSubDest > 1)
	return nil
}

func sameAddr(a, b types.Address) bool {
	ab, bb := a.SpendPub.Bytes(), b.SpendPub.Bytes()
	avb, bvb := a.ViewPub.Bytes(), b.ViewPub.Bytes()
	return xmrcrypto.CtEqual(ab[:], bb[:]) && xmrcrypto.CtEqual(avb[:], bvb[:])
}

// deriveTxKeys samples r (or adopts UseTxKeys) and computes R per the
// single-subaddress-destination rule, plus any additional tx keys.
func (s *TsxSigner) deriveTxKeys() error {
	if len(s.tsx.UseTxKeys) > 0 {
		s.r = s.tsx.UseTxKeys[0]
		s.additionalTxKeys = s.tsx.UseTxKeys[1:]
	} else {
		s.r = xmrcrypto.RandomScalar()
		if s.needAdditionalTxKeys {
			s.additionalTxKeys = make([]xmrcrypto.Scalar, s.numOutputs)
			for i := range s.additionalTxKeys {
				s.additionalTxKeys[i] = xmrcrypto.RandomScalar()
			}
		}
	}

	if s.numSubDest == 1 && s.numStdDest == 0 {
		dSpend := s.singleSubaddressSpendPub()
		s.rPub = xmrcrypto.ScalarMult(s.r, dSpend)
	} else {
		s.rPub = xmrcrypto.ScalarMultBase(s.r)
	}

	if s.needAdditionalTxKeys {
		s.additionalTxPubKeys = make([]xmrcrypto.Point, len(s.additionalTxKeys))
		for i, rj := range s.additionalTxKeys {
			if s.tsx.Outputs[i].Addr.IsSubaddress {
				s.additionalTxPubKeys[i] = xmrcrypto.ScalarMult(rj, s.tsx.Outputs[i].Addr.SpendPub)
			} else {
				s.additionalTxPubKeys[i] = xmrcrypto.ScalarMultBase(rj)
			}
		}
	}
	return nil
}

// singleSubaddressSpendPub finds the one subaddress destination's
// spend public key, required when numSubDest==1 && numStdDest==0.
func (s *TsxSigner) singleSubaddressSpendPub() xmrcrypto.Point {
	for _, o := range s.tsx.Outputs {
		if o.Addr.IsSubaddress {
			return o.Addr.SpendPub
		}
	}
	panic("signer: singleSubaddressSpendPub called with no subaddress destination")
}

// seedExtraPaymentID encrypts the payment id nonce against the one
// eligible destination's view key, per §4.5.1.
func (s *TsxSigner) seedExtraPaymentID() error {
	if len(s.tsx.PaymentID) == 0 {
		return nil
	}
	var target *types.TxDestinationEntry
	count := 0
	for i := range s.tsx.Outputs {
		if s.changeDts != nil && sameAddr(s.tsx.Outputs[i].Addr, s.changeDts.Addr) {
			continue
		}
		target = &s.tsx.Outputs[i]
		count++
	}
	if count != 1 {
		return s.fail(sigerr.Semantic, "signer: payment id requires exactly one eligible destination")
	}
	derivation := xmrcrypto.ScalarMult(s.r, target.Addr.ViewPub)
	derivBytes := derivation.Bytes()
	keystream := xmrcrypto.Keccak256(derivBytes[:], []byte("payment_id"))
	nonce := make([]byte, len(s.tsx.PaymentID))
	for i := range nonce {
		nonce[i] = s.tsx.PaymentID[i] ^ keystream[i%len(keystream)]
	}
	s.extra = append(s.extra, types.ExtraField{Tag: 0x02, Value: nonce})
	return nil
}

func (s *TsxSigner) deriveKeySchedule() error {
	tsxBytes := s.serializeTsxData()
	rBytes := s.r.Bytes()
	sched, err := keyschedule.Derive(tsxBytes, rBytes[:], s.txCounter)
	if err != nil {
		return s.failWrap(sigerr.Semantic, "signer: key schedule derivation failed", err)
	}
	s.schedule = sched
	return nil
}

// serializeTsxData is the canonical encoding of the request intent fed
// into key_master derivation. Field order matches TsxData's
// declaration in spec.md §3.
func (s *TsxSigner) serializeTsxData() []byte {
	w := canonicalWriter()
	w.WriteUvarint(uint64(s.tsx.NumInputs))
	w.WriteUvarint(uint64(s.tsx.Mixin))
	w.WriteUvarint(s.tsx.Fee)
	w.WriteUvarint(s.tsx.UnlockTime)
	if s.tsx.IsMultisig {
		w.WriteRaw([]byte{1})
	} else {
		w.WriteRaw([]byte{0})
	}
	w.WriteContainerSize(len(s.tsx.Outputs))
	for _, o := range s.tsx.Outputs {
		w.WriteUvarint(o.Amount)
		sp, vp := o.Addr.SpendPub.Bytes(), o.Addr.ViewPub.Bytes()
		w.WriteFixedBlob(sp[:])
		w.WriteFixedBlob(vp[:])
	}
	w.WriteBlob(s.tsx.PaymentID)
	return w.Bytes()
}

func (s *TsxSigner) hmacDestinations() ([][32]byte, error) {
	out := make([][32]byte, len(s.tsx.Outputs))
	for i, o := range s.tsx.Outputs {
		w := canonicalWriter()
		w.WriteUvarint(o.Amount)
		sp, vp := o.Addr.SpendPub.Bytes(), o.Addr.ViewPub.Bytes()
		w.WriteFixedBlob(sp[:])
		w.WriteFixedBlob(vp[:])
		out[i] = s.schedule.Hmac(keyschedule.TagTxdest, i, w.Bytes())
	}
	return out, nil
}
