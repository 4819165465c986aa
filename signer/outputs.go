package signer

import (
	"xmrhwsigner/keyschedule"
	"xmrhwsigner/sigerr"
	"xmrhwsigner/types"
	"xmrhwsigner/xmrcrypto"
)

// SetOutput runs stage 5 (§4.5.5), repeated once per output.
func (s *TsxSigner) SetOutput(dst types.TxDestinationEntry, hmacDest [32]byte) (types.RespSetOutput, error) {
	if s.st != stageOutputsLoading {
		return types.RespSetOutput{}, s.fail(sigerr.ProtocolOrder, "signer: SetOutput at wrong stage")
	}
	s.outIdx++
	if s.outIdx >= s.numOutputs {
		return types.RespSetOutput{}, s.fail(sigerr.ProtocolOrder, "signer: SetOutput index overflow")
	}

	if s.outIdx == 0 {
		s.prefixHasher.AbsorbVoutCount(s.numOutputs)
	}

	destBytes := serializeDestination(dst)
	if !s.schedule.VerifyHmac(keyschedule.TagTxdest, s.outIdx, destBytes, hmacDest) {
		return types.RespSetOutput{}, s.fail(sigerr.Integrity, "signer: destination HMAC mismatch")
	}

	isChange := s.changeDts != nil && sameAddr(dst.Addr, s.changeDts.Addr)

	var derivation xmrcrypto.Point
	switch {
	case isChange:
		derivation = xmrcrypto.ScalarMult(s.creds.ViewSecret, s.rPub)
	case dst.Addr.IsSubaddress && s.needAdditionalTxKeys:
		derivation = xmrcrypto.ScalarMult(s.additionalTxKeys[s.outIdx], dst.Addr.ViewPub)
	default:
		derivation = xmrcrypto.ScalarMult(s.r, dst.Addr.ViewPub)
	}
	derivBytes := derivation.Bytes()
	idxVarint := serializeVarint(uint64(s.outIdx))
	amountKey := xmrcrypto.HashToScalar(derivBytes[:], idxVarint)
	stealthPub := xmrcrypto.ScalarMultBase(amountKey).Add(dst.Addr.SpendPub)

	txOut := types.TxOut{Amount: 0, Target: types.TxoutToKey{Key: stealthPub}}
	w := canonicalWriter()
	txOut.WriteCanonical(w)
	txOutBytes := w.Bytes()
	s.prefixHasher.AbsorbTxOut(txOutBytes)

	hw := canonicalWriter()
	hw.WriteRaw(destBytes)
	hw.WriteRaw(txOutBytes)
	hmacVout := s.schedule.Hmac(keyschedule.TagTxout, s.outIdx, hw.Bytes())

	mask := xmrcrypto.RandomScalar()
	if s.outIdx == s.numOutputs-1 {
		mask = s.sumPoutsAlphas.Sub(s.sumOut)
		if !s.useSimpleRct {
			mask = xmrcrypto.RandomScalar()
		}
	}

	commit, _, rsigBytes, err := s.rangeSign.Prove(dst.Amount, mask)
	if err != nil {
		return types.RespSetOutput{}, s.failWrap(sigerr.Semantic, "signer: range proof failed", err)
	}
	expected := xmrcrypto.ScalarMultBase(mask).Add(xmrcrypto.ScalarMultH(xmrcrypto.ScalarFromUint64(dst.Amount)))
	if !commit.Eq(expected) {
		return types.RespSetOutput{}, s.fail(sigerr.CryptoPrecondition, "signer: range proof commitment mismatch")
	}
	s.mlsagHasher.AbsorbRsig(rsigBytes)
	s.sumOut = s.sumOut.Add(mask)

	destPk := types.CtKey{Dest: stealthPub, Mask: commit}
	s.outputs[s.outIdx] = outputState{mask: mask, destPk: destPk}

	amount8 := encodeEcdhAmount(dst.Amount, amountKey)
	ecdh := types.EcdhTuple{Mask: mask, Amount: amount8}
	ew := canonicalWriter()
	ecdh.WriteCanonical(ew)
	ecdhBytes := ew.Bytes()
	s.mlsagHasher.SetEcdh(ecdhBytes)

	outPkW := canonicalWriter()
	destPk.WriteCanonical(outPkW)
	outPkBytes := outPkW.Bytes()

	if s.outIdx+1 == s.numOutputs {
		s.st = stageOutputsDone
	} else {
		s.st = stageOutputsLoading
	}

	return types.RespSetOutput{
		TxOutBytes: txOutBytes,
		HmacVout:   hmacVout,
		RsigBytes:  rsigBytes,
		OutPkBytes: outPkBytes,
		EcdhBytes:  ecdhBytes,
	}, nil
}

func serializeDestination(dst types.TxDestinationEntry) []byte {
	w := canonicalWriter()
	w.WriteUvarint(dst.Amount)
	sp, vp := dst.Addr.SpendPub.Bytes(), dst.Addr.ViewPub.Bytes()
	w.WriteFixedBlob(sp[:])
	w.WriteFixedBlob(vp[:])
	return w.Bytes()
}

// encodeEcdhAmount is Monero's 8-byte amount obfuscation: amount XOR
// the first 8 bytes of Keccak256("amount" ‖ amount_key) (not reduced
// to a scalar).
func encodeEcdhAmount(amount uint64, amountKey xmrcrypto.Scalar) [8]byte {
	akBytes := amountKey.Bytes()
	mask := xmrcrypto.Keccak256([]byte("amount"), akBytes[:])
	var out [8]byte
	for i := 0; i < 8; i++ {
		out[i] = byte(amount>>(8*i)) ^ mask[i]
	}
	return out
}

// AllOutputsSet runs stage 6 (§4.5.6): closes the prefix, checks the
// fee/mask-sum invariants, and finalizes tx_prefix_hash.
func (s *TsxSigner) AllOutputsSet() (types.RespAllOutputsSet, error) {
	if err := s.requireStage(stageOutputsDone); err != nil {
		return types.RespAllOutputsSet{}, err
	}
	if s.outIdx+1 != s.numOutputs {
		return types.RespAllOutputsSet{}, s.fail(sigerr.Semantic, "signer: not all outputs set")
	}

	if s.useSimpleRct && !s.sumOut.Eq(s.sumPoutsAlphas) {
		return types.RespAllOutputsSet{}, s.fail(sigerr.Semantic, "signer: pseudo-out / output mask sum mismatch")
	}

	s.sumInputAmounts = 0
	for _, in := range s.inputs {
		s.sumInputAmounts += in.src.Amount
	}
	s.sumOutputAmounts = 0
	for _, o := range s.tsx.Outputs {
		s.sumOutputAmounts += o.Amount
	}
	if s.numOutputs > s.numInputs {
		return types.RespAllOutputsSet{}, s.fail(sigerr.Semantic, "signer: more outputs than inputs")
	}
	if s.sumInputAmounts != s.sumOutputAmounts+s.fee {
		return types.RespAllOutputsSet{}, s.fail(sigerr.Semantic, "signer: fee mismatch")
	}

	s.extra = append(s.extra, types.ExtraField{Tag: 0x01, Value: s.rPubBytesSlice()})
	if s.needAdditionalTxKeys {
		s.extra = append(s.extra, types.ExtraField{Tag: 0x04, Value: s.additionalPubKeyBytes()})
	}
	extraBytes := types.WriteExtra(s.extra)

	txPrefixHash := s.prefixHasher.Finalize(extraBytes)
	s.txPrefixHash = txPrefixHash
	s.mlsagHasher.SetMessage(txPrefixHash)

	if len(s.tsx.ExpTxPrefixHash) > 0 {
		if !xmrcrypto.CtEqual(s.tsx.ExpTxPrefixHash, txPrefixHash[:]) {
			s.purge()
			return types.RespAllOutputsSet{}, sigerr.New(sigerr.PrefixMismatch, "signer: tx_prefix_hash mismatch")
		}
	}

	s.st = stageMlsagDone
	return types.RespAllOutputsSet{
		ExtraBytes:     extraBytes,
		TxPrefixHash:   txPrefixHash,
		RctSigBaseType: types.RctType(s.rctTypeByte()),
	}, nil
}

func (s *TsxSigner) rPubBytesSlice() []byte {
	b := s.rPub.Bytes()
	return b[:]
}

func (s *TsxSigner) additionalPubKeyBytes() []byte {
	out := make([]byte, 0, 32*len(s.additionalTxPubKeys))
	for _, p := range s.additionalTxPubKeys {
		b := p.Bytes()
		out = append(out, b[:]...)
	}
	return out
}

// MlsagDone runs stage 7 (§4.5.7): absorbs every out_pk_j and
// finalizes full_message.
func (s *TsxSigner) MlsagDone() (types.RespMlsagDone, error) {
	if err := s.requireStage(stageMlsagDone); err != nil {
		return types.RespMlsagDone{}, err
	}
	for _, o := range s.outputs {
		s.mlsagHasher.SetOutPk(o.destPk.Dest, o.destPk.Mask)
	}
	s.mlsagHasher.RctSigBaseDone()
	s.fullMessage = s.mlsagHasher.GetDigest()
	s.inpIdx = -1
	s.st = stageSigning
	return types.RespMlsagDone{FullMessage: s.fullMessage}, nil
}
