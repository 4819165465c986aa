package signer

import (
	"xmrhwsigner/keyschedule"
	"xmrhwsigner/serialize"
	"xmrhwsigner/sigerr"
	"xmrhwsigner/types"
	"xmrhwsigner/xmrcrypto"
)

// SetInput runs stage 2 (§4.5.2), repeated once per input in load
// order (not yet the signing order the host will pick in
// InputsPermutation).
func (s *TsxSigner) SetInput(src types.TxSourceEntry) (types.RespSetInput, error) {
	if s.st != stageInitDone && s.st != stageInputsLoading {
		return types.RespSetInput{}, s.fail(sigerr.ProtocolOrder, "signer: SetInput at wrong stage")
	}
	s.inpIdx++
	if s.inpIdx >= s.numInputs {
		return types.RespSetInput{}, s.fail(sigerr.ProtocolOrder, "signer: SetInput index overflow")
	}

	real := src.Outputs[src.RealOutput]
	major, minor := uint32(0), uint32(0)
	isSub := false
	if sub, ok := s.subaddrs[real.DestPub.Bytes()]; ok {
		major, minor = sub.Major, sub.Minor
		isSub = major != 0 || minor != 0
	}

	kir := deriveKeyImage(s.creds, src.RealOutTxKey, src.RealOutAdditionalTxKeys, src.RealOutputInTxIndex, major, minor, isSub)

	globals := make([]uint64, len(src.Outputs))
	for i, o := range src.Outputs {
		globals[i] = o.GlobalIndex
	}
	amount := src.Amount
	if s.useRct {
		amount = 0
	}
	vin := types.TxinToKey{
		Amount:     amount,
		KeyOffsets: types.ToRelativeOffsets(globals),
		KImage:     kir.KeyImage,
	}

	w := canonicalWriter()
	s.writeSourceEntry(w, src)
	vin.WriteCanonical(w)
	vinBytes := w.Bytes()
	hmacVin := s.schedule.Hmac(keyschedule.TagTxin, s.inpIdx, vinBytes)

	st := inputState{secret: kir.Secret, keyImage: kir.KeyImage, src: src}

	var pseudoOutBytes [32]byte
	var pseudoOutHmac [32]byte
	var alphaEnc []byte

	if s.useSimpleRct {
		alpha := xmrcrypto.RandomScalar()
		pseudoOut := xmrcrypto.ScalarMultBase(alpha).Add(xmrcrypto.ScalarMultH(xmrcrypto.ScalarFromUint64(src.Amount)))
		s.sumPoutsAlphas = s.sumPoutsAlphas.Add(alpha)

		pseudoOutBytes = pseudoOut.Bytes()
		pseudoOutHmac = s.schedule.Hmac(keyschedule.TagTxinComm, s.inpIdx, pseudoOutBytes[:])

		alphaBytes := alpha.Bytes()
		sealed, err := s.schedule.Seal(keyschedule.TagTxinAlpha, s.inpIdx, alphaBytes[:])
		if err != nil {
			return types.RespSetInput{}, s.failWrap(sigerr.Semantic, "signer: sealing alpha failed", err)
		}
		alphaEnc = sealed

		st.alpha = alpha
		st.pseudoOut = pseudoOut
	}

	s.inputs[s.inpIdx] = st

	if s.inpIdx+1 == s.numInputs {
		s.st = stageInputsDone
		s.subaddrs = nil
	} else {
		s.st = stageInputsLoading
	}

	return types.RespSetInput{
		VinBytes:      vinBytes,
		HmacVin:       hmacVin,
		PseudoOut:     pseudoOutBytes,
		PseudoOutHmac: pseudoOutHmac,
		AlphaEnc:      alphaEnc,
	}, nil
}

// writeSourceEntry serializes enough of a TxSourceEntry to bind the
// HMAC to the spender's view of the ring (real output index, amount,
// and mask), per §3's "bound by an HMAC over its canonical
// serialization" invariant.
func (s *TsxSigner) writeSourceEntry(w *serialize.Writer, src types.TxSourceEntry) {
	w.WriteUvarint(src.Amount)
	w.WriteUvarint(uint64(src.RealOutput))
	maskBytes := src.Mask.Bytes()
	w.WriteFixedBlob(maskBytes[:])
	w.WriteContainerSize(len(src.Outputs))
	for _, o := range src.Outputs {
		w.WriteUvarint(o.GlobalIndex)
		db := o.DestPub.Bytes()
		mb := o.MaskCommit.Bytes()
		w.WriteFixedBlob(db[:])
		w.WriteFixedBlob(mb[:])
	}
}

// InputsPermutation runs stage 3 (§4.5.3): applies the host-chosen
// signing order to input_secrets and resets inp_idx.
func (s *TsxSigner) InputsPermutation(perm []int) (types.RespInputsPermutation, error) {
	if err := s.requireStage(stageInputsDone); err != nil {
		return types.RespInputsPermutation{}, err
	}
	if len(perm) != s.numInputs {
		return types.RespInputsPermutation{}, s.fail(sigerr.Semantic, "signer: permutation length mismatch")
	}
	seen := make([]bool, s.numInputs)
	for _, p := range perm {
		if p < 0 || p >= s.numInputs || seen[p] {
			return types.RespInputsPermutation{}, s.fail(sigerr.Semantic, "signer: invalid permutation")
		}
		seen[p] = true
	}

	permuted := make([]inputState, s.numInputs)
	for newIdx, oldIdx := range perm {
		permuted[newIdx] = s.inputs[oldIdx]
	}
	s.inputs = permuted
	s.sourcePermutation = perm
	s.inpIdx = -1
	s.st = stageInputsPermutation
	return types.RespInputsPermutation{}, nil
}

// InputVinI runs stage 4 (§4.5.4), repeated in permuted order: the
// host re-presents each input's fragments; the device re-verifies the
// HMAC under the ORIGINAL (pre-permutation) index and feeds vin_bytes
// into TxPrefixHasher.
func (s *TsxSigner) InputVinI(msg types.MsgInputVinI) (types.RespInputVinI, error) {
	if s.st != stageInputsPermutation && s.st != stageInputsVinIHashed {
		return types.RespInputVinI{}, s.fail(sigerr.ProtocolOrder, "signer: InputVinI at wrong stage")
	}
	s.inpIdx++
	if s.inpIdx >= s.numInputs {
		return types.RespInputVinI{}, s.fail(sigerr.ProtocolOrder, "signer: InputVinI index overflow")
	}

	origIdx := s.sourcePermutation[s.inpIdx]
	expectHmac := s.schedule.Hmac(keyschedule.TagTxin, origIdx, msg.VinBytes)
	if !xmrcrypto.CtEqual(expectHmac[:], msg.HmacVin[:]) {
		return types.RespInputVinI{}, s.fail(sigerr.Integrity, "signer: vin HMAC mismatch")
	}

	s.prefixHasher.AbsorbVin(msg.VinBytes)

	if s.useSimpleRct {
		expectPoutHmac := s.schedule.Hmac(keyschedule.TagTxinComm, origIdx, msg.PseudoOut[:])
		if !xmrcrypto.CtEqual(expectPoutHmac[:], msg.PseudoOutHmac[:]) {
			return types.RespInputVinI{}, s.fail(sigerr.Integrity, "signer: pseudo-out HMAC mismatch")
		}
		pseudoOut, err := xmrcrypto.DecodePoint(msg.PseudoOut[:])
		if err != nil {
			return types.RespInputVinI{}, s.failWrap(sigerr.Integrity, "signer: invalid pseudo-out encoding", err)
		}
		s.mlsagHasher.SetPseudoOut(pseudoOut)
	}

	if s.inpIdx+1 == s.numInputs {
		s.st = stageOutputsLoading
	} else {
		s.st = stageInputsVinIHashed
	}
	return types.RespInputVinI{}, nil
}
