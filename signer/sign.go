package signer

import (
	"errors"

	"xmrhwsigner/keyschedule"
	"xmrhwsigner/sigerr"
	"xmrhwsigner/types"
	"xmrhwsigner/xmrcrypto"
)

// SignInput runs stage 8 (§4.5.8), repeated in permuted order: re-
// verifies the input's fragments, opens its sealed alpha, checks the
// real-output preconditions, and produces an MLSAG signature.
func (s *TsxSigner) SignInput(msg types.MsgSignInput) (types.RespSignInput, error) {
	if s.st != stageSigning {
		return types.RespSignInput{}, s.fail(sigerr.ProtocolOrder, "signer: SignInput at wrong stage")
	}
	s.inpIdx++
	if s.inpIdx >= s.numInputs {
		return types.RespSignInput{}, s.fail(sigerr.ProtocolOrder, "signer: SignInput index overflow")
	}

	origIdx := s.sourcePermutation[s.inpIdx]
	expectHmac := s.schedule.Hmac(keyschedule.TagTxin, origIdx, msg.VinBytes)
	if !xmrcrypto.CtEqual(expectHmac[:], msg.HmacVin[:]) {
		return types.RespSignInput{}, s.fail(sigerr.Integrity, "signer: vin HMAC mismatch")
	}

	st := s.inputs[s.inpIdx]

	var alpha xmrcrypto.Scalar
	if s.useSimpleRct {
		expectPoutHmac := s.schedule.Hmac(keyschedule.TagTxinComm, origIdx, msg.PseudoOut[:])
		if !xmrcrypto.CtEqual(expectPoutHmac[:], msg.PseudoOutHmac[:]) {
			return types.RespSignInput{}, s.fail(sigerr.Integrity, "signer: pseudo-out HMAC mismatch")
		}
		alphaPlain, err := s.schedule.Open(keyschedule.TagTxinAlpha, origIdx, msg.AlphaEnc)
		if err != nil {
			return types.RespSignInput{}, s.failWrap(sigerr.Integrity, "signer: alpha AEAD open failed", err)
		}
		alpha, err = xmrcrypto.DecodeScalar(alphaPlain)
		if err != nil {
			return types.RespSignInput{}, s.failWrap(sigerr.Integrity, "signer: invalid alpha encoding", err)
		}
	}

	real := msg.Src.Outputs[msg.Src.RealOutput]
	if !xmrcrypto.ScalarMultBase(st.secret).Eq(real.DestPub) {
		return types.RespSignInput{}, s.fail(sigerr.CryptoPrecondition, "signer: reconstructed spend key mismatch")
	}
	commitCheck := xmrcrypto.ScalarMultBase(msg.Src.Mask).Add(xmrcrypto.ScalarMultH(xmrcrypto.ScalarFromUint64(msg.Src.Amount)))
	if !commitCheck.Eq(real.MaskCommit) {
		return types.RespSignInput{}, s.fail(sigerr.CryptoPrecondition, "signer: reconstructed mask mismatch")
	}

	var mg types.MgSig
	var err error
	if s.useSimpleRct {
		mg, err = s.signMlsagSimple(msg.Src, st.secret, msg.Src.Mask, alpha, st.pseudoOut, st.keyImage)
	} else {
		mg, err = s.signMlsagFull(msg.Src, st.secret, msg.Src.Mask, st.keyImage)
	}
	if err != nil {
		return types.RespSignInput{}, s.failWrap(sigerr.Semantic, "signer: mlsag proving failed", err)
	}

	var coutEnc []byte
	if s.tsx.IsMultisig && msg.Src.MultisigKLRki != nil {
		cBytes := msg.Src.MultisigKLRki.K.Bytes()
		sealed, err := s.schedule.Seal(keyschedule.TagCout, origIdx, cBytes[:])
		if err != nil {
			return types.RespSignInput{}, s.failWrap(sigerr.Semantic, "signer: sealing cout failed", err)
		}
		coutEnc = sealed
	}

	if s.inpIdx+1 == s.numInputs {
		s.st = stageFinal
	}

	return types.RespSignInput{Signature: mg, CoutEnc: coutEnc}, nil
}

// signMlsagSimple produces a genuine 2-row MLSAG (§4.5.8's Simple RCT
// path): row 0 carries the real spend key and its key image, row 1
// proves the pseudo-out/ring-commitment difference opens to zero.
func (s *TsxSigner) signMlsagSimple(src types.TxSourceEntry, x, mask, alpha xmrcrypto.Scalar, pseudoOut, keyImage xmrcrypto.Point) (types.MgSig, error) {
	n := len(src.Outputs)
	pk := make([][]xmrcrypto.Point, n)
	for i, o := range src.Outputs {
		pk[i] = []xmrcrypto.Point{o.DestPub, o.MaskCommit.Sub(pseudoOut)}
	}
	xx := []xmrcrypto.Scalar{x, mask.Sub(alpha)}
	return mlsagGen(s.fullMessage, pk, xx, keyImage, src.RealOutput)
}

// signMlsagFull produces a genuine 2-row MLSAG for single-input Full
// RCT transactions: row 1 proves the ring commitment, net of the sum
// of every output's commitment plus the fee, opens to zero — valid by
// AllOutputsSet's already-enforced balance invariant (sumIn ==
// sumOut+fee), so the amount components of row 1's commitment
// difference always cancel at the real index.
func (s *TsxSigner) signMlsagFull(src types.TxSourceEntry, x, mask xmrcrypto.Scalar, keyImage xmrcrypto.Point) (types.MgSig, error) {
	sumOutMasks := xmrcrypto.ZeroScalar()
	sumOutCommit := xmrcrypto.IdentityPoint()
	for _, o := range s.outputs {
		sumOutMasks = sumOutMasks.Add(o.mask)
		sumOutCommit = sumOutCommit.Add(o.destPk.Mask)
	}
	feePoint := xmrcrypto.ScalarMultH(xmrcrypto.ScalarFromUint64(s.fee))
	refPoint := sumOutCommit.Add(feePoint)

	n := len(src.Outputs)
	pk := make([][]xmrcrypto.Point, n)
	for i, o := range src.Outputs {
		pk[i] = []xmrcrypto.Point{o.DestPub, o.MaskCommit.Sub(refPoint)}
	}
	xx := []xmrcrypto.Scalar{x, mask.Sub(sumOutMasks)}
	return mlsagGen(s.fullMessage, pk, xx, keyImage, src.RealOutput)
}

// mlsagGen is a faithful MLSAG_Gen: a Fiat-Shamir ring walk over n
// members and len(xx) rows, with a single key image carried in row 0
// (dsRows=1 — only the spend-key row is linkable; commitment rows
// prove a zero-opening with no key image of their own). Starting at
// realIdx, each subsequent ring member's response scalars are sampled
// fresh and its L_i/R_i recomputed from the running challenge, closing
// back at realIdx using the real secrets — exactly the construction
// kisync.schnorrProve uses for a single-member ring, generalized to n
// members and multiple rows.
func mlsagGen(message [32]byte, pk [][]xmrcrypto.Point, xx []xmrcrypto.Scalar, keyImage xmrcrypto.Point, realIdx int) (types.MgSig, error) {
	n := len(pk)
	rows := len(xx)
	if n == 0 || rows == 0 {
		return types.MgSig{}, errors.New("signer: empty mlsag ring")
	}
	if realIdx < 0 || realIdx >= n {
		return types.MgSig{}, errors.New("signer: real index out of range")
	}

	ss := make([][]xmrcrypto.Scalar, n)
	for i := range ss {
		ss[i] = make([]xmrcrypto.Scalar, rows)
	}
	c := make([]xmrcrypto.Scalar, n)

	alpha := make([]xmrcrypto.Scalar, rows)
	lReal := make([]xmrcrypto.Point, rows)
	for r := 0; r < rows; r++ {
		alpha[r] = xmrcrypto.RandomScalar()
		lReal[r] = xmrcrypto.ScalarMultBase(alpha[r])
	}
	hpReal := xmrcrypto.HashToPoint(pointBytesSlice(pk[realIdx][0]))
	rReal := xmrcrypto.ScalarMult(alpha[0], hpReal)

	c[(realIdx+1)%n] = mlsagRoundHash(message, lReal, rReal)

	for i := (realIdx + 1) % n; i != realIdx; i = (i + 1) % n {
		lRow := make([]xmrcrypto.Point, rows)
		for r := 0; r < rows; r++ {
			ss[i][r] = xmrcrypto.RandomScalar()
			lRow[r] = xmrcrypto.ScalarMultBase(ss[i][r]).Add(xmrcrypto.ScalarMult(c[i], pk[i][r]))
		}
		hp := xmrcrypto.HashToPoint(pointBytesSlice(pk[i][0]))
		rVal := xmrcrypto.ScalarMult(ss[i][0], hp).Add(xmrcrypto.ScalarMult(c[i], keyImage))
		c[(i+1)%n] = mlsagRoundHash(message, lRow, rVal)
	}

	for r := 0; r < rows; r++ {
		ss[realIdx][r] = alpha[r].Sub(c[realIdx].Mul(xx[r]))
	}

	return types.MgSig{Ss: ss, Cc: c[0]}, nil
}

// mlsagRoundHash is MLSAG_Gen's per-step Fiat-Shamir transcript:
// Hs(message ‖ L_0 ‖ … ‖ L_{rows-1} ‖ R).
func mlsagRoundHash(message [32]byte, lRow []xmrcrypto.Point, rVal xmrcrypto.Point) xmrcrypto.Scalar {
	w := canonicalWriter()
	w.WriteFixedBlob(message[:])
	for _, l := range lRow {
		lb := l.Bytes()
		w.WriteFixedBlob(lb[:])
	}
	rb := rVal.Bytes()
	w.WriteFixedBlob(rb[:])
	return xmrcrypto.HashToScalar(w.Bytes())
}

// Final runs stage 9 (§4.5.9): derives the deterministic tx_key and
// seals r and the additional tx private keys under it.
func (s *TsxSigner) Final() (types.RespFinal, error) {
	if err := s.requireStage(stageFinal); err != nil {
		return types.RespFinal{}, err
	}

	txKey, salt, randMult, err := keyschedule.FinalTxKey(s.creds.SpendSecret, s.txPrefixHash)
	if err != nil {
		return types.RespFinal{}, s.failWrap(sigerr.Semantic, "signer: deriving tx_key failed", err)
	}

	w := canonicalWriter()
	rBytes := s.r.Bytes()
	w.WriteBlob(rBytes[:])
	w.WriteContainerSize(len(s.additionalTxKeys))
	for _, k := range s.additionalTxKeys {
		kb := k.Bytes()
		w.WriteFixedBlob(kb[:])
	}
	txEncKeys, err := xmrcrypto.Seal(txKey, w.Bytes())
	if err != nil {
		return types.RespFinal{}, s.failWrap(sigerr.Semantic, "signer: sealing tx keys failed", err)
	}

	resp := types.RespFinal{Salt: salt, RandMult: randMult, TxEncKeys: txEncKeys}
	s.st = stageTerminal
	return resp, nil
}
