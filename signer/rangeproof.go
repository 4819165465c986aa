package signer

import (
	"errors"

	"xmrhwsigner/types"
	"xmrhwsigner/xmrcrypto"
)

// ErrBulletproofUnsupported is returned by any RangeProofSigner that
// cannot produce a Bulletproof; spec.md Non-goals: "supporting
// Bulletproofs (the design surfaces the hook but the core implements
// only Borromean range proofs)".
var ErrBulletproofUnsupported = errors.New("signer: bulletproof range proofs are not implemented")

// RangeProofSigner proves that a Pedersen commitment to amount opens
// correctly, without revealing amount, given a chosen mask. Proof is
// the wire bytes to absorb into PreMlsagHasher.
type RangeProofSigner interface {
	Prove(amount uint64, mask xmrcrypto.Scalar) (commit xmrcrypto.Point, sig types.RangeSig, proofBytes []byte, err error)
}

// BorromeanSigner is the only RangeProofSigner this core ships (the
// pre-Bulletproof Monero range proof: 64 per-bit Borromean ring
// signatures proving each bit of amount is 0 or 1).
type BorromeanSigner struct{}

func (BorromeanSigner) Prove(amount uint64, mask xmrcrypto.Scalar) (xmrcrypto.Point, types.RangeSig, []byte, error) {
	var bitMasks [64]xmrcrypto.Scalar
	var bitCommits [64]xmrcrypto.Point
	var bits [64]uint64
	sum := xmrcrypto.ZeroScalar()
	for i := 0; i < 63; i++ {
		bitMasks[i] = xmrcrypto.RandomScalar()
		sum = sum.Add(bitMasks[i])
	}
	bitMasks[63] = mask.Sub(sum)

	for i := 0; i < 64; i++ {
		bit := (amount >> uint(i)) & 1
		bits[i] = bit
		c := xmrcrypto.ScalarMultBase(bitMasks[i])
		if bit == 1 {
			c = c.Add(xmrcrypto.ScalarMultH(xmrcrypto.ScalarFromUint64(1 << uint(i))))
		}
		bitCommits[i] = c
	}

	rsig, err := proveBorromean(bitMasks, bitCommits, bits)
	if err != nil {
		return xmrcrypto.Point{}, types.RangeSig{}, nil, err
	}

	commit := xmrcrypto.IdentityPoint()
	for i := 0; i < 64; i++ {
		commit = commit.Add(bitCommits[i])
	}

	w := canonicalWriter()
	rsig.WriteCanonical(w)
	return commit, rsig, w.Bytes(), nil
}

// proveBorromean builds a genuine 64-bit, 1-of-2-per-bit Borromean ring
// signature (Monero's pre-Bulletproof range proof): per bit i, branch 0
// asserts bitCommits[i] == x[i]·G (bit is 0), branch 1 asserts
// bitCommits[i] - 2^i·H == x[i]·G (bit is 1); exactly one branch is real
// per bit, per x[i]/bits[i]. Generation runs in two rounds because the
// real branch's commitment depends on whether the shared challenge ee is
// needed before or after it is known:
//
//   - round 1: for a bit=0 real branch, the branch-0 commitment is simply
//     alpha·G (no decoy needed yet). For a bit=1 real branch, the decoy
//     branch-0 response s0 is sampled and its commitment closed against a
//     LOCAL per-bit challenge derived from alpha·G, since the global ee
//     does not exist yet.
//   - ee = Hs(all round-1 branch-0 commitments)
//   - round 2: for a bit=1 real branch, the real response s1 closes
//     directly against the now-known global ee. For a bit=0 real branch,
//     a decoy s1 is sampled, its branch-1 commitment hashed into a LOCAL
//     challenge, and the real response s0 closes against that.
//
// Verification (see kisync's analogous single-member Schnorr check) is
// branch-blind and symmetric: for every bit it recomputes the branch-1
// commitment from (s1, ee), derives chash from it, recomputes the
// branch-0 commitment from (s0, chash), and checks the hash of all 64
// branch-0 commitments reproduces ee.
func proveBorromean(x [64]xmrcrypto.Scalar, c [64]xmrcrypto.Point, bits [64]uint64) (types.RangeSig, error) {
	var p0, p1 [64]xmrcrypto.Point
	for i := 0; i < 64; i++ {
		p0[i] = c[i]
		p1[i] = c[i].Sub(xmrcrypto.ScalarMultH(xmrcrypto.ScalarFromUint64(1 << uint(i))))
	}

	var alpha [64]xmrcrypto.Scalar
	var ll0 [64]xmrcrypto.Point
	var s0, s1 [64]xmrcrypto.Scalar
	for i := 0; i < 64; i++ {
		alpha[i] = xmrcrypto.RandomScalar()
		aG := xmrcrypto.ScalarMultBase(alpha[i])
		if bits[i] == 0 {
			ll0[i] = aG
		} else {
			aGBytes := aG.Bytes()
			chashLocal := xmrcrypto.HashToScalar(aGBytes[:])
			s0[i] = xmrcrypto.RandomScalar()
			ll0[i] = xmrcrypto.ScalarMultBase(s0[i]).Add(xmrcrypto.ScalarMult(chashLocal, p0[i]))
		}
	}

	ee := hashPointsToScalar(ll0[:])

	for i := 0; i < 64; i++ {
		if bits[i] == 1 {
			s1[i] = alpha[i].Sub(ee.Mul(x[i]))
		} else {
			s1[i] = xmrcrypto.RandomScalar()
			ll1 := xmrcrypto.ScalarMultBase(s1[i]).Add(xmrcrypto.ScalarMult(ee, p1[i]))
			ll1Bytes := ll1.Bytes()
			chash := xmrcrypto.HashToScalar(ll1Bytes[:])
			s0[i] = alpha[i].Sub(chash.Mul(x[i]))
		}
	}

	var rsig types.RangeSig
	rsig.Asig.EE = ee.Bytes()
	for i := 0; i < 64; i++ {
		rsig.Asig.S0[i] = s0[i].Bytes()
		rsig.Asig.S1[i] = s1[i].Bytes()
		rsig.Ci[i] = c[i].Bytes()
	}
	return rsig, nil
}

// hashPointsToScalar is Hs over the concatenation of a slice of points'
// canonical encodings, used for both the round-1 shared challenge ee and
// (by the verifier) its recomputation.
func hashPointsToScalar(pts []xmrcrypto.Point) xmrcrypto.Scalar {
	bufs := make([][]byte, len(pts))
	for i, p := range pts {
		b := p.Bytes()
		bufs[i] = append([]byte{}, b[:]...)
	}
	return xmrcrypto.HashToScalar(bufs...)
}

// verifyBorromean recomputes the branch-0 commitments from a RangeSig's
// response scalars and checks they hash back to the claimed ee; used by
// tests to confirm proveBorromean's output actually verifies.
func verifyBorromean(rsig types.RangeSig) (bool, error) {
	ee, err := xmrcrypto.DecodeScalar(rsig.Asig.EE[:])
	if err != nil {
		return false, err
	}
	var ll0 [64]xmrcrypto.Point
	for i := 0; i < 64; i++ {
		s0, err := xmrcrypto.DecodeScalar(rsig.Asig.S0[i][:])
		if err != nil {
			return false, err
		}
		s1, err := xmrcrypto.DecodeScalar(rsig.Asig.S1[i][:])
		if err != nil {
			return false, err
		}
		ci, err := xmrcrypto.DecodePoint(rsig.Ci[i][:])
		if err != nil {
			return false, err
		}
		p0 := ci
		p1 := ci.Sub(xmrcrypto.ScalarMultH(xmrcrypto.ScalarFromUint64(1 << uint(i))))

		ll1 := xmrcrypto.ScalarMultBase(s1).Add(xmrcrypto.ScalarMult(ee, p1))
		ll1Bytes := ll1.Bytes()
		chash := xmrcrypto.HashToScalar(ll1Bytes[:])
		ll0[i] = xmrcrypto.ScalarMultBase(s0).Add(xmrcrypto.ScalarMult(chash, p0))
	}
	recomputed := hashPointsToScalar(ll0[:])
	recomputedBytes := recomputed.Bytes()
	eeBytes := ee.Bytes()
	return xmrcrypto.CtEqual(recomputedBytes[:], eeBytes[:]), nil
}
