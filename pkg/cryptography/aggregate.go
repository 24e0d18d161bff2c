package cryptography

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"go.dedis.ch/kyber/v3"
)

var (
	ErrAggregateLength = errors.New("aggregate signature length mismatch")
	ErrNoSignatures    = errors.New("no signatures to aggregate")
)

// Half-aggregation of Schnorr signatures. The aggregate keeps every nonce
// commitment R_i but collapses the responses into s = sum(a_i * s_i), with
// each a_i bound to every (key, R, challenge) in the set.
//
// Encoding: u32 LE count || R_1 .. R_n || s

// ChallengeFunc returns the challenge for signer i with nonce commitment R.
type ChallengeFunc func(i int, R []byte) kyber.Scalar

func Aggregate(dst string, keys []PublicKey, sigs []Signature, challenge ChallengeFunc) ([]byte, error) {
	if len(keys) != len(sigs) {
		return nil, ErrAggregateLength
	}
	if len(sigs) == 0 {
		return nil, ErrNoSignatures
	}

	Rs := make([][]byte, len(sigs))
	for i := range sigs {
		Rs[i] = sigs[i].R()
	}

	coeffs := aggregateCoefficients(dst, keys, Rs, challenge)

	s := suite.Scalar().Zero()
	for i, sig := range sigs {
		si, err := decodeScalar(sig.S())
		if err != nil {
			return nil, errors.Wrapf(err, "signature %d", i)
		}
		s = s.Add(s, suite.Scalar().Mul(coeffs[i], si))
	}

	out := make([]byte, 4, 4+len(sigs)*32+32)
	binary.LittleEndian.PutUint32(out, uint32(len(sigs)))
	for _, R := range Rs {
		out = append(out, R...)
	}
	out = append(out, encodeScalar(s)...)

	return out, nil
}

func VerifyAggregate(dst string, keys []PublicKey, agg []byte, challenge ChallengeFunc) bool {
	if len(keys) == 0 || len(agg) < 4 {
		return false
	}
	n := binary.LittleEndian.Uint32(agg)
	if uint64(n) != uint64(len(keys)) || len(agg) != 4+int(n)*32+32 {
		return false
	}

	Rs := make([][]byte, n)
	for i := range Rs {
		Rs[i] = agg[4+i*32 : 4+(i+1)*32]
	}
	s, err := decodeScalar(agg[len(agg)-32:])
	if err != nil {
		return false
	}

	coeffs := aggregateCoefficients(dst, keys, Rs, challenge)

	rhs := suite.Point().Null()
	for i := range keys {
		A, err := keys[i].Point()
		if err != nil {
			return false
		}
		R, err := decodePoint(Rs[i])
		if err != nil {
			return false
		}
		c := challenge(i, Rs[i])

		term := suite.Point().Add(R, suite.Point().Mul(c, A))
		rhs = rhs.Add(rhs, suite.Point().Mul(coeffs[i], term))
	}

	return suite.Point().Mul(s, nil).Equal(rhs)
}

func aggregateCoefficients(dst string, keys []PublicKey, Rs [][]byte, challenge ChallengeFunc) []kyber.Scalar {
	t := NewTranscript("Schnorr Aggregate")
	t.Append("dst", []byte(dst))
	for i := range keys {
		c := encodeScalar(challenge(i, Rs[i]))
		t.Append("key", keys[i][:])
		t.Append("nonce", Rs[i])
		t.Append("challenge", c)
	}

	coeffs := make([]kyber.Scalar, len(keys))
	var idx [4]byte
	for i := range coeffs {
		binary.LittleEndian.PutUint32(idx[:], uint32(i))
		t.Append("index", idx[:])
		coeffs[i] = t.Challenge("coefficient")
	}
	return coeffs
}
