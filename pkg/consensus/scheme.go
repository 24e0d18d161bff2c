package consensus

import (
	"go.dedis.ch/kyber/v3"

	"github.com/tcfw/tributary/pkg/cryptography"
)

const aggregateDomain = "Tributary Chain Tendermint Commit"

// SignatureScheme verifies and aggregates consensus signatures.
type SignatureScheme interface {
	Verify(validator PublicKey, msg []byte, sig Signature) bool
	Aggregate(validators []PublicKey, msg []byte, sigs []Signature) ([]byte, error)
	VerifyAggregate(validators []PublicKey, msg []byte, agg []byte) bool
}

func (v *Validators) Verify(validator PublicKey, msg []byte, sig Signature) bool {
	if !v.Contains(validator) {
		return false
	}
	return cryptography.Verify(validator, sig, func(R []byte) kyber.Scalar {
		return challenge(v.genesis, validator, R, msg)
	})
}

// Aggregate half-aggregates signatures which were all made over msg.
func (v *Validators) Aggregate(validators []PublicKey, msg []byte, sigs []Signature) ([]byte, error) {
	return cryptography.Aggregate(aggregateDomain, validators, sigs, v.challengeFor(validators, msg))
}

func (v *Validators) VerifyAggregate(validators []PublicKey, msg []byte, agg []byte) bool {
	for _, val := range validators {
		if !v.Contains(val) {
			return false
		}
	}
	return cryptography.VerifyAggregate(aggregateDomain, validators, agg, v.challengeFor(validators, msg))
}

func (v *Validators) challengeFor(validators []PublicKey, msg []byte) cryptography.ChallengeFunc {
	return func(i int, R []byte) kyber.Scalar {
		return challenge(v.genesis, validators[i], R, msg)
	}
}
