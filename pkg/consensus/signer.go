package consensus

import (
	"go.dedis.ch/kyber/v3"

	"github.com/tcfw/tributary/pkg/cryptography"
)

const (
	messageDomain = "Tributary Chain Tendermint Message"
	nonceDomain   = "Tributary Chain Tendermint Nonce"
)

// challenge binds a consensus signature to the session, signer, nonce
// commitment and message.
func challenge(genesis [32]byte, key PublicKey, R []byte, msg []byte) kyber.Scalar {
	t := cryptography.NewTranscript(messageDomain)
	t.Append("genesis", genesis[:])
	t.Append("key", key[:])
	t.Append("nonce", R)
	t.Append("message", msg)
	return t.Challenge("schnorr")
}

// Signer signs consensus messages for the local validator.
type Signer struct {
	genesis [32]byte
	key     *cryptography.PrivateKey
}

func NewSigner(genesis [32]byte, key *cryptography.PrivateKey) *Signer {
	return &Signer{genesis: genesis, key: key}
}

func (s *Signer) ValidatorID() PublicKey {
	return s.key.Public()
}

func (s *Signer) Genesis() [32]byte {
	return s.genesis
}

// Sign derives the nonce from the session, private key and message, blinded
// with fresh randomness, so a weak RNG alone can't cause nonce reuse.
func (s *Signer) Sign(msg []byte) Signature {
	pub := s.key.Public()
	return s.key.Sign(s.nonce(msg), func(R []byte) kyber.Scalar {
		return challenge(s.genesis, pub, R, msg)
	})
}

func (s *Signer) nonce(msg []byte) kyber.Scalar {
	blind, _ := cryptography.RandomScalar().MarshalBinary()

	for {
		t := cryptography.NewTranscript(nonceDomain)
		t.Append("genesis", s.genesis[:])
		t.Append("key", s.key.Bytes())
		t.Append("message", msg)
		t.Append("random", blind)

		r := t.Challenge("nonce")
		if !r.Equal(r.Clone().Zero()) {
			return r
		}
		blind, _ = cryptography.RandomScalar().MarshalBinary()
	}
}
