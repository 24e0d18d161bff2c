package cryptography

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/kyber/v3"
)

func signSet(t *testing.T, n int, msg []byte) ([]PublicKey, []Signature, ChallengeFunc) {
	keys := make([]PublicKey, n)
	sigs := make([]Signature, n)

	for i := 0; i < n; i++ {
		k := NewPrivateKey()
		keys[i] = k.Public()
		sigs[i] = k.Sign(RandomScalar(), testChallenge(keys[i], msg))
	}

	challenge := func(i int, R []byte) kyber.Scalar {
		return testChallenge(keys[i], msg)(R)
	}

	return keys, sigs, challenge
}

func TestAggregate(t *testing.T) {
	msg := []byte("commit")
	keys, sigs, challenge := signSet(t, 4, msg)

	agg, err := Aggregate("test", keys, sigs, challenge)
	require.NoError(t, err)
	assert.Len(t, agg, 4+4*32+32)

	assert.True(t, VerifyAggregate("test", keys, agg, challenge))

	//different domain separator
	assert.False(t, VerifyAggregate("other", keys, agg, challenge))

	//wrong key count
	assert.False(t, VerifyAggregate("test", keys[:3], agg, challenge))

	//swapped signers
	swapped := []PublicKey{keys[1], keys[0], keys[2], keys[3]}
	assert.False(t, VerifyAggregate("test", swapped, agg, func(i int, R []byte) kyber.Scalar {
		return testChallenge(swapped[i], msg)(R)
	}))

	//tampered s
	bad := append([]byte{}, agg...)
	bad[len(bad)-5] ^= 1
	assert.False(t, VerifyAggregate("test", keys, bad, challenge))
}

func TestAggregateRejectsInvalidMember(t *testing.T) {
	msg := []byte("commit")
	keys, sigs, challenge := signSet(t, 3, msg)

	other := NewPrivateKey()
	sigs[1] = other.Sign(RandomScalar(), testChallenge(keys[1], msg))

	agg, err := Aggregate("test", keys, sigs, challenge)
	require.NoError(t, err)
	assert.False(t, VerifyAggregate("test", keys, agg, challenge))
}

func TestAggregateErrors(t *testing.T) {
	_, err := Aggregate("test", nil, nil, nil)
	assert.ErrorIs(t, err, ErrNoSignatures)

	keys, sigs, challenge := signSet(t, 2, []byte("x"))
	_, err = Aggregate("test", keys[:1], sigs, challenge)
	assert.ErrorIs(t, err, ErrAggregateLength)

	assert.False(t, VerifyAggregate("test", keys, []byte{1}, challenge))
}
