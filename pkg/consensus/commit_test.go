package consensus

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignerVerify(t *testing.T) {
	genesis := [32]byte{1}
	keys := testKeys(2)
	v := testValidators(t, genesis, keys[:1])

	s := NewSigner(genesis, keys[0])
	sig := s.Sign([]byte("hello"))

	assert.True(t, v.Verify(s.ValidatorID(), []byte("hello"), sig))
	assert.False(t, v.Verify(s.ValidatorID(), []byte("hellp"), sig))

	// signatures are bound to the session
	other := testValidators(t, [32]byte{2}, keys[:1])
	assert.False(t, other.Verify(s.ValidatorID(), []byte("hello"), sig))

	// non validators never verify
	outsider := NewSigner(genesis, keys[1])
	assert.False(t, v.Verify(outsider.ValidatorID(), []byte("hello"), outsider.Sign([]byte("hello"))))
}

func signCommit(t *testing.T, v *Validators, signers []*Signer, id [32]byte, end uint64) *Commit {
	msg := CommitMsg(end, id[:])
	keys := make([]PublicKey, 0, len(signers))
	sigs := make([]Signature, 0, len(signers))
	for _, s := range signers {
		keys = append(keys, s.ValidatorID())
		sigs = append(sigs, s.Sign(msg))
	}

	c, err := NewCommit(v, id, end, keys, sigs)
	require.NoError(t, err)
	return c
}

func TestVerifyCommit(t *testing.T) {
	genesis := [32]byte{5}
	keys := testKeys(4)
	v := testValidators(t, genesis, keys)

	signers := make([]*Signer, 0, len(keys))
	for _, k := range keys {
		signers = append(signers, NewSigner(genesis, k))
	}

	id := [32]byte{0xaa}

	c := signCommit(t, v, signers[:3], id, 100)
	assert.True(t, VerifyCommit(v, v, id, c))
	assert.False(t, VerifyCommit(v, v, [32]byte{0xab}, c))

	c.EndTime++
	assert.False(t, VerifyCommit(v, v, id, c))

	c = signCommit(t, v, signers[1:], id, 100)
	assert.True(t, VerifyCommit(v, v, id, c))

	c = signCommit(t, v, signers[:2], id, 100)
	assert.False(t, VerifyCommit(v, v, id, c), "below threshold")

	c = signCommit(t, v, []*Signer{signers[0], signers[1], signers[0]}, id, 100)
	assert.False(t, VerifyCommit(v, v, id, c), "duplicate signers")

	assert.False(t, VerifyCommit(v, v, id, nil))
}

func TestCommitMarshal(t *testing.T) {
	genesis := [32]byte{5}
	keys := testKeys(3)
	v := testValidators(t, genesis, keys)

	signers := []*Signer{NewSigner(genesis, keys[0]), NewSigner(genesis, keys[1]), NewSigner(genesis, keys[2])}
	id := [32]byte{1, 2, 3}
	c := signCommit(t, v, signers, id, 42)

	b, err := c.Marshal()
	require.NoError(t, err)

	c2, err := UnmarshalCommit(b)
	require.NoError(t, err)
	assert.Equal(t, c, c2)
	assert.True(t, VerifyCommit(v, v, id, c2))
}

func TestTimingRoundEnds(t *testing.T) {
	tm := DefaultTiming
	assert.Equal(t, uint64(6), uint64(tm.BlockTime().Seconds()))

	assert.Equal(t, uint64(106), tm.RoundEndTime(100, 0))
	assert.Equal(t, uint64(112), tm.RoundEndTime(100, 1))

	// 100 -> 106 -> 118
	end, ok := tm.EndTimeThrough(100, 1)
	require.True(t, ok)
	assert.Equal(t, uint64(118), end)

	end, ok = tm.EndTimeThrough(100, 0)
	require.True(t, ok)
	assert.Equal(t, tm.RoundEndTime(100, 0), end)
}

func TestTimingEndTimeBounds(t *testing.T) {
	tm := DefaultTiming

	// matches stepping through each round
	end := uint64(100)
	for r := uint32(0); r <= 50; r++ {
		end = tm.RoundEndTime(end, r)
	}
	got, ok := tm.EndTimeThrough(100, 50)
	require.True(t, ok)
	assert.Equal(t, end, got)

	_, ok = tm.EndTimeThrough(100, MaxRound)
	assert.True(t, ok)

	_, ok = tm.EndTimeThrough(100, MaxRound+1)
	assert.False(t, ok)
	_, ok = tm.EndTimeThrough(100, math.MaxUint32)
	assert.False(t, ok)

	_, ok = tm.EndTimeThrough(math.MaxUint64-5, 0)
	assert.False(t, ok)

	assert.Equal(t, uint64(100)+(1<<32)*6, tm.RoundEndTime(100, math.MaxUint32))
}
