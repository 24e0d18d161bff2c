package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcfw/tributary/pkg/cryptography"
)

func testKeys(n int) []*cryptography.PrivateKey {
	keys := make([]*cryptography.PrivateKey, 0, n)
	for i := 0; i < n; i++ {
		keys = append(keys, cryptography.NewPrivateKey())
	}
	return keys
}

func testValidators(t *testing.T, genesis [32]byte, keys []*cryptography.PrivateKey, weights ...uint64) *Validators {
	vals := make([]Validator, 0, len(keys))
	for i, k := range keys {
		w := uint64(1)
		if i < len(weights) {
			w = weights[i]
		}
		vals = append(vals, Validator{Key: k.Public(), Weight: w})
	}

	v, err := NewValidators(genesis, vals)
	require.NoError(t, err)
	return v
}

func TestThresholds(t *testing.T) {
	keys := testKeys(4)
	v := testValidators(t, [32]byte{1}, keys)

	assert.Equal(t, uint64(4), v.TotalWeight())
	assert.Equal(t, uint64(3), v.Threshold())
	assert.Equal(t, uint64(2), v.FaultThreshold())

	v = testValidators(t, [32]byte{1}, keys[:3], 10, 5, 1)
	assert.Equal(t, uint64(16), v.TotalWeight())
	assert.Equal(t, uint64(11), v.Threshold())
	assert.Equal(t, uint64(6), v.FaultThreshold())
	assert.Equal(t, uint64(5), v.Weight(keys[1].Public()))
	assert.Zero(t, v.Weight(keys[3].Public()))
}

func TestNewValidatorsRejects(t *testing.T) {
	k := cryptography.NewPrivateKey()

	_, err := NewValidators([32]byte{}, nil)
	assert.ErrorIs(t, err, ErrNoValidators)

	_, err = NewValidators([32]byte{}, []Validator{{Key: k.Public(), Weight: 0}})
	assert.ErrorIs(t, err, ErrZeroWeight)

	_, err = NewValidators([32]byte{}, []Validator{
		{Key: k.Public(), Weight: 1},
		{Key: k.Public(), Weight: 2},
	})
	assert.ErrorIs(t, err, ErrDuplicateValidator)
}

func TestProposerDeterministic(t *testing.T) {
	keys := testKeys(4)
	a := testValidators(t, [32]byte{7}, keys, 1, 2, 3, 4)
	b := testValidators(t, [32]byte{7}, keys, 1, 2, 3, 4)

	for block := uint64(0); block < 20; block++ {
		for round := uint32(0); round < 3; round++ {
			assert.Equal(t, a.Proposer(block, round), b.Proposer(block, round))
		}
	}
}

func TestProposerWeightedCoverage(t *testing.T) {
	keys := testKeys(3)
	v := testValidators(t, [32]byte{9}, keys, 1, 2, 3)

	for _, start := range []uint64{0, 1, 4, 5, 17, 1000, 1 << 40} {
		counts := map[PublicKey]int{}
		for block := start; block < start+v.TotalWeight(); block++ {
			counts[v.Proposer(block, 0)]++
		}

		for i, k := range keys {
			assert.Equal(t, i+1, counts[k.Public()], "start %d", start)
		}
	}
}

func TestProposerLaterRoundOffset(t *testing.T) {
	keys := testKeys(4)
	v := testValidators(t, [32]byte{3}, keys)

	// round r > 0 of block b uses index b + r + n/2
	assert.Equal(t, v.Proposer(3, 0), v.Proposer(0, 1))
	assert.Equal(t, v.Proposer(4, 0), v.Proposer(1, 1))
}
