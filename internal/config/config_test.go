package config

import (
	"encoding/hex"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcfw/tributary/pkg/consensus"
	"github.com/tcfw/tributary/pkg/cryptography"
)

func TestChainConfig(t *testing.T) {
	k1, k2 := cryptography.NewPrivateKey(), cryptography.NewPrivateKey()
	mb1, err := cryptography.EncodePublicKey(k1.Public())
	require.NoError(t, err)
	mb2, err := cryptography.EncodePublicKey(k2.Public())
	require.NoError(t, err)

	genesis := [32]byte{1, 2, 3}

	viper.Set(Cfg_chain_genesis, hex.EncodeToString(genesis[:]))
	viper.Set(Cfg_chain_startTime, 1700000000)
	viper.Set(Cfg_chain_validators, []map[string]interface{}{
		{"key": mb1, "weight": 2},
		{"key": mb2, "weight": 1},
	})
	defer func() {
		viper.Set(Cfg_chain_genesis, "")
		viper.Set(Cfg_chain_validators, nil)
	}()

	c, err := build()
	require.NoError(t, err)

	assert.Equal(t, genesis, c.Chain().Genesis)
	assert.Equal(t, uint64(1700000000), c.Chain().StartTime)
	assert.Equal(t, []consensus.Validator{
		{Key: k1.Public(), Weight: 2},
		{Key: k2.Public(), Weight: 1},
	}, c.Chain().Validators)
	assert.Equal(t, 6*time.Second, c.Chain().Timing.BlockTime())

	assert.Equal(t, "127.0.0.1:8787", c.API().Addr)
	assert.Empty(t, c.Metrics().Addr)
	assert.Equal(t, 32, c.P2P().Connections.PeersCountLow)
	assert.Equal(t, 64, c.P2P().Connections.PeersCountHigh)
}

func TestChainConfigRejectsBadGenesis(t *testing.T) {
	viper.Set(Cfg_chain_genesis, "abcd")
	defer viper.Set(Cfg_chain_genesis, "")

	_, err := build()
	assert.Error(t, err)
}

func TestKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "validator.yaml")
	k := cryptography.NewPrivateKey()

	require.NoError(t, WriteKeyFile(path, k))

	got, err := ReadKeyFile(path)
	require.NoError(t, err)
	assert.True(t, k.Equal(got))

	_, err = ReadKeyFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
