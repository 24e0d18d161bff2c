package config

import (
	"encoding/hex"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/tcfw/tributary/pkg/consensus"
	"github.com/tcfw/tributary/pkg/cryptography"
)

// Chain describes the tributary session this node takes part in.
type Chain struct {
	Genesis    [32]byte
	StartTime  uint64
	Validators []consensus.Validator
	KeyFile    string
	DataDir    string
	Timing     consensus.Timing
}

const (
	Cfg_chain_genesis             = "chain.genesis"
	Cfg_chain_startTime           = "chain.startTime"
	Cfg_chain_validators          = "chain.validators"
	Cfg_chain_keyFile             = "chain.keyFile"
	Cfg_chain_dataDir             = "chain.dataDir"
	Cfg_chain_blockProcessingTime = "chain.blockProcessingTime"
	Cfg_chain_latencyTime         = "chain.latencyTime"
)

var (
	chainDefaults = map[string]interface{}{
		Cfg_chain_keyFile:             "validator.yaml",
		Cfg_chain_dataDir:             "data",
		Cfg_chain_blockProcessingTime: consensus.DefaultBlockProcessingTime,
		Cfg_chain_latencyTime:         consensus.DefaultLatencyTime,
	}
)

func init() {
	for k, v := range chainDefaults {
		viper.SetDefault(k, v)
	}
}

type validatorEntry struct {
	Key    string `mapstructure:"key"`
	Weight uint64 `mapstructure:"weight"`
}

func buildChainConfig() (*Chain, error) {
	c := &Chain{
		StartTime: viper.GetUint64(Cfg_chain_startTime),
		KeyFile:   viper.GetString(Cfg_chain_keyFile),
		DataDir:   viper.GetString(Cfg_chain_dataDir),
		Timing: consensus.Timing{
			BlockProcessingTime: viper.GetDuration(Cfg_chain_blockProcessingTime),
			LatencyTime:         viper.GetDuration(Cfg_chain_latencyTime),
		},
	}

	if g := viper.GetString(Cfg_chain_genesis); g != "" {
		raw, err := hex.DecodeString(g)
		if err != nil {
			return nil, errors.Wrap(err, "hex decoding genesis")
		}
		if len(raw) != len(c.Genesis) {
			return nil, errors.Errorf("genesis should be %d bytes, got %d", len(c.Genesis), len(raw))
		}
		copy(c.Genesis[:], raw)
	}

	var entries []validatorEntry
	if err := viper.UnmarshalKey(Cfg_chain_validators, &entries); err != nil {
		return nil, errors.Wrap(err, "reading validators")
	}

	for i, e := range entries {
		pk, err := cryptography.DecodePublicKey(e.Key)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding validator %d", i)
		}
		c.Validators = append(c.Validators, consensus.Validator{Key: pk, Weight: e.Weight})
	}

	if c.Timing.BlockProcessingTime < time.Second {
		return nil, errors.New("block processing time must be at least a second")
	}

	return c, nil
}
