package config

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var (
	defaults = map[string]interface{}{
		"verbose": false,
	}
)

func init() {
	for k, v := range defaults {
		viper.SetDefault(k, v)
	}
}

func GetConfig() (*Config, error) {
	if err := ReadConfig(); err != nil {
		return nil, err
	}

	return build()
}

// ReadConfig loads the config file and environment into viper without
// validating the node settings.
func ReadConfig() error {
	viper.SetConfigType("yaml")
	viper.SetConfigName("tributary")
	viper.AddConfigPath("/etc/tributary/")
	viper.AddConfigPath("$HOME/.tributary")
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("TRIBUTARY")
	viper.AutomaticEnv()
	err := viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error
			logrus.New().Warnf("no config found")
		} else {
			return errors.Wrap(err, "reading config file")
		}
	}

	if viper.GetBool("verbose") {
		logrus.SetLevel(logrus.DebugLevel)
		logrus.WithField("level", "debug").Debug("setting log level")
	}

	return nil
}

func build() (*Config, error) {
	var err error
	c := &Config{}

	c.p2p, err = buildP2PConfig()
	if err != nil {
		return nil, errors.Wrap(err, "p2p config")
	}

	c.chain, err = buildChainConfig()
	if err != nil {
		return nil, errors.Wrap(err, "chain config")
	}

	c.api = buildAPIConfig()
	c.metrics = buildMetricsConfig()

	return c, nil
}

type Config struct {
	p2p     *P2P
	chain   *Chain
	api     *API
	metrics *Metrics
}

func (c *Config) P2P() *P2P {
	return c.p2p
}

func (c *Config) Chain() *Chain {
	return c.chain
}

func (c *Config) API() *API {
	return c.api
}

func (c *Config) Metrics() *Metrics {
	return c.metrics
}
