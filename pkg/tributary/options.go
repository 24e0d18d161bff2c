package tributary

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/tcfw/tributary/internal/utils/logging"
	"github.com/tcfw/tributary/pkg/consensus"
	"github.com/tcfw/tributary/pkg/tx"
)

const defaultBlockCacheSize = 128

type config struct {
	log            *logrus.Entry
	readTx         TxReader
	timing         consensus.Timing
	startTime      uint64
	registerer     prometheus.Registerer
	blockCacheSize int
	halt           func(error)
	onMessage      func(*consensus.SignedMessage)
}

func defaultConfig() *config {
	return &config{
		log:            logging.Entry(),
		readTx:         tx.ReadTx,
		timing:         consensus.DefaultTiming,
		blockCacheSize: defaultBlockCacheSize,
	}
}

func applyOptions(opts []Option) (*config, error) {
	c := defaultConfig()
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

type Option func(*config) error

func WithLogger(l *logrus.Entry) Option {
	return func(c *config) error {
		c.log = l
		return nil
	}
}

// WithTxReader sets the decoder for application transactions.
func WithTxReader(r TxReader) Option {
	return func(c *config) error {
		c.readTx = r
		return nil
	}
}

func WithTiming(t consensus.Timing) Option {
	return func(c *config) error {
		c.timing = t
		return nil
	}
}

// WithStartTime sets the unix time the session's first block started at.
func WithStartTime(t uint64) Option {
	return func(c *config) error {
		c.startTime = t
		return nil
	}
}

func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *config) error {
		c.registerer = reg
		return nil
	}
}

func WithBlockCacheSize(n int) Option {
	return func(c *config) error {
		c.blockCacheSize = n
		return nil
	}
}

// WithHalt replaces how unrecoverable faults stop the node.
func WithHalt(h func(error)) Option {
	return func(c *config) error {
		c.halt = h
		return nil
	}
}

// WithConsensusMessageHandler receives verified consensus messages from
// peers, for the BFT engine.
func WithConsensusMessageHandler(h func(*consensus.SignedMessage)) Option {
	return func(c *config) error {
		c.onMessage = h
		return nil
	}
}
