package node

import (
	"github.com/sirupsen/logrus"

	"github.com/tcfw/tributary/pkg/storage"
)

type NodeOption func(*Node) error

// WithStorage replaces the pebble store opened from the chain data dir.
func WithStorage(s storage.DB) NodeOption {
	return func(n *Node) error {
		n.db = s
		return nil
	}
}

func WithLogger(l *logrus.Logger) NodeOption {
	return func(n *Node) error {
		n.logger = l
		return nil
	}
}

func WithDefaultOptions() NodeOption {
	return func(n *Node) error {
		n.logger = logrus.StandardLogger()
		return nil
	}
}
