package node

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jpillora/backoff"
	"github.com/libp2p/go-libp2p/core/event"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/tcfw/tributary/internal/config"
	internalStorage "github.com/tcfw/tributary/internal/storage"
	"github.com/tcfw/tributary/pkg/storage"
	"github.com/tcfw/tributary/pkg/tributary"
)

const bootstrapAttempts = 3

type Node struct {
	cfg *config.Config

	p2p       *p2pHost
	db        storage.DB
	gossip    *gossip
	tributary *tributary.Tributary

	registry *prometheus.Registry
	metrics  *http.Server

	logger *logrus.Logger
}

func (n *Node) Tributary() *tributary.Tributary {
	return n.tributary
}

func (n *Node) Config() *config.Config {
	return n.cfg
}

func (n *Node) Peers() []peer.ID {
	return n.p2p.Peers()
}

func NewNode(ctx context.Context, opts ...NodeOption) (*Node, error) {
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, err
	}

	n := &Node{
		cfg:      cfg,
		registry: newRegistry(),
	}

	for _, opt := range opts {
		if err := opt(n); err != nil {
			return nil, err
		}
	}

	if n.logger == nil {
		n.logger = logrus.StandardLogger()
	}

	if n.db == nil {
		n.db, err = internalStorage.NewPebbleStorage(cfg.Chain().DataDir)
		if err != nil {
			return nil, errors.Wrap(err, "opening storage")
		}
	}

	n.p2p, err = newP2PHost(ctx, cfg, n.logger)
	if err != nil {
		return nil, err
	}

	go n.watchEvents()

	if err := n.bootstrap(ctx, cfg); err != nil {
		return nil, errors.Wrap(err, "bootstrapping p2p")
	}

	if err := n.startTributary(ctx, cfg.Chain()); err != nil {
		return nil, errors.Wrap(err, "starting tributary")
	}

	if addr := cfg.Metrics().Addr; addr != "" {
		n.metrics = newMetricsServer(addr, n.registry)
	}

	return n, nil
}

func (n *Node) startTributary(ctx context.Context, c *config.Chain) error {
	key, err := config.ReadKeyFile(c.KeyFile)
	if err != nil {
		return errors.Wrap(err, "loading validator key")
	}

	log := logrus.NewEntry(n.logger)
	n.gossip = newGossip(n.p2p.pubsub, n.p2p.host.ID(), log)

	n.tributary, err = tributary.New(n.db, c.Genesis, c.StartTime, key, c.Validators, n.gossip,
		tributary.WithLogger(log),
		tributary.WithTiming(c.Timing),
		tributary.WithMetrics(n.registry),
	)
	if err != nil {
		return err
	}

	return n.gossip.Subscribe(ctx, c.Genesis, n.tributary.HandleMessage)
}

func (n *Node) watchEvents() {
	sub, err := n.p2p.host.EventBus().Subscribe(event.WildcardSubscription)
	if err != nil {
		n.logger.WithError(err).Error("subscribing to p2p events")
		return
	}

	defer sub.Close()
	for e := range sub.Out() {
		switch evt := e.(type) {
		case event.EvtLocalAddressesUpdated:
			for _, addr := range evt.Current {
				if addr.Action != event.Maintained {
					actionStr := "added"
					if addr.Action == event.Removed {
						actionStr = "removed"
					}
					n.logger.WithField("addr", addr.Address.String()).WithField("action", actionStr).Info("updated reachability")
				}
			}
		case event.EvtPeerConnectednessChanged:
			n.logger.WithField("peer", evt.Peer.String()).WithField("connectedness", evt.Connectedness.String()).Debug("peer connectedness changed")
		default:
			n.logger.WithField("event", e).Debugf("unknown event %T", evt)
		}
	}
}

func (n *Node) ListenAndServe() error {
	n.logger.WithField("addrs", n.p2p.host.Addrs()).WithField("id", n.p2p.host.ID().String()).Info("Starting listening")

	if n.metrics != nil {
		n.logger.WithField("addr", n.metrics.Addr).Info("serving metrics")
		if err := n.metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "serving metrics")
		}
	}

	select {}
}

func (n *Node) Stop() error {
	n.logger.Warn("Shutting down")

	var result *multierror.Error

	if n.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := n.metrics.Shutdown(ctx); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "stopping metrics"))
		}
	}
	if n.gossip != nil {
		if err := n.gossip.Close(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "closing gossip"))
		}
	}
	if err := n.p2p.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := n.db.Close(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "closing storage"))
	}

	return result.ErrorOrNil()
}

func (n *Node) bootstrap(ctx context.Context, cfg *config.Config) error {
	n.logger.Debugf("bootstrapping P2P host")

	peers := cfg.P2P().BootstrapPeers
	if len(peers) == 0 {
		n.logger.Debug("no bootstrapping peers")
	}

	var wg sync.WaitGroup

	for _, peerAddr := range peers {
		ma, err := multiaddr.NewMultiaddr(peerAddr)
		if err != nil {
			return errors.Wrap(err, "parsing bootstrap multiaddr")
		}

		peerinfo, err := peer.AddrInfoFromP2pAddr(ma)
		if err != nil {
			return errors.Wrap(err, "parsing bootstrap peer")
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			n.connect(ctx, *peerinfo)
		}()
	}
	wg.Wait()

	return nil
}

func (n *Node) connect(ctx context.Context, pi peer.AddrInfo) {
	b := &backoff.Backoff{Min: time.Second, Max: 10 * time.Second, Factor: 2}

	for attempt := 1; ; attempt++ {
		err := n.p2p.host.Connect(ctx, pi)
		if err == nil {
			n.logger.Debug("Connection established with bootstrap peer:", pi)
			return
		}

		log := n.logger.WithField("peer", pi.String()).WithField("attempt", attempt).WithError(err)
		if attempt == bootstrapAttempts {
			log.Warning("failed to connect to bootstrap peer")
			return
		}
		log.Debug("retrying bootstrap peer")

		select {
		case <-ctx.Done():
			return
		case <-time.After(b.Duration()):
		}
	}
}
