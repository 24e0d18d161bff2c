package node

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/ipfs/go-cid"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multihash"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tcfw/tributary/pkg/tributary"
)

const (
	topicPrefix = "/tributary/"

	seenCapacity      = 100_000
	seenFalsePositive = 0.001
)

var _ tributary.P2P = (*gossip)(nil)

// MessageHandler processes a tributary message, returning if peers should
// receive it too.
type MessageHandler func(ctx context.Context, msg []byte) bool

// TopicName is the gossipsub topic of a tributary, derived from its genesis.
func TopicName(genesis [32]byte) (string, error) {
	mh, err := multihash.Sum(genesis[:], multihash.SHA2_256, -1)
	if err != nil {
		return "", errors.Wrap(err, "hashing genesis")
	}
	return topicPrefix + cid.NewCidV1(cid.Raw, mh).String(), nil
}

// seenFilter is a pair of rotating bloom filters over message payloads, so
// the same message relayed by different peers is only handled once.
type seenFilter struct {
	mu       sync.Mutex
	current  *bloom.BloomFilter
	previous *bloom.BloomFilter
	added    uint
}

func newSeenFilter() *seenFilter {
	return &seenFilter{
		current:  bloom.NewWithEstimates(seenCapacity, seenFalsePositive),
		previous: bloom.NewWithEstimates(seenCapacity, seenFalsePositive),
	}
}

func (s *seenFilter) test(msg []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.previous.Test(msg) || s.current.Test(msg)
}

func (s *seenFilter) add(msg []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.TestAndAdd(msg) {
		return
	}

	s.added++
	if s.added >= seenCapacity {
		s.previous, s.current = s.current, bloom.NewWithEstimates(seenCapacity, seenFalsePositive)
		s.added = 0
	}
}

type gossip struct {
	ps   *pubsub.PubSub
	self peer.ID
	log  *logrus.Entry
	seen *seenFilter

	mu     sync.Mutex
	topics map[[32]byte]*pubsub.Topic
	subs   map[[32]byte]*pubsub.Subscription
}

func newGossip(ps *pubsub.PubSub, self peer.ID, log *logrus.Entry) *gossip {
	return &gossip{
		ps:     ps,
		self:   self,
		log:    log,
		seen:   newSeenFilter(),
		topics: make(map[[32]byte]*pubsub.Topic),
		subs:   make(map[[32]byte]*pubsub.Subscription),
	}
}

func (g *gossip) topic(genesis [32]byte) (*pubsub.Topic, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if t, ok := g.topics[genesis]; ok {
		return t, nil
	}

	name, err := TopicName(genesis)
	if err != nil {
		return nil, err
	}

	t, err := g.ps.Join(name)
	if err != nil {
		return nil, errors.Wrap(err, "joining topic")
	}
	g.topics[genesis] = t
	return t, nil
}

func (g *gossip) Broadcast(genesis [32]byte, msg []byte) error {
	t, err := g.topic(genesis)
	if err != nil {
		return err
	}

	g.seen.add(msg)

	return t.Publish(context.Background(), msg)
}

// Subscribe hands every new message on the tributary's topic to h. Only
// messages h accepts are relayed on.
func (g *gossip) Subscribe(ctx context.Context, genesis [32]byte, h MessageHandler) error {
	name, err := TopicName(genesis)
	if err != nil {
		return err
	}

	if err := g.ps.RegisterTopicValidator(name, g.validator(h)); err != nil {
		return errors.Wrap(err, "registering topic validator")
	}

	t, err := g.topic(genesis)
	if err != nil {
		return err
	}

	sub, err := t.Subscribe()
	if err != nil {
		return errors.Wrap(err, "subscribing to topic")
	}

	g.mu.Lock()
	g.subs[genesis] = sub
	g.mu.Unlock()

	go g.drain(ctx, sub)

	return nil
}

// validator hands messages to h. Only accepted messages are marked seen, as
// a rejection may be temporary, such as a block arriving before its parent.
func (g *gossip) validator(h MessageHandler) func(context.Context, peer.ID, *pubsub.Message) pubsub.ValidationResult {
	return func(ctx context.Context, from peer.ID, msg *pubsub.Message) pubsub.ValidationResult {
		if from == g.self {
			return pubsub.ValidationAccept
		}
		if g.seen.test(msg.Data) {
			return pubsub.ValidationIgnore
		}
		if !h(ctx, msg.Data) {
			return pubsub.ValidationIgnore
		}
		g.seen.add(msg.Data)
		return pubsub.ValidationAccept
	}
}

// drain keeps the subscription moving, handling happens in the validator.
func (g *gossip) drain(ctx context.Context, sub *pubsub.Subscription) {
	for {
		if _, err := sub.Next(ctx); err != nil {
			if ctx.Err() == nil {
				g.log.WithError(err).Warn("reading gossip subscription")
			}
			return
		}
	}
}

func (g *gossip) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for genesis, sub := range g.subs {
		sub.Cancel()
		delete(g.subs, genesis)
	}

	var err error
	for genesis, t := range g.topics {
		if name, nerr := TopicName(genesis); nerr == nil {
			g.ps.UnregisterTopicValidator(name)
		}
		if cerr := t.Close(); cerr != nil && err == nil {
			err = cerr
		}
		delete(g.topics, genesis)
	}
	return err
}
