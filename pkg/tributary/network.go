package tributary

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tcfw/tributary/internal/utils/wire"
	"github.com/tcfw/tributary/pkg/consensus"
)

// Gossip message prefixes
const (
	TransactionMessage byte = iota
	TendermintMessage
	BlockMessage
)

// P2P broadcasts to every peer of a tributary.
type P2P interface {
	Broadcast(genesis [32]byte, msg []byte) error
}

// ValidationError is how the BFT engine should treat an invalid proposal.
type ValidationError struct {
	// Temporal errors may pass once we've caught up.
	Temporal bool
	Err      error
}

func (e *ValidationError) Error() string {
	if e.Temporal {
		return "temporal: " + e.Err.Error()
	}
	return "fatal: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

type SlashReason uint8

const (
	SlashFailToPropose SlashReason = iota + 1
	SlashInvalidBlock
	SlashInvalidMessage
)

func (r SlashReason) String() string {
	switch r {
	case SlashFailToPropose:
		return "fail_to_propose"
	case SlashInvalidBlock:
		return "invalid_block"
	case SlashInvalidMessage:
		return "invalid_message"
	}
	return "unknown"
}

// SlashEvent is either provable, with one or two signed messages as
// Evidence, or reputational.
type SlashEvent struct {
	Reason   SlashReason
	Block    uint64
	Round    uint32
	Evidence []*consensus.SignedMessage
}

// Network is what the BFT engine drives a tributary through.
type Network struct {
	genesis    [32]byte
	signer     *consensus.Signer
	validators *consensus.Validators
	chain      *Blockchain
	p2p        P2P

	timing  consensus.Timing
	halt    func(error)
	log     *logrus.Entry
	metrics *Metrics

	repMu      sync.Mutex
	reputation map[consensus.PublicKey]uint64
}

func newNetwork(signer *consensus.Signer, validators *consensus.Validators, chain *Blockchain, p2p P2P, cfg *config) *Network {
	n := &Network{
		genesis:    chain.Genesis(),
		signer:     signer,
		validators: validators,
		chain:      chain,
		p2p:        p2p,
		timing:     cfg.timing,
		halt:       cfg.halt,
		log:        chain.log,
		metrics:    chain.metrics,
		reputation: make(map[consensus.PublicKey]uint64),
	}

	if n.halt == nil {
		n.halt = func(err error) {
			n.log.WithError(err).Panic("tributary halted")
		}
	}

	return n
}

func (n *Network) Signer() *consensus.Signer {
	return n.signer
}

func (n *Network) SignatureScheme() consensus.SignatureScheme {
	return n.validators
}

func (n *Network) Weights() consensus.Weights {
	return n.validators
}

func (n *Network) BlockTime() time.Duration {
	return n.timing.BlockTime()
}

// Broadcast gossips a consensus message.
func (n *Network) Broadcast(msg *consensus.SignedMessage) {
	d, err := msg.Marshal()
	if err != nil {
		n.log.WithError(err).Error("encoding consensus message")
		return
	}

	if err := n.p2p.Broadcast(n.genesis, append([]byte{TendermintMessage}, d...)); err != nil {
		n.log.WithError(err).Warn("broadcasting consensus message")
	}
}

// Slash publishes provable faults as slash evidence and only counts
// reputational ones.
func (n *Network) Slash(validator consensus.PublicKey, ev SlashEvent) {
	log := n.log.WithFields(logrus.Fields{
		"validator": validator.String(),
		"reason":    ev.Reason.String(),
		"block":     ev.Block,
		"round":     ev.Round,
	})

	if len(ev.Evidence) == 0 {
		n.repMu.Lock()
		n.reputation[validator]++
		count := n.reputation[validator]
		n.repMu.Unlock()

		n.metrics.slashes.WithLabelValues("reputation").Inc()
		log.WithField("count", count).Error("validator misbehaved")
		return
	}

	n.metrics.slashes.WithLabelValues("evidence").Inc()
	log.Error("validator provably misbehaved")

	t, err := consensus.NewSlashEvidence(ev.Evidence...)
	if err != nil {
		log.WithError(err).Error("creating slash evidence")
		return
	}

	if _, err := n.chain.AddTransaction(true, t, n.validators); err != nil {
		log.WithError(err).Error("adding slash evidence")
		return
	}

	d, err := EncodeTx(t)
	if err != nil {
		log.WithError(err).Error("encoding slash evidence")
		return
	}
	if err := n.p2p.Broadcast(n.genesis, append([]byte{TransactionMessage}, d...)); err != nil {
		log.WithError(err).Warn("broadcasting slash evidence")
	}
}

// Reputation is the count of reputational slashes raised against v.
func (n *Network) Reputation(v consensus.PublicKey) uint64 {
	n.repMu.Lock()
	defer n.repMu.Unlock()

	return n.reputation[v]
}

// Validate checks a proposal against local state.
func (n *Network) Validate(blk *Block) error {
	err := n.chain.VerifyBlock(blk, n.validators, false)
	if err == nil {
		return nil
	}
	return &ValidationError{Temporal: IsNonLocalProvided(err), Err: err}
}

// AddBlock applies a block the network committed and returns the next
// proposal. The commit is the authority on blk, so provided txs we have yet
// to derive are imported rather than waited on. Anything else halts.
func (n *Network) AddBlock(ctx context.Context, blk *Block, commit *consensus.Commit) (*Block, error) {
	if err := n.addBlock(ctx, blk, commit); err != nil {
		return nil, err
	}
	return n.chain.BuildBlock(n.validators)
}

// SyncBlock imports a block committed without us.
func (n *Network) SyncBlock(ctx context.Context, blk *Block, commit *consensus.Commit) error {
	return n.addBlock(ctx, blk, commit)
}

func (n *Network) addBlock(ctx context.Context, blk *Block, commit *consensus.Commit) error {
	id := blk.Hash()
	log := n.log.WithField("block", hex.EncodeToString(id[:]))

	if !consensus.VerifyCommit(n.validators, n.validators, id, commit) {
		err := &HaltError{Genesis: n.genesis, Height: n.chain.BlockNumber() + 1, Reason: "invalid commit for committed block"}
		n.halt(err)
		return err
	}

	encCommit, err := commit.Marshal()
	if err != nil {
		return err
	}

	bo := &backoff.Backoff{
		Min:    n.timing.BlockTime(),
		Max:    n.timing.BlockTime(),
		Factor: 1,
	}

	for {
		err := n.chain.AddBlock(blk, encCommit, n.validators)
		if err == nil {
			break
		}

		if !IsNonLocalProvided(err) {
			herr := &HaltError{Genesis: n.genesis, Height: n.chain.BlockNumber() + 1, Reason: "committed block failed to apply", Cause: err}
			n.halt(herr)
			return herr
		}

		d := bo.Duration()
		log.WithError(err).WithField("retry", d).Error("missing provided transactions other validators had")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}

	w := &wire.Writer{}
	w.U8(BlockMessage)
	if err := blk.write(w); err != nil {
		return errors.Wrap(err, "encoding block")
	}
	w.Fixed(encCommit)
	if err := n.p2p.Broadcast(n.genesis, w.Bytes()); err != nil {
		log.WithError(err).Warn("broadcasting block")
	}

	return nil
}
