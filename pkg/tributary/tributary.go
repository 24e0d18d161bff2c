package tributary

import (
	"context"

	"github.com/pkg/errors"

	"github.com/tcfw/tributary/internal/utils/wire"
	"github.com/tcfw/tributary/pkg/consensus"
	"github.com/tcfw/tributary/pkg/cryptography"
	"github.com/tcfw/tributary/pkg/storage"
	"github.com/tcfw/tributary/pkg/tx"
)

// Tributary is one validator set session's ledger, wired to gossip.
type Tributary struct {
	genesis    [32]byte
	startTime  uint64
	chain      *Blockchain
	network    *Network
	validators *consensus.Validators
	p2p        P2P
	cfg        *config
}

func New(db storage.DB, genesis [32]byte, startTime uint64, key *cryptography.PrivateKey, validators []consensus.Validator, p2p P2P, opts ...Option) (*Tributary, error) {
	cfg, err := applyOptions(append([]Option{WithStartTime(startTime)}, opts...))
	if err != nil {
		return nil, err
	}

	vals, err := consensus.NewValidators(genesis, validators)
	if err != nil {
		return nil, errors.Wrap(err, "building validator set")
	}

	chain, err := newBlockchain(db, genesis, vals.Keys(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "opening blockchain")
	}

	signer := consensus.NewSigner(genesis, key)

	t := &Tributary{
		genesis:    genesis,
		startTime:  startTime,
		chain:      chain,
		network:    newNetwork(signer, vals, chain, p2p, cfg),
		validators: vals,
		p2p:        p2p,
		cfg:        cfg,
	}

	chain.log.WithField("height", chain.BlockNumber()).Info("tributary started")

	return t, nil
}

func (t *Tributary) Genesis() [32]byte {
	return t.genesis
}

func (t *Tributary) StartTime() uint64 {
	return t.startTime
}

func (t *Tributary) BlockNumber() uint64 {
	return t.chain.BlockNumber()
}

func (t *Tributary) Tip() [32]byte {
	return t.chain.Tip()
}

func (t *Tributary) Blockchain() *Blockchain {
	return t.chain
}

func (t *Tributary) Network() *Network {
	return t.network
}

func (t *Tributary) Validators() *consensus.Validators {
	return t.validators
}

// ProvideTransaction registers a locally derived provided tx. Providing the
// same tx twice is a no-op.
func (t *Tributary) ProvideTransaction(p tx.Transaction) error {
	err := t.chain.ProvideTransaction(p)
	if errors.Is(err, ErrAlreadyProvided) {
		return nil
	}
	return err
}

func (t *Tributary) NextNonce(signer consensus.PublicKey, order []byte) (uint32, bool) {
	return t.chain.NextNonce(signer, order)
}

// AddTransaction queues a tx and gossips it if it was new.
func (t *Tributary) AddTransaction(a tx.Transaction) (bool, error) {
	d, err := EncodeTx(a)
	if err != nil {
		return false, errors.Wrap(tx.ErrInvalidContent, err.Error())
	}

	added, err := t.chain.AddTransaction(false, a, t.validators)
	if err != nil || !added {
		return added, err
	}

	if err := t.p2p.Broadcast(t.genesis, append([]byte{TransactionMessage}, d...)); err != nil {
		t.chain.log.WithError(err).Warn("broadcasting transaction")
	}
	return true, nil
}

// VoteSlash votes to remove target for reputational faults.
func (t *Tributary) VoteSlash(id [32]byte, target consensus.PublicKey) (bool, error) {
	v := consensus.NewSlashVote(t.network.Signer(), id, target)

	added, err := t.chain.AddTransaction(true, v, t.validators)
	if err != nil || !added {
		return added, err
	}

	d, err := EncodeTx(v)
	if err != nil {
		return true, err
	}
	if err := t.p2p.Broadcast(t.genesis, append([]byte{TransactionMessage}, d...)); err != nil {
		t.chain.log.WithError(err).Warn("broadcasting slash vote")
	}
	return true, nil
}

// SyncBlock applies a block finalized by the network while we weren't
// participating.
func (t *Tributary) SyncBlock(ctx context.Context, blk *Block, commit []byte) bool {
	if blk.Parent() != t.chain.Tip() {
		return false
	}

	c, err := consensus.UnmarshalCommit(commit)
	if err != nil {
		return false
	}
	if !consensus.VerifyCommit(t.validators, t.validators, blk.Hash(), c) {
		return false
	}

	if err := t.network.SyncBlock(ctx, blk, c); err != nil {
		t.chain.log.WithError(err).Warn("syncing block")
		return false
	}
	return true
}

// HandleMessage processes a gossiped message, returning if it should be
// rebroadcast.
func (t *Tributary) HandleMessage(ctx context.Context, msg []byte) bool {
	if len(msg) == 0 {
		return false
	}

	switch msg[0] {
	case TransactionMessage:
		a, err := DecodeTx(msg[1:], t.cfg.readTx)
		if err != nil {
			return false
		}
		added, err := t.chain.AddTransaction(false, a, t.validators)
		if err != nil {
			t.chain.log.WithError(err).Debug("rejected gossiped transaction")
		}
		return added

	case TendermintMessage:
		m, err := consensus.UnmarshalSignedMessage(msg[1:])
		if err != nil {
			return false
		}
		// only messages for the next block matter
		if m.Msg.Block != t.chain.BlockNumber()+1 {
			return false
		}
		if !m.VerifySignature(t.validators) {
			return false
		}
		if t.cfg.onMessage != nil {
			t.cfg.onMessage(m)
		}
		return true

	case BlockMessage:
		r := wire.NewReader(msg[1:])
		blk, err := ReadBlock(r, t.cfg.readTx)
		if err != nil {
			return false
		}
		commit := make([]byte, r.Len())
		if err := r.Fixed(commit); err != nil {
			return false
		}
		return t.SyncBlock(ctx, blk, commit)
	}

	return false
}

func (t *Tributary) NextBlockNotification() <-chan struct{} {
	return t.chain.NextBlockNotification()
}
