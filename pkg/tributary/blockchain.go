package tributary

import (
	"encoding/binary"
	"encoding/hex"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tcfw/tributary/pkg/consensus"
	"github.com/tcfw/tributary/pkg/storage"
	"github.com/tcfw/tributary/pkg/tx"
)

// Blockchain is the ledger of a single tributary. It exclusively owns its
// namespace of the store.
type Blockchain struct {
	mu sync.RWMutex

	db           storage.DB
	genesis      [32]byte
	participants map[consensus.PublicKey]struct{}

	cfg     *config
	log     *logrus.Entry
	metrics *Metrics

	tip         [32]byte
	blockNumber uint64

	provided *ProvidedTransactions
	mempool  *Mempool
	blocks   *lru.Cache

	nextBlockWaiters []chan struct{}
	inclusionWaiters map[[32]byte][]chan struct{}
}

func NewBlockchain(db storage.DB, genesis [32]byte, participants []consensus.PublicKey, opts ...Option) (*Blockchain, error) {
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	return newBlockchain(db, genesis, participants, cfg)
}

func newBlockchain(db storage.DB, genesis [32]byte, participants []consensus.PublicKey, cfg *config) (*Blockchain, error) {
	b := &Blockchain{
		db:               db,
		genesis:          genesis,
		participants:     make(map[consensus.PublicKey]struct{}, len(participants)),
		cfg:              cfg,
		log:              cfg.log.WithField("genesis", hex.EncodeToString(genesis[:4])),
		metrics:          NewMetrics(cfg.registerer, genesis),
		tip:              genesis,
		inclusionWaiters: make(map[[32]byte][]chan struct{}),
	}

	for _, p := range participants {
		b.participants[p] = struct{}{}
	}

	tip, err := TipFromDB(db, genesis)
	if err == nil {
		b.tip = tip
		d, err := db.Get(blockNumberKey(genesis))
		if err != nil {
			return nil, errors.Wrap(err, "reading block number")
		}
		b.blockNumber = binary.LittleEndian.Uint64(d)
	} else if err != storage.ErrNotFound {
		return nil, errors.Wrap(err, "reading tip")
	}

	if b.blocks, err = lru.New(cfg.blockCacheSize); err != nil {
		return nil, errors.Wrap(err, "creating block cache")
	}

	if b.provided, err = newProvidedTransactions(db, genesis, cfg.readTx); err != nil {
		return nil, err
	}
	if b.mempool, err = newMempool(db, genesis, cfg.readTx, b.log, b.included(db, true, false), &chainNonces{b: b, g: db}); err != nil {
		return nil, err
	}

	b.metrics.height.Set(float64(b.blockNumber))
	b.metrics.mempoolSize.Set(float64(b.mempool.Len()))

	return b, nil
}

// TipFromDB reads the persisted tip without loading a Blockchain.
func TipFromDB(db storage.Getter, genesis [32]byte) ([32]byte, error) {
	var tip [32]byte
	d, err := db.Get(tipKey(genesis))
	if err != nil {
		return tip, err
	}
	copy(tip[:], d)
	return tip, nil
}

// BlockFromDB reads a block without loading a Blockchain.
func BlockFromDB(db storage.Getter, genesis [32]byte, hash [32]byte, readTx TxReader) (*Block, error) {
	d, err := db.Get(blockKey(genesis, hash))
	if err != nil {
		return nil, err
	}
	return UnmarshalBlock(d, readTx)
}

func (b *Blockchain) Genesis() [32]byte {
	return b.genesis
}

func (b *Blockchain) Tip() [32]byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.tip
}

func (b *Blockchain) BlockNumber() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.blockNumber
}

func (b *Blockchain) Block(hash [32]byte) (*Block, error) {
	if v, ok := b.blocks.Get(hash); ok {
		return v.(*Block), nil
	}

	blk, err := BlockFromDB(b.db, b.genesis, hash, b.cfg.readTx)
	if err != nil {
		return nil, err
	}
	b.blocks.Add(hash, blk)
	return blk, nil
}

// Commit returns the encoded commit for a block.
func (b *Blockchain) Commit(hash [32]byte) ([]byte, error) {
	return b.db.Get(commitKey(b.genesis, hash))
}

func (b *Blockchain) BlockHash(number uint64) ([32]byte, error) {
	var h [32]byte
	d, err := b.db.Get(blockHashKey(b.genesis, number))
	if err != nil {
		return h, err
	}
	copy(h[:], d)
	return h, nil
}

func (b *Blockchain) CommitByBlockNumber(number uint64) ([]byte, error) {
	h, err := b.BlockHash(number)
	if err != nil {
		return nil, err
	}
	return b.Commit(h)
}

func (b *Blockchain) BlockAfter(hash [32]byte) ([32]byte, error) {
	var h [32]byte
	d, err := b.db.Get(blockAfterKey(b.genesis, hash))
	if err != nil {
		return h, err
	}
	copy(h[:], d)
	return h, nil
}

func (b *Blockchain) MempoolSize() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.mempool.Len()
}

func (b *Blockchain) LocallyProvidedTxsInBlock(block [32]byte, order []byte) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.provided.LocallyProvidedTxsInBlock(block, order)
}

func (b *Blockchain) commitByNumber(number uint64) *consensus.Commit {
	d, err := b.CommitByBlockNumber(number)
	if err != nil {
		return nil
	}
	c, err := consensus.UnmarshalCommit(d)
	if err != nil {
		b.log.WithError(err).WithField("block", number).Error("stored commit is malformed")
		return nil
	}
	return c
}

func (b *Blockchain) evidenceParams(scheme consensus.SignatureScheme) consensus.EvidenceParams {
	return consensus.EvidenceParams{
		Scheme:    scheme,
		Commits:   b.commitByNumber,
		Timing:    b.cfg.timing,
		StartTime: b.cfg.startTime,
	}
}

// chainNonces reads next nonces from g.
type chainNonces struct {
	b *Blockchain
	g storage.Getter
}

func (n *chainNonces) NextNonce(signer consensus.PublicKey, order []byte) (uint32, bool) {
	if _, ok := n.b.participants[signer]; !ok {
		return 0, false
	}
	next, err := getU32(n.g, nextNonceKey(n.b.genesis, signer, order))
	if err != nil {
		n.b.log.WithError(err).Error("reading next nonce")
		return 0, false
	}
	return next, true
}

// replayNonces advances the next nonce within txn on every lookup, as each
// lookup is for a tx being applied.
type replayNonces struct {
	chainNonces
	txn storage.Txn
}

func (n *replayNonces) NextNonce(signer consensus.PublicKey, order []byte) (uint32, bool) {
	next, ok := n.chainNonces.NextNonce(signer, order)
	if !ok {
		return 0, false
	}
	if err := n.txn.Set(nextNonceKey(n.b.genesis, signer, order), u32Bytes(next+1)); err != nil {
		n.b.log.WithError(err).Error("advancing nonce")
		return 0, false
	}
	return next, true
}

// NextNonce includes nonces already queued in the mempool.
func (b *Blockchain) NextNonce(signer consensus.PublicKey, order []byte) (uint32, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	next, ok := (&chainNonces{b: b, g: b.db}).NextNonce(signer, order)
	if !ok {
		return 0, false
	}
	return b.mempool.nextNonce(signer, order, next), true
}

func (b *Blockchain) included(g storage.Getter, unsigned bool, provided bool) func([32]byte) bool {
	return func(h [32]byte) bool {
		if unsigned {
			if _, err := g.Get(unsignedIncludedKey(b.genesis, h)); err == nil {
				return true
			}
		}
		if provided {
			if _, err := g.Get(providedIncludedKey(b.genesis, h)); err == nil {
				return true
			}
		}
		return false
	}
}

// AddTransaction queues t in the mempool. internal marks our own txs, which
// skip the per signer limit and survive restarts.
func (b *Blockchain) AddTransaction(internal bool, t tx.Transaction, scheme consensus.SignatureScheme) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	added, err := b.mempool.add(internal, t, &mempoolState{
		chainNonces: &chainNonces{b: b, g: b.db},
		included:    b.included(b.db, true, false),
		evidence:    b.evidenceParams(scheme),
	})
	if err != nil {
		return false, err
	}

	b.metrics.mempoolSize.Set(float64(b.mempool.Len()))
	return added, nil
}

func (b *Blockchain) ProvideTransaction(t tx.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.provided.Provide(t)
}

// BuildBlock proposes a block on the tip from every pending provided tx and
// what fits from the mempool.
func (b *Blockchain) BuildBlock(scheme consensus.SignatureScheme) (*Block, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	provided := b.provided.All()

	// header and tx count
	budget := BlockSizeLimit - 68
	for _, t := range provided {
		d, err := t.Serialize()
		if err != nil {
			return nil, errors.Wrap(err, "encoding provided transaction")
		}
		budget -= len(d) + 1
	}

	blk := NewBlock(b.tip, provided, b.mempool.block(b.included(b.db, true, false), &chainNonces{b: b, g: b.db}, budget))

	if err := b.verifyBlock(blk, scheme, false); err != nil {
		return nil, errors.Wrap(err, "built an invalid block")
	}

	return blk, nil
}

// VerifyBlock checks blk could be added on the tip. It never changes any
// state.
func (b *Blockchain) VerifyBlock(blk *Block, scheme consensus.SignatureScheme, allowNonLocalProvided bool) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.verifyBlock(blk, scheme, allowNonLocalProvided)
}

func (b *Blockchain) verifyBlock(blk *Block, scheme consensus.SignatureScheme, allowNonLocalProvided bool) error {
	txn := b.db.Txn()
	defer txn.Discard()

	err := blk.verify(&blockVerifier{
		genesis:               b.genesis,
		tip:                   b.tip,
		locallyProvided:       b.provided.byOrder(),
		nonces:                &replayNonces{chainNonces: chainNonces{b: b, g: txn}, txn: txn},
		evidence:              b.evidenceParams(scheme),
		included:              b.included(txn, true, true),
		allowNonLocalProvided: allowNonLocalProvided,
	})
	if err != nil {
		b.metrics.blockError(err)
	}
	return err
}

// AddBlock verifies blk, allowing provided txs we haven't derived yet, and
// applies it atomically along with its commit and the mempool txs it makes
// stale.
func (b *Blockchain) AddBlock(blk *Block, commit []byte, scheme consensus.SignatureScheme) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.verifyBlock(blk, scheme, true); err != nil {
		return err
	}

	hash := blk.Hash()
	number := b.blockNumber + 1

	d, err := blk.Serialize()
	if err != nil {
		return errors.Wrap(err, "encoding block")
	}

	txn := b.db.Txn()
	defer txn.Discard()

	writes := []struct{ k, v []byte }{
		{tipKey(b.genesis), hash[:]},
		{blockNumberKey(b.genesis), u64Bytes(number)},
		{blockHashKey(b.genesis, number), hash[:]},
		{blockKey(b.genesis, hash), d},
		{commitKey(b.genesis, hash), commit},
		{blockAfterKey(b.genesis, b.tip), hash[:]},
	}
	for _, w := range writes {
		if err := txn.Set(w.k, w.v); err != nil {
			return errors.Wrap(err, "writing block")
		}
	}

	pending := b.provided.byOrder()
	var (
		popped   [][]byte
		included = make([][32]byte, 0, len(blk.Transactions))
	)

	for _, t := range blk.Transactions {
		h := t.Hash()
		included = append(included, h)

		switch t.Kind() {
		case tx.KindProvided:
			order := t.Order()
			queue := pending[string(order)]
			fromLocal := len(queue) != 0 && queue[0].Hash() == h
			if fromLocal {
				pending[string(order)] = queue[1:]
				popped = append(popped, order)
			}
			if err := b.provided.complete(txn, order, hash, h, fromLocal); err != nil {
				return errors.Wrap(err, "completing provided transaction")
			}
			if err := txn.Set(providedIncludedKey(b.genesis, h), []byte{}); err != nil {
				return err
			}

		case tx.KindUnsigned:
			if err := txn.Set(unsignedIncludedKey(b.genesis, h), []byte{}); err != nil {
				return err
			}

		case tx.KindSigned:
			s := t.Signed()
			if err := txn.Set(nextNonceKey(b.genesis, s.Signer, t.Order()), u32Bytes(s.Nonce+1)); err != nil {
				return err
			}
		}

		b.metrics.txsAdded.WithLabelValues(t.Kind().String()).Inc()
	}

	stale := b.mempool.stale(b.included(txn, true, false), &chainNonces{b: b, g: txn})
	if err := b.mempool.unpersist(txn, stale); err != nil {
		return errors.Wrap(err, "unpersisting mempool transactions")
	}

	if err := txn.Commit(); err != nil {
		return errors.Wrap(err, "committing block")
	}

	prev := b.tip
	b.tip = hash
	b.blockNumber = number
	b.blocks.Add(hash, blk)

	for _, order := range popped {
		b.provided.pop(order)
	}

	b.mempool.drop(stale)

	b.metrics.height.Set(float64(number))
	b.metrics.mempoolSize.Set(float64(b.mempool.Len()))

	b.log.WithFields(logrus.Fields{
		"height": number,
		"block":  hex.EncodeToString(hash[:]),
		"parent": hex.EncodeToString(prev[:]),
		"txs":    len(blk.Transactions),
	}).Debug("added block")

	b.notify(included)

	return nil
}

// NextBlockNotification is closed once the next block is added.
func (b *Blockchain) NextBlockNotification() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan struct{})
	b.nextBlockWaiters = append(b.nextBlockWaiters, ch)
	return ch
}

// AwaitInclusion is closed once a block including the tx hash h is added.
func (b *Blockchain) AwaitInclusion(h [32]byte) <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan struct{})
	if b.included(b.db, true, true)(h) {
		close(ch)
		return ch
	}
	b.inclusionWaiters[h] = append(b.inclusionWaiters[h], ch)
	return ch
}

func (b *Blockchain) notify(included [][32]byte) {
	for _, ch := range b.nextBlockWaiters {
		close(ch)
	}
	b.nextBlockWaiters = nil

	for _, h := range included {
		for _, ch := range b.inclusionWaiters[h] {
			close(ch)
		}
		delete(b.inclusionWaiters, h)
	}
}
