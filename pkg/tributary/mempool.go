package tributary

import (
	"bytes"
	"encoding/hex"

	"github.com/google/btree"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tcfw/tributary/pkg/consensus"
	"github.com/tcfw/tributary/pkg/storage"
	"github.com/tcfw/tributary/pkg/tx"
)

const (
	// AccountMempoolLimit caps the pending txs of a single signer unless
	// they're our own.
	AccountMempoolLimit = 50

	btreeDegree = 8
)

// signedEntry indexes signed txs by (signer, order, nonce)
type signedEntry struct {
	signer consensus.PublicKey
	order  []byte
	nonce  uint32
	hash   [32]byte
}

func signedEntryLess(a, b signedEntry) bool {
	if c := bytes.Compare(a.signer[:], b.signer[:]); c != 0 {
		return c < 0
	}
	if c := bytes.Compare(a.order, b.order); c != 0 {
		return c < 0
	}
	return a.nonce < b.nonce
}

func newSignedEntry(t tx.Transaction) signedEntry {
	s := t.Signed()
	return signedEntry{signer: s.Signer, order: t.Order(), nonce: s.Nonce, hash: t.Hash()}
}

// Mempool holds unsigned and signed txs waiting for inclusion.
type Mempool struct {
	db      storage.DB
	genesis [32]byte
	log     *logrus.Entry

	txs      map[[32]byte]tx.Transaction
	internal map[[32]byte]struct{}

	// unsigned keeps insertion order
	unsigned  [][32]byte
	signed    *btree.BTreeG[signedEntry]
	perSigner map[consensus.PublicKey]int
}

// newMempool reloads our own txs, dropping any a block included before we
// could unpersist them.
func newMempool(db storage.DB, genesis [32]byte, readTx TxReader, log *logrus.Entry, included func([32]byte) bool, chainNonces tx.NonceOracle) (*Mempool, error) {
	m := &Mempool{
		db:        db,
		genesis:   genesis,
		log:       log,
		txs:       make(map[[32]byte]tx.Transaction),
		internal:  make(map[[32]byte]struct{}),
		signed:    btree.NewG(btreeDegree, signedEntryLess),
		perSigner: make(map[consensus.PublicKey]int),
	}

	saved, err := getHashList(db, mempoolKey(genesis))
	if err != nil {
		return nil, errors.Wrap(err, "loading mempool")
	}

	for _, h := range saved {
		d, err := db.Get(mempoolTxKey(genesis, h))
		if err != nil {
			return nil, errors.Wrapf(err, "loading mempool transaction %x", h)
		}
		t, err := DecodeTx(d, readTx)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding mempool transaction %x", h)
		}
		m.save(t)
		m.internal[h] = struct{}{}
	}

	if len(saved) != 0 {
		log.WithField("count", len(saved)).Info("reloaded internal mempool transactions")
	}

	if err := m.prune(included, chainNonces); err != nil {
		return nil, errors.Wrap(err, "pruning reloaded mempool")
	}

	return m, nil
}

func (m *Mempool) Len() int {
	return len(m.txs)
}

func (m *Mempool) Has(h [32]byte) bool {
	_, ok := m.txs[h]
	return ok
}

func (m *Mempool) save(t tx.Transaction) {
	h := t.Hash()
	m.txs[h] = t

	if t.Kind() == tx.KindSigned {
		m.signed.ReplaceOrInsert(newSignedEntry(t))
		m.perSigner[t.Signed().Signer]++
		return
	}
	m.unsigned = append(m.unsigned, h)
}

// mempoolState is the chain state the mempool checks against.
type mempoolState struct {
	// chainNonces are the on chain next nonces
	chainNonces tx.NonceOracle
	included    func(h [32]byte) bool
	evidence    consensus.EvidenceParams
}

// add queues t, returning false for harmless duplicates. Signed txs may be
// queued ahead of the next on chain nonce.
func (m *Mempool) add(internal bool, t tx.Transaction, s *mempoolState) (bool, error) {
	h := t.Hash()

	switch t.Kind() {
	case tx.KindProvided:
		return false, tx.ErrProvidedAddedToMempool

	case tx.KindUnsigned:
		if m.Has(h) || s.included(h) {
			return false, nil
		}

		if tt, ok := t.(*consensus.TendermintTx); ok {
			if err := consensus.VerifyTendermintTx(tt, s.evidence); err != nil {
				return false, err
			}
		} else if err := tx.VerifyTransaction(t, m.genesis, s.chainNonces); err != nil {
			return false, err
		}

	case tx.KindSigned:
		signed := t.Signed()
		if signed == nil {
			return false, tx.ErrInvalidContent
		}
		if m.Has(h) {
			return false, nil
		}
		if !internal && m.perSigner[signed.Signer] >= AccountMempoolLimit {
			return false, tx.ErrTooManyInMempool
		}
		// first seen wins for a nonce
		if m.signed.Has(newSignedEntry(t)) {
			return false, nil
		}

		if err := tx.VerifyTransaction(t, m.genesis, &deferredNonces{chain: s.chainNonces, nonce: signed.Nonce}); err != nil {
			return false, err
		}

	default:
		return false, tx.ErrInvalidContent
	}

	if internal {
		if err := m.persist(h, t); err != nil {
			return false, err
		}
		m.internal[h] = struct{}{}
	}

	m.save(t)
	return true, nil
}

func (m *Mempool) persist(h [32]byte, t tx.Transaction) error {
	d, err := EncodeTx(t)
	if err != nil {
		return errors.Wrap(err, "encoding mempool transaction")
	}

	txn := m.db.Txn()
	defer txn.Discard()

	saved, err := getHashList(txn, mempoolKey(m.genesis))
	if err != nil {
		return err
	}
	if err := txn.Set(mempoolTxKey(m.genesis, h), d); err != nil {
		return err
	}
	if err := txn.Set(mempoolKey(m.genesis), encodeHashList(append(saved, h))); err != nil {
		return err
	}
	return txn.Commit()
}

// deferredNonces accepts any nonce at or after the on chain next nonce.
type deferredNonces struct {
	chain tx.NonceOracle
	nonce uint32
}

func (d *deferredNonces) NextNonce(signer consensus.PublicKey, order []byte) (uint32, bool) {
	next, ok := d.chain.NextNonce(signer, order)
	if !ok {
		return 0, false
	}
	if d.nonce >= next {
		return d.nonce, true
	}
	return next, true
}

// nextNonce extends the on chain next nonce through contiguous queued
// nonces.
func (m *Mempool) nextNonce(signer consensus.PublicKey, order []byte, chainNext uint32) uint32 {
	next := chainNext
	m.signed.AscendGreaterOrEqual(signedEntry{signer: signer, order: order, nonce: chainNext}, func(e signedEntry) bool {
		if e.signer != signer || !bytes.Equal(e.order, order) || e.nonce != next {
			return false
		}
		next++
		return true
	})
	return next
}

// block selects txs for the next block within sizeLimit bytes: every
// unsigned tx not yet included, then signed txs continuing each
// (signer, order) from its on chain next nonce.
func (m *Mempool) block(included func([32]byte) bool, chainNonces tx.NonceOracle, sizeLimit int) []tx.Transaction {
	var (
		out  []tx.Transaction
		size int
	)

	fits := func(t tx.Transaction) bool {
		d, err := t.Serialize()
		if err != nil {
			m.log.WithError(err).Warn("dropping unserializable mempool transaction")
			return false
		}
		// tag byte
		if size+len(d)+1 > sizeLimit {
			return false
		}
		size += len(d) + 1
		return true
	}

	for _, h := range m.unsigned {
		if included(h) {
			m.log.WithField("tx", hex.EncodeToString(h[:])).Warn("skipping included mempool transaction")
			continue
		}
		if t := m.txs[h]; fits(t) {
			out = append(out, t)
		}
	}

	var (
		group    *signedEntry
		expected uint32
		skip     bool
	)
	m.signed.Ascend(func(e signedEntry) bool {
		if group == nil || e.signer != group.signer || !bytes.Equal(e.order, group.order) {
			g := e
			group = &g
			next, ok := chainNonces.NextNonce(e.signer, e.order)
			expected, skip = next, !ok
		}
		if skip || e.nonce != expected {
			if e.nonce > expected {
				skip = true
			}
			return true
		}

		if !fits(m.txs[e.hash]) {
			skip = true
			return true
		}
		out = append(out, m.txs[e.hash])
		expected++
		return true
	})

	return out
}

func (m *Mempool) remove(h [32]byte) {
	t, ok := m.txs[h]
	if !ok {
		return
	}
	delete(m.txs, h)

	if t.Kind() == tx.KindSigned {
		m.signed.Delete(newSignedEntry(t))
		signer := t.Signed().Signer
		if m.perSigner[signer]--; m.perSigner[signer] <= 0 {
			delete(m.perSigner, signer)
		}
	} else {
		for i, u := range m.unsigned {
			if u == h {
				m.unsigned = append(m.unsigned[:i], m.unsigned[i+1:]...)
				break
			}
		}
	}

	delete(m.internal, h)
}

// stale lists the txs a chain state makes unincludable: included unsigned
// txs and signed txs behind their next nonce.
func (m *Mempool) stale(included func([32]byte) bool, chainNonces tx.NonceOracle) [][32]byte {
	var drop [][32]byte

	for _, h := range m.unsigned {
		if included(h) {
			drop = append(drop, h)
		}
	}

	m.signed.Ascend(func(e signedEntry) bool {
		if next, ok := chainNonces.NextNonce(e.signer, e.order); !ok || e.nonce < next {
			drop = append(drop, e.hash)
		}
		return true
	})

	return drop
}

// unpersist deletes the saved copies of any internal txs in hs within txn.
func (m *Mempool) unpersist(txn storage.Txn, hs [][32]byte) error {
	var gone [][32]byte
	for _, h := range hs {
		if _, ok := m.internal[h]; ok {
			gone = append(gone, h)
		}
	}
	if len(gone) == 0 {
		return nil
	}

	saved, err := getHashList(txn, mempoolKey(m.genesis))
	if err != nil {
		return err
	}
	kept := saved[:0]
	for _, h := range saved {
		if !containsHash(gone, h) {
			kept = append(kept, h)
		}
	}
	for _, h := range gone {
		if err := txn.Delete(mempoolTxKey(m.genesis, h)); err != nil {
			return err
		}
	}
	return txn.Set(mempoolKey(m.genesis), encodeHashList(kept))
}

func (m *Mempool) drop(hs [][32]byte) {
	for _, h := range hs {
		m.remove(h)
	}
}

// prune removes stale txs on its own, outside of adding a block.
func (m *Mempool) prune(included func([32]byte) bool, chainNonces tx.NonceOracle) error {
	hs := m.stale(included, chainNonces)
	if len(hs) == 0 {
		return nil
	}

	txn := m.db.Txn()
	defer txn.Discard()

	if err := m.unpersist(txn, hs); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}

	m.drop(hs)
	return nil
}

func containsHash(hs [][32]byte, h [32]byte) bool {
	for _, c := range hs {
		if c == h {
			return true
		}
	}
	return false
}
