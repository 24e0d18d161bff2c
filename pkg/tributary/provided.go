package tributary

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/tcfw/tributary/pkg/storage"
	"github.com/tcfw/tributary/pkg/tx"
)

// ProvidedTransactions tracks provided transactions this node derived
// itself but which aren't on chain yet, and reconciles them against what
// the chain included.
type ProvidedTransactions struct {
	db      storage.DB
	genesis [32]byte

	// orders keeps the order in which orders were first provided
	orders       []string
	transactions map[string][]tx.Transaction
}

func newProvidedTransactions(db storage.DB, genesis [32]byte, readTx TxReader) (*ProvidedTransactions, error) {
	p := &ProvidedTransactions{
		db:           db,
		genesis:      genesis,
		transactions: make(map[string][]tx.Transaction),
	}

	current, err := getHashList(db, currentProvidedKey(genesis))
	if err != nil {
		return nil, errors.Wrap(err, "loading provided transactions")
	}

	for _, h := range current {
		d, err := db.Get(providedTxKey(genesis, h))
		if err != nil {
			return nil, errors.Wrapf(err, "loading provided transaction %x", h)
		}
		t, err := DecodeTx(d, readTx)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding provided transaction %x", h)
		}
		p.push(t)
	}

	return p, nil
}

func (p *ProvidedTransactions) push(t tx.Transaction) {
	order := string(t.Order())
	if _, ok := p.transactions[order]; !ok {
		p.orders = append(p.orders, order)
	}
	p.transactions[order] = append(p.transactions[order], t)
}

// Provide registers t as locally derived.
func (p *ProvidedTransactions) Provide(t tx.Transaction) error {
	if t.Kind() != tx.KindProvided {
		return ErrNotProvided
	}
	if err := t.Verify(); err != nil {
		return errors.Wrap(err, "verifying provided transaction")
	}

	order := t.Order()
	h := t.Hash()

	txn := p.db.Txn()
	defer txn.Discard()

	localQuantity, err := getU32(txn, localProvidedQuantityKey(p.genesis, order))
	if err != nil {
		return err
	}
	onChainQuantity, err := getU32(txn, onChainProvidedQuantityKey(p.genesis, order))
	if err != nil {
		return err
	}

	// the chain got here first, so this is only catching up
	if localQuantity < onChainQuantity {
		onChain, err := txn.Get(onChainProvidedKey(p.genesis, order, localQuantity))
		if err != nil {
			return errors.Wrap(err, "reading on chain provided transaction")
		}
		if string(onChain) != string(h[:]) {
			return ErrLocalMismatchesOnChain
		}

		if err := txn.Set(localProvidedQuantityKey(p.genesis, order), u32Bytes(localQuantity+1)); err != nil {
			return err
		}
		return txn.Commit()
	}

	current, err := getHashList(txn, currentProvidedKey(p.genesis))
	if err != nil {
		return err
	}
	for _, c := range current {
		if c == h {
			return ErrAlreadyProvided
		}
	}
	if _, err := txn.Get(providedIncludedKey(p.genesis, h)); err == nil {
		return ErrAlreadyProvided
	} else if err != storage.ErrNotFound {
		return err
	}

	d, err := EncodeTx(t)
	if err != nil {
		return errors.Wrap(err, "encoding provided transaction")
	}

	if err := txn.Set(localProvidedQuantityKey(p.genesis, order), u32Bytes(localQuantity+1)); err != nil {
		return err
	}
	if err := txn.Set(providedTxKey(p.genesis, h), d); err != nil {
		return err
	}
	if err := txn.Set(currentProvidedKey(p.genesis), encodeHashList(append(current, h))); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return errors.Wrap(err, "committing provided transaction")
	}

	p.push(t)
	return nil
}

// All returns local provided txs not yet on chain, grouped by order.
func (p *ProvidedTransactions) All() []tx.Transaction {
	var all []tx.Transaction
	for _, o := range p.orders {
		all = append(all, p.transactions[o]...)
	}
	return all
}

func (p *ProvidedTransactions) byOrder() map[string][]tx.Transaction {
	m := make(map[string][]tx.Transaction, len(p.transactions))
	for o, txs := range p.transactions {
		m[o] = append([]tx.Transaction(nil), txs...)
	}
	return m
}

// complete records a provided tx as included in block. fromLocal txs are
// dropped from the persisted queue; the caller pops them from memory once
// txn commits.
func (p *ProvidedTransactions) complete(txn storage.Txn, order []byte, block [32]byte, h [32]byte, fromLocal bool) error {
	onChainQuantity, err := getU32(txn, onChainProvidedQuantityKey(p.genesis, order))
	if err != nil {
		return err
	}

	if err := txn.Set(onChainProvidedKey(p.genesis, order, onChainQuantity), h[:]); err != nil {
		return err
	}
	onChainQuantity++
	if err := txn.Set(onChainProvidedQuantityKey(p.genesis, order), u32Bytes(onChainQuantity)); err != nil {
		return err
	}
	if err := txn.Set(blockProvidedQuantityKey(p.genesis, block, order), u32Bytes(onChainQuantity)); err != nil {
		return err
	}

	if !fromLocal {
		return nil
	}

	current, err := getHashList(txn, currentProvidedKey(p.genesis))
	if err != nil {
		return err
	}
	for i, c := range current {
		if c == h {
			current = append(current[:i], current[i+1:]...)
			break
		}
	}
	if err := txn.Set(currentProvidedKey(p.genesis), encodeHashList(current)); err != nil {
		return err
	}
	if err := txn.Delete(providedTxKey(p.genesis, h)); err != nil {
		return err
	}

	return nil
}

func (p *ProvidedTransactions) pop(order []byte) {
	o := string(order)
	queue := p.transactions[o]
	if len(queue) == 0 {
		return
	}

	p.transactions[o] = queue[1:]
	if len(p.transactions[o]) != 0 {
		return
	}

	delete(p.transactions, o)
	for i, v := range p.orders {
		if v == o {
			p.orders = append(p.orders[:i], p.orders[i+1:]...)
			break
		}
	}
}

// LocallyProvidedTxsInBlock reports if every provided tx of order included
// up to and including block was also derived locally.
func (p *ProvidedTransactions) LocallyProvidedTxsInBlock(block [32]byte, order []byte) (bool, error) {
	local, err := getU32(p.db, localProvidedQuantityKey(p.genesis, order))
	if err != nil {
		return false, err
	}

	d, err := p.db.Get(blockProvidedQuantityKey(p.genesis, block, order))
	if err == storage.ErrNotFound {
		return true, nil
	} else if err != nil {
		return false, err
	}

	return local >= binary.LittleEndian.Uint32(d), nil
}

func getU32(g storage.Getter, key []byte) (uint32, error) {
	d, err := g.Get(key)
	if err == storage.ErrNotFound {
		return 0, nil
	} else if err != nil {
		return 0, errors.Wrap(err, "reading counter")
	}
	if len(d) != 4 {
		return 0, errors.New("malformed counter")
	}
	return binary.LittleEndian.Uint32(d), nil
}

func getHashList(g storage.Getter, key []byte) ([][32]byte, error) {
	d, err := g.Get(key)
	if err == storage.ErrNotFound {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	if len(d)%32 != 0 {
		return nil, errors.New("malformed hash list")
	}

	hs := make([][32]byte, len(d)/32)
	for i := range hs {
		copy(hs[i][:], d[i*32:])
	}
	return hs, nil
}

func encodeHashList(hs [][32]byte) []byte {
	d := make([]byte, 0, len(hs)*32)
	for _, h := range hs {
		d = append(d, h[:]...)
	}
	return d
}
