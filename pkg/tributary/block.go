package tributary

import (
	"bytes"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2s"

	"github.com/tcfw/tributary/internal/utils/wire"
	"github.com/tcfw/tributary/pkg/consensus"
	"github.com/tcfw/tributary/pkg/tx"
)

const (
	// BlockSizeLimit leaves room for the header and framing around a
	// maximally sized transaction.
	BlockSizeLimit = tx.TransactionSizeLimit + 1000

	blockDomain = "tributary_block"
)

type BlockHeader struct {
	Parent [32]byte
	// Transactions is the merkle root of the transaction hashes.
	Transactions [32]byte
}

func (h BlockHeader) Hash() [32]byte {
	return blake2s.Sum256(bytes.Join([][]byte{[]byte(blockDomain), h.Parent[:], h.Transactions[:]}, nil))
}

type Block struct {
	Header       BlockHeader
	Transactions []tx.Transaction
}

// NewBlock orders txs as provided first, then unsigned and then signed,
// keeping the relative order within each kind.
func NewBlock(parent [32]byte, provided []tx.Transaction, txs []tx.Transaction) *Block {
	all := make([]tx.Transaction, 0, len(provided)+len(txs))
	all = append(all, provided...)

	for _, rank := range []int{1, 2} {
		for _, t := range txs {
			if txOrderRank(t.Kind()) == rank {
				all = append(all, t)
			}
		}
	}

	hashes := make([][32]byte, 0, len(all))
	for _, t := range all {
		hashes = append(hashes, t.Hash())
	}

	return &Block{
		Header:       BlockHeader{Parent: parent, Transactions: merkle(hashes)},
		Transactions: all,
	}
}

func (b *Block) Hash() [32]byte {
	return b.Header.Hash()
}

func (b *Block) Parent() [32]byte {
	return b.Header.Parent
}

func (b *Block) Serialize() ([]byte, error) {
	w := &wire.Writer{}
	if err := b.write(w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func (b *Block) write(w *wire.Writer) error {
	w.Fixed(b.Header.Parent[:])
	w.Fixed(b.Header.Transactions[:])
	w.U32(uint32(len(b.Transactions)))
	for i, t := range b.Transactions {
		if err := writeTx(w, t); err != nil {
			return errors.Wrapf(err, "encoding transaction %d", i)
		}
	}
	return nil
}

// ReadBlock decodes a block from r, leaving anything after it unread.
func ReadBlock(r *wire.Reader, readApp TxReader) (*Block, error) {
	if readApp == nil {
		readApp = tx.ReadTx
	}

	b := &Block{}
	if err := r.Fixed(b.Header.Parent[:]); err != nil {
		return nil, errors.Wrap(err, "reading parent")
	}
	if err := r.Fixed(b.Header.Transactions[:]); err != nil {
		return nil, errors.Wrap(err, "reading transactions root")
	}

	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	// every transaction takes at least two bytes
	if int(n) > r.Len()/2 {
		return nil, errors.Errorf("block claims %d transactions", n)
	}

	b.Transactions = make([]tx.Transaction, 0, n)
	for i := uint32(0); i < n; i++ {
		t, err := readTx(r, readApp)
		if err != nil {
			return nil, errors.Wrapf(err, "reading transaction %d", i)
		}
		b.Transactions = append(b.Transactions, t)
	}

	return b, nil
}

func UnmarshalBlock(d []byte, readApp TxReader) (*Block, error) {
	r := wire.NewReader(d)
	b, err := ReadBlock(r, readApp)
	if err != nil {
		return nil, err
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return b, nil
}

// blockVerifier holds what's needed to check a block's transactions
// against the state it would be applied on.
type blockVerifier struct {
	genesis [32]byte
	tip     [32]byte

	// locallyProvided is the queue of local provided txs not yet on chain,
	// per order. It's consumed during verification.
	locallyProvided map[string][]tx.Transaction

	nonces   tx.NonceOracle
	evidence consensus.EvidenceParams

	// included reports provided or unsigned txs already on chain
	included func(hash [32]byte) bool

	allowNonLocalProvided bool
}

func (b *Block) verify(v *blockVerifier) error {
	d, err := b.Serialize()
	if err != nil {
		return &BlockError{Kind: BlockErrMalformed, Cause: err}
	}
	if len(d) > BlockSizeLimit {
		return blockErr(BlockErrTooLargeBlock)
	}

	if b.Header.Parent != v.tip {
		return blockErr(BlockErrInvalidParent)
	}

	lastRank := 0
	seen := make(map[[32]byte]struct{}, len(b.Transactions))
	hashes := make([][32]byte, 0, len(b.Transactions))

	for _, t := range b.Transactions {
		h := t.Hash()
		hashes = append(hashes, h)

		rank := txOrderRank(t.Kind())
		if rank < lastRank {
			return blockErr(BlockErrWrongTransactionOrder)
		}
		lastRank = rank

		switch t.Kind() {
		case tx.KindProvided:
			if err := v.verifyProvided(t, h, seen); err != nil {
				return err
			}
			// provided txs are checked against local state, not verified
			continue

		case tx.KindUnsigned:
			if _, ok := seen[h]; ok || v.included(h) {
				return blockErr(BlockErrUnsignedAlreadyIncluded)
			}
			seen[h] = struct{}{}
		}

		if tt, ok := t.(*consensus.TendermintTx); ok {
			if err := consensus.VerifyTendermintTx(tt, v.evidence); err != nil {
				return txBlockErr(err)
			}
			continue
		}

		if err := tx.VerifyTransaction(t, v.genesis, v.nonces); err != nil {
			return txBlockErr(err)
		}
	}

	if merkle(hashes) != b.Header.Transactions {
		return blockErr(BlockErrInvalidTransactions)
	}

	return nil
}

func (v *blockVerifier) verifyProvided(t tx.Transaction, h [32]byte, seen map[[32]byte]struct{}) error {
	if _, ok := seen[h]; ok || v.included(h) {
		return blockErr(BlockErrProvidedAlreadyIncluded)
	}
	seen[h] = struct{}{}

	order := string(t.Order())
	queue := v.locallyProvided[order]
	if len(queue) == 0 {
		if v.allowNonLocalProvided {
			return nil
		}
		return &BlockError{Kind: BlockErrNonLocalProvided, Hash: h}
	}

	local := queue[0]
	v.locallyProvided[order] = queue[1:]
	if local.Hash() != h {
		return &BlockError{Kind: BlockErrDistinctProvided, Hash: h}
	}
	return nil
}
