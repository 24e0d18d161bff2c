package tributary

import (
	"github.com/pkg/errors"

	"github.com/tcfw/tributary/internal/utils/wire"
	"github.com/tcfw/tributary/pkg/consensus"
	"github.com/tcfw/tributary/pkg/tx"
)

const (
	tendermintTxTag  = consensus.TendermintEnvelopeTag
	applicationTxTag = tx.EnvelopeTag
)

// TxReader decodes an application transaction.
type TxReader func(r *wire.Reader) (tx.Transaction, error)

func writeTx(w *wire.Writer, t tx.Transaction) error {
	b, err := t.Serialize()
	if err != nil {
		return err
	}

	if _, ok := t.(*consensus.TendermintTx); ok {
		w.U8(tendermintTxTag)
	} else {
		w.U8(applicationTxTag)
	}
	w.Fixed(b)
	return nil
}

func readTx(r *wire.Reader, readApp TxReader) (tx.Transaction, error) {
	tag, err := r.U8()
	if err != nil {
		return nil, err
	}

	switch tag {
	case tendermintTxTag:
		return consensus.ReadTendermintTx(r)
	case applicationTxTag:
		return readApp(r)
	}
	return nil, errors.Errorf("unknown transaction tag %d", tag)
}

// EncodeTx prefixes t with whether it's a consensus or application
// transaction, as used in blocks and gossip.
func EncodeTx(t tx.Transaction) ([]byte, error) {
	w := &wire.Writer{}
	if err := writeTx(w, t); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func DecodeTx(b []byte, readApp TxReader) (tx.Transaction, error) {
	if readApp == nil {
		readApp = tx.ReadTx
	}

	r := wire.NewReader(b)
	t, err := readTx(r, readApp)
	if err != nil {
		return nil, err
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return t, nil
}

func txOrderRank(k tx.Kind) int {
	switch k {
	case tx.KindProvided:
		return 0
	case tx.KindUnsigned:
		return 1
	default:
		return 2
	}
}
