package consensus

import (
	"bytes"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2s"

	"github.com/tcfw/tributary/internal/utils/wire"
	"github.com/tcfw/tributary/pkg/tx"
)

const slashVoteDomain = "tributary_slash_vote"

// TendermintEnvelopeTag marks consensus txs in blocks and gossip, and
// prefixes their hashes.
const TendermintEnvelopeTag uint8 = 0

type TendermintTxType uint8

const (
	TendermintSlashEvidence TendermintTxType = iota
	TendermintSlashVote
)

// SlashVote is a validator's vote to remove target from consensus.
type SlashVote struct {
	ID     [32]byte
	Target PublicKey
	Signer PublicKey
	Sig    Signature
}

func (v *SlashVote) Msg() []byte {
	return bytes.Join([][]byte{[]byte(slashVoteDomain), v.ID[:], v.Target[:]}, nil)
}

// TendermintTx is a transaction created by the consensus layer itself.
type TendermintTx struct {
	Type TendermintTxType

	// Evidence holds one or two encoded SignedMessages.
	Evidence [][]byte

	Vote *SlashVote
}

var _ tx.Transaction = (*TendermintTx)(nil)

// NewSlashEvidence encodes msgs as evidence of a single faulty message or of
// two conflicting ones.
func NewSlashEvidence(msgs ...*SignedMessage) (*TendermintTx, error) {
	if len(msgs) == 0 || len(msgs) > 2 {
		return nil, errors.Errorf("evidence takes 1 or 2 messages, got %d", len(msgs))
	}

	t := &TendermintTx{Type: TendermintSlashEvidence}
	for _, m := range msgs {
		b, err := m.Marshal()
		if err != nil {
			return nil, errors.Wrap(err, "encoding evidence")
		}
		t.Evidence = append(t.Evidence, b)
	}
	return t, nil
}

// NewSlashVote signs a vote for target as s.
func NewSlashVote(s *Signer, id [32]byte, target PublicKey) *TendermintTx {
	v := &SlashVote{ID: id, Target: target, Signer: s.ValidatorID()}
	v.Sig = s.Sign(v.Msg())
	return &TendermintTx{Type: TendermintSlashVote, Vote: v}
}

func (t *TendermintTx) Kind() tx.Kind {
	return tx.KindUnsigned
}

func (t *TendermintTx) Order() []byte {
	return nil
}

func (t *TendermintTx) Signed() *tx.Signed {
	return nil
}

func (t *TendermintTx) Hash() [32]byte {
	w := &wire.Writer{}
	w.U8(TendermintEnvelopeTag)
	t.encode(w, false)
	return blake2s.Sum256(w.Bytes())
}

// Verify only checks structure. Use VerifyTendermintTx for the consensus
// checks.
func (t *TendermintTx) Verify() error {
	switch t.Type {
	case TendermintSlashEvidence:
		if len(t.Evidence) == 0 || len(t.Evidence) > 2 {
			return tx.ErrInvalidContent
		}
	case TendermintSlashVote:
		if t.Vote == nil {
			return tx.ErrInvalidContent
		}
	default:
		return tx.ErrInvalidContent
	}
	return nil
}

func (t *TendermintTx) Serialize() ([]byte, error) {
	if err := t.Verify(); err != nil {
		return nil, err
	}
	w := &wire.Writer{}
	t.encode(w, true)
	return w.Bytes(), nil
}

func (t *TendermintTx) encode(w *wire.Writer, withSig bool) {
	w.U8(uint8(t.Type))
	switch t.Type {
	case TendermintSlashEvidence:
		w.U8(uint8(len(t.Evidence)))
		for _, e := range t.Evidence {
			w.Var(e)
		}
	case TendermintSlashVote:
		if t.Vote == nil {
			return
		}
		w.Fixed(t.Vote.ID[:])
		w.Fixed(t.Vote.Target[:])
		w.Fixed(t.Vote.Signer[:])
		if withSig {
			w.Fixed(t.Vote.Sig[:])
		}
	}
}

func ReadTendermintTx(r *wire.Reader) (*TendermintTx, error) {
	typ, err := r.U8()
	if err != nil {
		return nil, err
	}

	t := &TendermintTx{Type: TendermintTxType(typ)}
	switch t.Type {
	case TendermintSlashEvidence:
		n, err := r.U8()
		if err != nil {
			return nil, err
		}
		if n == 0 || n > 2 {
			return nil, errors.Errorf("invalid evidence count %d", n)
		}
		for i := uint8(0); i < n; i++ {
			e, err := r.Var()
			if err != nil {
				return nil, errors.Wrap(err, "reading evidence")
			}
			t.Evidence = append(t.Evidence, e)
		}
	case TendermintSlashVote:
		v := &SlashVote{}
		for _, f := range [][]byte{v.ID[:], v.Target[:], v.Signer[:], v.Sig[:]} {
			if err := r.Fixed(f); err != nil {
				return nil, errors.Wrap(err, "reading slash vote")
			}
		}
		t.Vote = v
	default:
		return nil, errors.Errorf("unknown tendermint transaction %d", typ)
	}

	return t, nil
}

func UnmarshalTendermintTx(b []byte) (*TendermintTx, error) {
	r := wire.NewReader(b)
	t, err := ReadTendermintTx(r)
	if err != nil {
		return nil, err
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return t, nil
}
