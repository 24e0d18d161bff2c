package consensus

import (
	"github.com/pkg/errors"

	"github.com/tcfw/tributary/pkg/tx"
)

// CommitLookup returns the commit for an on chain block, or nil.
type CommitLookup func(block uint64) *Commit

// EvidenceParams is what's needed to judge evidence against the chain.
type EvidenceParams struct {
	Scheme  SignatureScheme
	Commits CommitLookup
	Timing  Timing
	// StartTime is the session start, used for the first block's rounds.
	StartTime uint64
}

// VerifyTendermintTx checks t proves misbehaviour, or for a vote, that it is
// a validly signed vote by a validator.
func VerifyTendermintTx(t *TendermintTx, p EvidenceParams) error {
	if err := t.Verify(); err != nil {
		return err
	}

	if t.Type == TendermintSlashVote {
		if !p.Scheme.Verify(t.Vote.Signer, t.Vote.Msg(), t.Vote.Sig) {
			return tx.ErrInvalidSignature
		}
		return nil
	}

	msgs := make([]*SignedMessage, 0, len(t.Evidence))
	for _, e := range t.Evidence {
		m, err := UnmarshalSignedMessage(e)
		if err != nil {
			return errors.Wrap(tx.ErrInvalidContent, err.Error())
		}
		if !m.VerifySignature(p.Scheme) {
			return tx.ErrInvalidSignature
		}
		msgs = append(msgs, m)
	}

	if len(msgs) == 1 {
		return verifySingleEvidence(msgs[0], p)
	}
	return verifyConflictingEvidence(msgs[0], msgs[1])
}

// A single message is faulty if it's a proposal claiming a valid round which
// isn't prior to its own round, or a precommit whose commit signature
// doesn't verify.
func verifySingleEvidence(m *SignedMessage, p EvidenceParams) error {
	switch m.Msg.Data.Step {
	case StepPropose:
		vr := m.Msg.Data.ValidRound
		if vr != nil && *vr >= m.Msg.Round {
			return nil
		}
		return tx.ErrInvalidContent

	case StepPrecommit:
		pc := m.Msg.Data.Precommit
		if pc == nil {
			return tx.ErrInvalidContent
		}

		if m.Msg.Block == 0 {
			return tx.ErrInvalidContent
		}
		start := p.StartTime
		if prior := m.Msg.Block - 1; prior != 0 {
			c := p.Commits(prior)
			if c == nil {
				return errors.Wrap(tx.ErrInvalidContent, "precommit for unknown block")
			}
			start = c.EndTime
		}

		end, ok := p.Timing.EndTimeThrough(start, m.Msg.Round)
		if !ok {
			return errors.Wrap(tx.ErrInvalidContent, "precommit round out of range")
		}
		if p.Scheme.Verify(m.Msg.Sender, CommitMsg(end, pc.ID[:]), pc.Sig) {
			return tx.ErrInvalidContent
		}
		return nil
	}

	// Prevotes alone can't be faulty
	return tx.ErrInvalidContent
}

// Two messages are conflicting if the same sender signed different data for
// the same step of the same round.
func verifyConflictingEvidence(a, b *SignedMessage) error {
	if a.Msg.Block != b.Msg.Block || a.Msg.Sender != b.Msg.Sender {
		return tx.ErrInvalidContent
	}
	if a.Msg.Round != b.Msg.Round || a.Msg.Data.Step != b.Msg.Data.Step {
		return tx.ErrInvalidContent
	}

	if a.Msg.Data.Step == StepPrecommit {
		pa, pb := a.Msg.Data.Precommit, b.Msg.Data.Precommit
		// Re-signing the same precommit at a different end time isn't faulty
		if pa != nil && pb != nil && pa.ID == pb.ID {
			return tx.ErrInvalidContent
		}
	}

	if a.Msg.Data.Equal(b.Msg.Data) {
		return tx.ErrInvalidContent
	}
	return nil
}
