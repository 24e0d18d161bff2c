package consensus

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcfw/tributary/pkg/tx"
)

type evidenceFixture struct {
	v       *Validators
	signers []*Signer
	params  EvidenceParams
}

func newEvidenceFixture(t *testing.T) *evidenceFixture {
	genesis := [32]byte{0xee}
	keys := testKeys(4)
	v := testValidators(t, genesis, keys)

	f := &evidenceFixture{v: v}
	for _, k := range keys {
		f.signers = append(f.signers, NewSigner(genesis, k))
	}
	f.params = EvidenceParams{
		Scheme:    v,
		Timing:    DefaultTiming,
		StartTime: 1000,
		Commits: func(block uint64) *Commit {
			if block == 1 {
				return &Commit{EndTime: 2000}
			}
			return nil
		},
	}
	return f
}

func (f *evidenceFixture) sign(t *testing.T, s *Signer, block uint64, round uint32, d Data) *SignedMessage {
	m, err := SignMessage(s, Message{Block: block, Round: round, Data: d})
	require.NoError(t, err)
	return m
}

func (f *evidenceFixture) evidence(t *testing.T, msgs ...*SignedMessage) *TendermintTx {
	e, err := NewSlashEvidence(msgs...)
	require.NoError(t, err)

	// always via the wire
	b, err := e.Serialize()
	require.NoError(t, err)
	e, err = UnmarshalTendermintTx(b)
	require.NoError(t, err)
	return e
}

func TestEvidenceInvalidValidRound(t *testing.T) {
	f := newEvidenceFixture(t)
	s := f.signers[0]

	vr := uint32(2)
	bad := f.sign(t, s, 1, 2, Proposal(&vr, []byte("block")))
	assert.NoError(t, VerifyTendermintTx(f.evidence(t, bad), f.params))

	vr = 1
	ok := f.sign(t, s, 1, 2, Proposal(&vr, []byte("block")))
	assert.ErrorIs(t, VerifyTendermintTx(f.evidence(t, ok), f.params), tx.ErrInvalidContent)

	none := f.sign(t, s, 1, 0, Proposal(nil, []byte("block")))
	assert.ErrorIs(t, VerifyTendermintTx(f.evidence(t, none), f.params), tx.ErrInvalidContent)
}

func TestEvidenceInvalidPrecommitSignature(t *testing.T) {
	f := newEvidenceFixture(t)
	s := f.signers[1]
	id := [32]byte{9}

	// block 1 starts from the session start time
	end, ok := f.params.Timing.EndTimeThrough(1000, 0)
	require.True(t, ok)
	valid := f.sign(t, s, 1, 0, Precommit(&PrecommitVote{ID: id, Sig: s.Sign(CommitMsg(end, id[:]))}))
	assert.ErrorIs(t, VerifyTendermintTx(f.evidence(t, valid), f.params), tx.ErrInvalidContent)

	invalid := f.sign(t, s, 1, 0, Precommit(&PrecommitVote{ID: id, Sig: s.Sign(CommitMsg(end+1, id[:]))}))
	assert.NoError(t, VerifyTendermintTx(f.evidence(t, invalid), f.params))

	// block 2 starts from block 1's commit
	end, ok = f.params.Timing.EndTimeThrough(2000, 1)
	require.True(t, ok)
	valid = f.sign(t, s, 2, 1, Precommit(&PrecommitVote{ID: id, Sig: s.Sign(CommitMsg(end, id[:]))}))
	assert.ErrorIs(t, VerifyTendermintTx(f.evidence(t, valid), f.params), tx.ErrInvalidContent)

	// unknown prior block
	unknown := f.sign(t, s, 5, 0, Precommit(&PrecommitVote{ID: id}))
	assert.ErrorIs(t, VerifyTendermintTx(f.evidence(t, unknown), f.params), tx.ErrInvalidContent)
}

func TestEvidenceExtremeRoundsAndBlocks(t *testing.T) {
	f := newEvidenceFixture(t)
	s := f.signers[1]
	id := [32]byte{1}
	vr := uint32(math.MaxUint32)
	a, b := [32]byte{1}, [32]byte{2}

	cases := []struct {
		name  string
		ev    *TendermintTx
		valid bool
	}{
		{"max round precommit", f.evidence(t, f.sign(t, s, 2, math.MaxUint32, Precommit(&PrecommitVote{ID: id}))), false},
		{"round past bound", f.evidence(t, f.sign(t, s, 1, MaxRound+1, Precommit(&PrecommitVote{ID: id}))), false},
		{"block far past tip", f.evidence(t, f.sign(t, s, math.MaxUint64, 0, Precommit(&PrecommitVote{ID: id}))), false},
		{"max round proposal", f.evidence(t, f.sign(t, s, math.MaxUint64, math.MaxUint32, Proposal(&vr, []byte("block")))), true},
		{"max round conflict", f.evidence(t,
			f.sign(t, s, math.MaxUint64, math.MaxUint32, Prevote(&a)),
			f.sign(t, s, math.MaxUint64, math.MaxUint32, Prevote(&b)),
		), true},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			errCh := make(chan error, 1)
			go func() { errCh <- VerifyTendermintTx(c.ev, f.params) }()

			select {
			case err := <-errCh:
				if c.valid {
					assert.NoError(t, err)
				} else {
					assert.ErrorIs(t, err, tx.ErrInvalidContent)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("evidence verification didn't return")
			}
		})
	}
}

func TestEvidenceSinglePrevoteRejected(t *testing.T) {
	f := newEvidenceFixture(t)
	id := [32]byte{1}
	m := f.sign(t, f.signers[0], 1, 0, Prevote(&id))
	assert.ErrorIs(t, VerifyTendermintTx(f.evidence(t, m), f.params), tx.ErrInvalidContent)

	m = f.sign(t, f.signers[0], 1, 0, Precommit(nil))
	assert.ErrorIs(t, VerifyTendermintTx(f.evidence(t, m), f.params), tx.ErrInvalidContent)
}

func TestEvidenceConflicting(t *testing.T) {
	f := newEvidenceFixture(t)
	s := f.signers[2]
	a, b := [32]byte{1}, [32]byte{2}

	pa := f.sign(t, s, 3, 1, Prevote(&a))
	pb := f.sign(t, s, 3, 1, Prevote(&b))
	assert.NoError(t, VerifyTendermintTx(f.evidence(t, pa, pb), f.params))

	// identical data
	assert.ErrorIs(t, VerifyTendermintTx(f.evidence(t, pa, pa), f.params), tx.ErrInvalidContent)

	// different rounds
	pc := f.sign(t, s, 3, 2, Prevote(&b))
	assert.ErrorIs(t, VerifyTendermintTx(f.evidence(t, pa, pc), f.params), tx.ErrInvalidContent)

	// different senders
	other := f.sign(t, f.signers[3], 3, 1, Prevote(&b))
	assert.ErrorIs(t, VerifyTendermintTx(f.evidence(t, pa, other), f.params), tx.ErrInvalidContent)

	// precommits for the same block with different signatures
	ca := f.sign(t, s, 3, 1, Precommit(&PrecommitVote{ID: a, Sig: s.Sign([]byte("x"))}))
	cb := f.sign(t, s, 3, 1, Precommit(&PrecommitVote{ID: a, Sig: s.Sign([]byte("y"))}))
	assert.ErrorIs(t, VerifyTendermintTx(f.evidence(t, ca, cb), f.params), tx.ErrInvalidContent)

	cc := f.sign(t, s, 3, 1, Precommit(&PrecommitVote{ID: b, Sig: s.Sign([]byte("y"))}))
	assert.NoError(t, VerifyTendermintTx(f.evidence(t, ca, cc), f.params))
}

func TestEvidenceBadSignature(t *testing.T) {
	f := newEvidenceFixture(t)
	vr := uint32(5)
	m := f.sign(t, f.signers[0], 1, 1, Proposal(&vr, nil))
	m.Sig[40] ^= 1
	assert.ErrorIs(t, VerifyTendermintTx(f.evidence(t, m), f.params), tx.ErrInvalidSignature)
}

func TestSlashVote(t *testing.T) {
	f := newEvidenceFixture(t)
	target := f.signers[3].ValidatorID()

	v := NewSlashVote(f.signers[0], [32]byte{4}, target)
	b, err := v.Serialize()
	require.NoError(t, err)

	v2, err := UnmarshalTendermintTx(b)
	require.NoError(t, err)
	assert.Equal(t, v.Hash(), v2.Hash())
	assert.NoError(t, VerifyTendermintTx(v2, f.params))

	// the hash doesn't commit to the signature
	v3 := NewSlashVote(f.signers[0], [32]byte{4}, target)
	assert.Equal(t, v.Hash(), v3.Hash())

	v2.Vote.Target = f.signers[2].ValidatorID()
	assert.ErrorIs(t, VerifyTendermintTx(v2, f.params), tx.ErrInvalidSignature)
}

func TestSlashEvidenceCount(t *testing.T) {
	_, err := NewSlashEvidence()
	assert.Error(t, err)

	_, err = UnmarshalTendermintTx([]byte{byte(TendermintSlashEvidence), 3})
	assert.Error(t, err)
}
