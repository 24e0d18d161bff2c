package consensus

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

type Step uint8

const (
	StepPropose Step = iota
	StepPrevote
	StepPrecommit
)

func (s Step) String() string {
	switch s {
	case StepPropose:
		return "propose"
	case StepPrevote:
		return "prevote"
	case StepPrecommit:
		return "precommit"
	default:
		return "unknown"
	}
}

// PrecommitVote is a precommit for a block along with the signature
// committing to it as of the round's end time.
type PrecommitVote struct {
	ID  [32]byte  `msgpack:"id"`
	Sig Signature `msgpack:"s"`
}

// Data is the step specific content of a message. Only the fields relevant
// to Step are set.
type Data struct {
	Step Step `msgpack:"t"`

	// Proposal
	ValidRound *uint32 `msgpack:"vr,omitempty"`
	Block      []byte  `msgpack:"b,omitempty"`

	// Prevote
	ID *[32]byte `msgpack:"id,omitempty"`

	// Precommit
	Precommit *PrecommitVote `msgpack:"pc,omitempty"`
}

func Proposal(validRound *uint32, block []byte) Data {
	return Data{Step: StepPropose, ValidRound: validRound, Block: block}
}

func Prevote(id *[32]byte) Data {
	return Data{Step: StepPrevote, ID: id}
}

func Precommit(vote *PrecommitVote) Data {
	return Data{Step: StepPrecommit, Precommit: vote}
}

// Equal compares the data of two messages of the same step.
func (d Data) Equal(o Data) bool {
	if d.Step != o.Step {
		return false
	}

	switch d.Step {
	case StepPropose:
		if (d.ValidRound == nil) != (o.ValidRound == nil) {
			return false
		}
		if d.ValidRound != nil && *d.ValidRound != *o.ValidRound {
			return false
		}
		return bytes.Equal(d.Block, o.Block)
	case StepPrevote:
		if (d.ID == nil) != (o.ID == nil) {
			return false
		}
		return d.ID == nil || *d.ID == *o.ID
	case StepPrecommit:
		if (d.Precommit == nil) != (o.Precommit == nil) {
			return false
		}
		return d.Precommit == nil || *d.Precommit == *o.Precommit
	}

	return false
}

type Message struct {
	Sender PublicKey `msgpack:"sn"`
	Block  uint64    `msgpack:"h"`
	Round  uint32    `msgpack:"r"`
	Data   Data      `msgpack:"d"`
}

func (m *Message) Marshal() ([]byte, error) {
	return msgpack.Marshal(m)
}

type SignedMessage struct {
	Msg Message   `msgpack:"m"`
	Sig Signature `msgpack:"s"`
}

// SignMessage signs msg as the local validator.
func SignMessage(s *Signer, msg Message) (*SignedMessage, error) {
	msg.Sender = s.ValidatorID()
	b, err := msg.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "marshaling message")
	}
	return &SignedMessage{Msg: msg, Sig: s.Sign(b)}, nil
}

func (sm *SignedMessage) Marshal() ([]byte, error) {
	return msgpack.Marshal(sm)
}

func UnmarshalSignedMessage(b []byte) (*SignedMessage, error) {
	sm := &SignedMessage{}
	if err := msgpack.Unmarshal(b, sm); err != nil {
		return nil, errors.Wrap(err, "unmarshaling signed message")
	}
	return sm, nil
}

func (sm *SignedMessage) VerifySignature(scheme SignatureScheme) bool {
	b, err := sm.Msg.Marshal()
	if err != nil {
		return false
	}
	return scheme.Verify(sm.Msg.Sender, b, sm.Sig)
}
