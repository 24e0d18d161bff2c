package consensus

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Commit is the finality proof for a block.
type Commit struct {
	// EndTime of the round which produced the commit, used as the start
	// time of the next block.
	EndTime    uint64      `msgpack:"e"`
	Validators []PublicKey `msgpack:"v"`
	Signature  []byte      `msgpack:"s"`
}

func (c *Commit) Marshal() ([]byte, error) {
	b, err := msgpack.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling commit")
	}
	return b, nil
}

func UnmarshalCommit(b []byte) (*Commit, error) {
	c := &Commit{}
	if err := msgpack.Unmarshal(b, c); err != nil {
		return nil, errors.Wrap(err, "unmarshaling commit")
	}
	return c, nil
}

// CommitMsg is the message each validator signs to commit to block id.
func CommitMsg(endTime uint64, id []byte) []byte {
	msg := make([]byte, 8, 8+len(id))
	binary.LittleEndian.PutUint64(msg, endTime)
	return append(msg, id...)
}

// VerifyCommit checks signers are unique, the aggregate signature is valid
// and the signers' weight reaches the threshold.
func VerifyCommit(scheme SignatureScheme, weights Weights, id [32]byte, c *Commit) bool {
	if c == nil || len(c.Validators) == 0 {
		return false
	}

	seen := make(map[PublicKey]struct{}, len(c.Validators))
	for _, v := range c.Validators {
		if _, ok := seen[v]; ok {
			return false
		}
		seen[v] = struct{}{}
	}

	if !scheme.VerifyAggregate(c.Validators, CommitMsg(c.EndTime, id[:]), c.Signature) {
		return false
	}

	var weight uint64
	for _, v := range c.Validators {
		weight += weights.Weight(v)
	}
	return weight >= Threshold(weights)
}

// NewCommit aggregates precommit signatures over (endTime, id).
func NewCommit(scheme SignatureScheme, id [32]byte, endTime uint64, validators []PublicKey, sigs []Signature) (*Commit, error) {
	agg, err := scheme.Aggregate(validators, CommitMsg(endTime, id[:]), sigs)
	if err != nil {
		return nil, errors.Wrap(err, "aggregating commit signatures")
	}

	return &Commit{
		EndTime:    endTime,
		Validators: append([]PublicKey(nil), validators...),
		Signature:  agg,
	}, nil
}
