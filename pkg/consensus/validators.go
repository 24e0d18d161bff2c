package consensus

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20"

	"github.com/tcfw/tributary/pkg/cryptography"
)

var (
	ErrZeroWeight         = errors.New("validator has zero weight")
	ErrDuplicateValidator = errors.New("duplicate validator")
	ErrNoValidators       = errors.New("no validators")
)

type PublicKey = cryptography.PublicKey
type Signature = cryptography.Signature

type Validator struct {
	Key    PublicKey
	Weight uint64
}

// Weights is the weighted leader election capability.
type Weights interface {
	TotalWeight() uint64
	Weight(v PublicKey) uint64
	Proposer(block uint64, round uint32) PublicKey
}

// Threshold is the minimum weight for a quorum.
func Threshold(w Weights) uint64 {
	return ((w.TotalWeight() * 2) / 3) + 1
}

// FaultThreshold is the weight at which quorum can no longer be reached.
func FaultThreshold(w Weights) uint64 {
	return w.TotalWeight() - Threshold(w) + 1
}

// Validators is the fixed, weighted validator set of a single tributary.
type Validators struct {
	genesis     [32]byte
	totalWeight uint64
	weights     map[PublicKey]uint64
	keys        []PublicKey
	robin       []PublicKey
}

var (
	_ Weights         = (*Validators)(nil)
	_ SignatureScheme = (*Validators)(nil)
)

func NewValidators(genesis [32]byte, validators []Validator) (*Validators, error) {
	if len(validators) == 0 {
		return nil, ErrNoValidators
	}

	v := &Validators{
		genesis: genesis,
		weights: make(map[PublicKey]uint64, len(validators)),
	}

	seed, err := blake2b.New256(genesis[:])
	if err != nil {
		return nil, errors.Wrap(err, "keying robin seed")
	}

	var weight [8]byte
	for _, val := range validators {
		if val.Weight == 0 {
			return nil, errors.Wrap(ErrZeroWeight, val.Key.String())
		}
		if _, ok := v.weights[val.Key]; ok {
			return nil, errors.Wrap(ErrDuplicateValidator, val.Key.String())
		}
		if _, err := val.Key.Point(); err != nil {
			return nil, errors.Wrapf(err, "validator %s", val.Key)
		}

		v.weights[val.Key] = val.Weight
		v.totalWeight += val.Weight
		v.keys = append(v.keys, val.Key)

		binary.LittleEndian.PutUint64(weight[:], val.Weight)
		seed.Write(val.Key[:])
		seed.Write(weight[:])

		for i := uint64(0); i < val.Weight; i++ {
			v.robin = append(v.robin, val.Key)
		}
	}

	prg, err := newPRG(seed.Sum(nil))
	if err != nil {
		return nil, errors.Wrap(err, "seeding robin shuffle")
	}
	prg.Shuffle(len(v.robin), func(i, j int) {
		v.robin[i], v.robin[j] = v.robin[j], v.robin[i]
	})

	return v, nil
}

func (v *Validators) Genesis() [32]byte {
	return v.genesis
}

func (v *Validators) TotalWeight() uint64 {
	return v.totalWeight
}

// Weight is zero for non-validators.
func (v *Validators) Weight(val PublicKey) uint64 {
	return v.weights[val]
}

func (v *Validators) Contains(val PublicKey) bool {
	_, ok := v.weights[val]
	return ok
}

// Keys returns the validators in their original order.
func (v *Validators) Keys() []PublicKey {
	return append([]PublicKey(nil), v.keys...)
}

func (v *Validators) Threshold() uint64 {
	return Threshold(v)
}

func (v *Validators) FaultThreshold() uint64 {
	return FaultThreshold(v)
}

// Proposer jumps halfway around the robin on any round after the first so
// the same index isn't reused in quick succession.
func (v *Validators) Proposer(block uint64, round uint32) PublicKey {
	n := uint64(len(v.robin))
	idx := block
	if round != 0 {
		idx += uint64(round) + n/2
	}
	return v.robin[idx%n]
}

// prg is a chacha20 keystream used as a deterministic random source.
type prg struct {
	c *chacha20.Cipher
}

func newPRG(seed []byte) (*prg, error) {
	c, err := chacha20.NewUnauthenticatedCipher(seed, make([]byte, chacha20.NonceSize))
	if err != nil {
		return nil, err
	}
	return &prg{c: c}, nil
}

func (p *prg) Read(b []byte) {
	for i := range b {
		b[i] = 0
	}
	p.c.XORKeyStream(b, b)
}

func (p *prg) UintN(n uint64) uint64 {
	b := make([]byte, 8)
	p.Read(b)
	return binary.LittleEndian.Uint64(b) % n
}

func (p *prg) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := p.UintN(uint64(i + 1))
		swap(i, int(j))
	}
}
