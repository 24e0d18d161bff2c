package tributary

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tcfw/tributary/pkg/consensus"
	"github.com/tcfw/tributary/pkg/cryptography"
	"github.com/tcfw/tributary/pkg/storage"
	"github.com/tcfw/tributary/pkg/tx"
)

const testStartTime = 1000

var testOrder = []byte("order")

type testEnv struct {
	genesis [32]byte
	keys    []*cryptography.PrivateKey
	signers []*consensus.Signer
	vals    *consensus.Validators
}

func newTestEnv(t *testing.T) *testEnv {
	e := &testEnv{genesis: [32]byte{0x7a, 0x11}}

	var vals []consensus.Validator
	for i := 0; i < 4; i++ {
		k := cryptography.NewPrivateKey()
		e.keys = append(e.keys, k)
		e.signers = append(e.signers, consensus.NewSigner(e.genesis, k))
		vals = append(vals, consensus.Validator{Key: k.Public(), Weight: 1})
	}

	v, err := consensus.NewValidators(e.genesis, vals)
	require.NoError(t, err)
	e.vals = v

	return e
}

func (e *testEnv) validators() []consensus.Validator {
	vals := make([]consensus.Validator, 0, len(e.keys))
	for _, k := range e.keys {
		vals = append(vals, consensus.Validator{Key: k.Public(), Weight: 1})
	}
	return vals
}

func (e *testEnv) chain(t *testing.T, db storage.DB, opts ...Option) *Blockchain {
	opts = append([]Option{WithStartTime(testStartTime)}, opts...)
	b, err := NewBlockchain(db, e.genesis, e.vals.Keys(), opts...)
	require.NoError(t, err)
	return b
}

func (e *testEnv) signedTx(key int, nonce uint32, payload string) *tx.Tx {
	s := tx.NewSigned(testOrder, nonce, []byte(payload))
	s.Sign(e.genesis, e.keys[key])
	return s
}

// commitFor has the first n validators sign off on id.
func (e *testEnv) commitFor(t *testing.T, id [32]byte, n int) *consensus.Commit {
	const end = 2000
	msg := consensus.CommitMsg(end, id[:])

	var (
		keys []consensus.PublicKey
		sigs []consensus.Signature
	)
	for _, s := range e.signers[:n] {
		keys = append(keys, s.ValidatorID())
		sigs = append(sigs, s.Sign(msg))
	}

	c, err := consensus.NewCommit(e.vals, id, end, keys, sigs)
	require.NoError(t, err)
	return c
}

func (e *testEnv) encodedCommit(t *testing.T, id [32]byte) []byte {
	d, err := e.commitFor(t, id, 3).Marshal()
	require.NoError(t, err)
	return d
}

// addNext builds and adds the next block, returning it.
func (e *testEnv) addNext(t *testing.T, b *Blockchain) *Block {
	blk, err := b.BuildBlock(e.vals)
	require.NoError(t, err)
	require.NoError(t, b.AddBlock(blk, e.encodedCommit(t, blk.Hash()), e.vals))
	return blk
}

type recordingP2P struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (p *recordingP2P) Broadcast(genesis [32]byte, msg []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.msgs = append(p.msgs, append([]byte(nil), msg...))
	return nil
}

func (p *recordingP2P) sent(prefix byte) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out [][]byte
	for _, m := range p.msgs {
		if len(m) != 0 && m[0] == prefix {
			out = append(out, m)
		}
	}
	return out
}

func hashes(txs []tx.Transaction) [][32]byte {
	hs := make([][32]byte, 0, len(txs))
	for _, t := range txs {
		hs = append(hs, t.Hash())
	}
	return hs
}
