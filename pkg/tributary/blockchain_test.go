package tributary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcfw/tributary/pkg/consensus"
	"github.com/tcfw/tributary/pkg/cryptography"
	"github.com/tcfw/tributary/pkg/storage"
	"github.com/tcfw/tributary/pkg/tx"
)

func TestBlockchainAddBlock(t *testing.T) {
	e := newTestEnv(t)
	db := storage.NewMemStore()
	b := e.chain(t, db)

	assert.Equal(t, e.genesis, b.Tip())
	assert.Zero(t, b.BlockNumber())

	blk := e.addNext(t, b)
	assert.Equal(t, e.genesis, blk.Parent())
	assert.Equal(t, [32]byte{}, blk.Header.Transactions)

	assert.Equal(t, blk.Hash(), b.Tip())
	assert.Equal(t, uint64(1), b.BlockNumber())

	h, err := b.BlockHash(1)
	require.NoError(t, err)
	assert.Equal(t, blk.Hash(), h)

	after, err := b.BlockAfter(e.genesis)
	require.NoError(t, err)
	assert.Equal(t, blk.Hash(), after)

	c, err := b.CommitByBlockNumber(1)
	require.NoError(t, err)
	commit, err := consensus.UnmarshalCommit(c)
	require.NoError(t, err)
	assert.True(t, consensus.VerifyCommit(e.vals, e.vals, blk.Hash(), commit))

	got, err := b.Block(blk.Hash())
	require.NoError(t, err)
	assert.Equal(t, blk.Hash(), got.Hash())

	// state survives a restart
	b2 := e.chain(t, db)
	assert.Equal(t, blk.Hash(), b2.Tip())
	assert.Equal(t, uint64(1), b2.BlockNumber())

	got, err = b2.Block(blk.Hash())
	require.NoError(t, err)
	assert.Equal(t, blk.Hash(), got.Hash())

	tip, err := TipFromDB(db, e.genesis)
	require.NoError(t, err)
	assert.Equal(t, blk.Hash(), tip)

	_, err = b2.BlockHash(2)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBlockchainIsolatedByGenesis(t *testing.T) {
	e := newTestEnv(t)
	db := storage.NewMemStore()
	b := e.chain(t, db)
	e.addNext(t, b)

	other, err := NewBlockchain(db, [32]byte{0xff}, e.vals.Keys())
	require.NoError(t, err)
	assert.Zero(t, other.BlockNumber())
	assert.Equal(t, [32]byte{0xff}, other.Tip())
}

func TestBlockchainInvalidParent(t *testing.T) {
	e := newTestEnv(t)
	b := e.chain(t, storage.NewMemStore())

	blk := NewBlock([32]byte{9}, nil, nil)
	err := b.AddBlock(blk, e.encodedCommit(t, blk.Hash()), e.vals)
	assert.ErrorIs(t, err, ErrInvalidParent)
	assert.Zero(t, b.BlockNumber())
}

func TestVerifyBlockHasNoEffects(t *testing.T) {
	e := newTestEnv(t)
	b := e.chain(t, storage.NewMemStore())

	blk := NewBlock(e.genesis, nil, []tx.Transaction{e.signedTx(0, 0, "a")})

	require.NoError(t, b.VerifyBlock(blk, e.vals, false))
	require.NoError(t, b.VerifyBlock(blk, e.vals, false))

	next, ok := b.NextNonce(e.keys[0].Public(), testOrder)
	assert.True(t, ok)
	assert.Zero(t, next)
	assert.Equal(t, e.genesis, b.Tip())
}

func TestFailedVerifyBlockHasNoEffects(t *testing.T) {
	e := newTestEnv(t)
	b := e.chain(t, storage.NewMemStore())
	signer := e.keys[0].Public()

	p1 := tx.NewProvided(testOrder, []byte("1"))
	require.NoError(t, b.ProvideTransaction(p1))

	u := tx.NewUnsigned([]byte("u"))
	t0 := e.signedTx(0, 0, "zero")

	forged := e.signedTx(1, 1, "forged")
	forged.Signed().Signer = signer

	tampered := NewBlock(e.genesis, []tx.Transaction{p1}, []tx.Transaction{u, t0})
	tampered.Header.Transactions[0] ^= 1

	cases := []struct {
		name  string
		blk   *Block
		cause error
	}{
		{"nonce gap after a valid nonce", NewBlock(e.genesis, []tx.Transaction{p1}, []tx.Transaction{u, t0, e.signedTx(0, 2, "two")}), tx.ErrInvalidNonce},
		{"bad signature after valid txs", NewBlock(e.genesis, []tx.Transaction{p1}, []tx.Transaction{u, t0, forged}), tx.ErrInvalidSignature},
		{"non local provided", NewBlock(e.genesis, []tx.Transaction{p1, tx.NewProvided(testOrder, []byte("2"))}, []tx.Transaction{u, t0}), ErrNonLocalProvided},
		{"merkle mismatch", tampered, ErrInvalidTransactions},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.ErrorIs(t, b.VerifyBlock(c.blk, e.vals, false), c.cause)

			assert.Equal(t, e.genesis, b.Tip())
			assert.Zero(t, b.BlockNumber())

			next, ok := b.NextNonce(signer, testOrder)
			assert.True(t, ok)
			assert.Zero(t, next)

			assert.Equal(t, [][32]byte{p1.Hash()}, hashes(b.provided.All()))

			// everything the failed block touched still applies
			good := NewBlock(e.genesis, []tx.Transaction{p1}, []tx.Transaction{u, t0})
			require.NoError(t, b.VerifyBlock(good, e.vals, false))
		})
	}

	good := NewBlock(e.genesis, []tx.Transaction{p1}, []tx.Transaction{u, t0})
	require.NoError(t, b.AddBlock(good, e.encodedCommit(t, good.Hash()), e.vals))

	local, err := b.LocallyProvidedTxsInBlock(good.Hash(), testOrder)
	require.NoError(t, err)
	assert.True(t, local)
}

func TestSignedTransactionNonces(t *testing.T) {
	e := newTestEnv(t)
	b := e.chain(t, storage.NewMemStore())
	signer := e.keys[0].Public()

	t0 := e.signedTx(0, 0, "zero")
	t2 := e.signedTx(0, 2, "two")

	added, err := b.AddTransaction(false, t0, e.vals)
	require.NoError(t, err)
	assert.True(t, added)

	// queued ahead of the next nonce
	added, err = b.AddTransaction(false, t2, e.vals)
	require.NoError(t, err)
	assert.True(t, added)

	next, _ := b.NextNonce(signer, testOrder)
	assert.Equal(t, uint32(1), next)

	// only the contiguous run makes it in
	blk := e.addNext(t, b)
	assert.Equal(t, [][32]byte{t0.Hash()}, hashes(blk.Transactions))

	next, _ = b.NextNonce(signer, testOrder)
	assert.Equal(t, uint32(1), next)

	t1 := e.signedTx(0, 1, "one")
	added, err = b.AddTransaction(false, t1, e.vals)
	require.NoError(t, err)
	assert.True(t, added)

	next, _ = b.NextNonce(signer, testOrder)
	assert.Equal(t, uint32(3), next)

	blk = e.addNext(t, b)
	assert.Equal(t, [][32]byte{t1.Hash(), t2.Hash()}, hashes(blk.Transactions))
	assert.Zero(t, b.mempool.Len())

	// stale
	_, err = b.AddTransaction(false, e.signedTx(0, 0, "again"), e.vals)
	assert.ErrorIs(t, err, tx.ErrInvalidNonce)

	// orders are independent
	other := tx.NewSigned([]byte("other"), 0, []byte("x"))
	other.Sign(e.genesis, e.keys[0])
	added, err = b.AddTransaction(false, other, e.vals)
	require.NoError(t, err)
	assert.True(t, added)
}

func TestSignedTransactionRejects(t *testing.T) {
	e := newTestEnv(t)
	b := e.chain(t, storage.NewMemStore())

	outsider := tx.NewSigned(testOrder, 0, []byte("x"))
	outsider.Sign(e.genesis, cryptography.NewPrivateKey())
	_, err := b.AddTransaction(false, outsider, e.vals)
	assert.ErrorIs(t, err, tx.ErrInvalidSigner)

	_, ok := b.NextNonce(outsider.Auth.Signer, testOrder)
	assert.False(t, ok)

	forged := e.signedTx(1, 0, "x")
	forged.Payload = []byte("y")
	_, err = b.AddTransaction(false, forged, e.vals)
	assert.ErrorIs(t, err, tx.ErrInvalidSignature)

	// a block with a nonce gap
	blk := NewBlock(e.genesis, nil, []tx.Transaction{e.signedTx(1, 1, "gap")})
	err = b.VerifyBlock(blk, e.vals, false)
	assert.ErrorIs(t, err, ErrBlockTransaction)
	assert.ErrorIs(t, err, tx.ErrInvalidNonce)
}

func TestUnsignedTransactions(t *testing.T) {
	e := newTestEnv(t)
	b := e.chain(t, storage.NewMemStore())

	u := tx.NewUnsigned([]byte("hello"))
	added, err := b.AddTransaction(false, u, e.vals)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = b.AddTransaction(false, u, e.vals)
	require.NoError(t, err)
	assert.False(t, added)

	blk := e.addNext(t, b)
	assert.Equal(t, [][32]byte{u.Hash()}, hashes(blk.Transactions))

	// once on chain it's a harmless duplicate
	added, err = b.AddTransaction(false, u, e.vals)
	require.NoError(t, err)
	assert.False(t, added)

	again := NewBlock(b.Tip(), nil, []tx.Transaction{u})
	assert.ErrorIs(t, b.VerifyBlock(again, e.vals, false), ErrUnsignedAlreadyIncluded)

	twice := NewBlock(b.Tip(), nil, []tx.Transaction{tx.NewUnsigned([]byte("x")), tx.NewUnsigned([]byte("x"))})
	assert.ErrorIs(t, b.VerifyBlock(twice, e.vals, false), ErrUnsignedAlreadyIncluded)
}

func TestProvidedToMempool(t *testing.T) {
	e := newTestEnv(t)
	b := e.chain(t, storage.NewMemStore())

	_, err := b.AddTransaction(false, tx.NewProvided(testOrder, []byte("p")), e.vals)
	assert.ErrorIs(t, err, tx.ErrProvidedAddedToMempool)

	assert.ErrorIs(t, b.ProvideTransaction(tx.NewUnsigned([]byte("u"))), ErrNotProvided)
}

func TestNotifications(t *testing.T) {
	e := newTestEnv(t)
	b := e.chain(t, storage.NewMemStore())

	u := tx.NewUnsigned([]byte("wait for me"))
	_, err := b.AddTransaction(false, u, e.vals)
	require.NoError(t, err)

	next := b.NextBlockNotification()
	included := b.AwaitInclusion(u.Hash())

	select {
	case <-next:
		t.Fatal("notified early")
	case <-included:
		t.Fatal("notified early")
	default:
	}

	e.addNext(t, b)

	_, ok := <-next
	assert.False(t, ok)
	_, ok = <-included
	assert.False(t, ok)

	// already on chain
	_, ok = <-b.AwaitInclusion(u.Hash())
	assert.False(t, ok)
}
