package api

import (
	"context"
	"encoding/hex"
	"net"
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	apipb "github.com/tcfw/tributary/api"
	"github.com/tcfw/tributary/pkg/consensus"
	"github.com/tcfw/tributary/pkg/cryptography"
	"github.com/tcfw/tributary/pkg/storage"
	"github.com/tcfw/tributary/pkg/tributary"
	"github.com/tcfw/tributary/pkg/tx"
)

type nopP2P struct{}

func (nopP2P) Broadcast([32]byte, []byte) error { return nil }

type testBackend struct {
	t     *tributary.Tributary
	peers []peer.ID
}

func (b *testBackend) Tributary() *tributary.Tributary { return b.t }
func (b *testBackend) Peers() []peer.ID                { return b.peers }

func newTestClient(t *testing.T) (apipb.ControlClient, *testBackend, *cryptography.PrivateKey) {
	genesis := [32]byte{0xaa}
	key := cryptography.NewPrivateKey()
	vals := []consensus.Validator{{Key: key.Public(), Weight: 1}}

	tr, err := tributary.New(storage.NewMemStore(), genesis, 1000, key, vals, nopP2P{})
	require.NoError(t, err)

	b := &testBackend{t: tr, peers: []peer.ID{"a", "b"}}
	a, err := NewAPI(b)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	go a.Serve(lis)
	t.Cleanup(func() { a.Shutdown(context.Background()) })

	c, err := Dial("bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.Dial()
	}))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return c.Control(), b, key
}

func TestStatus(t *testing.T) {
	c, b, _ := newTestClient(t)

	s, err := c.Status(context.Background(), &apipb.StatusRequest{})
	require.NoError(t, err)

	genesis := b.t.Genesis()
	assert.Equal(t, hex.EncodeToString(genesis[:]), s.Genesis)
	assert.Equal(t, s.Genesis, s.Tip)
	assert.Zero(t, s.BlockNumber)
	assert.Zero(t, s.MempoolSize)
	assert.Equal(t, 1, s.Validators)
	assert.Equal(t, 2, s.Peers)
}

func TestSubmitTransaction(t *testing.T) {
	c, b, key := newTestClient(t)
	ctx := context.Background()

	s := tx.NewSigned([]byte("order"), 0, []byte("hello"))
	s.Sign(b.t.Genesis(), key)
	d, err := tributary.EncodeTx(s)
	require.NoError(t, err)

	res, err := c.SubmitTransaction(ctx, &apipb.TransactionRequest{Tx: d})
	require.NoError(t, err)
	assert.True(t, res.Added)
	h := s.Hash()
	assert.Equal(t, hex.EncodeToString(h[:]), res.Hash)

	res, err = c.SubmitTransaction(ctx, &apipb.TransactionRequest{Tx: d})
	require.NoError(t, err)
	assert.False(t, res.Added)

	st, err := c.Status(ctx, &apipb.StatusRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, st.MempoolSize)

	_, err = c.SubmitTransaction(ctx, &apipb.TransactionRequest{Tx: []byte{9, 9}})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	outsider := tx.NewSigned([]byte("order"), 0, []byte("nope"))
	outsider.Sign(b.t.Genesis(), cryptography.NewPrivateKey())
	d, err = tributary.EncodeTx(outsider)
	require.NoError(t, err)
	_, err = c.SubmitTransaction(ctx, &apipb.TransactionRequest{Tx: d})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestProvideTransaction(t *testing.T) {
	c, _, _ := newTestClient(t)
	ctx := context.Background()

	p := tx.NewProvided([]byte("order"), []byte("data"))
	d, err := tributary.EncodeTx(p)
	require.NoError(t, err)

	res, err := c.ProvideTransaction(ctx, &apipb.TransactionRequest{Tx: d})
	require.NoError(t, err)
	h := p.Hash()
	assert.Equal(t, hex.EncodeToString(h[:]), res.Hash)

	u, err := tributary.EncodeTx(tx.NewUnsigned([]byte("u")))
	require.NoError(t, err)
	_, err = c.ProvideTransaction(ctx, &apipb.TransactionRequest{Tx: u})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}
