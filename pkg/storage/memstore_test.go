package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore(t *testing.T) {
	m := NewMemStore()

	_, err := m.Get([]byte("a"))
	assert.ErrorIs(t, err, ErrNotFound)

	txn := m.Txn()
	require.NoError(t, txn.Set([]byte("a"), []byte("1")))

	// visible in the txn only
	v, err := txn.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	_, err = m.Get([]byte("a"))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, txn.Commit())

	v, err = m.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	assert.ErrorIs(t, txn.Set([]byte("b"), nil), ErrTxnDone)
}

func TestMemStoreDiscard(t *testing.T) {
	m := NewMemStore()

	txn := m.Txn()
	require.NoError(t, txn.Set([]byte("a"), []byte("1")))
	require.NoError(t, txn.Commit())

	txn = m.Txn()
	require.NoError(t, txn.Delete([]byte("a")))
	require.NoError(t, txn.Set([]byte("b"), []byte("2")))

	_, err := txn.Get([]byte("a"))
	assert.ErrorIs(t, err, ErrNotFound)

	txn.Discard()

	v, err := m.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	_, err = m.Get([]byte("b"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemStoreDelete(t *testing.T) {
	m := NewMemStore()

	txn := m.Txn()
	require.NoError(t, txn.Set([]byte("a"), []byte("1")))
	require.NoError(t, txn.Commit())

	txn = m.Txn()
	require.NoError(t, txn.Delete([]byte("a")))
	require.NoError(t, txn.Commit())

	_, err := m.Get([]byte("a"))
	assert.ErrorIs(t, err, ErrNotFound)
}
