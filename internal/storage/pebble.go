package storage

import (
	"io"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/pkg/errors"

	"github.com/tcfw/tributary/internal/utils/logging"
	"github.com/tcfw/tributary/pkg/storage"
)

const (
	cacheSize = 1 << 20 * 100
)

var (
	_ storage.DB  = (*PebbleStorage)(nil)
	_ storage.Txn = (*pebbleTxn)(nil)
)

type PebbleStorage struct {
	db *pebble.DB
}

// NewPebbleStorage opens, or creates, a store in dir.
func NewPebbleStorage(dir string) (*PebbleStorage, error) {
	return open(dir, nil)
}

// NewMemPebbleStorage is backed by an in memory filesystem.
func NewMemPebbleStorage() (*PebbleStorage, error) {
	return open("", vfs.NewMem())
}

func open(dir string, fs vfs.FS) (*PebbleStorage, error) {
	c := pebble.NewCache(cacheSize)
	tc := pebble.NewTableCache(c, 16, 100)
	defer tc.Unref()
	defer c.Unref()

	db, err := pebble.Open(dir, &pebble.Options{Cache: c, TableCache: tc, FS: fs})
	if err != nil {
		return nil, errors.Wrap(err, "opening pebble store")
	}

	logging.WithField("dir", dir).Debug("opened pebble store")

	return &PebbleStorage{db: db}, nil
}

func (s *PebbleStorage) Get(key []byte) ([]byte, error) {
	return get(s.db, key)
}

func (s *PebbleStorage) Txn() storage.Txn {
	return &pebbleTxn{b: s.db.NewIndexedBatch()}
}

func (s *PebbleStorage) Close() error {
	return s.db.Close()
}

type pebbleReader interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

// get copies the value out as pebble only guarantees it until the closer
// is called.
func get(r pebbleReader, key []byte) ([]byte, error) {
	d, done, err := r.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "reading key")
	}
	defer done.Close()

	return append([]byte(nil), d...), nil
}

type pebbleTxn struct {
	b    *pebble.Batch
	done bool
}

func (t *pebbleTxn) Get(key []byte) ([]byte, error) {
	if t.done {
		return nil, storage.ErrTxnDone
	}
	return get(t.b, key)
}

func (t *pebbleTxn) Set(key, value []byte) error {
	if t.done {
		return storage.ErrTxnDone
	}
	return t.b.Set(key, value, nil)
}

func (t *pebbleTxn) Delete(key []byte) error {
	if t.done {
		return storage.ErrTxnDone
	}
	return t.b.Delete(key, nil)
}

func (t *pebbleTxn) Commit() error {
	if t.done {
		return storage.ErrTxnDone
	}
	t.done = true

	if err := t.b.Commit(pebble.Sync); err != nil {
		t.b.Close()
		return errors.Wrap(err, "committing batch")
	}
	return t.b.Close()
}

func (t *pebbleTxn) Discard() {
	if t.done {
		return
	}
	t.done = true

	if err := t.b.Close(); err != nil {
		logging.WithError(err).Warn("discarding batch")
	}
}
