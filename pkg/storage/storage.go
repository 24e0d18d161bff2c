package storage

// Getter reads a single key. A missing key is ErrNotFound.
type Getter interface {
	Get(key []byte) ([]byte, error)
}

// DB is a key-value store with disposable, atomic transactions.
type DB interface {
	Getter

	// Txn starts a transaction which sees its own writes. Nothing is
	// visible outside it until Commit.
	Txn() Txn

	Close() error
}

type Txn interface {
	Getter

	Set(key, value []byte) error
	Delete(key []byte) error

	Commit() error
	// Discard drops uncommitted writes. It's safe to call after Commit.
	Discard()
}
