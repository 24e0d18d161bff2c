package storage

import "github.com/pkg/errors"

var (
	ErrNotFound = errors.New("not found")

	ErrTxnDone = errors.New("transaction already committed or discarded")
)
