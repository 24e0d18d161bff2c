package tributary

import (
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
)

type BlockErrorKind uint8

const (
	BlockErrInvalidParent BlockErrorKind = iota + 1
	BlockErrInvalidTransactions
	BlockErrNonLocalProvided
	BlockErrDistinctProvided
	BlockErrProvidedAlreadyIncluded
	BlockErrUnsignedAlreadyIncluded
	BlockErrWrongTransactionOrder
	BlockErrTooLargeBlock
	BlockErrTransaction
	BlockErrMalformed
)

var blockErrorNames = map[BlockErrorKind]string{
	BlockErrInvalidParent:           "invalid parent",
	BlockErrInvalidTransactions:     "transactions don't match the header",
	BlockErrNonLocalProvided:        "provided transaction not known locally",
	BlockErrDistinctProvided:        "provided transaction differs from the local one",
	BlockErrProvidedAlreadyIncluded: "provided transaction already included",
	BlockErrUnsignedAlreadyIncluded: "unsigned transaction already included",
	BlockErrWrongTransactionOrder:   "transactions out of order",
	BlockErrTooLargeBlock:           "block too large",
	BlockErrTransaction:             "invalid transaction",
	BlockErrMalformed:               "malformed block",
}

// BlockError is why a block was rejected. Cause is set for transaction
// failures and Hash for provided transaction failures.
type BlockError struct {
	Kind  BlockErrorKind
	Hash  [32]byte
	Cause error
}

func (e *BlockError) Error() string {
	msg := blockErrorNames[e.Kind]
	if msg == "" {
		msg = "unknown block error"
	}

	switch {
	case e.Cause != nil:
		return fmt.Sprintf("%s: %s", msg, e.Cause)
	case e.Kind == BlockErrNonLocalProvided || e.Kind == BlockErrDistinctProvided:
		return fmt.Sprintf("%s: %s", msg, hex.EncodeToString(e.Hash[:]))
	}
	return msg
}

func (e *BlockError) Unwrap() error {
	return e.Cause
}

// Is matches any BlockError of the same kind, so sentinels can be used with
// errors.Is.
func (e *BlockError) Is(target error) bool {
	t, ok := target.(*BlockError)
	return ok && t.Kind == e.Kind && t.Cause == nil && t.Hash == [32]byte{}
}

var (
	ErrInvalidParent           = &BlockError{Kind: BlockErrInvalidParent}
	ErrInvalidTransactions     = &BlockError{Kind: BlockErrInvalidTransactions}
	ErrNonLocalProvided        = &BlockError{Kind: BlockErrNonLocalProvided}
	ErrDistinctProvided        = &BlockError{Kind: BlockErrDistinctProvided}
	ErrProvidedAlreadyIncluded = &BlockError{Kind: BlockErrProvidedAlreadyIncluded}
	ErrUnsignedAlreadyIncluded = &BlockError{Kind: BlockErrUnsignedAlreadyIncluded}
	ErrWrongTransactionOrder   = &BlockError{Kind: BlockErrWrongTransactionOrder}
	ErrTooLargeBlock           = &BlockError{Kind: BlockErrTooLargeBlock}
	ErrBlockTransaction        = &BlockError{Kind: BlockErrTransaction}
	ErrMalformedBlock          = &BlockError{Kind: BlockErrMalformed}
)

func blockErr(kind BlockErrorKind) *BlockError {
	return &BlockError{Kind: kind}
}

func txBlockErr(cause error) *BlockError {
	return &BlockError{Kind: BlockErrTransaction, Cause: cause}
}

// IsNonLocalProvided is true when a block only failed because this node
// hasn't derived one of its provided transactions yet.
func IsNonLocalProvided(err error) bool {
	return errors.Is(err, ErrNonLocalProvided)
}

var (
	ErrNotProvided            = errors.New("transaction is not a provided transaction")
	ErrAlreadyProvided        = errors.New("transaction was already provided")
	ErrLocalMismatchesOnChain = errors.New("local provided transaction differs from the one on chain")
)

// HaltError is an invariant violation no validator should be able to
// continue from.
type HaltError struct {
	Genesis [32]byte
	Height  uint64
	Reason  string
	Cause   error
}

func (e *HaltError) Error() string {
	s := fmt.Sprintf("tributary %s halted at block %d: %s", hex.EncodeToString(e.Genesis[:4]), e.Height, e.Reason)
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *HaltError) Unwrap() error {
	return e.Cause
}

func IsHalt(err error) bool {
	var h *HaltError
	return errors.As(err, &h)
}
