package tx

import "github.com/pkg/errors"

var (
	ErrTooLargeTransaction    = errors.New("transaction is too large")
	ErrInvalidSigner          = errors.New("invalid signer")
	ErrInvalidNonce           = errors.New("invalid nonce")
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrInvalidContent         = errors.New("transaction content is invalid")
	ErrTooManyInMempool       = errors.New("signer has too many transactions in the mempool")
	ErrProvidedAddedToMempool = errors.New("provided transaction added to mempool")

	txErrors = []error{
		ErrTooLargeTransaction,
		ErrInvalidSigner,
		ErrInvalidNonce,
		ErrInvalidSignature,
		ErrInvalidContent,
		ErrTooManyInMempool,
		ErrProvidedAddedToMempool,
	}
)

// IsTransactionError reports if err is, or wraps, one of the transaction
// rejection reasons.
func IsTransactionError(err error) bool {
	for _, e := range txErrors {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// asTransactionError keeps known rejection reasons and folds anything else
// into ErrInvalidContent.
func asTransactionError(err error) error {
	if err == nil || IsTransactionError(err) {
		return err
	}
	return errors.Wrap(ErrInvalidContent, err.Error())
}
