package tx

import (
	"bytes"

	"github.com/pkg/errors"
	"go.dedis.ch/kyber/v3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"

	"github.com/tcfw/tributary/internal/utils/wire"
	"github.com/tcfw/tributary/pkg/cryptography"
)

const (
	TransactionSizeLimit = 3_000_000

	// nonces at or above this are unusable
	NonceLimit = ^uint32(0) - 1

	sigHashDomain = "Tributary Signed Transaction"

	// EnvelopeTag marks application txs in blocks and gossip. It's also
	// the first byte hashed, keeping tx hashes apart from consensus txs.
	EnvelopeTag uint8 = 1
)

type Kind uint8

const (
	// KindProvided transactions are derived independently by every
	// validator and included in the exact order they were provided.
	KindProvided Kind = iota
	// KindUnsigned transactions may only be included on chain once.
	KindUnsigned
	// KindSigned transactions are authenticated and nonce ordered per
	// (signer, order).
	KindSigned
)

func (k Kind) String() string {
	switch k {
	case KindProvided:
		return "provided"
	case KindUnsigned:
		return "unsigned"
	case KindSigned:
		return "signed"
	default:
		return "unknown"
	}
}

type Signed struct {
	Signer    cryptography.PublicKey
	Nonce     uint32
	Signature cryptography.Signature
}

// Transaction is anything which may be ordered on a tributary.
type Transaction interface {
	Kind() Kind
	// Order names the orderer for provided and signed transactions.
	Order() []byte
	// Signed is non-nil only for KindSigned.
	Signed() *Signed
	// Hash must not commit to the signature.
	Hash() [32]byte
	// Verify performs content specific checks.
	Verify() error
	Serialize() ([]byte, error)
}

// NonceOracle yields the next acceptable nonce for a (signer, order) pair.
// ok is false when signer is not a participant.
type NonceOracle interface {
	NextNonce(signer cryptography.PublicKey, order []byte) (nonce uint32, ok bool)
}

// SigHash binds a signed transaction to the session, its hash, order and
// signature nonce commitment.
func SigHash(genesis [32]byte, t Transaction) kyber.Scalar {
	s := t.Signed()
	if s == nil {
		panic("sig hash of non-signed transaction")
	}

	h := t.Hash()
	d := blake2b.Sum512(bytes.Join([][]byte{
		[]byte(sigHashDomain),
		genesis[:],
		h[:],
		t.Order(),
		s.Signature.R(),
	}, nil))

	return cryptography.ScalarFromWide(d[:])
}

// VerifyTransaction checks size, content, nonce and signature of t.
func VerifyTransaction(t Transaction, genesis [32]byte, nonces NonceOracle) error {
	b, err := t.Serialize()
	if err != nil {
		return errors.Wrap(ErrInvalidContent, err.Error())
	}
	if len(b) > TransactionSizeLimit {
		return ErrTooLargeTransaction
	}

	if err := t.Verify(); err != nil {
		return asTransactionError(err)
	}

	if t.Kind() != KindSigned {
		return nil
	}

	s := t.Signed()
	if s == nil {
		return ErrInvalidContent
	}

	next, ok := nonces.NextNonce(s.Signer, t.Order())
	if !ok {
		return ErrInvalidSigner
	}
	if s.Nonce != next {
		return errors.Wrapf(ErrInvalidNonce, "expected %d got %d", next, s.Nonce)
	}

	if !cryptography.Verify(s.Signer, s.Signature, func([]byte) kyber.Scalar {
		return SigHash(genesis, t)
	}) {
		return ErrInvalidSignature
	}

	return nil
}

// Tx is the general purpose application transaction.
type Tx struct {
	Type    Kind
	Orderer []byte
	Payload []byte
	Auth    *Signed
}

var _ Transaction = (*Tx)(nil)

func NewProvided(order, payload []byte) *Tx {
	return &Tx{Type: KindProvided, Orderer: order, Payload: payload}
}

func NewUnsigned(payload []byte) *Tx {
	return &Tx{Type: KindUnsigned, Payload: payload}
}

// NewSigned creates an unsigned signed transaction. Call Sign before use.
func NewSigned(order []byte, nonce uint32, payload []byte) *Tx {
	return &Tx{Type: KindSigned, Orderer: order, Payload: payload, Auth: &Signed{Nonce: nonce}}
}

func (t *Tx) Kind() Kind {
	return t.Type
}

func (t *Tx) Order() []byte {
	if t.Type == KindUnsigned {
		return nil
	}
	return t.Orderer
}

func (t *Tx) Signed() *Signed {
	if t.Type != KindSigned {
		return nil
	}
	return t.Auth
}

func (t *Tx) Hash() [32]byte {
	w := &wire.Writer{}
	w.U8(EnvelopeTag)
	t.encode(w, false)
	return blake2s.Sum256(w.Bytes())
}

func (t *Tx) Verify() error {
	switch t.Type {
	case KindProvided:
		if len(t.Orderer) == 0 || t.Auth != nil {
			return ErrInvalidContent
		}
	case KindUnsigned:
		if len(t.Orderer) != 0 || t.Auth != nil {
			return ErrInvalidContent
		}
	case KindSigned:
		if len(t.Orderer) == 0 || t.Auth == nil {
			return ErrInvalidContent
		}
		if t.Auth.Nonce >= NonceLimit {
			return ErrInvalidNonce
		}
	default:
		return ErrInvalidContent
	}
	return nil
}

// Sign sets the signer and signs with a fresh random nonce.
func (t *Tx) Sign(genesis [32]byte, key *cryptography.PrivateKey) {
	if t.Auth == nil {
		t.Auth = &Signed{}
	}
	t.Auth.Signer = key.Public()

	t.Auth.Signature = key.Sign(cryptography.RandomScalar(), func(R []byte) kyber.Scalar {
		copy(t.Auth.Signature[:32], R)
		return SigHash(genesis, t)
	})
}

func (t *Tx) Serialize() ([]byte, error) {
	if t.Type == KindSigned {
		if t.Auth == nil {
			return nil, errors.New("signed transaction missing signature")
		}
		if cryptography.IsIdentity(t.Auth.Signature.R()) {
			return nil, errors.New("signature nonce was identity")
		}
	}

	w := &wire.Writer{}
	t.encode(w, true)
	return w.Bytes(), nil
}

func (t *Tx) encode(w *wire.Writer, withSig bool) {
	w.U8(uint8(t.Type))
	switch t.Type {
	case KindProvided:
		w.Var(t.Orderer)
	case KindSigned:
		w.Var(t.Orderer)
		var auth Signed
		if t.Auth != nil {
			auth = *t.Auth
		}
		w.Fixed(auth.Signer[:])
		w.U32(auth.Nonce)
		if withSig {
			w.Fixed(auth.Signature[:])
		}
	}
	w.Var(t.Payload)
}

// ReadTx decodes a single Tx from r.
func ReadTx(r *wire.Reader) (Transaction, error) {
	kind, err := r.U8()
	if err != nil {
		return nil, err
	}

	t := &Tx{Type: Kind(kind)}

	switch t.Type {
	case KindProvided:
		if t.Orderer, err = r.Var(); err != nil {
			return nil, errors.Wrap(err, "reading order")
		}
	case KindUnsigned:
	case KindSigned:
		if t.Orderer, err = r.Var(); err != nil {
			return nil, errors.Wrap(err, "reading order")
		}
		t.Auth = &Signed{}
		if err := r.Fixed(t.Auth.Signer[:]); err != nil {
			return nil, err
		}
		if t.Auth.Nonce, err = r.U32(); err != nil {
			return nil, err
		}
		if t.Auth.Nonce >= NonceLimit {
			return nil, errors.New("nonce exceeded limit")
		}
		if err := r.Fixed(t.Auth.Signature[:]); err != nil {
			return nil, err
		}
		if cryptography.IsIdentity(t.Auth.Signature.R()) {
			return nil, errors.New("signature nonce was identity")
		}
	default:
		return nil, errors.Errorf("unknown transaction kind %d", kind)
	}

	if t.Payload, err = r.Var(); err != nil {
		return nil, errors.Wrap(err, "reading payload")
	}

	return t, nil
}

// Unmarshal decodes a Tx which must span all of b.
func Unmarshal(b []byte) (*Tx, error) {
	r := wire.NewReader(b)
	t, err := ReadTx(r)
	if err != nil {
		return nil, err
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return t.(*Tx), nil
}
