package cryptography

import (
	"encoding/hex"

	"github.com/pkg/errors"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/group/edwards25519"
)

const (
	PublicKeySize  = 32
	PrivateKeySize = 32
	SignatureSize  = 64
)

var (
	suite = edwards25519.NewBlakeSHA256Ed25519()

	ErrInvalidPoint  = errors.New("invalid point encoding")
	ErrInvalidScalar = errors.New("invalid scalar encoding")
	ErrSmallOrder    = errors.New("point has small order")
)

// PublicKey is the compressed encoding of a validator or signer key.
type PublicKey [PublicKeySize]byte

func (p PublicKey) String() string {
	return hex.EncodeToString(p[:])
}

// Point decodes the key, rejecting the identity and other small order points.
func (p PublicKey) Point() (kyber.Point, error) {
	pt, err := decodePoint(p[:])
	if err != nil {
		return nil, err
	}
	if isSmallOrder(pt) {
		return nil, ErrSmallOrder
	}
	return pt, nil
}

// Signature is R || s.
type Signature [SignatureSize]byte

func (s Signature) R() []byte {
	return s[:32]
}

func (s Signature) S() []byte {
	return s[32:]
}

type PrivateKey struct {
	x   kyber.Scalar
	pub PublicKey
}

func NewPrivateKey() *PrivateKey {
	return newPrivateKey(suite.Scalar().Pick(suite.RandomStream()))
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	x, err := decodeScalar(b)
	if err != nil {
		return nil, err
	}
	if x.Equal(suite.Scalar().Zero()) {
		return nil, ErrInvalidScalar
	}
	return newPrivateKey(x), nil
}

func newPrivateKey(x kyber.Scalar) *PrivateKey {
	k := &PrivateKey{x: x}
	copy(k.pub[:], encodePoint(suite.Point().Mul(x, nil)))
	return k
}

func (k *PrivateKey) Public() PublicKey {
	return k.pub
}

func (k *PrivateKey) Bytes() []byte {
	return encodeScalar(k.x)
}

func (k *PrivateKey) Equal(o *PrivateKey) bool {
	return o != nil && k.x.Equal(o.x)
}

// Challenger maps the encoded nonce commitment R to the challenge scalar.
type Challenger func(R []byte) kyber.Scalar

// Sign produces s = r + c*x for the supplied nonce r.
func (k *PrivateKey) Sign(r kyber.Scalar, challenge Challenger) Signature {
	var sig Signature

	R := encodePoint(suite.Point().Mul(r, nil))
	c := challenge(R)
	s := suite.Scalar().Add(r, suite.Scalar().Mul(c, k.x))

	copy(sig[:32], R)
	copy(sig[32:], encodeScalar(s))
	return sig
}

// Verify checks s*G == R + c*A.
func Verify(pub PublicKey, sig Signature, challenge Challenger) bool {
	A, err := pub.Point()
	if err != nil {
		return false
	}
	R, err := decodePoint(sig.R())
	if err != nil {
		return false
	}
	s, err := decodeScalar(sig.S())
	if err != nil {
		return false
	}

	c := challenge(sig.R())

	lhs := suite.Point().Mul(s, nil)
	rhs := suite.Point().Add(R, suite.Point().Mul(c, A))
	return lhs.Equal(rhs)
}

// IsIdentity reports if the encoded point is the group identity.
func IsIdentity(b []byte) bool {
	pt, err := decodePoint(b)
	if err != nil {
		return false
	}
	return pt.Equal(suite.Point().Null())
}

// RandomScalar samples a uniformly random non-zero scalar.
func RandomScalar() kyber.Scalar {
	for {
		s := suite.Scalar().Pick(suite.RandomStream())
		if !s.Equal(suite.Scalar().Zero()) {
			return s
		}
	}
}

// ScalarFromWide reduces a (typically 64 byte) little endian value mod the group order.
func ScalarFromWide(b []byte) kyber.Scalar {
	return suite.Scalar().SetBytes(b)
}

func decodePoint(b []byte) (kyber.Point, error) {
	if len(b) != PublicKeySize {
		return nil, ErrInvalidPoint
	}
	pt := suite.Point()
	if err := pt.UnmarshalBinary(b); err != nil {
		return nil, errors.Wrap(ErrInvalidPoint, err.Error())
	}
	return pt, nil
}

func encodePoint(p kyber.Point) []byte {
	b, err := p.MarshalBinary()
	if err != nil {
		panic(errors.Wrap(err, "marshalling point"))
	}
	return b
}

// decodeScalar only accepts canonical (fully reduced) encodings.
func decodeScalar(b []byte) (kyber.Scalar, error) {
	if len(b) != PrivateKeySize {
		return nil, ErrInvalidScalar
	}
	s := suite.Scalar().SetBytes(b)
	if string(encodeScalar(s)) != string(b) {
		return nil, ErrInvalidScalar
	}
	return s, nil
}

func encodeScalar(s kyber.Scalar) []byte {
	b, err := s.MarshalBinary()
	if err != nil {
		panic(errors.Wrap(err, "marshalling scalar"))
	}
	return b
}

func isSmallOrder(p kyber.Point) bool {
	cofactor := suite.Scalar().SetInt64(8)
	return suite.Point().Mul(cofactor, p).Equal(suite.Point().Null())
}
