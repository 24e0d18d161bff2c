package cryptography

import (
	"github.com/pkg/errors"

	"github.com/multiformats/go-multibase"
)

func decodeMultibase(mb string) ([]byte, error) {
	_, d, err := multibase.Decode(mb)
	return d, err
}

func EncodePublicKey(pk PublicKey) (string, error) {
	return multibase.Encode(multibase.Base58BTC, pk[:])
}

func DecodePublicKey(mb string) (PublicKey, error) {
	var pk PublicKey

	raw, err := decodeMultibase(mb)
	if err != nil {
		return pk, errors.Wrap(err, "decoding multibase")
	}
	if len(raw) != PublicKeySize {
		return pk, errors.Errorf("unexpected public key length %d", len(raw))
	}
	copy(pk[:], raw)

	if _, err := pk.Point(); err != nil {
		return pk, err
	}

	return pk, nil
}

func EncodePrivateKey(k *PrivateKey) (string, error) {
	return multibase.Encode(multibase.Base58BTC, k.Bytes())
}

func DecodePrivateKey(mb string) (*PrivateKey, error) {
	raw, err := decodeMultibase(mb)
	if err != nil {
		return nil, errors.Wrap(err, "decoding multibase")
	}

	return PrivateKeyFromBytes(raw)
}
