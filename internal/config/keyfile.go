package config

import (
	"io/ioutil"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/tcfw/tributary/pkg/cryptography"
)

// KeyFile holds a validator's key, multibase encoded.
type KeyFile struct {
	Public  string `yaml:"public"`
	Private string `yaml:"private"`
}

func WriteKeyFile(path string, k *cryptography.PrivateKey) error {
	pub, err := cryptography.EncodePublicKey(k.Public())
	if err != nil {
		return errors.Wrap(err, "encoding public key")
	}
	priv, err := cryptography.EncodePrivateKey(k)
	if err != nil {
		return errors.Wrap(err, "encoding private key")
	}

	b, err := yaml.Marshal(&KeyFile{Public: pub, Private: priv})
	if err != nil {
		return errors.Wrap(err, "marshaling key file")
	}

	return ioutil.WriteFile(path, b, 0600)
}

func ReadKeyFile(path string) (*cryptography.PrivateKey, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading key file")
	}

	kf := &KeyFile{}
	if err := yaml.Unmarshal(b, kf); err != nil {
		return nil, errors.Wrap(err, "unmarshaling key file")
	}

	k, err := cryptography.DecodePrivateKey(kf.Private)
	if err != nil {
		return nil, errors.Wrap(err, "decoding private key")
	}

	if kf.Public != "" {
		pub, err := cryptography.DecodePublicKey(kf.Public)
		if err != nil {
			return nil, errors.Wrap(err, "decoding public key")
		}
		if pub != k.Public() {
			return nil, errors.New("public key doesn't match private key")
		}
	}

	return k, nil
}
