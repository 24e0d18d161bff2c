package cryptography

import (
	"encoding/binary"
	"hash"

	"go.dedis.ch/kyber/v3"
	"golang.org/x/crypto/blake2b"
)

// Transcript is a domain separated, length prefixed Blake2b-512 hash of
// labelled messages.
type Transcript struct {
	h hash.Hash
}

func NewTranscript(domain string) *Transcript {
	h, err := blake2b.New512(nil)
	if err != nil {
		panic(err)
	}

	t := &Transcript{h: h}
	t.write([]byte(domain))
	return t
}

func (t *Transcript) write(b []byte) {
	var l [4]byte
	binary.LittleEndian.PutUint32(l[:], uint32(len(b)))
	t.h.Write(l[:])
	t.h.Write(b)
}

func (t *Transcript) Append(label string, msg []byte) {
	t.write([]byte(label))
	t.write(msg)
}

// Challenge returns a scalar bound to everything appended so far. The
// transcript may continue to be used afterwards.
func (t *Transcript) Challenge(label string) kyber.Scalar {
	d := t.Digest(label)
	return ScalarFromWide(d[:])
}

func (t *Transcript) Digest(label string) [64]byte {
	t.write([]byte(label))

	var out [64]byte
	copy(out[:], t.h.Sum(nil))
	return out
}
