package tributary

import (
	"bytes"

	"golang.org/x/crypto/blake2s"
)

var (
	leafDomain   = []byte("leaf_hash")
	branchDomain = []byte("branch_hash")
)

// merkle root over tx hashes. An odd node out is paired with zeros and the
// empty tree is all zeros.
func merkle(hashes [][32]byte) [32]byte {
	if len(hashes) == 0 {
		return [32]byte{}
	}

	level := make([][32]byte, 0, len(hashes))
	for _, h := range hashes {
		level = append(level, blake2s.Sum256(bytes.Join([][]byte{leafDomain, h[:]}, nil)))
	}

	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			var right [32]byte
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, blake2s.Sum256(bytes.Join([][]byte{branchDomain, level[i][:], right[:]}, nil)))
		}
		level = next
	}

	return level[0]
}
