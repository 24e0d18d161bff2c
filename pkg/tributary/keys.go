package tributary

import (
	"encoding/binary"

	"github.com/tcfw/tributary/pkg/cryptography"
)

type keyType byte

const (
	tipKeyType keyType = iota + 1
	blockNumberKeyType
	blockHashKeyType
	blockKeyType
	commitKeyType
	blockAfterKeyType
	unsignedIncludedKeyType
	providedIncludedKeyType
	nextNonceKeyType

	localProvidedQuantityKeyType
	onChainProvidedQuantityKeyType
	blockProvidedQuantityKeyType
	onChainProvidedKeyType
	currentProvidedKeyType
	providedTxKeyType

	mempoolKeyType
	mempoolTxKeyType
)

// typedKey namespaces a key by type and session. Parts are length prefixed
// so variable length orders can't collide.
func typedKey(kType keyType, genesis [32]byte, parts ...[]byte) []byte {
	n := 1 + len(genesis)
	for _, p := range parts {
		n += 4 + len(p)
	}

	k := make([]byte, 0, n)
	k = append(k, byte(kType))
	k = append(k, genesis[:]...)
	for _, p := range parts {
		k = append(k, u32Bytes(uint32(len(p)))...)
		k = append(k, p...)
	}
	return k
}

func u32Bytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func u64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func tipKey(g [32]byte) []byte         { return typedKey(tipKeyType, g) }
func blockNumberKey(g [32]byte) []byte { return typedKey(blockNumberKeyType, g) }

func blockHashKey(g [32]byte, n uint64) []byte {
	return typedKey(blockHashKeyType, g, u64Bytes(n))
}

func blockKey(g [32]byte, h [32]byte) []byte      { return typedKey(blockKeyType, g, h[:]) }
func commitKey(g [32]byte, h [32]byte) []byte     { return typedKey(commitKeyType, g, h[:]) }
func blockAfterKey(g [32]byte, h [32]byte) []byte { return typedKey(blockAfterKeyType, g, h[:]) }

func unsignedIncludedKey(g [32]byte, h [32]byte) []byte {
	return typedKey(unsignedIncludedKeyType, g, h[:])
}

func providedIncludedKey(g [32]byte, h [32]byte) []byte {
	return typedKey(providedIncludedKeyType, g, h[:])
}

func nextNonceKey(g [32]byte, signer cryptography.PublicKey, order []byte) []byte {
	return typedKey(nextNonceKeyType, g, signer[:], order)
}

func localProvidedQuantityKey(g [32]byte, order []byte) []byte {
	return typedKey(localProvidedQuantityKeyType, g, order)
}

func onChainProvidedQuantityKey(g [32]byte, order []byte) []byte {
	return typedKey(onChainProvidedQuantityKeyType, g, order)
}

func blockProvidedQuantityKey(g [32]byte, block [32]byte, order []byte) []byte {
	return typedKey(blockProvidedQuantityKeyType, g, block[:], order)
}

func onChainProvidedKey(g [32]byte, order []byte, i uint32) []byte {
	return typedKey(onChainProvidedKeyType, g, order, u32Bytes(i))
}

func currentProvidedKey(g [32]byte) []byte { return typedKey(currentProvidedKeyType, g) }

func providedTxKey(g [32]byte, h [32]byte) []byte { return typedKey(providedTxKeyType, g, h[:]) }

func mempoolKey(g [32]byte) []byte { return typedKey(mempoolKeyType, g) }

func mempoolTxKey(g [32]byte, h [32]byte) []byte { return typedKey(mempoolTxKeyType, g, h[:]) }
