package client

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
)

const maxPathDepth = 10

// SerializePath flattens a BIP-32 derivation path into the APDU wire form:
// a one-byte component count followed by each index big-endian, hardened
// bits included.
func SerializePath(path accounts.DerivationPath) ([]byte, error) {
	if len(path) > maxPathDepth {
		return nil, fmt.Errorf("maximum bip32 depth = %d, got %d", maxPathDepth, len(path))
	}
	out := make([]byte, 1+4*len(path))
	out[0] = byte(len(path))
	for i, component := range path {
		binary.BigEndian.PutUint32(out[1+4*i:], component)
	}
	return out, nil
}
