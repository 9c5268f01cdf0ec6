// Package contenthash computes content identities for code units and static assets.
//
// Identities are BLAKE3 keyed hashes. Each domain has its own key so identical
// bytes used as a code chunk and as a static asset never share an identity.
package contenthash

import (
	"encoding/hex"
	"io"

	"github.com/zeebo/blake3"
)

// Sum is a 32-byte BLAKE3 digest.
type Sum [32]byte

// String returns the lowercase hex encoding.
func (s Sum) String() string { return hex.EncodeToString(s[:]) }

// Short returns the first 16 hex characters, used for file names.
func (s Sum) Short() string { return s.String()[:16] }

type domainKey [32]byte

// Domain keys are ASCII names zero-padded to 32 bytes. Changing one changes
// every identity in that domain.
var (
	chunkDomainKey = domainKey{
		'e', 'd', 'g', 'e', 'b', 'u', 'n', 'd', 'l', 'e', '.', 'c', 'h', 'u', 'n', 'k',
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
	assetDomainKey = domainKey{
		'e', 'd', 'g', 'e', 'b', 'u', 'n', 'd', 'l', 'e', '.', 'a', 's', 's', 'e', 't',
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// Chunk returns the chunk-domain identity of a code unit's raw bytes.
func Chunk(data []byte) Sum {
	h := newKeyed(chunkDomainKey)
	_, _ = h.Write(data)
	return sum(h)
}

// Asset streams r into the asset-domain hash.
func Asset(r io.Reader) (Sum, int64, error) {
	h := newKeyed(assetDomainKey)
	n, err := io.Copy(h, r)
	if err != nil {
		return Sum{}, n, err
	}
	return sum(h), n, nil
}

func newKeyed(key domainKey) *blake3.Hasher {
	h, err := blake3.NewKeyed(key[:])
	if err != nil {
		// NewKeyed only fails on a key that is not 32 bytes.
		panic("contenthash: invalid domain key: " + err.Error())
	}
	return h
}

func sum(h *blake3.Hasher) Sum {
	var out Sum
	copy(out[:], h.Sum(nil))
	return out
}
