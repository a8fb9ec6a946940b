package types

import (
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// ContentHash is a 256-bit BLAKE3 content fingerprint. It is the
// cache key for IncrementalCache entries and the node identity used by
// Store's content_hash column.
type ContentHash [32]byte

// ErrInvalidFormat is returned by ContentHashFromHex when the input is not
// exactly 64 hex characters.
var ErrInvalidFormat = fmt.Errorf("types: invalid content hash format")

// ComputeContentHash fingerprints bytes with BLAKE3.
func ComputeContentHash(b []byte) ContentHash {
	return ContentHash(blake3.Sum256(b))
}

// ToHex renders the hash as 64 lowercase hex characters.
func (h ContentHash) ToHex() string {
	return hex.EncodeToString(h[:])
}

// ContentHashFromHex parses the hex form produced by ToHex. The only failure
// mode is non-hex input or input of the wrong length.
func ContentHashFromHex(s string) (ContentHash, error) {
	var h ContentHash
	if len(s) != 64 {
		return h, ErrInvalidFormat
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return h, ErrInvalidFormat
	}
	copy(h[:], decoded)
	return h, nil
}

// IsZero reports whether h is the all-zero hash (used as a "no hash yet"
// sentinel in partially-built nodes).
func (h ContentHash) IsZero() bool {
	return h == ContentHash{}
}
