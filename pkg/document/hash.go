package document

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash returns a stable digest of the document body. The hash covers
// body text only so that tag, status and other metadata edits never force a
// re-embedding of unchanged content.
func ContentHash(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}
