package core

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// newID returns a prefixed 128-bit random identifier, e.g. "prop_4f2a...".
func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// randomTxHash returns a 32-byte hex transaction hash. Used by executors
// that settle off-chain and have no broadcast hash to report.
func randomTxHash() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "0x" + strings.ReplaceAll(uuid.New().String()+uuid.New().String(), "-", "")
	}
	return "0x" + hex.EncodeToString(b)
}
