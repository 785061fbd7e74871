package id

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// New returns a random batch identifier. If the system random source fails
// it falls back to a timestamp so the identifier is still unique per process.
func New() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "batch-" + time.Now().UTC().Format("20060102T150405.000000000")
	}
	return "b_" + hex.EncodeToString(b[:])
}
