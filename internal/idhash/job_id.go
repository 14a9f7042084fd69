package idhash

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// ComputeJobID computes a deterministic job_id using SHA256.
// Formula: SHA256(owner|admission_seq|enqueued_at)
// Returns the base58-encoded hash (43 or 44 characters).
func ComputeJobID(owner string, seq int64, enqueuedAt int64) string {
	data := fmt.Sprintf("%s|%d|%d", owner, seq, enqueuedAt)

	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:])
}
