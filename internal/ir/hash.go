package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes.
// The version suffix allows the algorithm to change without ambiguity.
const (
	DomainState = "entigraph/state/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// StateHash computes the content hash of a flat field map.
// Stores use it as the document version for optimistic concurrency checks,
// and nested units of work use it to detect that a parent copy changed.
// Null entries are ignored so that "unset" and "absent" hash identically.
func StateHash(fields IRObject) (string, error) {
	clean := make(IRObject, len(fields))
	for k, v := range fields {
		if !IsNull(v) {
			clean[k] = v
		}
	}
	canonical, err := MarshalCanonical(clean)
	if err != nil {
		return "", fmt.Errorf("StateHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainState, canonical), nil
}

// MustStateHash is like StateHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustStateHash(fields IRObject) string {
	h, err := StateHash(fields)
	if err != nil {
		panic(err)
	}
	return h
}
