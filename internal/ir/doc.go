// Package ir provides the value types stored in entity properties.
//
// All other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers
//   - Null means "unset": stores drop null fields instead of persisting them
//   - Canonical JSON (RFC 8785, NFC strings) is the only encoding used for
//     stored field values and content hashes
package ir
