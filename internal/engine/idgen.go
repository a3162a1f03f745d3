package engine

import (
	"github.com/google/uuid"
)

// IDGenerator allocates identifiers for entities created without one.
// Implemented by UUIDv7Generator (production) and testutil.SequenceIDGenerator
// (tests).
type IDGenerator interface {
	Generate(typeName string) string
}

// UUIDv7Generator generates "<TypeName>.<UUIDv7>" identifiers.
//
// UUIDv7 embeds a timestamp in the most significant bits, so generated ids
// of one type sort by creation time. The type prefix keeps generated ids
// from colliding with ids of other types or with ids assigned by the
// store's users.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate(typeName string) string {
	return typeName + "." + uuid.Must(uuid.NewV7()).String()
}
