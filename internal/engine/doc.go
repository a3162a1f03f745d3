// Package engine implements the transactional entity layer: repositories,
// units of work and the typed entity views handed to callers.
//
// # Units of work
//
// A Repository opens root units of work. Each one keeps an identity map
// (one *Entity per id) and a modified set, and is backed by a store unit
// of work (see Store in spi.go). Changes become durable in two steps:
//
//	Prepare  take the commit lock, stage the modified set in the store
//	Commit   write the staged changes, reset statuses to LOADED
//
// Rollback discards everything and evicts every entity handed out.
//
// # Nested units of work
//
// UnitOfWork.NewUnitOfWork opens a child that works on clones of its
// parent's entities. At prepare the child merges its changes back,
// failing with CONCURRENT_MODIFICATION when the parent's copy of an
// entity changed since the child cloned it. Committing a child never
// touches the store.
//
// # Queries
//
// Queries merge the store's committed results with the unit of work's
// uncommitted changes; see QueryBuilder.Execute.
//
// # Errors
//
// Failures are reported as *ModelError values carrying an ErrorCode.
// Classify them with the Is* helpers.
package engine
