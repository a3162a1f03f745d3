// Package recordstore implements the engine's store interface over any
// record.Store.
//
// Each entity is one document. Composites and collections are flattened
// into path-named fields (see package record for the layout), so a single
// document holds the whole entity and versions it as a unit.
//
// Commits are optimistic: PrepareCommit checks every staged document
// against the version it was loaded with and reports mismatches as
// CONCURRENT_MODIFICATION. Commit applies the batch atomically.
//
// Query expressions are compiled to native record queries. Collection
// quantifiers expand into one clause per slot, bounded by the largest
// stored __size__ of the collection. Association quantifiers resolve
// their target ids with a sub-query first. Both read committed data only;
// the engine evaluates uncommitted entities itself.
package recordstore
