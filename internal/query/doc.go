// Package query defines the object-graph query expression tree.
//
// Expressions are immutable values built with the constructors in this
// package (Eq, And, AnyOf, ...). They name properties, not stored fields,
// and are bound to concrete data only when evaluated:
//
//   - Evaluate runs an expression in memory against a Target. The engine
//     uses it for entities that have uncommitted changes.
//   - Store implementations compile the same tree into their native query
//     language for the committed data (see internal/recordstore).
//
// Expression is a sealed interface. Compilers switch exhaustively over the
// node types and reject anything they do not know with a hard error.
//
// Quantifier semantics:
//
//	TheComposite / TheAssociation   false when the composite or association is absent
//	AnyOf over an empty collection  false
//	AllOf over an empty collection  true
package query
