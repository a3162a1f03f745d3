// Package record defines the flat, type-tagged document model that entity
// state is persisted as, and the native boolean query grammar that record
// stores evaluate.
//
// LAYOUT:
//
// A document is a single level map from field name to ir.IRValue. Nested
// structures are linearized into field names:
//
//	_type_                          entity type tag (always present)
//	name                            simple property
//	address/_type_                  presence marker of a single composite
//	address/street                  property of a single composite
//	moreAddresses/__size__          element count of a collection
//	moreAddresses[0]/_type_         presence marker of element 0
//	moreAddresses[0]/street         property of element 0
//	employees[1]                    id of the second many-association target
//
// Path segments are joined with "/" and array elements are addressed by a
// "[index]" marker appended to the collection name. Every stored array has
// a sibling "<path>/__size__" field. Writers MUST keep that field exact,
// since query compilation uses it as the upper bound for slot enumeration.
//
// QUERIES:
//
// Query is a sealed interface (marker method pattern). The grammar is the
// minimum an index-oriented store has to offer: exact term match, wildcard
// match, field existence, id membership, boolean composition and match-all.
// Search adds a top-N descending numeric sort, used to find the maximum
// collection size among documents of one type.
//
// Bool semantics: every Must clause matches, no MustNot clause matches, and
// when Should is non-empty at least one Should clause matches. An empty Bool
// therefore matches everything; use MatchNone for the empty result.
package record
