package engine

import (
	"context"

	"github.com/roach88/entigraph/internal/ir"
	"github.com/roach88/entigraph/internal/query"
	"github.com/roach88/entigraph/internal/schema"
)

// Store is the backend a Repository persists entities in.
//
// internal/recordstore implements it over any record.Store.
type Store interface {
	// NewUnitOfWork opens a backend unit of work for one root UnitOfWork.
	NewUnitOfWork(ctx context.Context) (StoreUnitOfWork, error)

	Close() error
}

// StoreUnitOfWork is the backend half of a root unit of work.
//
// It is used from one goroutine at a time.
type StoreUnitOfWork interface {
	// LoadEntityState returns the committed state of an entity, or nil if
	// the entity does not exist.
	LoadEntityState(ctx context.Context, typ *schema.Type, id string) (CompositeState, error)

	// NewEntityState returns an empty state for a new entity with its type
	// tag written.
	NewEntityState(ctx context.Context, typ *schema.Type, id string) (CompositeState, error)

	// AdoptEntityState wraps a raw backend handle, such as a stored
	// document read by other means.
	AdoptEntityState(typ *schema.Type, raw any) (CompositeState, error)

	// ExecuteQuery runs a query over the committed data.
	ExecuteQuery(ctx context.Context, q StoreQuery) (StoreResultSet, error)

	// Evaluate evaluates expr against a state directly. The engine uses it
	// for expressions query.Evaluate cannot handle, such as native ones.
	Evaluate(ctx context.Context, typ *schema.Type, state CompositeState, expr query.Expression) (bool, error)

	// PrepareCommit stages changes and verifies they can be committed.
	// Conflicts are reported as CONCURRENT_MODIFICATION model errors.
	PrepareCommit(ctx context.Context, changes []Change) error

	// Commit writes the staged changes.
	Commit(ctx context.Context) error

	// Rollback discards staged changes.
	Rollback(ctx context.Context) error

	Close() error
}

// CloneSupport is implemented by store units of work that support nested
// units of work.
type CloneSupport interface {
	// CloneEntityState returns a deep copy of state.
	CloneEntityState(state CompositeState) (CompositeState, error)

	// ReincorporateEntityState replaces the content of parent with the
	// content of clone.
	ReincorporateEntityState(parent, clone CompositeState) error

	// Fingerprint returns a digest of the state's content. Equal content
	// yields equal fingerprints.
	Fingerprint(state CompositeState) (string, error)
}

// SharedIDSpace is implemented by store units of work whose identifiers
// are unique across all entity types, not only within one.
type SharedIDSpace interface {
	// IDInUse reports whether a stored entity of any type has id.
	IDInUse(ctx context.Context, id string) (bool, error)
}

// StoreQuery is a query over one entity type.
type StoreQuery struct {
	Type  *schema.Type
	Where query.Expression

	// FirstResult skips that many results. MaxResults caps the result
	// count; zero means unlimited.
	FirstResult int
	MaxResults  int
}

// StoreResultSet is a lazy sequence of matching entities.
type StoreResultSet interface {
	Next(ctx context.Context) bool
	Ref() StateRef
	Err() error

	// Size returns the total number of results.
	Size(ctx context.Context) (int, error)

	Close() error
}

// StateRef identifies a query result. State, if not nil, is the preloaded
// state of the entity and saves a load.
type StateRef struct {
	ID    string
	State CompositeState
}

// Change is one entry of the modified set handed to PrepareCommit.
type Change struct {
	Type   *schema.Type
	State  CompositeState
	Status Status
}

// CompositeState holds the physical values of an entity or of one of its
// composites.
//
// Single associations are read and written as the target id wrapped in an
// ir.IRString. Collection elements and many-association ids are addressed
// by index. Implementations keep element indexes dense: removing an
// element shifts the following ones down.
type CompositeState interface {
	// ID returns the entity id, or "" for a composite.
	ID() string

	Get(p *schema.Property) ir.IRValue
	Set(p *schema.Property, v ir.IRValue)

	// Sub returns the composite p, or nil if absent.
	Sub(p *schema.Property) CompositeState
	CreateSub(p *schema.Property, typ *schema.Type) CompositeState
	RemoveSub(p *schema.Property)

	Len(p *schema.Property) int
	At(p *schema.Property, i int) ir.IRValue
	Append(p *schema.Property, v ir.IRValue)
	SubAt(p *schema.Property, i int) CompositeState
	AppendSub(p *schema.Property, typ *schema.Type) CompositeState
	RemoveAt(p *schema.Property, i int)
}
