package recordstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/entigraph/internal/engine"
	"github.com/roach88/entigraph/internal/query"
	"github.com/roach88/entigraph/internal/record"
	"github.com/roach88/entigraph/internal/schema"
)

// Store implements engine.Store over a record.Store.
type Store struct {
	records  record.Store
	registry *schema.Registry
	logger   *slog.Logger
}

var _ engine.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for compilation traces. The default is
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a Store persisting entities of registry in records.
func New(records record.Store, registry *schema.Registry, opts ...Option) *Store {
	s := &Store{records: records, registry: registry, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Records returns the underlying record store.
func (s *Store) Records() record.Store {
	return s.records
}

// Compile returns the native query selecting entities of typ matching
// expr. Association sub-queries and collection size lookups run against
// the committed records while compiling.
func (s *Store) Compile(ctx context.Context, typ *schema.Type, expr query.Expression) (record.Query, error) {
	c := &compiler{records: s.records, registry: s.registry, logger: s.logger}
	return c.compile(ctx, typ, expr)
}

func (s *Store) NewUnitOfWork(ctx context.Context) (engine.StoreUnitOfWork, error) {
	return &unitOfWork{store: s}, nil
}

// Close closes the record store.
func (s *Store) Close() error {
	return s.records.Close()
}

// unitOfWork stages one root unit of work's changes as a record.Batch.
type unitOfWork struct {
	store *Store

	batch  *record.Batch
	staged []*State
}

var (
	_ engine.StoreUnitOfWork = (*unitOfWork)(nil)
	_ engine.CloneSupport    = (*unitOfWork)(nil)
	_ engine.SharedIDSpace   = (*unitOfWork)(nil)
)

func (u *unitOfWork) LoadEntityState(ctx context.Context, typ *schema.Type, id string) (engine.CompositeState, error) {
	doc, err := u.store.records.Get(ctx, id)
	if errors.Is(err, record.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s(%s): %w", typ.Name, id, err)
	}
	if doc.Type() != typ.StoreName() {
		return nil, nil
	}
	return NewState(doc), nil
}

// IDInUse reports whether any document has id. Documents of all types
// share the record store's key space.
func (u *unitOfWork) IDInUse(ctx context.Context, id string) (bool, error) {
	_, err := u.store.records.Get(ctx, id)
	if errors.Is(err, record.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (u *unitOfWork) NewEntityState(ctx context.Context, typ *schema.Type, id string) (engine.CompositeState, error) {
	return NewState(record.NewDocument(id, typ.StoreName())), nil
}

// AdoptEntityState accepts a *record.Document or a *State of typ.
func (u *unitOfWork) AdoptEntityState(typ *schema.Type, raw any) (engine.CompositeState, error) {
	var doc *record.Document
	switch v := raw.(type) {
	case *record.Document:
		doc = v
	case *State:
		s, err := entityState(v)
		if err != nil {
			return nil, err
		}
		doc = s.doc
	default:
		return nil, fmt.Errorf("unsupported state type: %T", raw)
	}
	if doc == nil {
		return nil, errors.New("adopt: nil document")
	}
	if doc.Type() != typ.StoreName() {
		return nil, fmt.Errorf("adopt: document %s has type %q, want %q", doc.ID, doc.Type(), typ.StoreName())
	}
	return NewState(doc), nil
}

func (u *unitOfWork) ExecuteQuery(ctx context.Context, q engine.StoreQuery) (engine.StoreResultSet, error) {
	filter, err := u.store.Compile(ctx, q.Type, q.Where)
	if err != nil {
		return nil, err
	}
	u.store.logger.Debug("native query", "type", q.Type.Name, "query", filter.String())
	return newResultSet(ctx, u.store.records, filter, q.FirstResult, q.MaxResults)
}

func (u *unitOfWork) Evaluate(ctx context.Context, typ *schema.Type, state engine.CompositeState, expr query.Expression) (bool, error) {
	s, err := entityState(state)
	if err != nil {
		return false, err
	}
	c := &compiler{records: u.store.records, registry: u.store.registry, logger: u.store.logger, doc: s.doc}
	filter, err := c.compile(ctx, typ, expr)
	if err != nil {
		return false, err
	}
	return record.Match(s.doc, filter)
}

// PrepareCommit stages the changes and verifies their expected versions.
// CREATED entities must not exist yet; MODIFIED and REMOVED ones must
// still have the version they were loaded with.
func (u *unitOfWork) PrepareCommit(ctx context.Context, changes []engine.Change) error {
	batch := &record.Batch{}
	var staged []*State
	for _, ch := range changes {
		s, err := entityState(ch.State)
		if err != nil {
			return err
		}
		switch ch.Status {
		case engine.Created:
			batch.Put(s.doc, "")
			staged = append(staged, s)
		case engine.Modified:
			batch.Put(s.doc, s.doc.Version)
			staged = append(staged, s)
		case engine.Removed:
			if s.doc.Version == "" {
				continue
			}
			batch.Delete(s.doc.ID, s.doc.Version)
		default:
			return fmt.Errorf("prepare %s: unexpected status %s", s, ch.Status)
		}
	}

	if err := u.store.records.Check(ctx, batch); err != nil {
		return u.conflict(changes, err)
	}
	u.batch = batch
	u.staged = staged
	u.store.logger.Debug("commit prepared", "ops", batch.Len())
	return nil
}

// conflict converts a record conflict into a model error naming the
// entity type when all conflicting ids share one.
func (u *unitOfWork) conflict(changes []engine.Change, err error) error {
	var ce *record.ConflictError
	if !errors.As(err, &ce) {
		return err
	}
	return engine.NewConcurrentModificationError(conflictType(changes, ce.IDs), ce.IDs, err)
}

func conflictType(changes []engine.Change, ids []string) string {
	typeName := ""
	for _, ch := range changes {
		if !slices.Contains(ids, ch.State.ID()) {
			continue
		}
		if typeName != "" && typeName != ch.Type.Name {
			return ""
		}
		typeName = ch.Type.Name
	}
	return typeName
}

// Commit applies the prepared batch. Stored documents take their new
// version so later commits in the same unit of work check against it.
func (u *unitOfWork) Commit(ctx context.Context) error {
	if u.batch == nil {
		return errors.New("commit without prepare")
	}
	if err := u.store.records.Apply(ctx, u.batch); err != nil {
		var ce *record.ConflictError
		if errors.As(err, &ce) {
			return engine.NewConcurrentModificationError("", ce.IDs, err)
		}
		return err
	}
	for _, s := range u.staged {
		version, err := s.doc.Hash()
		if err != nil {
			return fmt.Errorf("version of %s: %w", s, err)
		}
		s.doc.Version = version
	}
	u.batch, u.staged = nil, nil
	return nil
}

func (u *unitOfWork) Rollback(ctx context.Context) error {
	u.batch, u.staged = nil, nil
	return nil
}

func (u *unitOfWork) Close() error {
	u.batch, u.staged = nil, nil
	return nil
}

func (u *unitOfWork) CloneEntityState(state engine.CompositeState) (engine.CompositeState, error) {
	s, err := entityState(state)
	if err != nil {
		return nil, err
	}
	return NewState(s.doc.Clone()), nil
}

// ReincorporateEntityState copies the clone's fields into parent. The
// parent keeps its version: it is still the version loaded from the store.
func (u *unitOfWork) ReincorporateEntityState(parent, clone engine.CompositeState) error {
	p, err := entityState(parent)
	if err != nil {
		return err
	}
	c, err := entityState(clone)
	if err != nil {
		return err
	}
	if p.doc.ID != c.doc.ID {
		return fmt.Errorf("reincorporate %s into %s: ids differ", c, p)
	}
	p.doc.Fields = c.doc.Fields.Clone()
	return nil
}

func (u *unitOfWork) Fingerprint(state engine.CompositeState) (string, error) {
	s, err := entityState(state)
	if err != nil {
		return "", err
	}
	return s.doc.Hash()
}

// resultSet streams the committed results of a compiled query.
type resultSet struct {
	records record.Store
	filter  record.Query
	first   int
	max     int

	cur  record.Cursor
	doc  *record.Document
	err  error
	none bool
}

var _ engine.StoreResultSet = (*resultSet)(nil)

func newResultSet(ctx context.Context, records record.Store, filter record.Query, first, limit int) (*resultSet, error) {
	rs := &resultSet{records: records, filter: filter, first: first, max: limit}
	if record.IsMatchNone(filter) {
		rs.none = true
		return rs, nil
	}
	cur, err := records.Find(ctx, record.Search{Filter: filter, Offset: first, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	rs.cur = cur
	return rs, nil
}

func (rs *resultSet) Next(ctx context.Context) bool {
	if rs.none || rs.cur == nil || rs.err != nil {
		return false
	}
	if !rs.cur.Next() {
		rs.err = rs.cur.Err()
		return false
	}
	rs.doc = rs.cur.Document()
	return true
}

func (rs *resultSet) Ref() engine.StateRef {
	return engine.StateRef{ID: rs.doc.ID, State: NewState(rs.doc)}
}

func (rs *resultSet) Err() error {
	return rs.err
}

// Size counts all matches and applies the paging window.
func (rs *resultSet) Size(ctx context.Context) (int, error) {
	if rs.none {
		return 0, nil
	}
	n, err := rs.records.Count(ctx, rs.filter)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	n = max(0, n-rs.first)
	if rs.max > 0 {
		n = min(n, rs.max)
	}
	return n, nil
}

func (rs *resultSet) Close() error {
	if rs.cur == nil {
		return nil
	}
	cur := rs.cur
	rs.cur = nil
	return cur.Close()
}
