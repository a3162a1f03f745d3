package engine

import (
	"context"
	"iter"
	"time"

	"github.com/roach88/entigraph/internal/query"
	"github.com/roach88/entigraph/internal/schema"
)

// QueryBuilder configures a query over one entity type.
type QueryBuilder struct {
	uow      *UnitOfWork
	typeName string
	where    query.Expression
	first    int
	max      int
}

// Query starts a query for entities of typeName.
func (u *UnitOfWork) Query(typeName string) *QueryBuilder {
	return &QueryBuilder{uow: u, typeName: typeName}
}

// Where sets the filter. Without one every entity matches.
func (q *QueryBuilder) Where(expr query.Expression) *QueryBuilder {
	q.where = expr
	return q
}

// FirstResult skips the first n committed results.
func (q *QueryBuilder) FirstResult(n int) *QueryBuilder {
	q.first = n
	return q
}

// MaxResults caps the committed results at n. Zero means unlimited.
func (q *QueryBuilder) MaxResults(n int) *QueryBuilder {
	q.max = n
	return q
}

// Execute runs the query.
//
// The result merges two halves: committed entities from the store (paged
// by FirstResult and MaxResults) that are unmodified in this unit of work,
// followed by the entities created or modified in this unit of work that
// match. The uncommitted half is a snapshot taken now; the committed half
// is read lazily while iterating.
func (q *QueryBuilder) Execute(ctx context.Context) (*ResultSet, error) {
	u := q.uow
	if err := u.checkOpen(); err != nil {
		return nil, err
	}
	typ, err := u.entityType(q.typeName)
	if err != nil {
		return nil, err
	}
	if q.first < 0 || q.max < 0 {
		return nil, newError(ErrCodeUsage, "first and max results must not be negative")
	}
	where := q.where
	if where == nil {
		where = query.True{}
	}
	if err := query.Validate(where, typ, u.repo.registry); err != nil {
		return nil, &ModelError{Code: ErrCodeUsage, Message: "invalid query", Type: typ.Name, Err: err}
	}

	start := time.Now()
	defer u.repo.metrics.observeQuery(start)

	source, err := u.committed(ctx, StoreQuery{Type: typ, Where: where, FirstResult: q.first, MaxResults: q.max})
	if err != nil {
		return nil, err
	}

	rs := &ResultSet{ctx: ctx, uow: u, typ: typ, where: where, source: source, seen: make(map[string]bool)}
	for _, e := range u.modified.values() {
		if e.typ != typ {
			continue
		}
		rs.dirty = true
		if s := e.Status(); s != Created && s != Modified {
			continue
		}
		ok, err := u.matches(ctx, e, where)
		if err != nil {
			source.Close()
			return nil, err
		}
		if ok {
			rs.pending = append(rs.pending, e)
		}
	}

	u.logger.Debug("query executed",
		"type", typ.Name,
		"where", where.String(),
		"uncommitted", len(rs.pending))
	return rs, nil
}

// committed opens the committed half of a query: the store for a root
// unit of work, the parent's merged result for a nested one.
func (u *UnitOfWork) committed(ctx context.Context, q StoreQuery) (StoreResultSet, error) {
	if u.parent == nil {
		rs, err := u.store.ExecuteQuery(ctx, q)
		if err != nil {
			return nil, backendFailure("execute query", err)
		}
		return rs, nil
	}
	prs, err := u.parent.Query(q.Type.Name).
		Where(q.Where).
		FirstResult(q.FirstResult).
		MaxResults(q.MaxResults).
		Execute(ctx)
	if err != nil {
		return nil, err
	}
	return &parentResults{rs: prs}, nil
}

// ResultSet is the merged result of a query.
//
// Iterating realizes entities once; later iterations replay the realized
// entities. Close releases the store cursor; an exhausted result set
// releases it itself.
type ResultSet struct {
	ctx    context.Context
	uow    *UnitOfWork
	typ    *schema.Type
	where  query.Expression
	source StoreResultSet

	// pending is the uncommitted half. dirty records whether the
	// modified set held any entity of the type at execution.
	pending []*Entity
	dirty   bool

	realized   []*Entity
	seen       map[string]bool
	sourceDone bool
	done       bool
	err        error
}

// All returns an iterator over the results. It yields a non-nil error at
// most once, as its last element.
func (rs *ResultSet) All() iter.Seq2[*Entity, error] {
	return func(yield func(*Entity, error) bool) {
		for i := 0; ; i++ {
			e, ok, err := rs.at(i)
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok || !yield(e, nil) {
				return
			}
		}
	}
}

// Entities realizes and returns all results.
func (rs *ResultSet) Entities() ([]*Entity, error) {
	var out []*Entity
	for e, err := range rs.All() {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Size returns the number of results. When the unit of work had no
// changes to entities of the queried type, the store's count is used and
// nothing is realized.
func (rs *ResultSet) Size() (int, error) {
	if !rs.dirty && !rs.sourceDone {
		n, err := rs.source.Size(rs.ctx)
		if err != nil {
			return 0, backendFailure("query size", err)
		}
		return n, nil
	}
	all, err := rs.Entities()
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// Close releases the store cursor. Results realized so far remain
// available.
func (rs *ResultSet) Close() error {
	rs.done = true
	return rs.closeSource()
}

func (rs *ResultSet) closeSource() error {
	if rs.sourceDone {
		return nil
	}
	rs.sourceDone = true
	return rs.source.Close()
}

func (rs *ResultSet) at(i int) (*Entity, bool, error) {
	for i >= len(rs.realized) && !rs.done && rs.err == nil {
		rs.err = rs.advance()
	}
	if i < len(rs.realized) {
		return rs.realized[i], true, nil
	}
	return nil, false, rs.err
}

// advance realizes at most one committed result, or the whole uncommitted
// half once the committed one is exhausted.
func (rs *ResultSet) advance() error {
	if err := rs.uow.checkOpen(); err != nil {
		return err
	}

	if !rs.sourceDone {
		if rs.source.Next(rs.ctx) {
			ref := rs.source.Ref()
			_, cloned := rs.uow.cache.Peek(entityKey{typ: rs.typ.Name, id: ref.ID})
			e, err := rs.uow.lookup(rs.ctx, rs.typ, ref.ID, ref.State)
			if err != nil {
				return err
			}
			if e == nil || e.Status() != Loaded {
				return nil
			}
			// A clone taken earlier may predate the parent state that
			// matched.
			if cloned && rs.uow.parent != nil {
				ok, err := rs.uow.matches(rs.ctx, e, rs.where)
				if err != nil || !ok {
					return err
				}
			}
			rs.add(e)
			return nil
		}
		err := rs.source.Err()
		if closeErr := rs.closeSource(); err == nil {
			err = closeErr
		}
		if err != nil {
			return backendFailure("query", err)
		}
		return nil
	}

	for _, e := range rs.pending {
		rs.add(e)
	}
	rs.done = true
	return nil
}

func (rs *ResultSet) add(e *Entity) {
	if rs.seen[e.ID()] {
		return
	}
	rs.seen[e.ID()] = true
	rs.realized = append(rs.realized, e)
}

// parentResults adapts a parent unit of work's result set as the
// committed half of a nested query. Entities are referenced by id only:
// the nested unit of work clones them on lookup.
type parentResults struct {
	rs  *ResultSet
	i   int
	cur *Entity
	err error
}

func (p *parentResults) Next(context.Context) bool {
	e, ok, err := p.rs.at(p.i)
	if err != nil {
		p.err = err
		return false
	}
	if !ok {
		return false
	}
	p.i++
	p.cur = e
	return true
}

func (p *parentResults) Ref() StateRef {
	return StateRef{ID: p.cur.ID()}
}

func (p *parentResults) Err() error {
	return p.err
}

func (p *parentResults) Size(context.Context) (int, error) {
	return p.rs.Size()
}

func (p *parentResults) Close() error {
	return p.rs.Close()
}
