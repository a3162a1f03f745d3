package engine

import (
	"context"
	"log/slog"
	"slices"

	"github.com/roach88/entigraph/internal/cache"
	"github.com/roach88/entigraph/internal/schema"
)

// UnitOfWork is a transactional view of the repository.
//
// It owns an identity map of entities (each id yields the same *Entity for
// the unit of work's lifetime unless evicted) and the modified set of
// entities with uncommitted changes. A root unit of work is backed by a
// store unit of work; a nested one (see NewUnitOfWork) works on clones of
// its parent's entities and merges them back at prepare.
//
// A UnitOfWork must not be used from multiple goroutines at once.
type UnitOfWork struct {
	repo   *Repository
	parent *UnitOfWork
	logger *slog.Logger

	// store backs a root unit of work; clones serves a nested one.
	store  StoreUnitOfWork
	clones CloneSupport

	cache    cache.Cache[entityKey, *Entity]
	modified *modifiedSet

	// fingerprints records, per entity cloned from the parent, the
	// parent state's fingerprint at clone (or last merge) time.
	fingerprints map[entityKey]string

	children   int
	prepared   bool
	prepareErr error
	locked     bool
	closed     bool
}

type entityKey struct {
	typ string
	id  string
}

func (k entityKey) String() string {
	return k.typ + "(" + k.id + ")"
}

// Initializer sets up a newly created entity.
type Initializer func(e *Entity) error

func newUnitOfWork(r *Repository, parent *UnitOfWork) *UnitOfWork {
	logger := r.logger
	if parent != nil {
		logger = logger.With("nested", true)
	}
	return &UnitOfWork{
		repo:         r,
		parent:       parent,
		logger:       logger,
		modified:     newModifiedSet(),
		fingerprints: make(map[entityKey]string),
	}
}

func (u *UnitOfWork) initCache() error {
	c, err := u.repo.newCache(u.onEvict)
	if err != nil {
		return err
	}
	u.cache = c
	return nil
}

// onEvict retires entities pushed out of a bounded cache. Entities with
// uncommitted work stay reachable through the modified set and are
// republished by the next lookup.
func (u *UnitOfWork) onEvict(_ entityKey, e *Entity) {
	if e.status.CompareAndSwap(int32(Loaded), int32(Evicted)) {
		u.repo.metrics.evict()
	}
}

func (u *UnitOfWork) checkOpen() error {
	if u.closed {
		return errClosed()
	}
	return nil
}

func (u *UnitOfWork) rootStore() StoreUnitOfWork {
	for u.parent != nil {
		u = u.parent
	}
	return u.store
}

func (u *UnitOfWork) entityType(name string) (*schema.Type, error) {
	t, err := u.repo.registry.Entity(name)
	if err != nil {
		return nil, &ModelError{Code: ErrCodeUsage, Message: "entity type", Err: err}
	}
	return t, nil
}

// invalidatePrepare forgets a prepare outcome after further changes.
func (u *UnitOfWork) invalidatePrepare() {
	u.prepared = false
	u.prepareErr = nil
}

// CreateEntity creates a new entity of typeName. An empty id is replaced
// by a generated one; an explicit id must not be in use. Initializers run
// in order; if one fails the entity is discarded.
func (u *UnitOfWork) CreateEntity(ctx context.Context, typeName, id string, inits ...Initializer) (*Entity, error) {
	if err := u.checkOpen(); err != nil {
		return nil, err
	}
	typ, err := u.entityType(typeName)
	if err != nil {
		return nil, err
	}

	if id == "" {
		id = u.repo.idGen.Generate(typ.Name)
	} else if err := u.checkIDFree(ctx, typ, id); err != nil {
		return nil, err
	}

	state, err := u.rootStore().NewEntityState(ctx, typ, id)
	if err != nil {
		return nil, backendFailure("new entity state", err)
	}
	e := newEntity(u, typ, state, Created)
	if _, stored := u.cache.PutIfAbsent(e.key(), e); !stored {
		return nil, errDuplicate(typ.Name, id)
	}
	u.modified.add(e)
	u.invalidatePrepare()

	for _, init := range inits {
		if err := init(e); err != nil {
			u.cache.Remove(e.key())
			u.modified.remove(e.key())
			e.setStatus(Evicted)
			return nil, &ModelError{
				Code:      ErrCodeInitializerFailed,
				Message:   "entity initializer failed",
				Type:      typ.Name,
				EntityIDs: []string{id},
				Err:       err,
			}
		}
	}
	u.logger.Debug("entity created", "entity", e.String())
	return e, nil
}

func errDuplicate(typeName, id string) *ModelError {
	return &ModelError{
		Code:      ErrCodeDuplicateID,
		Message:   "identifier already in use",
		Type:      typeName,
		EntityIDs: []string{id},
	}
}

func (u *UnitOfWork) checkIDFree(ctx context.Context, typ *schema.Type, id string) error {
	key := entityKey{typ: typ.Name, id: id}
	if _, ok := u.cache.Peek(key); ok {
		return errDuplicate(typ.Name, id)
	}
	if _, ok := u.modified.get(key); ok {
		return errDuplicate(typ.Name, id)
	}

	if u.parent != nil {
		pe, err := u.parent.lookup(ctx, typ, id, nil)
		if err != nil {
			return err
		}
		if pe != nil {
			return errDuplicate(typ.Name, id)
		}
		return u.checkSharedID(ctx, typ, id)
	}

	state, err := u.store.LoadEntityState(ctx, typ, id)
	if err != nil {
		return backendFailure("load "+key.String(), err)
	}
	if state != nil {
		return errDuplicate(typ.Name, id)
	}
	return u.checkSharedID(ctx, typ, id)
}

// checkSharedID rejects an id held by an entity of another type when the
// store keeps one id space for all types.
func (u *UnitOfWork) checkSharedID(ctx context.Context, typ *schema.Type, id string) error {
	shared, ok := u.rootStore().(SharedIDSpace)
	if !ok {
		return nil
	}
	for w := u; w != nil; w = w.parent {
		for _, e := range w.modified.values() {
			if e.ID() == id {
				return errSharedID(typ.Name, id, e.typ.Name)
			}
		}
	}
	used, err := shared.IDInUse(ctx, id)
	if err != nil {
		return backendFailure("check id "+id, err)
	}
	if used {
		return errSharedID(typ.Name, id, "")
	}
	return nil
}

func errSharedID(typeName, id, other string) *ModelError {
	err := errDuplicate(typeName, id)
	if other != "" {
		err.Message = "identifier already in use by " + other
	} else {
		err.Message = "identifier already in use by another entity type"
	}
	return err
}

// Entity returns the entity of typeName with id, or nil if it does not
// exist or has been removed in this unit of work.
func (u *UnitOfWork) Entity(ctx context.Context, typeName, id string) (*Entity, error) {
	if err := u.checkOpen(); err != nil {
		return nil, err
	}
	typ, err := u.entityType(typeName)
	if err != nil {
		return nil, err
	}
	e, err := u.lookup(ctx, typ, id, nil)
	if err != nil || e == nil || e.Status() == Removed {
		return nil, err
	}
	return e, nil
}

// lookup returns the cached entity, loading it on a miss. Removed entities
// are returned too. hint, if not nil, is a preloaded state for a miss.
func (u *UnitOfWork) lookup(ctx context.Context, typ *schema.Type, id string, hint CompositeState) (*Entity, error) {
	e, found, err := u.cache.Get(entityKey{typ: typ.Name, id: id}, func(key entityKey) (*Entity, bool, error) {
		return u.load(ctx, typ, key, hint)
	})
	if err != nil || !found {
		return nil, err
	}
	return e, nil
}

func (u *UnitOfWork) load(ctx context.Context, typ *schema.Type, key entityKey, hint CompositeState) (*Entity, bool, error) {
	if e, ok := u.modified.get(key); ok {
		return e, true, nil
	}
	if u.parent != nil {
		return u.cloneFromParent(ctx, typ, key)
	}

	state := hint
	if state == nil {
		var err error
		state, err = u.store.LoadEntityState(ctx, typ, key.id)
		if err != nil {
			return nil, false, backendFailure("load "+key.String(), err)
		}
		if state == nil {
			return nil, false, nil
		}
	}
	u.repo.metrics.load(typ.Name)
	return newEntity(u, typ, state, Loaded), true, nil
}

func (u *UnitOfWork) cloneFromParent(ctx context.Context, typ *schema.Type, key entityKey) (*Entity, bool, error) {
	pe, err := u.parent.lookup(ctx, typ, key.id, nil)
	if err != nil || pe == nil || pe.Status() == Removed {
		return nil, false, err
	}
	clone, err := u.clones.CloneEntityState(pe.state)
	if err != nil {
		return nil, false, backendFailure("clone "+key.String(), err)
	}
	fp, err := u.clones.Fingerprint(pe.state)
	if err != nil {
		return nil, false, backendFailure("fingerprint "+key.String(), err)
	}
	u.fingerprints[key] = fp
	return newEntity(u, typ, clone, Loaded), true, nil
}

// EntityForState adopts a raw backend handle, such as a stored document,
// as a LOADED entity. If the entity is already cached the cached instance
// is returned.
func (u *UnitOfWork) EntityForState(ctx context.Context, typeName string, raw any) (*Entity, error) {
	if err := u.checkOpen(); err != nil {
		return nil, err
	}
	typ, err := u.entityType(typeName)
	if err != nil {
		return nil, err
	}

	if u.parent != nil {
		pe, err := u.parent.EntityForState(ctx, typeName, raw)
		if err != nil || pe == nil {
			return nil, err
		}
		return u.Entity(ctx, typeName, pe.ID())
	}

	state, err := u.store.AdoptEntityState(typ, raw)
	if err != nil {
		return nil, backendFailure("adopt entity state", err)
	}
	e := newEntity(u, typ, state, Loaded)
	actual, stored := u.cache.PutIfAbsent(e.key(), e)
	if stored {
		u.repo.metrics.load(typ.Name)
	}
	if actual.Status() == Removed {
		return nil, nil
	}
	return actual, nil
}

// RemoveEntity marks e REMOVED. It is deleted from the store at commit.
func (u *UnitOfWork) RemoveEntity(e *Entity) error {
	if err := u.checkOpen(); err != nil {
		return err
	}
	if e.uow != u {
		return newError(ErrCodeUsage, "%s belongs to another unit of work", e)
	}
	if err := e.checkUsable(); err != nil {
		return err
	}
	e.raise(Removed)
	u.modified.add(e)
	u.invalidatePrepare()
	u.logger.Debug("entity removed", "entity", e.String())
	return nil
}

// Modified returns the entities with uncommitted changes in the order
// they were first changed.
func (u *UnitOfWork) Modified() []*Entity {
	return u.modified.values()
}

// Prepare verifies that the unit of work can be committed and stages its
// changes. A root unit of work takes the repository's commit lock, which
// is released again if prepare fails. Preparing again after a success
// without further changes is a no-op; after a failure it runs again, so a
// caller may retry a transient lock failure.
func (u *UnitOfWork) Prepare(ctx context.Context) error {
	if err := u.checkOpen(); err != nil {
		return err
	}
	if u.prepared && u.prepareErr == nil {
		return nil
	}

	var err error
	if u.parent == nil {
		err = u.prepareRoot(ctx)
	} else {
		err = u.prepareNested(ctx)
	}
	u.prepared = true
	u.prepareErr = err
	if err != nil {
		u.repo.metrics.prepareFailed(err)
		u.logger.Debug("prepare failed", "error", err)
	}
	return err
}

func (u *UnitOfWork) prepareRoot(ctx context.Context) error {
	if !u.locked {
		if err := u.repo.lock.Lock(ctx); err != nil {
			return err
		}
		u.locked = true
	}

	if err := u.fire(ctx, BeforePrepare, u.modified.values()); err != nil {
		u.unlock()
		return err
	}

	entities := u.modified.values()
	changes := make([]Change, len(entities))
	for i, e := range entities {
		changes[i] = Change{Type: e.typ, State: e.state, Status: e.Status()}
	}
	if err := u.store.PrepareCommit(ctx, changes); err != nil {
		u.unlock()
		return backendFailure("prepare commit", err)
	}

	u.fire(ctx, AfterPrepare, entities)
	return nil
}

// prepareNested merges the child's changes into the parent. Every change
// is verified before the parent is touched, so a conflict leaves the
// parent unchanged.
func (u *UnitOfWork) prepareNested(ctx context.Context) error {
	p := u.parent
	if err := p.checkOpen(); err != nil {
		return err
	}
	if err := u.fire(ctx, BeforePrepare, u.modified.values()); err != nil {
		return err
	}
	entities := u.modified.values()

	targets := make([]*Entity, len(entities))
	var conflict *ModelError
	for i, ce := range entities {
		key := ce.key()
		_, fromParent := u.fingerprints[key]
		switch {
		case ce.Status() == Created:
			_, cached := p.cache.Peek(key)
			_, modified := p.modified.get(key)
			if cached || modified {
				conflict = addConflict(conflict, ce)
			}
			continue
		case !fromParent:
			// Created and removed again in this unit of work.
			continue
		}

		pe, err := p.lookup(ctx, ce.typ, ce.ID(), nil)
		if err != nil {
			return err
		}
		if pe == nil || pe.Status() == Removed {
			conflict = addConflict(conflict, ce)
			continue
		}
		fp, err := u.clones.Fingerprint(pe.state)
		if err != nil {
			return backendFailure("fingerprint "+key.String(), err)
		}
		if fp != u.fingerprints[key] {
			conflict = addConflict(conflict, ce)
			continue
		}
		targets[i] = pe
	}
	if conflict != nil {
		return conflict
	}

	for i, ce := range entities {
		key := ce.key()
		switch {
		case ce.Status() == Created:
			clone, err := u.clones.CloneEntityState(ce.state)
			if err != nil {
				return backendFailure("clone "+key.String(), err)
			}
			pe := newEntity(p, ce.typ, clone, Created)
			p.cache.PutIfAbsent(key, pe)
			p.modified.add(pe)
			if err := u.refreshFingerprint(key, clone); err != nil {
				return err
			}
		case targets[i] == nil:
		case ce.Status() == Removed:
			targets[i].raise(Removed)
			p.modified.add(targets[i])
			delete(u.fingerprints, key)
		default:
			if err := u.clones.ReincorporateEntityState(targets[i].state, ce.state); err != nil {
				return backendFailure("reincorporate "+key.String(), err)
			}
			targets[i].raise(Modified)
			p.modified.add(targets[i])
			if err := u.refreshFingerprint(key, targets[i].state); err != nil {
				return err
			}
		}
	}
	p.invalidatePrepare()

	u.fire(ctx, AfterPrepare, entities)
	return nil
}

func (u *UnitOfWork) refreshFingerprint(key entityKey, state CompositeState) error {
	fp, err := u.clones.Fingerprint(state)
	if err != nil {
		return backendFailure("fingerprint "+key.String(), err)
	}
	u.fingerprints[key] = fp
	return nil
}

func addConflict(err *ModelError, e *Entity) *ModelError {
	if err == nil {
		err = NewConcurrentModificationError(e.typ.Name, nil, nil)
		err.Message = "entity changed in the enclosing unit of work"
	}
	err.EntityIDs = append(err.EntityIDs, e.ID())
	return err
}

// Commit prepares if needed and makes the changes durable. A nested unit
// of work only merges into its parent; the store is untouched until the
// root commits. Commit after a failed prepare returns NOT_PREPARED until a
// later Prepare succeeds.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if err := u.checkOpen(); err != nil {
		return err
	}
	if !u.prepared {
		_ = u.Prepare(ctx)
	}
	if u.prepareErr != nil {
		return &ModelError{Code: ErrCodeNotPrepared, Message: "prepare failed", Err: u.prepareErr}
	}

	entities := u.modified.values()
	u.fire(ctx, BeforeCommit, entities)

	if u.parent == nil {
		if err := u.store.Commit(ctx); err != nil {
			u.unlock()
			u.invalidatePrepare()
			err = backendFailure("commit", err)
			u.repo.metrics.conflict(err)
			return err
		}
		u.repo.metrics.commit()
	}

	for _, e := range entities {
		if e.Status() == Removed {
			u.cache.Remove(e.key())
			delete(u.fingerprints, e.key())
			continue
		}
		if _, cached := u.cache.Peek(e.key()); !cached {
			// Pushed out of a bounded cache while dirty.
			e.setStatus(Evicted)
			continue
		}
		e.setStatus(Loaded)
	}
	u.modified.clear()
	u.prepared = false
	u.unlock()

	u.fire(ctx, AfterCommit, entities)
	u.logger.Debug("unit of work committed", "entities", len(entities))
	return nil
}

// Rollback discards all changes. Every entity obtained from this unit of
// work becomes EVICTED; later lookups load fresh instances.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if err := u.checkOpen(); err != nil {
		return err
	}

	entities := u.modified.values()
	u.fire(ctx, BeforeRollback, entities)

	var err error
	if u.parent == nil {
		err = backendFailure("rollback", u.store.Rollback(ctx))
		u.repo.metrics.rollback()
	}
	u.fire(ctx, AfterRollback, entities)

	u.evictAll()
	u.invalidatePrepare()
	u.unlock()
	u.logger.Debug("unit of work rolled back", "entities", len(entities))
	return err
}

func (u *UnitOfWork) evictAll() {
	u.cache.Range(func(_ entityKey, e *Entity) bool {
		e.setStatus(Evicted)
		return true
	})
	for _, e := range u.modified.values() {
		e.setStatus(Evicted)
	}
	u.cache.Clear()
	u.modified.clear()
	clear(u.fingerprints)
}

func (u *UnitOfWork) unlock() {
	if u.locked {
		u.repo.lock.Unlock()
		u.locked = false
	}
}

// Close releases the unit of work, discarding uncommitted changes. Close
// is idempotent. Nested units of work must be closed first.
func (u *UnitOfWork) Close() error {
	if u.closed {
		return nil
	}
	if u.children > 0 {
		return newError(ErrCodeUsage, "%d nested units of work are still open", u.children)
	}
	u.closed = true
	u.unlock()
	u.cache.Clear()
	u.modified.clear()

	if u.parent != nil {
		u.parent.children--
		return nil
	}
	u.logger.Debug("unit of work closed")
	return backendFailure("close", u.store.Close())
}

// NewUnitOfWork opens a nested unit of work. It sees this unit of work's
// current state, including uncommitted changes, through private clones;
// its own changes reach this unit of work only when it commits.
func (u *UnitOfWork) NewUnitOfWork() (*UnitOfWork, error) {
	if err := u.checkOpen(); err != nil {
		return nil, err
	}
	clones, ok := u.rootStore().(CloneSupport)
	if !ok {
		return nil, newError(ErrCodeUsage, "store does not support nested units of work")
	}

	child := newUnitOfWork(u.repo, u)
	child.clones = clones
	if err := child.initCache(); err != nil {
		return nil, err
	}
	u.children++
	return child, nil
}

// modifiedSet holds entities with uncommitted changes in insertion order.
type modifiedSet struct {
	order   []entityKey
	entries map[entityKey]*Entity
}

func newModifiedSet() *modifiedSet {
	return &modifiedSet{entries: make(map[entityKey]*Entity)}
}

func (m *modifiedSet) add(e *Entity) {
	key := e.key()
	if _, ok := m.entries[key]; !ok {
		m.order = append(m.order, key)
	}
	m.entries[key] = e
}

func (m *modifiedSet) get(key entityKey) (*Entity, bool) {
	e, ok := m.entries[key]
	return e, ok
}

func (m *modifiedSet) remove(key entityKey) {
	if _, ok := m.entries[key]; !ok {
		return
	}
	delete(m.entries, key)
	m.order = slices.DeleteFunc(m.order, func(k entityKey) bool { return k == key })
}

func (m *modifiedSet) values() []*Entity {
	out := make([]*Entity, len(m.order))
	for i, key := range m.order {
		out[i] = m.entries[key]
	}
	return out
}

func (m *modifiedSet) clear() {
	m.order = nil
	clear(m.entries)
}
