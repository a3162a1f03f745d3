package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/roach88/entigraph/internal/schema"
)

// Entity is a typed view of one stored entity, bound to one unit of work
// for its whole lifetime.
//
// Property access is inherited from Composite. Every mutation raises the
// entity's status to MODIFIED (CREATED entities stay CREATED) and puts it
// in the unit of work's modified set.
type Entity struct {
	Composite
	status atomic.Int32
}

func newEntity(u *UnitOfWork, typ *schema.Type, state CompositeState, status Status) *Entity {
	e := &Entity{}
	e.Composite = Composite{uow: u, typ: typ, state: state, owner: e}
	e.status.Store(int32(status))
	return e
}

// ID returns the entity identifier.
func (e *Entity) ID() string {
	return e.state.ID()
}

// Status returns the entity's current status.
func (e *Entity) Status() Status {
	return Status(e.status.Load())
}

// UnitOfWork returns the unit of work the entity belongs to.
func (e *Entity) UnitOfWork() *UnitOfWork {
	return e.uow
}

func (e *Entity) String() string {
	return fmt.Sprintf("%s(%s)", e.typ.Name, e.ID())
}

func (e *Entity) key() entityKey {
	return entityKey{typ: e.typ.Name, id: e.ID()}
}

func (e *Entity) setStatus(s Status) {
	e.status.Store(int32(s))
}

func (e *Entity) raise(next Status) {
	for {
		old := e.status.Load()
		updated := int32(Status(old).raise(next))
		if updated == old || e.status.CompareAndSwap(old, updated) {
			return
		}
	}
}

// checkUsable fails for entities of a closed unit of work and for
// evicted entities.
func (e *Entity) checkUsable() error {
	if e.uow.closed {
		return errClosed()
	}
	if e.Status() == Evicted {
		return &ModelError{
			Code:      ErrCodeEntityEvicted,
			Message:   "entity was evicted from its unit of work",
			Type:      e.typ.Name,
			EntityIDs: []string{e.ID()},
		}
	}
	return nil
}

// checkWritable additionally fails for removed entities.
func (e *Entity) checkWritable() error {
	if err := e.checkUsable(); err != nil {
		return err
	}
	if e.Status() == Removed {
		return &ModelError{
			Code:      ErrCodeUsage,
			Message:   "entity is removed",
			Type:      e.typ.Name,
			EntityIDs: []string{e.ID()},
		}
	}
	return nil
}

// snapshot returns a func that restores e's status and modified-set
// membership, for changes rolled back before they took effect.
func (e *Entity) snapshot() func() {
	status := e.Status()
	_, listed := e.uow.modified.get(e.key())
	return func() {
		e.setStatus(status)
		if !listed {
			e.uow.modified.remove(e.key())
		}
	}
}

// touch records a mutation.
func (e *Entity) touch() {
	e.raise(Modified)
	e.uow.modified.add(e)
	e.uow.invalidatePrepare()
}
