package engine

import (
	"context"
	"fmt"
)

// LifecycleEvent is a point in a unit of work's commit cycle.
type LifecycleEvent int

const (
	BeforePrepare LifecycleEvent = iota
	AfterPrepare
	BeforeCommit
	AfterCommit
	BeforeRollback
	AfterRollback
)

var lifecycleNames = [...]string{
	"BEFORE_PREPARE", "AFTER_PREPARE",
	"BEFORE_COMMIT", "AFTER_COMMIT",
	"BEFORE_ROLLBACK", "AFTER_ROLLBACK",
}

func (ev LifecycleEvent) String() string {
	if int(ev) < len(lifecycleNames) {
		return lifecycleNames[ev]
	}
	return fmt.Sprintf("LifecycleEvent(%d)", int(ev))
}

// LifecycleHook is called for every entity in the modified set at each
// lifecycle event. An error from a BEFORE_PREPARE hook aborts prepare;
// errors from other events are logged.
type LifecycleHook func(ctx context.Context, event LifecycleEvent, e *Entity) error

func (u *UnitOfWork) fire(ctx context.Context, event LifecycleEvent, entities []*Entity) error {
	for _, e := range entities {
		for _, hook := range u.repo.lifecycle[e.typ.Name] {
			err := hook(ctx, event, e)
			if err == nil {
				continue
			}
			if event == BeforePrepare {
				return fmt.Errorf("%s hook for %s: %w", event, e, err)
			}
			u.logger.Warn("lifecycle hook failed",
				"event", event.String(),
				"entity", e.String(),
				"error", err)
		}
	}
	return nil
}
