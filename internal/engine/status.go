package engine

import "fmt"

// Status is an entity's position in its unit of work's life cycle.
//
//	LOADED  -> MODIFIED -> LOADED   (commit)
//	(new)   -> CREATED  -> LOADED   (commit)
//	LOADED | MODIFIED | CREATED -> REMOVED -> absent (commit)
//	any     -> EVICTED              (rollback, cache eviction)
type Status int32

const (
	Loaded Status = iota
	Created
	Modified
	Removed
	Evicted
)

var statusNames = [...]string{"LOADED", "CREATED", "MODIFIED", "REMOVED", "EVICTED"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", int32(s))
}

// raise returns the status after a change of kind next is applied to an
// entity in status s. CREATED only gives way to REMOVED, and REMOVED and
// EVICTED are final.
func (s Status) raise(next Status) Status {
	switch {
	case s == Evicted || s == Removed:
		return s
	case next == Removed || next == Evicted:
		return next
	case s == Created:
		return Created
	case next == Modified:
		return Modified
	default:
		return s
	}
}

// Dirty reports whether the status carries uncommitted work.
func (s Status) Dirty() bool {
	return s == Created || s == Modified || s == Removed
}
