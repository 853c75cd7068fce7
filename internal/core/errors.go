package core

import "errors"

// Outcomes reported by the change handlers, the binder and the dispatcher.
// None of them is fatal: tables are left in their last valid state.
//
//	if errors.Is(err, core.ErrCapacityExceeded) {
//	    // reject the command upstream
//	}
var (
	// ErrNotFound is returned when a referenced uid is absent.
	ErrNotFound = errors.New("core: not found")

	// ErrCapacityExceeded is returned when a table is full and nothing can be evicted.
	ErrCapacityExceeded = errors.New("core: capacity exceeded")

	// ErrInvalidScheduleSpec is returned for schedule rows that map to no alarm kind.
	ErrInvalidScheduleSpec = errors.New("core: invalid schedule spec")

	// ErrAlarmAllocationFailed is returned when the timer subsystem cannot allocate an alarm.
	ErrAlarmAllocationFailed = errors.New("core: alarm allocation failed")

	// ErrAlarmOrphaned is returned when a fired handle matches no schedule row.
	ErrAlarmOrphaned = errors.New("core: alarm orphaned")

	// ErrUnsupportedOp is returned for operations an entity kind does not accept.
	ErrUnsupportedOp = errors.New("core: unsupported operation")
)
