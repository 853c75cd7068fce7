// Package alarm provides the timer subsystem the controller binds schedules to.
//
// Alarms are referenced through opaque Handles. A handle is only meaningful
// while IsLive reports true; callers must ask before releasing one.
package alarm

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPoolExhausted is returned when every alarm slot is allocated.
	ErrPoolExhausted = errors.New("alarm: pool exhausted")

	// ErrInvalidTime is returned for out-of-range hour, minute or second values.
	ErrInvalidTime = errors.New("alarm: invalid time")

	// ErrNotLive is returned when firing a handle that is not allocated.
	ErrNotLive = errors.New("alarm: handle not live")

	// ErrFiredQueueFull is returned when a fired handle finds no room in the queue.
	ErrFiredQueueFull = errors.New("alarm: fired queue full")

	// ErrStopped is returned when the pool stops before a fire is delivered.
	ErrStopped = errors.New("alarm: stopped")
)

// Handle references an alarm allocated by a Timers implementation.
// The zero Handle references nothing.
type Handle struct {
	id uint32
}

// NoHandle is the zero handle.
var NoHandle Handle

// IsZero reports whether h references nothing.
func (h Handle) IsZero() bool { return h.id == 0 }

func (h Handle) String() string {
	if h.IsZero() {
		return "none"
	}
	return fmt.Sprintf("alarm#%d", h.id)
}

// Kind is the repetition mode of an alarm.
type Kind uint8

const (
	KindOnce Kind = iota
	KindWeekly
	KindDaily
)

func (k Kind) String() string {
	switch k {
	case KindOnce:
		return "once"
	case KindWeekly:
		return "weekly"
	case KindDaily:
		return "daily"
	default:
		return "unknown"
	}
}

// Spec describes when an alarm fires. Weekday is ignored for daily alarms.
type Spec struct {
	Kind    Kind
	Weekday time.Weekday
	Hour    int
	Min     int
	Sec     int
}

func (s Spec) validate() error {
	if s.Hour < 0 || s.Hour > 23 || s.Min < 0 || s.Min > 59 || s.Sec < 0 || s.Sec > 59 {
		return fmt.Errorf("%w: %02d:%02d:%02d", ErrInvalidTime, s.Hour, s.Min, s.Sec)
	}
	if s.Kind != KindDaily && (s.Weekday < time.Sunday || s.Weekday > time.Saturday) {
		return fmt.Errorf("%w: weekday %d", ErrInvalidTime, s.Weekday)
	}
	return nil
}

// Timers is the contract of the timer subsystem.
type Timers interface {
	// AlarmOnce allocates an alarm firing once at the next matching weekday and time.
	AlarmOnce(day time.Weekday, hour, min, sec int) (Handle, error)
	// AlarmRepeatWeekly allocates an alarm firing every week.
	AlarmRepeatWeekly(day time.Weekday, hour, min, sec int) (Handle, error)
	// AlarmRepeatDaily allocates an alarm firing every day.
	AlarmRepeatDaily(hour, min, sec int) (Handle, error)
	// IsLive reports whether h is currently allocated.
	IsLive(h Handle) bool
	// CancelAndFree cancels h and drops its tag. A handle that is no longer
	// live is tolerated.
	CancelAndFree(h Handle)
	// Tag records the owner of h for reverse lookup.
	Tag(h Handle, owner uint8)
	// OwnerOf returns the owner recorded by Tag.
	OwnerOf(h Handle) (uint8, bool)
}
