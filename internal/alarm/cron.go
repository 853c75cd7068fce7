package alarm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultPoolSize is the number of alarms a CronTimers can hold at once.
const DefaultPoolSize = 64

// DefaultFiredQueue is the buffer size of the fired-handle channel.
const DefaultFiredQueue = 32

type entry struct {
	spec    Spec
	entryID cron.EntryID
}

// CronTimers is a finite alarm pool backed by a cron scheduler.
// Fired handles are delivered on the Fired channel so a single control loop
// can dispatch them.
type CronTimers struct {
	mu      sync.Mutex
	c       *cron.Cron
	size    int
	nextID  uint32
	entries map[Handle]*entry
	tags    map[Handle]uint8
	fired   chan Handle
	dropped uint64

	stopOnce sync.Once
	done     chan struct{}
}

// NewCronTimers creates a pool of at most size alarms evaluated in loc.
func NewCronTimers(size int, loc *time.Location) *CronTimers {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CronTimers{
		c:       cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		size:    size,
		entries: make(map[Handle]*entry),
		tags:    make(map[Handle]uint8),
		fired:   make(chan Handle, DefaultFiredQueue),
		done:    make(chan struct{}),
	}
}

// Start begins evaluating alarms in the background.
func (t *CronTimers) Start() {
	t.c.Start()
	log.Debug().Int("pool_size", t.size).Msg("Alarm pool started")
}

// Stop halts the scheduler. The returned context is done once running jobs finish.
// Jobs blocked on a full fired queue give up and keep their alarm.
func (t *CronTimers) Stop() context.Context {
	t.stopOnce.Do(func() { close(t.done) })
	return t.c.Stop()
}

// Fired delivers handles whose time arrived.
func (t *CronTimers) Fired() <-chan Handle {
	return t.fired
}

// AlarmOnce implements Timers.
func (t *CronTimers) AlarmOnce(day time.Weekday, hour, min, sec int) (Handle, error) {
	return t.allocate(Spec{Kind: KindOnce, Weekday: day, Hour: hour, Min: min, Sec: sec})
}

// AlarmRepeatWeekly implements Timers.
func (t *CronTimers) AlarmRepeatWeekly(day time.Weekday, hour, min, sec int) (Handle, error) {
	return t.allocate(Spec{Kind: KindWeekly, Weekday: day, Hour: hour, Min: min, Sec: sec})
}

// AlarmRepeatDaily implements Timers.
func (t *CronTimers) AlarmRepeatDaily(hour, min, sec int) (Handle, error) {
	return t.allocate(Spec{Kind: KindDaily, Hour: hour, Min: min, Sec: sec})
}

// IsLive implements Timers.
func (t *CronTimers) IsLive(h Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[h]
	return ok
}

// CancelAndFree implements Timers.
func (t *CronTimers) CancelAndFree(h Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tags, h)
	if e, ok := t.entries[h]; ok {
		t.c.Remove(e.entryID)
		delete(t.entries, h)
	}
}

// Tag implements Timers.
func (t *CronTimers) Tag(h Handle, owner uint8) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[h]; ok {
		t.tags[h] = owner
	}
}

// OwnerOf implements Timers.
func (t *CronTimers) OwnerOf(h Handle) (uint8, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	owner, ok := t.tags[h]
	return owner, ok
}

// Dropped returns how many fires could not be delivered.
func (t *CronTimers) Dropped() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// Spec returns the schedule of a live handle.
func (t *CronTimers) Spec(h Handle) (Spec, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[h]
	if !ok {
		return Spec{}, false
	}
	return e.spec, true
}

// Next returns the next fire time of a live handle. It is zero until Start is called.
func (t *CronTimers) Next(h Handle) time.Time {
	t.mu.Lock()
	e, ok := t.entries[h]
	t.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return t.c.Entry(e.entryID).Next
}

// Live returns the number of allocated alarms.
func (t *CronTimers) Live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Trigger fires h immediately, as if its time had arrived. Unlike a scheduled
// fire it does not wait for room in the fired queue.
func (t *CronTimers) Trigger(h Handle) bool {
	return t.fire(h, false) == nil
}

func (t *CronTimers) allocate(spec Spec) (Handle, error) {
	if err := spec.validate(); err != nil {
		return NoHandle, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.entries) >= t.size {
		return NoHandle, ErrPoolExhausted
	}

	t.nextID++
	if t.nextID == 0 {
		t.nextID = 1
	}
	h := Handle{id: t.nextID}

	id, err := t.c.AddFunc(cronSpec(spec), func() { _ = t.fire(h, true) })
	if err != nil {
		return NoHandle, fmt.Errorf("failed to schedule alarm: %w", err)
	}
	t.entries[h] = &entry{spec: spec, entryID: id}

	log.Debug().
		Str("handle", h.String()).
		Str("kind", spec.Kind.String()).
		Str("at", fmt.Sprintf("%02d:%02d:%02d", spec.Hour, spec.Min, spec.Sec)).
		Msg("Alarm allocated")

	return h, nil
}

// fire delivers h on the fired queue. With wait set it blocks until the
// queue has room or the pool is stopped. A one-shot alarm is consumed only
// once delivered; an undelivered one stays live and fires on its next
// occurrence.
func (t *CronTimers) fire(h Handle, wait bool) error {
	t.mu.Lock()
	_, ok := t.entries[h]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", h, ErrNotLive)
	}

	if err := t.deliver(h, wait); err != nil {
		t.mu.Lock()
		t.dropped++
		t.mu.Unlock()
		log.Error().Err(err).Str("handle", h.String()).Msg("Fired alarm not delivered, keeping it for its next occurrence")
		return err
	}

	t.mu.Lock()
	if e, ok := t.entries[h]; ok && e.spec.Kind == KindOnce {
		t.c.Remove(e.entryID)
		delete(t.entries, h)
	}
	t.mu.Unlock()
	return nil
}

func (t *CronTimers) deliver(h Handle, wait bool) error {
	if !wait {
		select {
		case t.fired <- h:
			return nil
		default:
			return ErrFiredQueueFull
		}
	}
	select {
	case t.fired <- h:
		return nil
	case <-t.done:
		return ErrStopped
	}
}

func cronSpec(s Spec) string {
	if s.Kind == KindDaily {
		return fmt.Sprintf("%d %d %d * * *", s.Sec, s.Min, s.Hour)
	}
	return fmt.Sprintf("%d %d %d * * %d", s.Sec, s.Min, s.Hour, int(s.Weekday))
}
