// Package controller runs the single control loop that owns the tables.
//
// Commands, binder ticks, fired alarms and persistence flushes are all
// serialized onto the goroutine running Run, so the core never sees two
// mutations interleave.
package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/xlightd/internal/alarm"
	"github.com/dokzlo13/xlightd/internal/command"
	"github.com/dokzlo13/xlightd/internal/core"
	"github.com/dokzlo13/xlightd/internal/ledger"
	"github.com/dokzlo13/xlightd/internal/model"
)

// ErrStopped is returned by Submit and the read calls once Run has returned.
var ErrStopped = errors.New("controller: stopped")

// Default loop settings.
const (
	DefaultTickInterval  = time.Second
	DefaultFlushInterval = 10 * time.Second
	DefaultQueueSize     = 32
)

// Timers is the alarm pool plus the channel its fired handles arrive on.
type Timers interface {
	alarm.Timers
	Fired() <-chan alarm.Handle
	Live() int
	Dropped() uint64
	Spec(h alarm.Handle) (alarm.Spec, bool)
	Next(h alarm.Handle) time.Time
}

// Persister flushes dirty tables and loads them at startup.
type Persister interface {
	Flush(t *core.Tables) error
	Load(t *core.Tables) error
}

// Auditor records controller outcomes.
type Auditor interface {
	AppendWithSource(eventType ledger.EventType, source string, payload map[string]any) (string, error)
}

// Emitter receives the controller's outbound events.
type Emitter interface {
	core.ActionSink
	core.Notifier
	DeviceStatus(row model.DeviceStatusRow)
}

// Options configures a Controller. Zero values fall back to defaults;
// Persister and Auditor are optional.
type Options struct {
	Capacity      core.Capacity
	TickInterval  time.Duration
	FlushInterval time.Duration
	QueueSize     int
	Persister     Persister
	Auditor       Auditor
}

// Result is the outcome of an applied command.
type Result struct {
	Class command.Class `json:"class"`
	Op    string        `json:"op"`
	Row   any           `json:"row"`
}

// Stats summarizes the working set.
type Stats struct {
	Rules        int      `json:"rules"`
	Schedules    int      `json:"schedules"`
	Scenarios    int      `json:"scenarios"`
	LiveAlarms   int      `json:"live_alarms"`
	DroppedFires uint64   `json:"dropped_fires"`
	Dirty        []string `json:"dirty,omitempty"`
}

// AlarmStatus describes the live alarm bound to a schedule.
type AlarmStatus struct {
	Handle string     `json:"handle"`
	Kind   string     `json:"kind"`
	Next   *time.Time `json:"next,omitempty"`
}

type request struct {
	fn   func()
	done chan struct{}
}

// Controller owns the tables and every component acting on them.
type Controller struct {
	tables     *core.Tables
	timers     Timers
	handlers   *core.Handlers
	binder     *core.Binder
	dispatcher *core.Dispatcher
	emitter    Emitter
	opts       Options

	requests chan request
	stopped  chan struct{}
}

// New creates a controller. emitter receives actions, notifications and device status updates.
func New(timers Timers, emitter Emitter, opts Options) *Controller {
	if opts.Capacity == (core.Capacity{}) {
		opts.Capacity = core.DefaultCapacity()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}

	tables := core.NewTables(opts.Capacity)
	c := &Controller{
		tables:   tables,
		timers:   timers,
		handlers: core.NewHandlers(tables, timers),
		binder:   core.NewBinder(tables, timers),
		emitter:  emitter,
		opts:     opts,
		requests: make(chan request, opts.QueueSize),
		stopped:  make(chan struct{}),
	}
	c.dispatcher = core.NewDispatcher(tables, timers, c, c)
	return c
}

// ApplyAction records and forwards an action emitted by the dispatcher.
func (c *Controller) ApplyAction(ev model.ActionEvent) {
	c.audit(ledger.EventActionEmitted, map[string]any{
		"rule_uid":     int(ev.RuleUID),
		"scenario_uid": int(ev.ScenarioUID),
		"filter":       int(ev.Filter),
	})
	if c.emitter != nil {
		c.emitter.ApplyAction(ev)
	}
}

// Notify records and forwards a notification emitted by the dispatcher.
func (c *Controller) Notify(n model.Notification) {
	c.audit(ledger.EventNotificationSent, map[string]any{
		"rule_uid":  int(n.RuleUID),
		"notif_uid": int(n.NotifUID),
	})
	if c.emitter != nil {
		c.emitter.Notify(n)
	}
}

// Load restores persisted tables. Call it before Run.
func (c *Controller) Load() error {
	if c.opts.Persister == nil {
		return nil
	}
	if err := c.opts.Persister.Load(c.tables); err != nil {
		return fmt.Errorf("failed to load tables: %w", err)
	}
	return nil
}

// Run drives the control loop until ctx is cancelled, then flushes once more.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.stopped)

	tick := time.NewTicker(c.opts.TickInterval)
	defer tick.Stop()
	flush := time.NewTicker(c.opts.FlushInterval)
	defer flush.Stop()

	log.Info().
		Dur("tick_interval", c.opts.TickInterval).
		Dur("flush_interval", c.opts.FlushInterval).
		Msg("Controller started")

	c.tick()

	for {
		select {
		case <-ctx.Done():
			c.drain()
			c.flush()
			log.Info().Msg("Controller stopping")
			return nil

		case req := <-c.requests:
			req.fn()
			close(req.done)

		case <-tick.C:
			c.tick()

		case h := <-c.timers.Fired():
			c.fire(h)

		case <-flush.C:
			c.flush()
		}
	}
}

// Submit applies cmd on the control loop and returns the stored row.
func (c *Controller) Submit(ctx context.Context, cmd command.Command) (Result, error) {
	var (
		res Result
		err error
	)
	if doErr := c.do(ctx, func() { res, err = c.apply(cmd) }); doErr != nil {
		return Result{}, doErr
	}
	return res, err
}

// Rules returns a copy of the rule table in traversal order.
func (c *Controller) Rules(ctx context.Context) ([]model.RuleRow, error) {
	var rows []model.RuleRow
	err := c.do(ctx, func() {
		for row := range c.tables.Rules.Rows() {
			rows = append(rows, row)
		}
	})
	return rows, err
}

// Schedules returns a copy of the schedule table in traversal order.
func (c *Controller) Schedules(ctx context.Context) ([]model.ScheduleRow, error) {
	var rows []model.ScheduleRow
	err := c.do(ctx, func() {
		for row := range c.tables.Schedules.Rows() {
			rows = append(rows, row)
		}
	})
	return rows, err
}

// Scenarios returns a copy of the scenario table in traversal order.
func (c *Controller) Scenarios(ctx context.Context) ([]model.ScenarioRow, error) {
	var rows []model.ScenarioRow
	err := c.do(ctx, func() {
		for row := range c.tables.Scenarios.Rows() {
			rows = append(rows, row)
		}
	})
	return rows, err
}

// Stats returns table occupancy and the live alarm count.
func (c *Controller) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := c.do(ctx, func() {
		s = Stats{
			Rules:        c.tables.Rules.Len(),
			Schedules:    c.tables.Schedules.Len(),
			Scenarios:    c.tables.Scenarios.Len(),
			LiveAlarms:   c.timers.Live(),
			DroppedFires: c.timers.Dropped(),
		}
		for _, k := range core.Kinds {
			if c.tables.IsDirty(k) {
				s.Dirty = append(s.Dirty, string(k))
			}
		}
	})
	return s, err
}

// Alarms returns the live alarm of every bound schedule, keyed by schedule uid.
func (c *Controller) Alarms(ctx context.Context) (map[model.UID]AlarmStatus, error) {
	out := make(map[model.UID]AlarmStatus)
	err := c.do(ctx, func() {
		for sched := range c.tables.Schedules.Rows() {
			if sched.Alarm.IsZero() {
				continue
			}
			spec, ok := c.timers.Spec(sched.Alarm)
			if !ok {
				continue
			}
			status := AlarmStatus{Handle: sched.Alarm.String(), Kind: spec.Kind.String()}
			// Next is zero until the pool is started.
			if next := c.timers.Next(sched.Alarm); !next.IsZero() {
				status.Next = &next
			}
			out[sched.UID] = status
		}
	})
	return out, err
}

// do runs fn on the control loop and waits for it.
func (c *Controller) do(ctx context.Context, fn func()) error {
	req := request{fn: fn, done: make(chan struct{})}
	select {
	case c.requests <- req:
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.done:
		return nil
	case <-c.stopped:
		// drain ran it or dropped it; done tells which.
		select {
		case <-req.done:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain runs requests already queued when the loop stops.
func (c *Controller) drain() {
	for {
		select {
		case req := <-c.requests:
			req.fn()
			close(req.done)
		default:
			return
		}
	}
}

func (c *Controller) apply(cmd command.Command) (Result, error) {
	res := Result{Class: cmd.Class, Op: cmd.Op.String()}
	var err error

	switch cmd.Class {
	case command.ClassRule:
		var row model.RuleRow
		row, err = c.handlers.ApplyRule(*cmd.Rule)
		res.Row = row
	case command.ClassSchedule:
		var row model.ScheduleRow
		row, err = c.handlers.ApplySchedule(*cmd.Schedule)
		res.Row = row
	case command.ClassScenario:
		var row model.ScenarioRow
		row, err = c.handlers.ApplyScenario(*cmd.Scenario)
		res.Row = row
	case command.ClassDevice:
		var row model.DeviceStatusRow
		row, err = c.handlers.ApplyDeviceStatus(*cmd.Device)
		res.Row = row
		if err == nil && cmd.Op == model.OpPut && c.emitter != nil {
			c.emitter.DeviceStatus(row)
		}
	default:
		err = fmt.Errorf("%q: %w", cmd.Class, command.ErrUnknownClass)
	}

	if cmd.Op != model.OpGet {
		c.recordCommand(cmd, err)
	}
	return res, err
}

func (c *Controller) tick() {
	report := c.binder.Tick()
	if report.Bound > 0 || len(report.Errors) > 0 {
		log.Debug().
			Int("bound", report.Bound).
			Int("skipped", report.Skipped).
			Int("errors", len(report.Errors)).
			Msg("Binder pass")
	}
	if report.Bound > 0 {
		c.audit(ledger.EventAlarmBound, map[string]any{"bound": report.Bound})
	}
}

func (c *Controller) fire(h alarm.Handle) {
	err := c.dispatcher.Dispatch(h)
	payload := map[string]any{"handle": h.String()}
	if err != nil {
		payload["error"] = err.Error()
	}
	if errors.Is(err, core.ErrAlarmOrphaned) {
		c.audit(ledger.EventAlarmOrphaned, payload)
		return
	}
	c.audit(ledger.EventAlarmFired, payload)
}

func (c *Controller) flush() {
	if c.opts.Persister == nil {
		return
	}
	if err := c.opts.Persister.Flush(c.tables); err != nil {
		log.Error().Err(err).Msg("Persistence flush failed, will retry")
	}
}

func (c *Controller) recordCommand(cmd command.Command, err error) {
	payload := map[string]any{
		"class": string(cmd.Class),
		"op":    cmd.Op.String(),
		"uid":   int(cmd.UID),
	}
	if err != nil {
		payload["error"] = err.Error()
		c.audit(ledger.EventCommandRejected, payload)
		return
	}
	c.audit(ledger.EventCommandApplied, payload)
}

func (c *Controller) audit(eventType ledger.EventType, payload map[string]any) {
	if c.opts.Auditor == nil {
		return
	}
	if _, err := c.opts.Auditor.AppendWithSource(eventType, "controller", payload); err != nil {
		log.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to record ledger event")
	}
}
