package core

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/xlightd/internal/alarm"
	"github.com/dokzlo13/xlightd/internal/model"
)

// ActionSink receives the lighting action of a fired rule.
type ActionSink interface {
	ApplyAction(ev model.ActionEvent)
}

// Notifier receives the notification of a fired rule.
type Notifier interface {
	Notify(n model.Notification)
}

// Dispatcher turns a fired alarm handle into an action and a notification.
type Dispatcher struct {
	tables   *Tables
	timers   alarm.Timers
	actions  ActionSink
	notifier Notifier
}

// NewDispatcher creates a dispatcher over t.
func NewDispatcher(t *Tables, timers alarm.Timers, actions ActionSink, notifier Notifier) *Dispatcher {
	return &Dispatcher{tables: t, timers: timers, actions: actions, notifier: notifier}
}

// Dispatch handles one fired handle. Errors describe why part of the
// dispatch was skipped; the handle is never retried.
func (d *Dispatcher) Dispatch(h alarm.Handle) error {
	sIdx, sched, ok := d.findSchedule(h)
	if !ok {
		log.Warn().Stringer("handle", h).Msg("Fired alarm matches no schedule")
		return fmt.Errorf("%s: %w", h, ErrAlarmOrphaned)
	}

	owner, tagged := d.timers.OwnerOf(h)

	if !sched.IsRepeat {
		_ = d.tables.Schedules.MarkEmpty(sIdx)
		d.tables.MarkDirty(KindSchedule)
		d.timers.CancelAndFree(h)
	}

	logger := log.With().
		Stringer("handle", h).
		Uint8("schedule_uid", uint8(sched.UID)).
		Logger()

	if !tagged {
		logger.Warn().Msg("Fired alarm has no owning rule")
		return fmt.Errorf("%s: owner: %w", h, ErrNotFound)
	}
	ruleUID := model.UID(owner)
	rIdx, ok := d.tables.Rules.SearchUID(ruleUID)
	if !ok {
		logger.Warn().Uint8("rule_uid", owner).Msg("Owning rule no longer exists")
		return fmt.Errorf("rule %d: %w", ruleUID, ErrNotFound)
	}
	rule, _ := d.tables.Rules.Get(rIdx)
	logger = logger.With().Uint8("rule_uid", uint8(rule.UID)).Logger()

	var err error
	if cIdx, ok := d.tables.Scenarios.SearchUID(rule.ScenarioUID); ok {
		scenario, _ := d.tables.Scenarios.Get(cIdx)
		d.emit(rule, scenario)
		logger.Info().Uint8("scenario_uid", uint8(scenario.UID)).Msg("Rule fired")
	} else {
		logger.Warn().Uint8("scenario_uid", uint8(rule.ScenarioUID)).Msg("Rule fired without scenario, no action emitted")
		err = fmt.Errorf("scenario %d: %w", rule.ScenarioUID, ErrNotFound)
	}

	if d.notifier != nil {
		d.notifier.Notify(model.Notification{RuleUID: rule.UID, NotifUID: rule.NotifUID})
	}
	return err
}

func (d *Dispatcher) emit(rule model.RuleRow, scenario model.ScenarioRow) {
	if d.actions != nil {
		d.actions.ApplyAction(model.ActionEvent{
			RuleUID:     rule.UID,
			ScenarioUID: scenario.UID,
			Rings:       scenario.Rings,
			Filter:      scenario.Filter,
		})
	}
	d.tables.Device.Rings = scenario.Rings
	d.tables.Device.Flash = model.Unsaved
	d.tables.MarkDirty(KindDevice)
}

func (d *Dispatcher) findSchedule(h alarm.Handle) (int, model.ScheduleRow, bool) {
	if h.IsZero() {
		return -1, model.ScheduleRow{}, false
	}
	for idx, row := range d.tables.Schedules.All() {
		if row.Alarm == h {
			return idx, row, true
		}
	}
	return -1, model.ScheduleRow{}, false
}
