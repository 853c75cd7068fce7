package core

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/xlightd/internal/alarm"
	"github.com/dokzlo13/xlightd/internal/model"
)

// Binder turns unexecuted rules into live alarms. It runs once per control
// loop tick; rules it cannot bind keep their run flag and are retried.
type Binder struct {
	tables *Tables
	timers alarm.Timers
}

// NewBinder creates a binder over t.
func NewBinder(t *Tables, timers alarm.Timers) *Binder {
	return &Binder{tables: t, timers: timers}
}

// BindReport summarizes one binder pass.
type BindReport struct {
	Bound   int
	Skipped int
	Errors  []error
}

// AlarmSpecFor maps a schedule row to the alarm it requires:
//
//	repeat, weekdays 1-7  -> weekly at (weekday, hour, min, 0)
//	repeat, weekdays 0    -> daily at (hour, min, 0)
//	one-shot, weekdays 1-7 -> once at (weekday, hour, min, 0)
//
// Anything else is ErrInvalidScheduleSpec.
func AlarmSpecFor(s model.ScheduleRow) (alarm.Spec, error) {
	if s.Hour > 23 || s.Min > 59 || !s.Weekdays.Valid() {
		return alarm.Spec{}, fmt.Errorf("schedule %d: %w", s.UID, ErrInvalidScheduleSpec)
	}
	spec := alarm.Spec{Hour: int(s.Hour), Min: int(s.Min)}
	switch {
	case s.IsRepeat && s.Weekdays != model.Daily:
		spec.Kind = alarm.KindWeekly
		spec.Weekday = s.Weekdays.Time()
	case s.IsRepeat:
		spec.Kind = alarm.KindDaily
	case s.Weekdays != model.Daily:
		spec.Kind = alarm.KindOnce
		spec.Weekday = s.Weekdays.Time()
	default:
		return alarm.Spec{}, fmt.Errorf("schedule %d: one-shot needs a weekday: %w", s.UID, ErrInvalidScheduleSpec)
	}
	return spec, nil
}

// Tick binds every UNEXECUTED rule whose schedule is known.
func (b *Binder) Tick() BindReport {
	var report BindReport
	for idx, rule := range b.tables.Rules.All() {
		if rule.Run != model.Unexecuted {
			continue
		}
		bound, err := b.bind(idx, rule)
		switch {
		case err != nil:
			report.Errors = append(report.Errors, err)
		case bound:
			report.Bound++
		default:
			report.Skipped++
		}
	}
	return report
}

func (b *Binder) bind(ruleIdx int, rule model.RuleRow) (bool, error) {
	logger := log.With().
		Uint8("rule_uid", uint8(rule.UID)).
		Uint8("schedule_uid", uint8(rule.ScheduleUID)).
		Logger()

	sIdx, ok := b.tables.Schedules.SearchUID(rule.ScheduleUID)
	if !ok {
		logger.Warn().Msg("Rule references unknown schedule, skipping")
		return false, fmt.Errorf("rule %d: schedule %d: %w", rule.UID, rule.ScheduleUID, ErrNotFound)
	}
	sched, err := b.tables.Schedules.Get(sIdx)
	if err != nil {
		return false, err
	}

	if sched.Run == model.Executed {
		if owner, tagged := b.timers.OwnerOf(sched.Alarm); tagged && model.UID(owner) == rule.UID && b.timers.IsLive(sched.Alarm) {
			rule.Run = model.Executed
			_ = b.tables.Rules.Set(ruleIdx, rule)
			logger.Debug().Stringer("handle", sched.Alarm).Msg("Rule already bound")
			return false, nil
		}
		logger.Debug().Msg("Schedule already bound, skipping")
		return false, nil
	}

	spec, err := AlarmSpecFor(sched)
	if err != nil {
		logger.Warn().Err(err).Msg("Invalid schedule, skipping until corrected")
		return false, err
	}

	// Replace rather than leak: the previous alarm must go before a new one is taken.
	if !sched.Alarm.IsZero() {
		if b.timers.IsLive(sched.Alarm) {
			b.timers.CancelAndFree(sched.Alarm)
			logger.Debug().Stringer("handle", sched.Alarm).Msg("Cancelled previous alarm")
		}
		sched.Alarm = alarm.NoHandle
		_ = b.tables.Schedules.Set(sIdx, sched)
	}

	h, err := b.create(spec)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to allocate alarm, will retry")
		return false, fmt.Errorf("rule %d: %w: %w", rule.UID, ErrAlarmAllocationFailed, err)
	}
	b.timers.Tag(h, uint8(rule.UID))

	sched.Alarm = h
	sched.Run = model.Executed
	_ = b.tables.Schedules.Set(sIdx, sched)
	rule.Run = model.Executed
	_ = b.tables.Rules.Set(ruleIdx, rule)

	logger.Info().
		Stringer("handle", h).
		Str("kind", spec.Kind.String()).
		Stringer("weekdays", sched.Weekdays).
		Uint8("hour", sched.Hour).
		Uint8("min", sched.Min).
		Msg("Alarm bound")
	return true, nil
}

func (b *Binder) create(spec alarm.Spec) (alarm.Handle, error) {
	switch spec.Kind {
	case alarm.KindWeekly:
		return b.timers.AlarmRepeatWeekly(spec.Weekday, spec.Hour, spec.Min, spec.Sec)
	case alarm.KindDaily:
		return b.timers.AlarmRepeatDaily(spec.Hour, spec.Min, spec.Sec)
	case alarm.KindOnce:
		return b.timers.AlarmOnce(spec.Weekday, spec.Hour, spec.Min, spec.Sec)
	}
	return alarm.NoHandle, errors.New("unknown alarm kind")
}
