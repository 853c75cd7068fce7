package core

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/xlightd/internal/alarm"
	"github.com/dokzlo13/xlightd/internal/model"
	"github.com/dokzlo13/xlightd/internal/table"
)

// Handlers apply normalized rows to the tables. Rows reaching a handler are
// already range-validated by the command boundary.
//
// POST and PUT are both upserts. GET is read-only. DELETE removes the row and
// reports ErrNotFound when the uid is absent.
type Handlers struct {
	tables *Tables
	timers alarm.Timers
}

// NewHandlers creates the change handlers for t.
func NewHandlers(t *Tables, timers alarm.Timers) *Handlers {
	return &Handlers{tables: t, timers: timers}
}

// ApplyRule applies row according to row.Op and returns the stored row.
func (h *Handlers) ApplyRule(row model.RuleRow) (model.RuleRow, error) {
	switch row.Op {
	case model.OpGet:
		return lookup(h.tables.Rules, row.UID)
	case model.OpDelete:
		return h.deleteRule(row.UID)
	}

	// A rule moving to another schedule gives up the alarm it owned there.
	if idx, ok := h.tables.Rules.SearchUID(row.UID); ok {
		if existing, err := h.tables.Rules.Get(idx); err == nil && existing.ScheduleUID != row.ScheduleUID {
			h.releaseOwnedAlarm(existing)
		}
	}

	evict := func(idx int) {
		if victim, err := h.tables.Rules.Get(idx); err == nil {
			h.releaseOwnedAlarm(victim)
		}
	}
	if err := upsert(h.tables.Rules, row, evict); err != nil {
		return row, fmt.Errorf("rule %d: %w", row.UID, err)
	}
	h.tables.MarkDirty(KindRule)

	log.Debug().
		Uint8("rule_uid", uint8(row.UID)).
		Uint8("schedule_uid", uint8(row.ScheduleUID)).
		Uint8("scenario_uid", uint8(row.ScenarioUID)).
		Str("op", row.Op.String()).
		Msg("Rule stored")
	return row, nil
}

// ApplySchedule applies row according to row.Op and returns the stored row.
//
// When an executed row is overwritten, its still-live alarm handle is carried
// over so the binder can cancel and replace it. Rules referencing the schedule
// are reset to UNEXECUTED so they get bound again.
func (h *Handlers) ApplySchedule(row model.ScheduleRow) (model.ScheduleRow, error) {
	switch row.Op {
	case model.OpGet:
		return lookup(h.tables.Schedules, row.UID)
	case model.OpDelete:
		return h.deleteSchedule(row.UID)
	}

	row.Alarm = alarm.NoHandle
	if idx, ok := h.tables.Schedules.SearchUID(row.UID); ok {
		if existing, err := h.tables.Schedules.Get(idx); err == nil && existing.Run == model.Executed && h.live(existing.Alarm) {
			row.Alarm = existing.Alarm
		}
	}

	evict := func(idx int) {
		victim, err := h.tables.Schedules.Get(idx)
		if err == nil && h.live(victim.Alarm) {
			h.timers.CancelAndFree(victim.Alarm)
		}
	}
	if err := upsert(h.tables.Schedules, row, evict); err != nil {
		return row, fmt.Errorf("schedule %d: %w", row.UID, err)
	}
	h.tables.MarkDirty(KindSchedule)

	if row.Run == model.Unexecuted {
		h.rearmRules(row.UID)
	}

	log.Debug().
		Uint8("schedule_uid", uint8(row.UID)).
		Stringer("weekdays", row.Weekdays).
		Bool("repeat", row.IsRepeat).
		Uint8("hour", row.Hour).
		Uint8("min", row.Min).
		Stringer("handle", row.Alarm).
		Str("op", row.Op.String()).
		Msg("Schedule stored")
	return row, nil
}

// ApplyScenario applies row according to row.Op and returns the stored row.
func (h *Handlers) ApplyScenario(row model.ScenarioRow) (model.ScenarioRow, error) {
	switch row.Op {
	case model.OpGet:
		return lookup(h.tables.Scenarios, row.UID)
	case model.OpDelete:
		idx, ok := h.tables.Scenarios.SearchUID(row.UID)
		if !ok {
			return row, fmt.Errorf("scenario %d: %w", row.UID, ErrNotFound)
		}
		existing, _ := h.tables.Scenarios.Get(idx)
		_ = h.tables.Scenarios.Remove(idx)
		h.tables.MarkDirty(KindScenario)
		log.Debug().Uint8("scenario_uid", uint8(row.UID)).Msg("Scenario deleted")
		return existing, nil
	}

	if err := upsert(h.tables.Scenarios, row, nil); err != nil {
		return row, fmt.Errorf("scenario %d: %w", row.UID, err)
	}
	h.tables.MarkDirty(KindScenario)

	log.Debug().
		Uint8("scenario_uid", uint8(row.UID)).
		Uint8("filter", row.Filter).
		Str("op", row.Op.String()).
		Msg("Scenario stored")
	return row, nil
}

// ApplyDeviceStatus replaces the device status on PUT and reads it on GET.
func (h *Handlers) ApplyDeviceStatus(row model.DeviceStatusRow) (model.DeviceStatusRow, error) {
	switch row.Op {
	case model.OpGet:
		return h.tables.Device, nil
	case model.OpPut:
		h.tables.Device = row
		h.tables.MarkDirty(KindDevice)
		log.Debug().Uint8("device_id", row.ID).Uint8("device_type", row.Type).Msg("Device status stored")
		return row, nil
	default:
		return h.tables.Device, fmt.Errorf("device status %s: %w", row.Op, ErrUnsupportedOp)
	}
}

func (h *Handlers) deleteRule(uid model.UID) (model.RuleRow, error) {
	idx, ok := h.tables.Rules.SearchUID(uid)
	if !ok {
		return model.RuleRow{}, fmt.Errorf("rule %d: %w", uid, ErrNotFound)
	}
	rule, _ := h.tables.Rules.Get(idx)
	h.releaseOwnedAlarm(rule)

	_ = h.tables.Rules.Remove(idx)
	h.tables.MarkDirty(KindRule)
	log.Debug().Uint8("rule_uid", uint8(uid)).Msg("Rule deleted")
	return rule, nil
}

func (h *Handlers) deleteSchedule(uid model.UID) (model.ScheduleRow, error) {
	idx, ok := h.tables.Schedules.SearchUID(uid)
	if !ok {
		return model.ScheduleRow{}, fmt.Errorf("schedule %d: %w", uid, ErrNotFound)
	}
	sched, _ := h.tables.Schedules.Get(idx)
	if h.live(sched.Alarm) {
		h.timers.CancelAndFree(sched.Alarm)
	}
	_ = h.tables.Schedules.Remove(idx)
	h.tables.MarkDirty(KindSchedule)
	log.Debug().Uint8("schedule_uid", uint8(uid)).Stringer("handle", sched.Alarm).Msg("Schedule deleted")
	return sched, nil
}

// releaseOwnedAlarm frees the alarm rule holds on its schedule, if any, and
// leaves the schedule UNEXECUTED so another rule can bind it.
func (h *Handlers) releaseOwnedAlarm(rule model.RuleRow) {
	sIdx, ok := h.tables.Schedules.SearchUID(rule.ScheduleUID)
	if !ok {
		return
	}
	sched, err := h.tables.Schedules.Get(sIdx)
	if err != nil || !h.live(sched.Alarm) {
		return
	}
	if owner, tagged := h.timers.OwnerOf(sched.Alarm); !tagged || model.UID(owner) != rule.UID {
		return
	}
	h.timers.CancelAndFree(sched.Alarm)
	log.Debug().
		Uint8("rule_uid", uint8(rule.UID)).
		Uint8("schedule_uid", uint8(sched.UID)).
		Stringer("handle", sched.Alarm).
		Msg("Released rule alarm")
	sched.Alarm = alarm.NoHandle
	sched.Run = model.Unexecuted
	_ = h.tables.Schedules.Set(sIdx, sched)
	h.tables.MarkDirty(KindSchedule)
}

// rearmRules marks every executed rule referencing schedule uid as UNEXECUTED.
func (h *Handlers) rearmRules(uid model.UID) {
	for idx, rule := range h.tables.Rules.All() {
		if rule.ScheduleUID != uid || rule.Run != model.Executed {
			continue
		}
		rule.Run = model.Unexecuted
		_ = h.tables.Rules.Set(idx, rule)
	}
}

func (h *Handlers) live(handle alarm.Handle) bool {
	return !handle.IsZero() && h.timers.IsLive(handle)
}

// upsert sets row in place when its uid exists, otherwise adds it, evicting
// one outdated row when the table is full. beforeEvict sees the victim slot.
func upsert[R table.Row](tbl *table.Table[R], row R, beforeEvict func(idx int)) error {
	if idx, ok := tbl.SearchUID(row.Key()); ok {
		return tbl.Set(idx, row)
	}
	if tbl.IsFull() {
		victim, ok := tbl.FirstOutdated()
		if !ok {
			return ErrCapacityExceeded
		}
		if beforeEvict != nil {
			beforeEvict(victim)
		}
		if err := tbl.DeleteOneOutdatedRow(); err != nil {
			return ErrCapacityExceeded
		}
	}
	_, err := tbl.Add(row)
	if errors.Is(err, table.ErrFull) {
		return ErrCapacityExceeded
	}
	return err
}

func lookup[R table.Row](tbl *table.Table[R], uid model.UID) (R, error) {
	idx, ok := tbl.SearchUID(uid)
	if !ok {
		var zero R
		return zero, fmt.Errorf("uid %d: %w", uid, ErrNotFound)
	}
	return tbl.Get(idx)
}
