package core

import (
	"time"

	"github.com/dokzlo13/xlightd/internal/alarm"
	"github.com/dokzlo13/xlightd/internal/model"
)

type recordingSink struct {
	actions       []model.ActionEvent
	notifications []model.Notification
}

func (r *recordingSink) ApplyAction(ev model.ActionEvent) { r.actions = append(r.actions, ev) }
func (r *recordingSink) Notify(n model.Notification)      { r.notifications = append(r.notifications, n) }

type fixture struct {
	tables     *Tables
	timers     *alarm.CronTimers
	handlers   *Handlers
	binder     *Binder
	dispatcher *Dispatcher
	sink       *recordingSink
}

func newFixture(c Capacity, poolSize int) *fixture {
	tables := NewTables(c)
	timers := alarm.NewCronTimers(poolSize, time.UTC)
	sink := &recordingSink{}
	return &fixture{
		tables:     tables,
		timers:     timers,
		handlers:   NewHandlers(tables, timers),
		binder:     NewBinder(tables, timers),
		dispatcher: NewDispatcher(tables, timers, sink, sink),
		sink:       sink,
	}
}

func smallCapacity() Capacity {
	return Capacity{Rules: 4, Schedules: 4, Scenarios: 4}
}

func ruleRow(op model.OpFlag, uid, schedule, scenario, notif model.UID) model.RuleRow {
	return model.RuleRow{
		Header:      model.Header{Op: op, UID: uid},
		ScheduleUID: schedule,
		ScenarioUID: scenario,
		NotifUID:    notif,
	}
}

func scheduleRow(op model.OpFlag, uid model.UID, repeat bool, weekdays model.Weekday, hour, min uint8) model.ScheduleRow {
	return model.ScheduleRow{
		Header:   model.Header{Op: op, UID: uid},
		IsRepeat: repeat,
		Weekdays: weekdays,
		Hour:     hour,
		Min:      min,
	}
}

func scenarioRow(op model.OpFlag, uid model.UID, ring1 model.Hue, filter uint8) model.ScenarioRow {
	return model.ScenarioRow{
		Header: model.Header{Op: op, UID: uid},
		Rings:  model.Rings{ring1},
		Filter: filter,
	}
}

func fullOn() model.Hue {
	return model.Hue{State: true, CW: 255, WW: 255, R: 255, G: 255, B: 255}
}

func (f *fixture) schedule(uid model.UID) model.ScheduleRow {
	idx, ok := f.tables.Schedules.SearchUID(uid)
	if !ok {
		return model.ScheduleRow{}
	}
	row, _ := f.tables.Schedules.Get(idx)
	return row
}

func (f *fixture) rule(uid model.UID) model.RuleRow {
	idx, ok := f.tables.Rules.SearchUID(uid)
	if !ok {
		return model.RuleRow{}
	}
	row, _ := f.tables.Rules.Get(idx)
	return row
}
