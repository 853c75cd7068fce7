// Package core holds the controller working set and the components that act on it:
// the entity change handlers, the alarm binder and the alarm dispatcher.
//
// All of them share one Tables value passed by reference. Nothing here is
// safe for concurrent use; the controller loop serializes every call.
package core

import (
	"github.com/dokzlo13/xlightd/internal/model"
	"github.com/dokzlo13/xlightd/internal/table"
)

// Kind names a table of the working set.
type Kind string

const (
	KindRule     Kind = "rule"
	KindSchedule Kind = "schedule"
	KindScenario Kind = "scenario"
	KindDevice   Kind = "device"
)

// Kinds lists every table kind in flush order.
var Kinds = []Kind{KindRule, KindSchedule, KindScenario, KindDevice}

// Capacity sets the fixed size of each table.
type Capacity struct {
	Rules     int
	Schedules int
	Scenarios int
}

// DefaultCapacity returns the stock table sizes.
func DefaultCapacity() Capacity {
	return Capacity{
		Rules:     model.DefaultRuleCapacity,
		Schedules: model.ScheduleCapacity(model.DefaultScheduleRegionBytes),
		Scenarios: model.DefaultScenarioCapacity,
	}
}

// Tables is the controller working set.
type Tables struct {
	Rules     *table.Table[model.RuleRow]
	Schedules *table.Table[model.ScheduleRow]
	Scenarios *table.Table[model.ScenarioRow]
	Device    model.DeviceStatusRow

	dirty map[Kind]bool
}

// NewTables allocates empty tables of the given capacity.
func NewTables(c Capacity) *Tables {
	return &Tables{
		Rules:     table.New[model.RuleRow](c.Rules),
		Schedules: table.New[model.ScheduleRow](c.Schedules),
		Scenarios: table.New[model.ScenarioRow](c.Scenarios),
		dirty:     make(map[Kind]bool, len(Kinds)),
	}
}

// MarkDirty flags a table for the next persistence flush.
func (t *Tables) MarkDirty(k Kind) { t.dirty[k] = true }

// ClearDirty resets the flag after a successful flush.
func (t *Tables) ClearDirty(k Kind) { delete(t.dirty, k) }

// IsDirty reports whether a table changed since the last flush.
func (t *Tables) IsDirty(k Kind) bool { return t.dirty[k] }

// MarkSaved sets every row of kind k to SAVED.
func (t *Tables) MarkSaved(k Kind) {
	switch k {
	case KindRule:
		markSaved(t.Rules, func(r *model.RuleRow) { r.Flash = model.Saved })
	case KindSchedule:
		markSaved(t.Schedules, func(r *model.ScheduleRow) { r.Flash = model.Saved })
	case KindScenario:
		markSaved(t.Scenarios, func(r *model.ScenarioRow) { r.Flash = model.Saved })
	case KindDevice:
		t.Device.Flash = model.Saved
	}
}

func markSaved[R table.Row](tbl *table.Table[R], save func(*R)) {
	for idx, row := range tbl.All() {
		save(&row)
		_ = tbl.Set(idx, row)
	}
}
