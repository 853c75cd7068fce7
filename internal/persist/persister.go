package persist

import (
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/xlightd/internal/core"
	"github.com/dokzlo13/xlightd/internal/model"
	"github.com/dokzlo13/xlightd/internal/table"
)

// Persister flushes dirty tables and rebuilds them at startup.
type Persister struct {
	rules     *TypedStore[model.RuleRow]
	schedules *TypedStore[model.ScheduleRow]
	scenarios *TypedStore[model.ScenarioRow]
	device    *TypedStore[model.DeviceStatusRow]
}

// NewPersister creates a persister over store.
func NewPersister(store *Store) *Persister {
	return &Persister{
		rules:     NewTypedStore(store, string(core.KindRule), func(r model.RuleRow) int { return int(r.UID) }),
		schedules: NewTypedStore(store, string(core.KindSchedule), func(r model.ScheduleRow) int { return int(r.UID) }),
		scenarios: NewTypedStore(store, string(core.KindScenario), func(r model.ScenarioRow) int { return int(r.UID) }),
		device:    NewTypedStore(store, string(core.KindDevice), func(model.DeviceStatusRow) int { return 0 }),
	}
}

// Flush writes every dirty table, marks its rows SAVED and clears the flag.
// A failed kind stays dirty and is retried on the next flush.
func (p *Persister) Flush(t *core.Tables) error {
	var errs []error
	for _, k := range core.Kinds {
		if !t.IsDirty(k) {
			continue
		}
		if err := p.flushKind(t, k); err != nil {
			log.Error().Err(err).Str("kind", string(k)).Msg("Failed to flush table")
			errs = append(errs, err)
			continue
		}
		t.MarkSaved(k)
		t.ClearDirty(k)
		log.Debug().Str("kind", string(k)).Msg("Table flushed")
	}
	return errors.Join(errs...)
}

func (p *Persister) flushKind(t *core.Tables, k core.Kind) error {
	switch k {
	case core.KindRule:
		return p.rules.Replace(slices.Collect(t.Rules.Rows()))
	case core.KindSchedule:
		return p.schedules.Replace(slices.Collect(t.Schedules.Rows()))
	case core.KindScenario:
		return p.scenarios.Replace(slices.Collect(t.Scenarios.Rows()))
	case core.KindDevice:
		return p.device.Replace([]model.DeviceStatusRow{t.Device})
	}
	return fmt.Errorf("unknown table kind %q", k)
}

// Load fills empty tables from storage. Loaded rows are SAVED and UNEXECUTED;
// alarm handles do not survive a restart, so the binder rebinds every rule.
func (p *Persister) Load(t *core.Tables) error {
	rules, err := p.rules.All()
	if err != nil {
		return err
	}
	n := loadRows(t.Rules, rules, func(r *model.RuleRow) { r.Flash, r.Run = model.Saved, model.Unexecuted })

	schedules, err := p.schedules.All()
	if err != nil {
		return err
	}
	m := loadRows(t.Schedules, schedules, func(r *model.ScheduleRow) { r.Flash, r.Run = model.Saved, model.Unexecuted })

	scenarios, err := p.scenarios.All()
	if err != nil {
		return err
	}
	c := loadRows(t.Scenarios, scenarios, func(r *model.ScenarioRow) { r.Flash = model.Saved })

	device, err := p.device.All()
	if err != nil {
		return err
	}
	if len(device) > 0 {
		t.Device = device[0]
		t.Device.Flash = model.Saved
	}

	log.Info().
		Int("rules", n).
		Int("schedules", m).
		Int("scenarios", c).
		Bool("device_status", len(device) > 0).
		Msg("Tables loaded")
	return nil
}

// Clear drops every stored row.
func (p *Persister) Clear() error {
	return p.rules.store.Clear("")
}

func loadRows[R table.Row](tbl *table.Table[R], rows []R, reset func(*R)) int {
	loaded := 0
	for _, row := range rows {
		if _, ok := tbl.SearchUID(row.Key()); ok {
			log.Warn().Uint8("uid", uint8(row.Key())).Msg("Duplicate stored row, skipping")
			continue
		}
		reset(&row)
		if _, err := tbl.Add(row); err != nil {
			log.Warn().Int("stored", len(rows)).Int("capacity", tbl.Cap()).Msg("Stored rows exceed table capacity, truncating")
			break
		}
		loaded++
	}
	return loaded
}
