package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/xlightd/internal/model"
)

func rule(uid model.UID, run model.RunFlag) model.RuleRow {
	return model.RuleRow{Header: model.Header{UID: uid, Run: run}}
}

func schedule(uid model.UID, run model.RunFlag, repeat bool) model.ScheduleRow {
	return model.ScheduleRow{Header: model.Header{UID: uid, Run: run}, IsRepeat: repeat, Weekdays: 1}
}

func uids[R Row](t *Table[R]) []model.UID {
	var out []model.UID
	for row := range t.Rows() {
		out = append(out, row.Key())
	}
	return out
}

func TestAddSearchGet(t *testing.T) {
	tbl := New[model.RuleRow](4)

	idx, err := tbl.Add(rule(7, model.Unexecuted))
	require.NoError(t, err)

	found, ok := tbl.SearchUID(7)
	require.True(t, ok)
	assert.Equal(t, idx, found)

	row, err := tbl.Get(idx)
	require.NoError(t, err)
	assert.Equal(t, model.UID(7), row.UID)

	_, ok = tbl.SearchUID(8)
	assert.False(t, ok)
}

func TestAddFailsWhenFull(t *testing.T) {
	tbl := New[model.RuleRow](2)
	_, err := tbl.Add(rule(1, model.Unexecuted))
	require.NoError(t, err)
	_, err = tbl.Add(rule(2, model.Unexecuted))
	require.NoError(t, err)

	assert.True(t, tbl.IsFull())
	_, err = tbl.Add(rule(3, model.Unexecuted))
	assert.ErrorIs(t, err, ErrFull)
	assert.Equal(t, []model.UID{1, 2}, uids(tbl))
}

func TestSetPreservesPosition(t *testing.T) {
	tbl := New[model.RuleRow](3)
	for _, uid := range []model.UID{1, 2, 3} {
		_, err := tbl.Add(rule(uid, model.Unexecuted))
		require.NoError(t, err)
	}

	idx, _ := tbl.SearchUID(2)
	updated := rule(2, model.Executed)
	updated.ScenarioUID = 9
	require.NoError(t, tbl.Set(idx, updated))

	assert.Equal(t, []model.UID{1, 2, 3}, uids(tbl))
	row, err := tbl.Get(idx)
	require.NoError(t, err)
	assert.Equal(t, model.UID(9), row.ScenarioUID)
}

func TestInvalidIndex(t *testing.T) {
	tbl := New[model.RuleRow](2)

	assert.ErrorIs(t, tbl.Set(0, rule(1, model.Unexecuted)), ErrInvalidIndex)
	assert.ErrorIs(t, tbl.Set(-1, rule(1, model.Unexecuted)), ErrInvalidIndex)
	_, err := tbl.Get(5)
	assert.ErrorIs(t, err, ErrInvalidIndex)
	assert.ErrorIs(t, tbl.Remove(1), ErrInvalidIndex)
}

func TestMarkEmptyHidesRow(t *testing.T) {
	tbl := New[model.ScheduleRow](2)
	idx, err := tbl.Add(schedule(10, model.Executed, false))
	require.NoError(t, err)

	require.NoError(t, tbl.MarkEmpty(idx))

	_, ok := tbl.SearchUID(10)
	assert.False(t, ok)
	_, err = tbl.Get(idx)
	assert.ErrorIs(t, err, ErrEmptyRow)
	assert.Empty(t, uids(tbl))
	assert.Equal(t, 1, tbl.Len())
}

func TestDeleteOneOutdatedRowSchedules(t *testing.T) {
	tbl := New[model.ScheduleRow](3)
	_, _ = tbl.Add(schedule(1, model.Executed, true))
	_, _ = tbl.Add(schedule(2, model.Executed, false))
	_, _ = tbl.Add(schedule(3, model.Unexecuted, false))

	require.NoError(t, tbl.DeleteOneOutdatedRow())
	assert.Equal(t, []model.UID{1, 3}, uids(tbl))
	assert.False(t, tbl.IsFull())

	assert.ErrorIs(t, tbl.DeleteOneOutdatedRow(), ErrNoOutdatedRow)
	assert.Equal(t, []model.UID{1, 3}, uids(tbl))
}

func TestDeleteOneOutdatedRowPrefersFirstInOrder(t *testing.T) {
	tbl := New[model.RuleRow](3)
	_, _ = tbl.Add(rule(1, model.Unexecuted))
	_, _ = tbl.Add(rule(2, model.Executed))
	_, _ = tbl.Add(rule(3, model.Executed))

	require.NoError(t, tbl.DeleteOneOutdatedRow())
	assert.Equal(t, []model.UID{1, 3}, uids(tbl))
}

func TestDeleteOneOutdatedRowReclaimsEmpty(t *testing.T) {
	tbl := New[model.ScheduleRow](2)
	_, _ = tbl.Add(schedule(1, model.Executed, true))
	idx, _ := tbl.Add(schedule(2, model.Executed, true))
	require.NoError(t, tbl.MarkEmpty(idx))
	require.True(t, tbl.IsFull())

	require.NoError(t, tbl.DeleteOneOutdatedRow())
	assert.False(t, tbl.IsFull())

	_, err := tbl.Add(schedule(3, model.Unexecuted, true))
	require.NoError(t, err)
	assert.Equal(t, []model.UID{1, 3}, uids(tbl))
}

func TestFreedSlotIsReusedAtEndOfOrder(t *testing.T) {
	tbl := New[model.RuleRow](3)
	first, _ := tbl.Add(rule(1, model.Unexecuted))
	_, _ = tbl.Add(rule(2, model.Unexecuted))
	_, _ = tbl.Add(rule(3, model.Unexecuted))

	require.NoError(t, tbl.Remove(first))
	idx, err := tbl.Add(rule(4, model.Unexecuted))
	require.NoError(t, err)

	assert.Equal(t, first, idx)
	assert.Equal(t, []model.UID{2, 3, 4}, uids(tbl))
}

func TestAllIsRestartableAndStoppable(t *testing.T) {
	tbl := New[model.RuleRow](4)
	for _, uid := range []model.UID{5, 6, 7} {
		_, _ = tbl.Add(rule(uid, model.Unexecuted))
	}

	assert.Equal(t, []model.UID{5, 6, 7}, uids(tbl))
	assert.Equal(t, []model.UID{5, 6, 7}, uids(tbl))

	count := 0
	for range tbl.All() {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestAllObservesInPlaceUpdates(t *testing.T) {
	tbl := New[model.RuleRow](2)
	_, _ = tbl.Add(rule(1, model.Unexecuted))
	second, _ := tbl.Add(rule(2, model.Unexecuted))

	var seen []model.RunFlag
	for idx, row := range tbl.All() {
		if idx != second {
			require.NoError(t, tbl.Set(second, rule(2, model.Executed)))
		}
		seen = append(seen, row.Run)
	}
	assert.Equal(t, []model.RunFlag{model.Unexecuted, model.Executed}, seen)
}

func TestReset(t *testing.T) {
	tbl := New[model.RuleRow](2)
	_, _ = tbl.Add(rule(1, model.Unexecuted))
	_, _ = tbl.Add(rule(2, model.Unexecuted))

	tbl.Reset()

	assert.Equal(t, 0, tbl.Len())
	assert.False(t, tbl.IsFull())
	_, err := tbl.Add(rule(3, model.Unexecuted))
	require.NoError(t, err)
}

func TestUIDUniquenessUnderUpsert(t *testing.T) {
	tbl := New[model.RuleRow](8)
	upsert := func(row model.RuleRow) {
		if idx, ok := tbl.SearchUID(row.UID); ok {
			require.NoError(t, tbl.Set(idx, row))
			return
		}
		_, err := tbl.Add(row)
		require.NoError(t, err)
	}

	for _, uid := range []model.UID{1, 2, 1, 3, 2, 1} {
		upsert(rule(uid, model.Unexecuted))
	}

	seen := map[model.UID]int{}
	for row := range tbl.Rows() {
		seen[row.UID]++
	}
	for uid, n := range seen {
		assert.Equal(t, 1, n, "uid %d duplicated", uid)
	}
	assert.Len(t, seen, 3)
}
