package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/xlightd/internal/alarm"
	"github.com/dokzlo13/xlightd/internal/model"
)

func TestEndToEndOneShot(t *testing.T) {
	f := newFixture(smallCapacity(), 8)
	_, err := f.handlers.ApplyRule(ruleRow(model.OpPost, 1, 10, 20, 5))
	require.NoError(t, err)
	_, err = f.handlers.ApplySchedule(scheduleRow(model.OpPost, 10, false, 2, 7, 0))
	require.NoError(t, err)
	_, err = f.handlers.ApplyScenario(scenarioRow(model.OpPost, 20, fullOn(), 3))
	require.NoError(t, err)

	report := f.binder.Tick()
	require.Equal(t, 1, report.Bound)
	assert.Equal(t, model.Executed, f.rule(1).Run)
	assert.Equal(t, model.Executed, f.schedule(10).Run)
	assert.Equal(t, 1, f.timers.Live())

	h := f.schedule(10).Alarm
	require.True(t, f.timers.Trigger(h))
	require.NoError(t, f.dispatcher.Dispatch(<-f.timers.Fired()))

	require.Len(t, f.sink.actions, 1)
	assert.Equal(t, model.ActionEvent{
		RuleUID:     1,
		ScenarioUID: 20,
		Rings:       model.Rings{fullOn()},
		Filter:      3,
	}, f.sink.actions[0])
	require.Len(t, f.sink.notifications, 1)
	assert.Equal(t, model.UID(5), f.sink.notifications[0].NotifUID)

	// The fired one-shot is reclaimable.
	_, ok := f.tables.Schedules.SearchUID(10)
	assert.False(t, ok)
	assert.Equal(t, 1, f.tables.Schedules.Len())
	_, ok = f.tables.Schedules.FirstOutdated()
	assert.True(t, ok)
	assert.True(t, f.tables.IsDirty(KindSchedule))
	_, tagged := f.timers.OwnerOf(h)
	assert.False(t, tagged)

	// Device status follows the applied scenario.
	assert.Equal(t, fullOn(), f.tables.Device.Rings[0])
	assert.True(t, f.tables.IsDirty(KindDevice))
}

func TestDispatchRepeatingStaysLive(t *testing.T) {
	f := newFixture(smallCapacity(), 8)
	_, _ = f.handlers.ApplyRule(ruleRow(model.OpPost, 1, 10, 20, 5))
	_, _ = f.handlers.ApplySchedule(scheduleRow(model.OpPost, 10, true, 0, 6, 30))
	_, _ = f.handlers.ApplyScenario(scenarioRow(model.OpPost, 20, fullOn(), 0))
	f.binder.Tick()
	h := f.schedule(10).Alarm

	for range 2 {
		require.True(t, f.timers.Trigger(h))
		require.NoError(t, f.dispatcher.Dispatch(<-f.timers.Fired()))
	}

	assert.Len(t, f.sink.actions, 2)
	assert.Equal(t, model.Executed, f.schedule(10).Run)
	assert.True(t, f.timers.IsLive(h))
}

func TestDispatchOrphanedHandle(t *testing.T) {
	f := newFixture(smallCapacity(), 8)
	h, err := f.timers.AlarmRepeatDaily(1, 0, 0)
	require.NoError(t, err)

	err = f.dispatcher.Dispatch(h)
	assert.ErrorIs(t, err, ErrAlarmOrphaned)
	assert.ErrorIs(t, f.dispatcher.Dispatch(alarm.NoHandle), ErrAlarmOrphaned)
	assert.Empty(t, f.sink.actions)
	assert.Empty(t, f.sink.notifications)
}

func TestDispatchMissingScenarioStillNotifies(t *testing.T) {
	f := newFixture(smallCapacity(), 8)
	_, _ = f.handlers.ApplyRule(ruleRow(model.OpPost, 1, 10, 20, 5))
	_, _ = f.handlers.ApplySchedule(scheduleRow(model.OpPost, 10, true, 0, 6, 30))
	f.binder.Tick()

	err := f.dispatcher.Dispatch(f.schedule(10).Alarm)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, f.sink.actions)
	require.Len(t, f.sink.notifications, 1)
	assert.Equal(t, model.Notification{RuleUID: 1, NotifUID: 5}, f.sink.notifications[0])
	assert.False(t, f.tables.IsDirty(KindDevice))
}

func TestDispatchDeletedRuleEmitsNothing(t *testing.T) {
	f := newFixture(smallCapacity(), 8)
	_, _ = f.handlers.ApplyRule(ruleRow(model.OpPost, 1, 10, 20, 5))
	_, _ = f.handlers.ApplySchedule(scheduleRow(model.OpPost, 10, true, 0, 6, 30))
	_, _ = f.handlers.ApplyScenario(scenarioRow(model.OpPost, 20, fullOn(), 0))
	f.binder.Tick()
	h := f.schedule(10).Alarm

	// Drop the rule from the table directly, leaving the alarm tagged to it.
	idx, _ := f.tables.Rules.SearchUID(1)
	require.NoError(t, f.tables.Rules.Remove(idx))

	err := f.dispatcher.Dispatch(h)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, f.sink.actions)
	assert.Empty(t, f.sink.notifications)
}
