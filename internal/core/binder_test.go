package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/xlightd/internal/alarm"
	"github.com/dokzlo13/xlightd/internal/model"
)

func TestAlarmSpecFor(t *testing.T) {
	tests := []struct {
		name    string
		row     model.ScheduleRow
		want    alarm.Spec
		wantErr bool
	}{
		{
			name: "daily_repeat",
			row:  scheduleRow(model.OpPost, 1, true, 0, 6, 30),
			want: alarm.Spec{Kind: alarm.KindDaily, Hour: 6, Min: 30},
		},
		{
			name: "weekly_repeat_wednesday",
			row:  scheduleRow(model.OpPost, 1, true, 3, 6, 30),
			want: alarm.Spec{Kind: alarm.KindWeekly, Weekday: time.Wednesday, Hour: 6, Min: 30},
		},
		{
			name: "weekly_repeat_sunday",
			row:  scheduleRow(model.OpPost, 1, true, 7, 9, 0),
			want: alarm.Spec{Kind: alarm.KindWeekly, Weekday: time.Sunday, Hour: 9},
		},
		{
			name: "one_shot_friday",
			row:  scheduleRow(model.OpPost, 1, false, 5, 22, 0),
			want: alarm.Spec{Kind: alarm.KindOnce, Weekday: time.Friday, Hour: 22},
		},
		{
			name:    "one_shot_without_weekday",
			row:     scheduleRow(model.OpPost, 1, false, 0, 22, 0),
			wantErr: true,
		},
		{
			name:    "weekday_out_of_range",
			row:     scheduleRow(model.OpPost, 1, true, 8, 22, 0),
			wantErr: true,
		},
		{
			name:    "hour_out_of_range",
			row:     scheduleRow(model.OpPost, 1, true, 0, 24, 0),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AlarmSpecFor(tt.row)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidScheduleSpec)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTickBindsRuleAndSchedule(t *testing.T) {
	f := newFixture(smallCapacity(), 8)
	_, _ = f.handlers.ApplyRule(ruleRow(model.OpPost, 1, 10, 20, 5))
	_, _ = f.handlers.ApplySchedule(scheduleRow(model.OpPost, 10, true, 3, 6, 30))

	report := f.binder.Tick()

	assert.Equal(t, 1, report.Bound)
	assert.Empty(t, report.Errors)
	assert.Equal(t, model.Executed, f.rule(1).Run)
	sched := f.schedule(10)
	assert.Equal(t, model.Executed, sched.Run)
	require.True(t, f.timers.IsLive(sched.Alarm))

	spec, ok := f.timers.Spec(sched.Alarm)
	require.True(t, ok)
	assert.Equal(t, alarm.Spec{Kind: alarm.KindWeekly, Weekday: time.Wednesday, Hour: 6, Min: 30}, spec)

	owner, ok := f.timers.OwnerOf(sched.Alarm)
	require.True(t, ok)
	assert.Equal(t, uint8(1), owner)

	// Nothing left to do on the next tick.
	report = f.binder.Tick()
	assert.Zero(t, report.Bound)
	assert.Equal(t, 1, f.timers.Live())
}

func TestTickSkipsUnknownScheduleAndRetries(t *testing.T) {
	f := newFixture(smallCapacity(), 8)
	_, _ = f.handlers.ApplyRule(ruleRow(model.OpPost, 1, 10, 20, 5))

	report := f.binder.Tick()
	require.Len(t, report.Errors, 1)
	assert.ErrorIs(t, report.Errors[0], ErrNotFound)
	assert.Equal(t, model.Unexecuted, f.rule(1).Run)

	// Referents arrive out of order in practice.
	_, _ = f.handlers.ApplySchedule(scheduleRow(model.OpPost, 10, true, 0, 6, 30))
	report = f.binder.Tick()
	assert.Equal(t, 1, report.Bound)
	assert.Equal(t, model.Executed, f.rule(1).Run)
}

func TestTickInvalidSpecIsNotMutated(t *testing.T) {
	f := newFixture(smallCapacity(), 8)
	_, _ = f.handlers.ApplyRule(ruleRow(model.OpPost, 1, 10, 20, 5))
	_, _ = f.handlers.ApplySchedule(scheduleRow(model.OpPost, 10, false, 0, 6, 30))

	report := f.binder.Tick()

	require.Len(t, report.Errors, 1)
	assert.ErrorIs(t, report.Errors[0], ErrInvalidScheduleSpec)
	assert.Equal(t, model.Unexecuted, f.rule(1).Run)
	assert.Equal(t, model.Unexecuted, f.schedule(10).Run)
	assert.Equal(t, 0, f.timers.Live())
}

func TestTickAllocationFailureRetriesNextTick(t *testing.T) {
	f := newFixture(smallCapacity(), 1)
	_, _ = f.handlers.ApplyRule(ruleRow(model.OpPost, 1, 10, 20, 5))
	_, _ = f.handlers.ApplyRule(ruleRow(model.OpPost, 2, 11, 20, 5))
	_, _ = f.handlers.ApplySchedule(scheduleRow(model.OpPost, 10, true, 0, 6, 30))
	_, _ = f.handlers.ApplySchedule(scheduleRow(model.OpPost, 11, true, 0, 7, 30))

	report := f.binder.Tick()
	assert.Equal(t, 1, report.Bound)
	require.Len(t, report.Errors, 1)
	assert.ErrorIs(t, report.Errors[0], ErrAlarmAllocationFailed)
	assert.ErrorIs(t, report.Errors[0], alarm.ErrPoolExhausted)
	assert.Equal(t, model.Unexecuted, f.rule(2).Run)

	// Free the pool slot and the second rule binds.
	_, err := f.handlers.ApplySchedule(scheduleRow(model.OpDelete, 10, false, 0, 0, 0))
	require.NoError(t, err)
	report = f.binder.Tick()
	assert.Equal(t, 1, report.Bound)
	assert.Equal(t, model.Executed, f.rule(2).Run)
}

func TestRebindReplacesHandle(t *testing.T) {
	f := newFixture(smallCapacity(), 8)
	_, _ = f.handlers.ApplyRule(ruleRow(model.OpPost, 1, 10, 20, 5))
	_, _ = f.handlers.ApplySchedule(scheduleRow(model.OpPost, 10, true, 0, 6, 30))
	f.binder.Tick()
	prior := f.schedule(10).Alarm

	_, err := f.handlers.ApplySchedule(scheduleRow(model.OpPut, 10, true, 2, 7, 15))
	require.NoError(t, err)
	report := f.binder.Tick()
	require.Equal(t, 1, report.Bound)

	current := f.schedule(10).Alarm
	assert.NotEqual(t, prior, current)
	assert.False(t, f.timers.IsLive(prior))
	assert.True(t, f.timers.IsLive(current))
	assert.Equal(t, 1, f.timers.Live())

	owner, ok := f.timers.OwnerOf(current)
	require.True(t, ok)
	assert.Equal(t, uint8(1), owner)
	spec, _ := f.timers.Spec(current)
	assert.Equal(t, alarm.Spec{Kind: alarm.KindWeekly, Weekday: time.Tuesday, Hour: 7, Min: 15}, spec)
}

func TestRuleReupsertOnBoundScheduleSettles(t *testing.T) {
	f := newFixture(smallCapacity(), 8)
	_, _ = f.handlers.ApplyRule(ruleRow(model.OpPost, 1, 10, 20, 5))
	_, _ = f.handlers.ApplySchedule(scheduleRow(model.OpPost, 10, true, 0, 6, 30))
	f.binder.Tick()

	_, _ = f.handlers.ApplyRule(ruleRow(model.OpPut, 1, 10, 21, 5))
	require.Equal(t, model.Unexecuted, f.rule(1).Run)

	report := f.binder.Tick()
	assert.Zero(t, report.Bound)
	assert.Empty(t, report.Errors)
	assert.Equal(t, model.Executed, f.rule(1).Run)
	assert.Equal(t, 1, f.timers.Live())
}

func TestScheduleBoundToAnotherRuleIsSkipped(t *testing.T) {
	f := newFixture(smallCapacity(), 8)
	_, _ = f.handlers.ApplyRule(ruleRow(model.OpPost, 1, 10, 20, 5))
	_, _ = f.handlers.ApplyRule(ruleRow(model.OpPost, 2, 10, 20, 5))
	_, _ = f.handlers.ApplySchedule(scheduleRow(model.OpPost, 10, true, 0, 6, 30))

	report := f.binder.Tick()

	assert.Equal(t, 1, report.Bound)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, model.Unexecuted, f.rule(2).Run)
	assert.Equal(t, 1, f.timers.Live())
}
