package command

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/xlightd/internal/model"
)

func TestParseUID(t *testing.T) {
	tests := []struct {
		in      string
		class   Class
		uid     model.UID
		wantErr error
	}{
		{in: "r1", class: ClassRule, uid: 1},
		{in: "S10", class: ClassSchedule, uid: 10},
		{in: " n255 ", class: ClassScenario, uid: 255},
		{in: "d", class: ClassDevice},
		{in: "x3", wantErr: ErrUnknownClass},
		{in: "r", wantErr: &ValidationError{}},
		{in: "r256", wantErr: &ValidationError{}},
		{in: "r+5", wantErr: &ValidationError{}},
		{in: "r-1", wantErr: &ValidationError{}},
		{in: "s 4", wantErr: &ValidationError{}},
		{in: "d+2", wantErr: &ValidationError{}},
		{in: "", wantErr: &ValidationError{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			class, uid, err := ParseUID(tt.in)
			if tt.wantErr != nil {
				var verr *ValidationError
				if errors.As(tt.wantErr, &verr) {
					assert.ErrorAs(t, err, &verr)
				} else {
					assert.ErrorIs(t, err, tt.wantErr)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.class, class)
			assert.Equal(t, tt.uid, uid)
		})
	}
}

func TestDecodeRule(t *testing.T) {
	cmd, err := Decode([]byte(`{"uid":"r1","op":"post","schedule_uid":10,"scenario_uid":20,"notif_uid":5}`))
	require.NoError(t, err)

	assert.Equal(t, ClassRule, cmd.Class)
	assert.Equal(t, model.OpPost, cmd.Op)
	require.NotNil(t, cmd.Rule)
	assert.Equal(t, model.RuleRow{
		Header:      model.Header{Op: model.OpPost, UID: 1},
		ScheduleUID: 10,
		ScenarioUID: 20,
		NotifUID:    5,
	}, *cmd.Rule)
	assert.Nil(t, cmd.Schedule)
	assert.Equal(t, "POST rule 1", cmd.String())
}

func TestDecodeDefaultsToPost(t *testing.T) {
	cmd, err := Decode([]byte(`{"uid":"n3","rings":[{"state":true,"cw":10}],"filter":2}`))
	require.NoError(t, err)
	assert.Equal(t, model.OpPost, cmd.Op)
	require.NotNil(t, cmd.Scenario)
	assert.Equal(t, model.Hue{State: true, CW: 10}, cmd.Scenario.Rings[0])
	assert.Equal(t, model.Hue{}, cmd.Scenario.Rings[2])
	assert.Equal(t, uint8(2), cmd.Scenario.Filter)
}

func TestDecodeDeviceDefaultsToPut(t *testing.T) {
	cmd, err := Decode([]byte(`{"uid":"d","id":4,"type":2,"rings":[{"state":true,"ww":80}]}`))
	require.NoError(t, err)
	assert.Equal(t, ClassDevice, cmd.Class)
	assert.Equal(t, model.OpPut, cmd.Op)
	require.NotNil(t, cmd.Device)
	assert.Equal(t, model.OpPut, cmd.Device.Op)
	assert.Equal(t, uint8(4), cmd.Device.ID)
	assert.Equal(t, uint8(80), cmd.Device.Rings[0].WW)
}

func TestDecodeSchedule(t *testing.T) {
	cmd, err := Decode([]byte(`{"uid":"s10","op":"PUT","weekdays":2,"is_repeat":false,"hour":7,"min":0}`))
	require.NoError(t, err)
	require.NotNil(t, cmd.Schedule)
	assert.Equal(t, model.Weekday(2), cmd.Schedule.Weekdays)
	assert.False(t, cmd.Schedule.IsRepeat)
	assert.Equal(t, uint8(7), cmd.Schedule.Hour)
	assert.Equal(t, model.Unexecuted, cmd.Schedule.Run)
	assert.Equal(t, model.Unsaved, cmd.Schedule.Flash)
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"hour", `{"uid":"s1","is_repeat":true,"hour":24}`, "hour"},
		{"min", `{"uid":"s1","is_repeat":true,"min":60}`, "min"},
		{"negative_min", `{"uid":"s1","is_repeat":true,"min":-1}`, "min"},
		{"weekdays", `{"uid":"s1","is_repeat":true,"weekdays":8}`, "weekdays"},
		{"one_shot_daily", `{"uid":"s1","is_repeat":false,"weekdays":0}`, "weekdays"},
		{"schedule_ref", `{"uid":"r1","schedule_uid":300}`, "schedule_uid"},
		{"channel", `{"uid":"n1","rings":[{},{"g":256}]}`, "rings[1].g"},
		{"too_many_rings", `{"uid":"n1","rings":[{},{},{},{}]}`, "rings"},
		{"filter", `{"uid":"n1","filter":-3}`, "filter"},
		{"device_post", `{"uid":"d","op":"POST"}`, "op"},
		{"device_type", `{"uid":"d","op":"PUT","type":999}`, "type"},
		{"malformed", `{"uid":`, "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.body))
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestUnknownOp(t *testing.T) {
	_, err := Decode([]byte(`{"uid":"r1","op":"PATCH"}`))
	assert.ErrorIs(t, err, ErrUnknownOp)
}

func TestKeyOnlyOpsSkipFieldChecks(t *testing.T) {
	cmd, err := Decode([]byte(`{"uid":"s4","op":"DELETE","hour":99}`))
	require.NoError(t, err)
	require.NotNil(t, cmd.Schedule)
	assert.Equal(t, model.OpDelete, cmd.Schedule.Op)
	assert.Equal(t, model.UID(4), cmd.Schedule.UID)

	cmd, err = Decode([]byte(`{"uid":"d","op":"GET"}`))
	require.NoError(t, err)
	require.NotNil(t, cmd.Device)
	assert.Equal(t, model.OpGet, cmd.Device.Op)
}
