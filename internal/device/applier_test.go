package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amimof/huego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/xlightd/internal/eventbus"
	"github.com/dokzlo13/xlightd/internal/model"
)

type call struct {
	id    int
	state huego.State
}

type fakeLights struct {
	calls chan call
	err   error
}

func (f *fakeLights) SetLightState(id int, state huego.State) (*huego.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls <- call{id: id, state: state}
	return &huego.Response{}, nil
}

func TestLightState(t *testing.T) {
	assert.Equal(t, huego.State{On: false}, LightState(model.Hue{State: false, CW: 255}))

	cold := LightState(model.Hue{State: true, CW: 255})
	assert.True(t, cold.On)
	assert.Equal(t, uint8(254), cold.Bri)
	assert.Equal(t, uint16(MinMired), cold.Ct)
	assert.Nil(t, cold.Xy)

	warm := LightState(model.Hue{State: true, WW: 128})
	assert.Equal(t, uint16(MaxMired), warm.Ct)
	assert.Equal(t, uint8(127), warm.Bri)

	mixed := LightState(model.Hue{State: true, CW: 100, WW: 100})
	assert.Equal(t, uint16(326), mixed.Ct)

	red := LightState(model.Hue{State: true, R: 255, CW: 255})
	require.Len(t, red.Xy, 2)
	assert.InDelta(t, 0.7006, red.Xy[0], 0.001)
	assert.InDelta(t, 0.2993, red.Xy[1], 0.001)
	assert.Zero(t, red.Ct)

	dark := LightState(model.Hue{State: true})
	assert.Equal(t, uint8(1), dark.Bri)
}

func TestApplySkipsUnmappedRings(t *testing.T) {
	lights := &fakeLights{calls: make(chan call, 3)}
	a := NewApplier(lights, nil, [3]int{4, 0, 6}, 100, time.Second)

	err := a.Apply(context.Background(), model.Rings{
		{State: true, CW: 255},
		{State: true},
		{State: false},
	}, NoFilter)
	require.NoError(t, err)

	close(lights.calls)
	var got []call
	for c := range lights.calls {
		got = append(got, c)
	}
	require.Len(t, got, 2)
	assert.Equal(t, 4, got[0].id)
	assert.True(t, got[0].state.On)
	assert.Equal(t, 6, got[1].id)
	assert.False(t, got[1].state.On)
}

func TestApplyRunsFilter(t *testing.T) {
	filters, err := NewFilters(map[uint8]string{7: `local rings = ... rings[1].state = false return rings`})
	require.NoError(t, err)
	defer filters.Close()

	lights := &fakeLights{calls: make(chan call, 1)}
	a := NewApplier(lights, filters, [3]int{1, 0, 0}, 100, time.Second)

	require.NoError(t, a.Apply(context.Background(), model.Rings{{State: true, CW: 255}}, 7))
	c := <-lights.calls
	assert.False(t, c.state.On)
}

func TestApplyReportsLightError(t *testing.T) {
	a := NewApplier(&fakeLights{err: errors.New("unreachable")}, nil, [3]int{1, 0, 0}, 100, time.Second)
	err := a.Apply(context.Background(), model.Rings{{State: true}}, NoFilter)
	assert.ErrorContains(t, err, "unreachable")
}

func TestSubscribeAppliesActions(t *testing.T) {
	bus := eventbus.NewWithConfig(1, 4)
	defer bus.Close(context.Background())

	lights := &fakeLights{calls: make(chan call, 2)}
	a := NewApplier(lights, nil, [3]int{3, 0, 0}, 100, time.Second)
	a.Subscribe(bus)

	pub := eventbus.NewPublisher(bus)
	pub.ApplyAction(model.ActionEvent{RuleUID: 1, ScenarioUID: 2, Rings: model.Rings{{State: true, R: 255}}})

	select {
	case c := <-lights.calls:
		assert.Equal(t, 3, c.id)
		assert.Len(t, c.state.Xy, 2)
	case <-time.After(time.Second):
		t.Fatal("action not applied")
	}

	pub.DeviceStatus(model.DeviceStatusRow{ID: 1, Rings: model.Rings{{State: false}}})
	select {
	case c := <-lights.calls:
		assert.False(t, c.state.On)
	case <-time.After(time.Second):
		t.Fatal("device status not applied")
	}
}
