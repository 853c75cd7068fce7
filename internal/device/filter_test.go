package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/xlightd/internal/model"
)

const dimScript = `
local log = require("log")
local rings = ...
for _, ring in ipairs(rings) do
  ring.cw = math.floor(ring.cw / 2)
  ring.ww = ring.ww + 500
end
log.debug("dimmed", {count = #rings})
return rings
`

func TestFilterTransformsRings(t *testing.T) {
	f, err := NewFilters(map[uint8]string{1: dimScript})
	require.NoError(t, err)
	defer f.Close()

	in := model.Rings{{State: true, CW: 200, WW: 10, R: 7}}
	out, err := f.Apply(1, in)
	require.NoError(t, err)

	assert.Equal(t, uint8(100), out[0].CW)
	assert.Equal(t, uint8(255), out[0].WW, "clamped")
	assert.Equal(t, uint8(7), out[0].R)
	assert.True(t, out[0].State)
}

func TestFilterPassThrough(t *testing.T) {
	f, err := NewFilters(nil)
	require.NoError(t, err)
	defer f.Close()

	in := model.Rings{{State: true, CW: 9}}
	out, err := f.Apply(NoFilter, in)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	out, err = f.Apply(42, in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFilterErrors(t *testing.T) {
	_, err := NewFilters(map[uint8]string{1: "return ("})
	assert.Error(t, err)

	_, err = NewFilters(map[uint8]string{0: "return ..."})
	assert.Error(t, err)

	f, err := NewFilters(map[uint8]string{
		1: `error("nope")`,
		2: `return 5`,
	})
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Apply(1, model.Rings{})
	assert.ErrorIs(t, err, ErrFilterFailed)
	_, err = f.Apply(2, model.Rings{})
	assert.ErrorIs(t, err, ErrFilterFailed)
}
