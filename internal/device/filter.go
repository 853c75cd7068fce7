package device

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/xlightd/internal/model"
)

// ErrFilterFailed is returned when a filter script errors or returns garbage.
var ErrFilterFailed = errors.New("device: filter failed")

// NoFilter leaves rings untouched.
const NoFilter uint8 = 0

// Filters holds compiled Lua transforms keyed by filter id.
//
// A script receives the rings as its only argument, an array of three
// tables {state, cw, ww, r, g, b}, and returns the rings to apply:
//
//	local rings = ...
//	for _, ring in ipairs(rings) do ring.r = math.floor(ring.r / 2) end
//	return rings
//
// One LState serves every script, so calls are serialized.
type Filters struct {
	mu      sync.Mutex
	L       *lua.LState
	scripts map[uint8]*lua.LFunction
}

// NewFilters compiles scripts. Filter id 0 is reserved for "no filter".
func NewFilters(scripts map[uint8]string) (*Filters, error) {
	L := lua.NewState()
	L.PreloadModule("log", NewLogModule().Loader)

	f := &Filters{L: L, scripts: make(map[uint8]*lua.LFunction, len(scripts))}
	for id, src := range scripts {
		if id == NoFilter {
			L.Close()
			return nil, fmt.Errorf("filter id 0 is reserved")
		}
		fn, err := L.LoadString(src)
		if err != nil {
			L.Close()
			return nil, fmt.Errorf("failed to compile filter %d: %w", id, err)
		}
		f.scripts[id] = fn
	}

	log.Debug().Int("filters", len(f.scripts)).Msg("Lua filters compiled")
	return f, nil
}

// Apply runs filter id over rings. Unknown ids pass rings through with a warning.
func (f *Filters) Apply(id uint8, rings model.Rings) (model.Rings, error) {
	if id == NoFilter {
		return rings, nil
	}
	fn, ok := f.scripts[id]
	if !ok {
		log.Warn().Uint8("filter", id).Msg("Unknown filter, applying rings unchanged")
		return rings, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, ringsToTable(f.L, rings)); err != nil {
		return rings, fmt.Errorf("filter %d: %w: %w", id, ErrFilterFailed, err)
	}
	ret := f.L.Get(-1)
	f.L.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return rings, fmt.Errorf("filter %d returned %s: %w", id, ret.Type(), ErrFilterFailed)
	}
	return tableToRings(tbl, rings), nil
}

// Close releases the Lua state.
func (f *Filters) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.L.Close()
}

func ringsToTable(L *lua.LState, rings model.Rings) *lua.LTable {
	tbl := L.NewTable()
	for _, ring := range rings {
		r := L.NewTable()
		r.RawSetString("state", lua.LBool(ring.State))
		r.RawSetString("cw", lua.LNumber(ring.CW))
		r.RawSetString("ww", lua.LNumber(ring.WW))
		r.RawSetString("r", lua.LNumber(ring.R))
		r.RawSetString("g", lua.LNumber(ring.G))
		r.RawSetString("b", lua.LNumber(ring.B))
		tbl.Append(r)
	}
	return tbl
}

// tableToRings reads rings back, keeping fallback values for missing fields.
func tableToRings(tbl *lua.LTable, fallback model.Rings) model.Rings {
	out := fallback
	for i := range out {
		r, ok := tbl.RawGetInt(i + 1).(*lua.LTable)
		if !ok {
			continue
		}
		if v, ok := r.RawGetString("state").(lua.LBool); ok {
			out[i].State = bool(v)
		}
		out[i].CW = channel(r, "cw", out[i].CW)
		out[i].WW = channel(r, "ww", out[i].WW)
		out[i].R = channel(r, "r", out[i].R)
		out[i].G = channel(r, "g", out[i].G)
		out[i].B = channel(r, "b", out[i].B)
	}
	return out
}

func channel(tbl *lua.LTable, key string, fallback uint8) uint8 {
	v, ok := tbl.RawGetString(key).(lua.LNumber)
	if !ok {
		return fallback
	}
	n := int(v)
	if n < 0 {
		n = 0
	}
	if n > 255 {
		n = 255
	}
	return uint8(n)
}
