package device

import (
	"math"

	"github.com/amimof/huego"

	"github.com/dokzlo13/xlightd/internal/model"
)

// Color temperature range of Hue white ambiance bulbs, in mireds.
const (
	MinMired = 153 // cold
	MaxMired = 500 // warm
)

// LightState maps one ring spec onto a Hue light state.
//
// Any RGB channel selects color mode: xy from the RGB value, brightness from
// its strongest channel. Otherwise the CW/WW mix selects a color temperature
// and the stronger white channel sets brightness.
func LightState(h model.Hue) huego.State {
	if !h.State {
		return huego.State{On: false}
	}

	state := huego.State{On: true}
	if h.R > 0 || h.G > 0 || h.B > 0 {
		x, y := rgbToXY(h.R, h.G, h.B)
		state.Xy = []float32{x, y}
		state.Bri = bri(max(h.R, h.G, h.B))
		return state
	}

	state.Bri = bri(max(h.CW, h.WW))
	if total := int(h.CW) + int(h.WW); total > 0 {
		state.Ct = uint16(MinMired + (MaxMired-MinMired)*int(h.WW)/total)
	}
	return state
}

// bri scales a 0-255 channel to the 1-254 Hue range.
func bri(level uint8) uint8 {
	if level == 0 {
		return 1
	}
	b := int(level) * 254 / 255
	if b < 1 {
		b = 1
	}
	return uint8(b)
}

// rgbToXY converts sRGB to CIE 1931 xy using the wide gamut D65 matrix.
func rgbToXY(r, g, b uint8) (float32, float32) {
	lin := func(c uint8) float64 {
		v := float64(c) / 255
		if v > 0.04045 {
			return math.Pow((v+0.055)/1.055, 2.4)
		}
		return v / 12.92
	}
	rl, gl, bl := lin(r), lin(g), lin(b)

	X := rl*0.664511 + gl*0.154324 + bl*0.162028
	Y := rl*0.283881 + gl*0.668433 + bl*0.047685
	Z := rl*0.000088 + gl*0.072310 + bl*0.986039

	sum := X + Y + Z
	if sum == 0 {
		return 0, 0
	}
	x := math.Round(X/sum*10000) / 10000
	y := math.Round(Y/sum*10000) / 10000
	return float32(x), float32(y)
}
