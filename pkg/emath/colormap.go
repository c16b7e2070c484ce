package emath

import(
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

var(
	// Roughly the stops of matplotlib's "inferno"
	colormapStops = []colorful.Color{
		{R: 0.001, G: 0.000, B: 0.014},
		{R: 0.341, G: 0.062, B: 0.429},
		{R: 0.735, G: 0.216, B: 0.330},
		{R: 0.978, G: 0.557, B: 0.035},
		{R: 0.988, G: 0.998, B: 0.645},
	}
)

// Colormap maps v in [0,1] onto a perceptual ramp, blending in HCL
// space between stops.
func Colormap(v float64) color.Color {
	if v <= 0 {
		return colormapStops[0]
	} else if v >= 1 {
		return colormapStops[len(colormapStops)-1]
	}

	pos := v * float64(len(colormapStops)-1)
	i := int(pos)
	return colormapStops[i].BlendHcl(colormapStops[i+1], pos-float64(i)).Clamped()
}
