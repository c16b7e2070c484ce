package emath

import "math"

// Some functions that only operate on basic types, that are useful

// https://www.sjbrown.co.uk/posts/gamma-correct-rendering/ - "linear RGB to sRGB"
// `f` is assumed to be in the range [0,1]
func GammaExpand_F64(f float64) float64 {
	if f <= 0.0031308 {
		return 12.92 * f
	}
	return 1.055 * math.Pow(f, 1.0/2.4) - 0.055
}

// FluxRatio converts a magnitude difference into a linear flux ratio,
// relative to the reference magnitude.
func FluxRatio(mag, refMag float64) float64 {
	return math.Pow(10.0, -0.4*(mag - refMag))
}

// RoundHalfEven rounds to the nearest integer, ties going to the even
// neighbour (numpy's round, which the trace offsets were generated with).
func RoundHalfEven(f float64) int {
	return int(math.RoundToEven(f))
}
