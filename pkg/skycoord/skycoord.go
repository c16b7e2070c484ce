// Package skycoord parses target coordinates and does the small-field
// sky math the contamination simulation needs.
package skycoord

import(
	"fmt"
	"math"
	"strconv"
	"strings"
)

const arcsecPerDeg = 3600.0

// Coord is an equatorial (J2000) position.
type Coord struct {
	RAdeg  float64 // Right Ascension in degrees (0-360)
	DecDeg float64 // Declination in degrees (-90 to +90)
}

func (c Coord)String() string {
	return fmt.Sprintf("(%.6f, %+.6f)", c.RAdeg, c.DecDeg)
}

// Parse reads a target position. RA may be sexagesimal hours
// ("04 25 29.0162" or "04:25:29.0162"), decimal hours with an "h"
// suffix ("4.4247h"), or decimal degrees. Dec is sexagesimal or decimal
// degrees.
func Parse(ra, dec string) (Coord, error) {
	raDeg, err := parseRA(ra)
	if err != nil {
		return Coord{}, fmt.Errorf("parse RA %q: %w", ra, err)
	}
	decDeg, err := parseDec(dec)
	if err != nil {
		return Coord{}, fmt.Errorf("parse Dec %q: %w", dec, err)
	}
	return Coord{RAdeg: raDeg, DecDeg: decDeg}, nil
}

func parseRA(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch {
	case isSexagesimal(s):
		hours, err := parseSexagesimal(s)
		if err != nil {
			return 0, err
		}
		if hours < 0 || hours >= 24 {
			return 0, fmt.Errorf("%v hours out of range", hours)
		}
		return hours * 15.0, nil

	case strings.HasSuffix(s, "h"):
		hours, err := strconv.ParseFloat(strings.TrimSuffix(s, "h"), 64)
		if err != nil {
			return 0, err
		}
		return normalizeDeg(hours * 15.0), nil

	default:
		deg, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		return normalizeDeg(deg), nil
	}
}

func parseDec(s string) (float64, error) {
	s = strings.TrimSpace(s)
	var deg float64
	var err error
	if isSexagesimal(s) {
		deg, err = parseSexagesimal(s)
	} else {
		deg, err = strconv.ParseFloat(s, 64)
	}
	if err != nil {
		return 0, err
	}
	if deg < -90 || deg > 90 {
		return 0, fmt.Errorf("%v degrees out of range", deg)
	}
	return deg, nil
}

func isSexagesimal(s string) bool {
	return strings.ContainsAny(strings.TrimSpace(s), " :")
}

// parseSexagesimal reads "[+-]D M S" or "D:M:S"; the sign on the
// leading field applies to the whole value, so "-00 30 00" is -0.5.
func parseSexagesimal(s string) (float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ':' })
	if len(fields) == 0 || len(fields) > 3 {
		return 0, fmt.Errorf("want 1 to 3 fields, got %d", len(fields))
	}

	sign := 1.0
	if strings.HasPrefix(fields[0], "-") {
		sign = -1.0
		fields[0] = strings.TrimPrefix(fields[0], "-")
	} else {
		fields[0] = strings.TrimPrefix(fields[0], "+")
	}

	total := 0.0
	scale := 1.0
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return 0, err
		}
		if v < 0 || (i > 0 && v >= 60) {
			return 0, fmt.Errorf("field %q out of range", f)
		}
		total += v / scale
		scale *= 60
	}
	return sign * total, nil
}

func normalizeDeg(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

func degToRad(d float64) float64 { return d * math.Pi / 180.0 }

// wrapDeg maps an angle difference into [-180, 180), so that positions
// either side of RA 0h come out close together.
func wrapDeg(d float64) float64 {
	d = math.Mod(d+180, 360)
	if d < 0 {
		d += 360
	}
	return d - 180
}

// Offset returns the tangent-plane offset of c from ref, in arcsec,
// with dRA scaled by cos(Dec) of the reference.
func Offset(ref, c Coord) (dRA, dDec float64) {
	dRA = wrapDeg(c.RAdeg - ref.RAdeg) * math.Cos(degToRad(ref.DecDeg)) * arcsecPerDeg
	dDec = (c.DecDeg - ref.DecDeg) * arcsecPerDeg
	return dRA, dDec
}

// OffsetBy is the inverse of Offset: the position dRA, dDec arcsec away from ref.
func OffsetBy(ref Coord, dRA, dDec float64) Coord {
	return Coord{
		RAdeg:  normalizeDeg(ref.RAdeg + dRA/arcsecPerDeg/math.Cos(degToRad(ref.DecDeg))),
		DecDeg: ref.DecDeg + dDec/arcsecPerDeg,
	}
}

// FlatSeparation is the small-angle separation between a and b, in
// degrees. Good enough to pick the nearest catalog entry in a field a
// few arcmin across.
func FlatSeparation(a, b Coord) float64 {
	dRA := wrapDeg(a.RAdeg - b.RAdeg) * math.Cos(degToRad(a.DecDeg))
	dDec := a.DecDeg - b.DecDeg
	return math.Hypot(dRA, dDec)
}

// Separation is the great-circle distance between a and b, in degrees
// (haversine).
func Separation(a, b Coord) float64 {
	ra1, dec1 := degToRad(a.RAdeg), degToRad(a.DecDeg)
	ra2, dec2 := degToRad(b.RAdeg), degToRad(b.DecDeg)
	sinDDec := math.Sin((dec2 - dec1) / 2)
	sinDRA := math.Sin((ra2 - ra1) / 2)
	h := sinDDec*sinDDec + math.Cos(dec1)*math.Cos(dec2)*sinDRA*sinDRA
	return 2 * math.Asin(math.Min(1, math.Sqrt(h))) * 180.0 / math.Pi
}
