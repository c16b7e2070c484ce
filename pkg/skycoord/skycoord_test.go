package skycoord

import(
	"math"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		ra, dec string
		wantRA  float64
		wantDec float64
		wantErr bool
	}{
		{"WASP-79 sexagesimal", "04 25 29.0162", "-30 36 01.603", 66.3709008, -30.6004453, false},
		{"colon separated", "04:25:29.0162", "-30:36:01.603", 66.3709008, -30.6004453, false},
		{"decimal degrees", "66.3709", "-30.6004", 66.3709, -30.6004, false},
		{"decimal hours", "4.5h", "10", 67.5, 10, false},
		{"negative zero degrees", "00 00 00", "-00 30 00", 0, -0.5, false},
		{"bad minutes", "04 61 00", "0", 0, 0, true},
		{"dec out of range", "10", "95", 0, 0, true},
		{"garbage", "abc", "0", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse(tt.ra, tt.dec)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", c)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(c.RAdeg-tt.wantRA) > 1e-6 || math.Abs(c.DecDeg-tt.wantDec) > 1e-6 {
				t.Errorf("Parse = %v, want (%v, %v)", c, tt.wantRA, tt.wantDec)
			}
		})
	}
}

func TestOffsetRoundTrip(t *testing.T) {
	ref := Coord{RAdeg: 66.3709, DecDeg: -30.6004}
	c := OffsetBy(ref, 5.0, -3.0)

	dRA, dDec := Offset(ref, c)
	if math.Abs(dRA-5.0) > 1e-9 || math.Abs(dDec+3.0) > 1e-9 {
		t.Errorf("Offset(OffsetBy(5,-3)) = (%v,%v)", dRA, dDec)
	}
}

func TestSeparation(t *testing.T) {
	a := Coord{RAdeg: 10, DecDeg: 0}
	b := Coord{RAdeg: 10, DecDeg: 1}
	if got := Separation(a, b); math.Abs(got-1) > 1e-9 {
		t.Errorf("1 deg in Dec: got %v", got)
	}

	// Near the equator over a few arcsec both measures agree
	c := OffsetBy(a, 10, 10)
	if d := math.Abs(Separation(a, c) - FlatSeparation(a, c)); d > 1e-9 {
		t.Errorf("flat and great-circle separations differ by %v deg", d)
	}
}

func TestOffsetAcrossZeroHours(t *testing.T) {
	cosDec := math.Cos(10 * math.Pi / 180)

	tests := []struct {
		name      string
		ref, c    Coord
		wantDRA   float64
	}{
		{"east across 0h", Coord{RAdeg: 359.9995, DecDeg: 10}, Coord{RAdeg: 0.0005, DecDeg: 10}, 0.001 * cosDec * 3600},
		{"west across 0h", Coord{RAdeg: 0.0005, DecDeg: 10}, Coord{RAdeg: 359.9995, DecDeg: 10}, -0.001 * cosDec * 3600},
		{"same side", Coord{RAdeg: 180.0005, DecDeg: 10}, Coord{RAdeg: 179.9995, DecDeg: 10}, -0.001 * cosDec * 3600},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			dRA, dDec := Offset(test.ref, test.c)
			if math.Abs(dRA-test.wantDRA) > 1e-6 || math.Abs(dDec) > 1e-9 {
				t.Errorf("Offset = (%v,%v), want (%v,0)", dRA, dDec, test.wantDRA)
			}
			if sep := FlatSeparation(test.ref, test.c); math.Abs(sep-math.Abs(test.wantDRA)/3600) > 1e-9 {
				t.Errorf("FlatSeparation = %v deg", sep)
			}

			back := OffsetBy(test.ref, dRA, dDec)
			if back.RAdeg < 0 || back.RAdeg >= 360 || math.Abs(back.RAdeg-test.c.RAdeg) > 1e-9 {
				t.Errorf("OffsetBy back to RA %v, want %v", back.RAdeg, test.c.RAdeg)
			}
		})
	}
}
