package fieldsim

import(
	"context"
	"math"
	"testing"

	"github.com/abworrall/soss-contam/pkg/catalog"
	"github.com/abworrall/soss-contam/pkg/skycoord"
)

func testRecords() []catalog.Record {
	return []catalog.Record{
		{Name: "far",    RA: 66.3800, Dec: -30.5950, J: 12.0, H: 11.5, K: 11.3},
		{Name: "target", RA: 66.3701, Dec: -30.6001, J: 9.00, H: 8.80, K: 8.70},
		{Name: "near",   RA: 66.3690, Dec: -30.6010, J: 13.0, H: 12.2, K: 12.0},
	}
}

func TestBuildStars(t *testing.T) {
	cfg := NewConfig()
	pos := skycoord.Coord{RAdeg: 66.37, DecDeg: -30.60}

	stars, ss := BuildStars(cfg, pos, testRecords(), nil, nil)
	if len(stars) != 3 {
		t.Fatalf("%d stars", len(stars))
	}
	if ss.J != 9.0 || ss.RA != 66.3701 || ss.X != 856 || ss.Y != 107 {
		t.Errorf("sweet spot = %+v", ss)
	}

	for _, s := range stars {
		if s.Name == "target" && (s.DRA != 0 || s.DDec != 0) {
			t.Errorf("target offset (%g,%g)", s.DRA, s.DDec)
		}
		if s.Name == "near" {
			wantDRA := (66.3690 - 66.3701) * math.Cos(-30.6001*math.Pi/180) * 3600
			if math.Abs(s.DRA-wantDRA) > 1e-9 || math.Abs(s.DDec-(-0.0009*3600)) > 1e-9 {
				t.Errorf("near offset (%g,%g)", s.DRA, s.DDec)
			}
			if math.Abs(s.JH-0.8) > 1e-9 || math.Abs(s.HK-0.2) > 1e-9 {
				t.Errorf("near colours %g %g", s.JH, s.HK)
			}
		}
	}
}

func TestBuildStarsCompanion(t *testing.T) {
	comp := &Companion{DRA: 5, DDec: -1, J: 10, H: 9.5, K: 9.4}
	stars, _ := BuildStars(NewConfig(), skycoord.Coord{RAdeg: 66.37, DecDeg: -30.60}, testRecords(), comp, nil)

	if len(stars) != 4 {
		t.Fatalf("%d stars", len(stars))
	}
	c := stars[3]
	if c.DRA != 5 || c.DDec != -1 {
		t.Errorf("companion offset (%g,%g)", c.DRA, c.DDec)
	}
	// H comes from the companion's own H, not its J
	if c.H != 9.5 || math.Abs(c.JH-0.5) > 1e-9 || math.Abs(c.HK-0.1) > 1e-9 {
		t.Errorf("companion mags H=%g J-H=%g H-K=%g", c.H, c.JH, c.HK)
	}

	dRA, dDec := skycoord.Offset(skycoord.Coord{RAdeg: 66.3701, DecDeg: -30.6001}, skycoord.Coord{RAdeg: c.RA, DecDeg: c.Dec})
	if math.Abs(dRA-5) > 1e-6 || math.Abs(dDec+1) > 1e-6 {
		t.Errorf("companion placed at (%g,%g)", dRA, dDec)
	}
}

func TestQueryFieldEmpty(t *testing.T) {
	cat := catalog.StaticCatalog(testRecords())
	stars, ss, err := QueryField(context.Background(), NewConfig(), cat, skycoord.Coord{RAdeg: 200, DecDeg: 10},
		&Companion{DRA: 1, J: 10, H: 9, K: 9}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(stars) != 0 || !math.IsNaN(ss.J) {
		t.Errorf("empty field: %d stars, J=%g", len(stars), ss.J)
	}
	if FluxScale(Star{J: 10}, ss) != 0 {
		t.Errorf("flux scale without a target should be zero")
	}
}

func TestFluxScale(t *testing.T) {
	ss := SweetSpot{J: 9}
	if got := FluxScale(Star{J: 9}, ss); got != 1 {
		t.Errorf("same magnitude scale %g", got)
	}
	if got := FluxScale(Star{J: 14}, ss); math.Abs(got-0.01) > 1e-12 {
		t.Errorf("5 mag fainter scale %g, want 0.01", got)
	}
}

func TestBuildStarsAcrossZeroHours(t *testing.T) {
	recs := []catalog.Record{
		{Name: "neighbour", RA: 0.0005,   Dec: 10, J: 11, H: 10.7, K: 10.6},
		{Name: "target",    RA: 359.9995, Dec: 10, J: 9,  H: 8.8,  K: 8.7},
		{Name: "decoy",     RA: 180,      Dec: 10, J: 9,  H: 8.8,  K: 8.7},
	}
	stars, ss := BuildStars(NewConfig(), skycoord.Coord{RAdeg: 359.9996, DecDeg: 10}, recs, nil, nil)

	if ss.RA != 359.9995 || ss.J != 9 {
		t.Fatalf("wrong target: %+v", ss)
	}
	want := 0.001 * math.Cos(10*math.Pi/180) * 3600
	if s := stars[0]; math.Abs(s.DRA-want) > 1e-6 || math.Abs(s.DDec) > 1e-9 {
		t.Errorf("neighbour offset (%g,%g), want (%g,0)", s.DRA, s.DDec, want)
	}
}
