package fieldsim

import(
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/abworrall/soss-contam/pkg/catalog"
	"github.com/abworrall/soss-contam/pkg/logger"
	"github.com/abworrall/soss-contam/pkg/skycoord"
)

// A Star is one source in the simulated field, the target included.
type Star struct {
	Name    string
	RA, Dec float64  // degrees
	J, H, K float64  // magnitudes
	JH, HK  float64  // colour indices
	Teff    float64  // assigned by the classifier

	DRA, DDec float64  // offset from the target, arcsec (RA scaled by cos(Dec))

	// Detector position, and offset from the sweet spot, at the angle
	// most recently projected
	X, Y   float64
	DX, DY float64
}

func (s Star)String() string {
	return fmt.Sprintf("%-16s RA=%10.6f Dec=%+10.6f J=%6.3f J-H=%+.3f H-K=%+.3f Teff=%5.0f dRA=%+8.2f\" dDec=%+8.2f\"",
		s.Name, s.RA, s.Dec, s.J, s.JH, s.HK, s.Teff, s.DRA, s.DDec)
}

// SweetSpot is where the target lands on the detector, and the
// magnitude all flux scaling is relative to.
type SweetSpot struct {
	X, Y    float64  // pixels
	RA, Dec float64  // degrees
	J       float64
}

// A Companion is a source the catalog doesn't know about (e.g. an
// unresolved binary), given by its offset from the target in arcsec.
type Companion struct {
	DRA  float64 `yaml:"dra"`
	DDec float64 `yaml:"ddec"`
	J    float64 `yaml:"j"`
	H    float64 `yaml:"h"`
	K    float64 `yaml:"k"`
}

func newStar(r catalog.Record) Star {
	return Star{
		Name: r.Name,
		RA:   r.RA,
		Dec:  r.Dec,
		J:    r.J,
		H:    r.H,
		K:    r.K,
		JH:   r.J - r.H,
		HK:   r.H - r.K,
	}
}

// BuildStars turns catalog records into the star list. The target is
// the record nearest the requested position; every star gets its offset
// from it. A companion, if given, is appended.
//
// With no records there is no target to scale against: the star list is
// empty (any companion is dropped with a warning) and the sweet spot has
// no magnitude.
func BuildStars(cfg Config, target skycoord.Coord, recs []catalog.Record, comp *Companion, log *zap.SugaredLogger) ([]Star, SweetSpot) {
	log = logger.OrNop(log)
	ss := SweetSpot{X: cfg.SweetSpotX, Y: cfg.SweetSpotY, RA: target.RAdeg, Dec: target.DecDeg, J: math.NaN()}

	if len(recs) == 0 {
		if comp != nil {
			log.Warnf("no catalog sources near %s; companion dropped, it has no target to be relative to", target)
		}
		return []Star{}, ss
	}

	iTarget := 0
	for i, r := range recs {
		if skycoord.FlatSeparation(target, r.Coord()) < skycoord.FlatSeparation(target, recs[iTarget].Coord()) {
			iTarget = i
		}
	}

	tc := recs[iTarget].Coord()
	ss.RA, ss.Dec, ss.J = tc.RAdeg, tc.DecDeg, recs[iTarget].J

	stars := make([]Star, 0, len(recs)+1)
	for _, r := range recs {
		s := newStar(r)
		s.DRA, s.DDec = skycoord.Offset(tc, r.Coord())
		stars = append(stars, s)
	}

	if comp != nil {
		cc := skycoord.OffsetBy(tc, comp.DRA, comp.DDec)
		s := newStar(catalog.Record{Name: "companion", RA: cc.RAdeg, Dec: cc.DecDeg, J: comp.J, H: comp.H, K: comp.K})
		s.DRA, s.DDec = comp.DRA, comp.DDec
		stars = append(stars, s)
	}

	log.Infof("field around %s: target %q (J=%.3f), %d stars", target, recs[iTarget].Name, ss.J, len(stars))

	return stars, ss
}

// QueryField runs the catalog search around the target and builds the
// star list from it.
func QueryField(ctx context.Context, cfg Config, cat catalog.StarCatalog, target skycoord.Coord, comp *Companion, log *zap.SugaredLogger) ([]Star, SweetSpot, error) {
	recs, err := cat.Query(ctx, target, cfg.RadiusArcmin)
	if err != nil {
		return nil, SweetSpot{}, fmt.Errorf("catalog query around %s: %w", target, err)
	}
	stars, ss := BuildStars(cfg, target, recs, comp, log)
	return stars, ss, nil
}
