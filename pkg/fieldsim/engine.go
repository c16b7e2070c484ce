package fieldsim

import(
	"context"
	"image"
	"math"
	"runtime"

	"go.uber.org/zap"

	"github.com/abworrall/soss-contam/pkg/emath"
	"github.com/abworrall/soss-contam/pkg/logger"
	"github.com/abworrall/soss-contam/pkg/modelgrid"
)

// Engine composites the trace models of a star field into a
// SimulationCube, one plane per position angle.
type Engine struct {
	Config
	Traces TraceSource
	Log    *zap.SugaredLogger
}

func NewEngine(cfg Config, traces TraceSource, log *zap.SugaredLogger) (*Engine, error) {
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return &Engine{Config: cfg, Traces: traces, Log: logger.OrNop(log)}, nil
}

// Projection is the transform from a star's sky offset (dRA, dDec, in
// arcsec) to its detector position at position angle `pa`. The sky
// offsets are rotated by 90 degrees plus the angle, scaled to pixels,
// then placed relative to the sweet spot.
func (e *Engine)Projection(pa float64, ss SweetSpot) emath.Aff3 {
	return emath.Identity().
		Translate(ss.X, ss.Y).
		Scale(1.0 / e.PixelScale).
		Rotate(90 + e.rotationDeg(pa))
}

// Project returns copies of the stars with their detector positions at
// position angle `pa`.
func (e *Engine)Project(stars []Star, ss SweetSpot, pa float64) []Star {
	m := e.Projection(pa, ss)
	ret := make([]Star, len(stars))
	for i, s := range stars {
		s.X, s.Y = m.Apply(s.DRA, s.DDec)
		s.DX, s.DY = s.X - ss.X, s.Y - ss.Y
		ret[i] = s
	}
	return ret
}

// checkTraces makes sure every star has a trace model, before anything
// is composited.
func (e *Engine)checkTraces(stars []Star) error {
	for _, s := range stars {
		if _, exists := e.Traces.Field(s.Teff); !exists {
			return &LookupInconsistencyError{Teff: s.Teff, Star: s}
		}
	}
	return nil
}

// Run composites the stars into a new cube over the configured sweep.
// Angles are independent, and are spread over Config.Workers
// goroutines.
//
// If ctx is cancelled the cube is still returned, alongside the error;
// the planes listed by its Completed method are valid.
func (e *Engine)Run(ctx context.Context, stars []Star, ss SweetSpot) (*SimulationCube, error) {
	angles := e.Sweep.Angles()
	cube := NewSimulationCube(angles, e.Width, e.Height)
	for k := range cube.angles {
		cube.angles[k].V3PA = angles[k] + e.PlatformOffsetDeg
	}

	if err := e.checkTraces(stars); err != nil {
		return nil, err
	}

	workers := e.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}

	e.Log.Infof("compositing %d stars over %d angles (%g-%g by %g), %d workers", len(stars), len(angles),
		e.Sweep.Start, e.Sweep.End, e.Sweep.Step, workers)

	_, err := modelgrid.ParallelMap(ctx, len(angles), workers, func(ctx context.Context, k int) (int, error) {
		n, err := e.CompositeAngle(ctx, cube, k, stars, ss)
		if err == nil {
			e.Log.Debugf("PA=%5.1f: %d stars composited into plane %d", angles[k], n, PlaneIndex(k))
		}
		return n, err
	})
	if err != nil {
		return cube, err
	}

	e.Log.Infof("done: %s", cube)
	return cube, nil
}

// CompositeAngle fills the plane for the k'th angle of the cube, and
// returns how many field stars landed on it. At the first angle, the
// target's order traces are written into the reference planes.
func (e *Engine)CompositeAngle(ctx context.Context, cube *SimulationCube, k int, stars []Star, ss SweetSpot) (int, error) {
	pa := cube.angles[k].PA
	plane := cube.AnglePlane(k)
	frame := image.Point{plane.Dx(), plane.Dy()}
	pad := e.Traces.Padding()

	n := 0
	for _, s := range e.Project(stars, ss, pa) {
		if err := ctx.Err(); err != nil {
			return n, err
		}

		// Outside the optical field at this angle
		if !e.FieldOfView.Contains(s.X, s.Y) {
			continue
		}

		offset := image.Point{emath.RoundHalfEven(s.DX), emath.RoundHalfEven(s.DY)}
		scale := FluxScale(s, ss)

		if offset == (image.Point{}) {
			if k != 0 {
				continue
			}
			if _, err := cube.WriteReference(func(o1, o2 *emath.FloatGrid) error {
				return e.writeTarget(ctx, s, offset, pad, o1, o2, scale)
			}); err != nil {
				return n, err
			}
			continue
		}

		trace, exists := e.Traces.Field(s.Teff)
		if !exists {
			return n, &LookupInconsistencyError{Teff: s.Teff, Star: s}
		}

		win, ok := ComputeWindow(offset, pad, image.Point{trace.Dx(), trace.Dy()}, frame)
		if !ok {
			e.Log.Debugf("PA=%5.1f: star at offset %v misses the frame", pa, offset)
			continue
		}
		plane.AddScaledRect(trace, win.Src, win.Dst, scale)
		n++
	}

	cube.markCompleted(k)
	return n, nil
}

func (e *Engine)writeTarget(ctx context.Context, s Star, offset, pad image.Point, o1, o2 *emath.FloatGrid, scale float64) error {
	t1, t2, err := e.Traces.Orders(ctx, s.Teff)
	if err != nil {
		return err
	}
	frame := image.Point{o1.Dx(), o1.Dy()}

	for _, pair := range []struct{ src, dst *emath.FloatGrid }{{t1, o1}, {t2, o2}} {
		win, ok := ComputeWindow(offset, pad, image.Point{pair.src.Dx(), pair.src.Dy()}, frame)
		if !ok {
			continue
		}
		pair.dst.SetScaledRect(pair.src, win.Src, win.Dst, scale)
	}

	e.Log.Infof("target (Teff=%g, J=%.3f) orders 1 and 2 written", s.Teff, s.J)
	return nil
}

// FluxScale is the flux of a star relative to the target.
func FluxScale(s Star, ss SweetSpot) float64 {
	if math.IsNaN(ss.J) {
		return 0
	}
	return emath.FluxRatio(s.J, ss.J)
}
