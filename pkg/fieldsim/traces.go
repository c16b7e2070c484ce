package fieldsim

import(
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/abworrall/soss-contam/pkg/emath"
	"github.com/abworrall/soss-contam/pkg/logger"
	"github.com/abworrall/soss-contam/pkg/modelgrid"
)

// TraceGridMeta is the record shared by every trace model: how the
// model arrays are padded around the trace origin, their size, and the
// colour table used to pick a model for each star.
type TraceGridMeta struct {
	PadX   int        `yaml:"pad_x"`
	PadY   int        `yaml:"pad_y"`
	DimX   int        `yaml:"dim_x"`
	DimY   int        `yaml:"dim_y"`
	Logg   float64    `yaml:"logg"`  // The trace grid's slice through logg and FeH
	FeH    float64    `yaml:"feh"`
	Colors ColorTable `yaml:"colors"`
}

const TraceGridMetaFile = "grid.yaml"

func LoadTraceGridMeta(filename string) (TraceGridMeta, error) {
	var m TraceGridMeta
	b, err := os.ReadFile(filename)
	if err != nil {
		return m, &ConfigurationError{What: "trace grid metadata", Err: err}
	}
	if err := yaml.Unmarshal(b, &m); err != nil {
		return m, &ConfigurationError{What: "trace grid metadata", Err: fmt.Errorf("%s: %w", filename, err)}
	}
	if m.DimX <= 0 || m.DimY <= 0 {
		return m, &ConfigurationError{What: "trace grid metadata", Err: fmt.Errorf("%s: dim_x and dim_y are required, got %dx%d",
			filename, m.DimX, m.DimY)}
	}
	return m, m.Colors.Validate()
}

func (m TraceGridMeta)AsYaml() string {
	b, _ := yaml.Marshal(m)
	return string(b)
}

// A TraceSource supplies the per-temperature trace models that get
// composited into the cube. Model arrays are padded: pixel Padding() of
// a model lines up with the star's own position.
type TraceSource interface {
	Padding() image.Point

	// Field is the full (all orders) trace model for a field star
	Field(teff float64) (*emath.FloatGrid, bool)

	// Orders are the target's first and second order trace models. Only
	// needed once per run, so they may be loaded on demand.
	Orders(ctx context.Context, teff float64) (o1, o2 *emath.FloatGrid, err error)
}

// SpectrumGrid views a trace model's flux as an image: each row of the
// flux array is a detector row.
func SpectrumGrid(s *modelgrid.Spectrum) (emath.FloatGrid, error) {
	if len(s.Flux) == 0 {
		return emath.FloatGrid{}, fmt.Errorf("trace %s: no flux", s.Params)
	}
	w := len(s.Flux[0])
	vals := make([]float64, 0, w*len(s.Flux))
	for _, row := range s.Flux {
		vals = append(vals, row...)
	}
	return emath.NewFloatGridFromValues(w, vals)
}

// TraceIndex is the TraceSource built from model grids. Every field
// trace named by the colour table is loaded up front, so the engine
// never has to go looking for one mid-sweep.
type TraceIndex struct {
	Meta TraceGridMeta

	field  map[float64]*emath.FloatGrid
	orders [2]*modelgrid.Grid
	log    *zap.SugaredLogger

	mu        sync.Mutex
	orderSets map[float64][2]*emath.FloatGrid
}

// NewTraceIndex loads a field trace for each temperature in the colour
// table. A colour table temperature outside the field grid is a
// configuration error; a trace that fails to load is logged and left
// out, and any star needing it will fail the run.
func NewTraceIndex(ctx context.Context, meta TraceGridMeta, field *modelgrid.Grid, orders [2]*modelgrid.Grid, log *zap.SugaredLogger) (*TraceIndex, error) {
	if err := meta.Colors.Validate(); err != nil {
		return nil, err
	}

	ti := &TraceIndex{
		Meta:      meta,
		field:     map[float64]*emath.FloatGrid{},
		orders:    orders,
		log:       logger.OrNop(log),
		orderSets: map[float64][2]*emath.FloatGrid{},
	}

	for _, teff := range meta.Colors.Temperatures() {
		g, err := gridTrace(ctx, field, teff, meta.Logg, meta.FeH)
		if err != nil {
			var oor *modelgrid.OutOfRangeError
			if ctx.Err() != nil {
				return nil, ctx.Err()
			} else if errors.As(err, &oor) {
				return nil, &ConfigurationError{What: "trace grid", Err: err}
			}
			ti.log.Warnf("field trace for Teff=%g skipped: %v", teff, err)
			continue
		}
		if meta.DimX > 0 && (g.Dx() != meta.DimX || g.Dy() != meta.DimY) {
			return nil, &ConfigurationError{What: "trace grid", Err: fmt.Errorf("Teff=%g trace is %dx%d, metadata says %dx%d",
				teff, g.Dx(), g.Dy(), meta.DimX, meta.DimY)}
		}
		ti.field[teff] = g
	}

	if len(ti.field) == 0 {
		return nil, &ConfigurationError{What: "trace grid", Err: errors.New("no field traces could be loaded")}
	}

	ti.log.Infof("trace index: %d/%d field traces, padding (%d,%d)", len(ti.field), len(meta.Colors.Temperatures()),
		meta.PadX, meta.PadY)

	return ti, nil
}

func gridTrace(ctx context.Context, g *modelgrid.Grid, teff, logg, feh float64) (*emath.FloatGrid, error) {
	pt, err := g.Get(ctx, teff, logg, feh)
	if err != nil {
		return nil, err
	}
	fg, err := SpectrumGrid(pt.Spectrum())
	if err != nil {
		return nil, err
	}
	return &fg, nil
}

func (ti *TraceIndex)Padding() image.Point { return image.Point{ti.Meta.PadX, ti.Meta.PadY} }

func (ti *TraceIndex)Field(teff float64) (*emath.FloatGrid, bool) {
	g, exists := ti.field[teff]
	return g, exists
}

func (ti *TraceIndex)Orders(ctx context.Context, teff float64) (*emath.FloatGrid, *emath.FloatGrid, error) {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	if set, exists := ti.orderSets[teff]; exists {
		return set[0], set[1], nil
	}

	set := [2]*emath.FloatGrid{}
	for i, g := range ti.orders {
		if g == nil {
			return nil, nil, &ConfigurationError{What: "trace grid", Err: fmt.Errorf("no order %d models", i+1)}
		}
		fg, err := gridTrace(ctx, g, teff, ti.Meta.Logg, ti.Meta.FeH)
		if err != nil {
			return nil, nil, fmt.Errorf("order %d trace for Teff=%g: %w", i+1, teff, err)
		}
		set[i] = fg
	}

	ti.orderSets[teff] = set
	return set[0], set[1], nil
}

// OpenTraceIndex loads a trace model directory: grid.yaml, plus the
// field/, order1/ and order2/ model grids. Trace arrays are used as
// stored, with no wavelength trim or rebinning.
func OpenTraceIndex(ctx context.Context, dir string, workers int, log *zap.SugaredLogger) (*TraceIndex, error) {
	meta, err := LoadTraceGridMeta(filepath.Join(dir, TraceGridMetaFile))
	if err != nil {
		return nil, err
	}
	logger.OrNop(log).Debugf("trace grid %s:\n%s", dir, meta.AsYaml())

	open := func(sub string) (*modelgrid.Grid, error) {
		g, err := modelgrid.New(ctx, modelgrid.NewDirStore(filepath.Join(dir, sub), log), log)
		if err != nil {
			return nil, err
		}
		g.Workers = workers
		g.Raw = true  // traces are images; every column is a detector pixel
		return g, nil
	}

	field, err := open("field")
	if err != nil {
		return nil, err
	}
	var orders [2]*modelgrid.Grid
	for i, sub := range []string{"order1", "order2"} {
		if orders[i], err = open(sub); err != nil {
			return nil, err
		}
	}

	return NewTraceIndex(ctx, meta, field, orders, log)
}
