package modelgrid

import(
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"runtime"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/abworrall/soss-contam/pkg/logger"
)

// A Range is an inclusive [min, max] pair.
type Range [2]float64

func (r Range)Contains(v float64) bool { return v >= r[0] && v <= r[1] }

// Grid is a multi-parameter grid of model spectra, keyed by (Teff,
// logg, FeH). Nodes are loaded from the Store on demand; off-node
// requests are interpolated from a flux tensor that is loaded in full,
// once, the first time it's needed.
//
// Safe for concurrent use.
type Grid struct {
	Path    string
	Workers int  // Goroutines used for tensor loads and interpolation; 0 means NumCPU
	Raw     bool // The flux arrays are images, not spectra: never trim or rebin columns

	store Store
	log   *zap.SugaredLogger

	mu        sync.RWMutex
	all       []PointInfo             // Every node the store indexed
	active    []PointInfo             // The nodes retrieval considers valid (see Restrict)
	meta      map[string]interface{}  // Header values shared by every node
	axes      axes                    // Distinct values of the active nodes
	waveRange Range                   // microns
	nBins     int                     // 0 means no rebinning

	tensorMu  sync.Mutex
	tensor   *fluxTensor
}

// axes holds the sorted distinct values along each parameter.
type axes struct {
	Teff, Logg, FeH []float64
}

func (a axes)ranges() [3]Range {
	return [3]Range{
		{a.Teff[0], a.Teff[len(a.Teff)-1]},
		{a.Logg[0], a.Logg[len(a.Logg)-1]},
		{a.FeH[0],  a.FeH[len(a.FeH)-1]},
	}
}

var(
	DefaultWaveRange = Range{0, 40}
	axisNames        = [3]string{"Teff", "logg", "FeH"}
)

// New indexes the store and builds the grid. A store with no readable
// models is a ConfigurationError.
func New(ctx context.Context, store Store, log *zap.SugaredLogger) (*Grid, error) {
	g := &Grid{
		Path:      store.Name(),
		store:     store,
		log:       logger.OrNop(log),
		waveRange: DefaultWaveRange,
	}

	pis, err := store.Index(ctx)
	if err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, &ConfigurationError{Path: g.Path, Err: err}
	}

	seen := map[Params]bool{}
	for _, pi := range pis {
		if seen[pi.Params] {
			g.log.Warnf("model grid %s: duplicate node %s in %s, ignored", g.Path, pi.Params, pi.Filename)
			continue
		}
		seen[pi.Params] = true
		g.all = append(g.all, pi)
	}
	if len(g.all) == 0 {
		return nil, &ConfigurationError{Path: g.Path, Err: errors.New("no model files")}
	}

	g.meta = constantHeaders(g.all)
	g.active = g.all
	g.axes = axesOf(g.active)

	g.log.Infof("model grid %s: %d models, Teff %v, logg %v, FeH %v", g.Path, len(g.all),
		g.axes.Teff, g.axes.Logg, g.axes.FeH)

	return g, nil
}

// constantHeaders finds the header values that are identical across
// every node; they describe the grid rather than the node.
func constantHeaders(pis []PointInfo) map[string]interface{} {
	meta := map[string]interface{}{}
	for k, v := range pis[0].Header {
		if k == "Teff" || k == "logg" || k == "FeH" {
			continue
		}
		same := true
		for _, pi := range pis[1:] {
			if !reflect.DeepEqual(pi.Header[k], v) {
				same = false
				break
			}
		}
		if same {
			meta[k] = v
		}
	}
	return meta
}

func axesOf(pis []PointInfo) axes {
	uniq := func(get func(PointInfo) float64) []float64 {
		m := map[float64]bool{}
		vals := []float64{}
		for _, pi := range pis {
			if v := get(pi); !m[v] {
				m[v] = true
				vals = append(vals, v)
			}
		}
		sort.Float64s(vals)
		return vals
	}
	return axes{
		Teff: uniq(func(pi PointInfo) float64 { return pi.Teff }),
		Logg: uniq(func(pi PointInfo) float64 { return pi.Logg }),
		FeH:  uniq(func(pi PointInfo) float64 { return pi.FeH }),
	}
}

func (g *Grid)workers() int {
	if g.Workers > 0 {
		return g.Workers
	}
	return runtime.NumCPU()
}

// checkRange must be called with g.mu held
func (g *Grid)checkRange(p Params) error {
	for i, r := range g.axes.ranges() {
		v := [3]float64{p.Teff, p.Logg, p.FeH}[i]
		if !r.Contains(v) {
			return &OutOfRangeError{Params: p, Axis: axisNames[i], Min: r[0], Max: r[1]}
		}
	}
	return nil
}

// find must be called with g.mu held
func (g *Grid)find(p Params) (PointInfo, bool) {
	for _, pi := range g.active {
		if pi.Params == p {
			return pi, true
		}
	}
	return PointInfo{}, false
}

// loadOpts is a snapshot of the settings that shape a retrieved
// spectrum, so files can be read without holding the lock.
type loadOpts struct {
	waveRange Range
	nBins     int
	raw       bool
	meta      map[string]interface{}
}

func (g *Grid)snapshot() loadOpts {
	return loadOpts{waveRange: g.waveRange, nBins: g.nBins, raw: g.Raw, meta: g.meta}
}

// Get retrieves the model for the given parameters. A stored node is
// loaded from its file; anything else is interpolated.
func (g *Grid)Get(ctx context.Context, teff, logg, feh float64) (Point, error) {
	p := Params{Teff: teff, Logg: logg, FeH: feh}

	g.mu.RLock()
	err := g.checkRange(p)
	pi, onGrid := g.find(p)
	opts := g.snapshot()
	g.mu.RUnlock()

	if err != nil {
		return nil, err
	}
	if !onGrid {
		return g.Interpolate(ctx, teff, logg, feh)
	}

	spec, err := g.loadSpectrum(ctx, pi, opts.meta)
	if err != nil {
		return nil, err
	}
	if spec, err = opts.shape(g.Path, spec); err != nil {
		return nil, err
	}
	return &ExactPoint{Spec: *spec, Filename: pi.Filename}, nil
}

// loadSpectrum reads a node's file and builds its full wavelength axis,
// in microns. See loadOpts.shape for trimming and rebinning.
func (g *Grid)loadSpectrum(ctx context.Context, pi PointInfo, meta map[string]interface{}) (*Spectrum, error) {
	raw, err := g.store.Load(ctx, pi)
	if err != nil {
		return nil, fmt.Errorf("load %s (%s): %w", pi.Filename, pi.Params, err)
	}
	if len(raw.Flux) == 0 || len(raw.Flux[0]) == 0 {
		return nil, fmt.Errorf("load %s (%s): empty flux array", pi.Filename, pi.Params)
	}

	nWave := len(raw.Flux[0])
	for i, row := range raw.Flux {
		if len(row) != nWave {
			return nil, fmt.Errorf("load %s: flux row %d has %d values, want %d", pi.Filename, i, len(row), nWave)
		}
	}

	// Construct full wavelength scale (Angstrom)
	var rawWave []float64
	if raw.Wave != nil {
		if len(raw.Wave) != nWave {
			return nil, fmt.Errorf("load %s: %d wavelengths for %d flux values", pi.Filename, len(raw.Wave), nWave)
		}
		rawWave = raw.Wave
	} else {
		start, ok1 := pi.Header["CRVAL1"].(float64)
		step,  ok2 := pi.Header["CDELT1"].(float64)
		if !ok1 || !ok2 {
			return nil, &ConfigurationError{Path: pi.Filename, Err: errors.New("no wavelength data, and no CRVAL1/CDELT1 to generate it")}
		}
		rawWave = make([]float64, nWave)
		for i := range rawWave {
			rawWave[i] = start + step*float64(i)
		}
	}

	spec := &Spectrum{
		Params: pi.Params,
		Wave:   make([]float64, nWave),
		Flux:   raw.Flux,
		Mu:     append([]float64(nil), raw.Mu...),
		Meta:   map[string]interface{}{},
	}
	floats.ScaleTo(spec.Wave, 1e-4, rawWave)  // A to um

	for k, v := range meta {
		spec.Meta[k] = v
	}
	for k, v := range pi.Header {
		spec.Meta[k] = v
	}

	return spec, nil
}

// shape trims a full spectrum to the wavelength range and rebins it,
// into new slices. A range holding no wavelengths is a
// ConfigurationError. Grids of raw images skip both steps.
func (opts loadOpts)shape(path string, full *Spectrum) (*Spectrum, error) {
	spec := *full
	if opts.raw {
		return &spec, nil
	}

	idx := []int{}
	for i, w := range full.Wave {
		if opts.waveRange.Contains(w) {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return nil, &ConfigurationError{Path: path, Err: fmt.Errorf("%s: no wavelengths in %v um (model covers %g-%g)",
			full.Params, opts.waveRange, full.Wave[0], full.Wave[len(full.Wave)-1])}
	}

	spec.Wave = make([]float64, len(idx))
	spec.Flux = make([][]float64, len(full.Flux))
	for j, i := range idx {
		spec.Wave[j] = full.Wave[i]
	}
	for m, row := range full.Flux {
		spec.Flux[m] = make([]float64, len(idx))
		for j, i := range idx {
			spec.Flux[m][j] = row[i]
		}
	}

	if opts.nBins > 0 && opts.nBins < len(spec.Wave) {
		spec.Wave, spec.Flux = Rebin(spec.Wave, spec.Flux, opts.nBins)
	}
	return &spec, nil
}

// RestrictOptions are the inclusive bounds for Restrict. A zero Wave or
// NBins keeps the current setting.
type RestrictOptions struct {
	Teff  Range
	Logg  Range
	FeH   Range
	Wave  Range  // microns
	NBins int
}

func DefaultRestrictOptions() RestrictOptions {
	return RestrictOptions{
		Teff: Range{0, 1e4},
		Logg: Range{0, 6},
		FeH:  Range{-3, 3},
		Wave: DefaultWaveRange,
	}
}

// Restrict narrows the grid to the nodes inside the given ranges, and
// sets the wavelength range and bin count for retrieved spectra. If no
// node would survive, nothing changes and ErrEmptyRestriction is
// returned; that is a warning, not a reason to stop.
//
// The flux tensor, if already loaded, is kept: it holds every node at
// full resolution, and is trimmed per request.
func (g *Grid)Restrict(opts RestrictOptions) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	kept := []PointInfo{}
	for _, pi := range g.active {
		if opts.Teff.Contains(pi.Teff) && opts.Logg.Contains(pi.Logg) && opts.FeH.Contains(pi.FeH) {
			kept = append(kept, pi)
		}
	}

	g.log.Infof("%d/%d spectra in parameter range Teff: %v, logg: %v, FeH: %v, wavelength: %v",
		len(kept), len(g.active), opts.Teff, opts.Logg, opts.FeH, opts.Wave)

	if len(kept) == 0 {
		g.log.Warnf("model grid %s: the given parameter ranges would leave 0 models; grid not updated", g.Path)
		return ErrEmptyRestriction
	}

	g.active = kept
	g.axes = axesOf(kept)
	if opts.Wave != (Range{}) {
		g.waveRange = opts.Wave
	}
	if opts.NBins > 0 {
		g.nBins = opts.NBins
	}
	return nil
}

// Reset undoes any Restrict.
func (g *Grid)Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.active = g.all
	g.axes = axesOf(g.all)
	g.waveRange = DefaultWaveRange
	g.nBins = 0
}

// Points returns the nodes currently considered valid.
func (g *Grid)Points() []PointInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]PointInfo(nil), g.active...)
}

// Meta returns a grid-level header value, e.g. "CRVAL1".
func (g *Grid)Meta(key string) (interface{}, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.meta[key]
	return v, ok
}

// FindClosest returns the indices of the n values either side of v in
// the sorted `axis`. v must lie within the axis.
func FindClosest(axis []float64, v float64, n int) ([]int, error) {
	if len(axis) == 0 || math.IsNaN(v) || v < axis[0] || v > axis[len(axis)-1] {
		return nil, fmt.Errorf("point %v outside grid", v)
	}
	if len(axis) == 1 {
		return []int{0}, nil
	}

	idx := sort.SearchFloat64s(axis, v)
	if idx < 1           { idx = 1 }
	if idx > len(axis)-1 { idx = len(axis)-1 }

	lo, hi := idx-n, idx+n
	if lo < 0         { lo = 0 }
	if hi > len(axis) { hi = len(axis) }

	ret := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		ret = append(ret, i)
	}
	return ret, nil
}
