package modelgrid

import(
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// fluxTensor holds the full resolution flux of every grid node, indexed
// by the node's position along each axis. Nodes that failed to load are
// nil.
type fluxTensor struct {
	axes axes

	wave []float64
	mu   []float64
	nMu  int
	flux [][][]float64  // [node][mu][wavelength]
}

func (t *fluxTensor)index(it, ig, im int) int {
	return (it*len(t.axes.Logg) + ig)*len(t.axes.FeH) + im
}

// materialize loads the flux of every node the store indexed, ignoring
// any Restrict. It happens at most once; a load that fails for a single node is logged and the node
// left out, but a cancelled context aborts and leaves nothing cached.
func (g *Grid)materialize(ctx context.Context) (*fluxTensor, error) {
	g.tensorMu.Lock()
	defer g.tensorMu.Unlock()

	g.mu.RLock()
	all, meta := g.all, g.meta
	g.mu.RUnlock()

	if g.tensor != nil {
		return g.tensor, nil
	}

	g.log.Infof("model grid %s: loading flux into table (%d models)", g.Path, len(all))

	specs, err := ParallelMap(ctx, len(all), g.workers(), func(ctx context.Context, i int) (*Spectrum, error) {
		spec, err := g.loadSpectrum(ctx, all[i], meta)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.log.Warnf("model grid %s: %s skipped: %v", g.Path, all[i].Params, err)
			return nil, nil
		}
		return spec, nil
	})
	if err != nil {
		return nil, err
	}

	ax := axesOf(all)
	t := &fluxTensor{
		axes: ax,
		flux: make([][][]float64, len(ax.Teff)*len(ax.Logg)*len(ax.FeH)),
	}

	for i, spec := range specs {
		if spec == nil {
			continue
		}
		if t.wave == nil {
			t.wave, t.mu, t.nMu = spec.Wave, spec.Mu, len(spec.Flux)
		} else if len(spec.Wave) != len(t.wave) || len(spec.Flux) != t.nMu {
			g.log.Warnf("model grid %s: %s skipped: shape %dx%d, want %dx%d", g.Path, all[i].Params,
				len(spec.Flux), len(spec.Wave), t.nMu, len(t.wave))
			continue
		}
		t.flux[t.index(axisIndex(ax.Teff, spec.Teff), axisIndex(ax.Logg, spec.Logg), axisIndex(ax.FeH, spec.FeH))] = spec.Flux
	}

	if t.wave == nil {
		return nil, &ConfigurationError{Path: g.Path, Err: errors.New("none of the models could be loaded")}
	}

	g.tensor = t
	return t, nil
}

func axisIndex(axis []float64, v float64) int {
	for i, a := range axis {
		if a == v {
			return i
		}
	}
	return -1
}

// bracket returns the (up to two) nodes along one axis that surround v,
// with their linear weights.
type bracket struct {
	idx []int
	w   []float64
}

func newBracket(axis []float64, v float64) (bracket, error) {
	if len(axis) == 1 {
		// A single-valued axis is held fixed
		return bracket{idx: []int{0}, w: []float64{1}}, nil
	}
	idx, err := FindClosest(axis, v, 1)
	if err != nil {
		return bracket{}, err
	}
	lo, hi := idx[0], idx[1]
	t := (v - axis[lo]) / (axis[hi] - axis[lo])
	return bracket{idx: []int{lo, hi}, w: []float64{1 - t, t}}, nil
}

type corner struct {
	Params
	node   int
	weight float64
}

// corners lists the nodes contributing to p, skipping any whose weight
// is zero. At a grid node that leaves just the node itself, with weight 1.
func (t *fluxTensor)corners(p Params) ([]corner, error) {
	var bs [3]bracket
	for i, v := range [3]float64{p.Teff, p.Logg, p.FeH} {
		axis := [3][]float64{t.axes.Teff, t.axes.Logg, t.axes.FeH}[i]
		b, err := newBracket(axis, v)
		if err != nil {
			return nil, &OutOfRangeError{Params: p, Axis: axisNames[i], Min: axis[0], Max: axis[len(axis)-1]}
		}
		bs[i] = b
	}

	ret := []corner{}
	for a, it := range bs[0].idx {
		for b, ig := range bs[1].idx {
			for c, im := range bs[2].idx {
				w := bs[0].w[a] * bs[1].w[b] * bs[2].w[c]
				if w == 0 {
					continue
				}
				ret = append(ret, corner{
					Params: Params{Teff: t.axes.Teff[it], Logg: t.axes.Logg[ig], FeH: t.axes.FeH[im]},
					node:   t.index(it, ig, im),
					weight: w,
				})
			}
		}
	}
	return ret, nil
}

// Interpolate synthesizes the spectrum at p by multilinear interpolation
// over the flux tensor, along each axis that has more than one value.
// The first call loads every model in the grid; the result is then
// trimmed and rebinned like Get's.
func (g *Grid)Interpolate(ctx context.Context, teff, logg, feh float64) (*InterpolatedPoint, error) {
	p := Params{Teff: teff, Logg: logg, FeH: feh}

	g.mu.RLock()
	err := g.checkRange(p)
	opts := g.snapshot()
	g.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	t, err := g.materialize(ctx)
	if err != nil {
		return nil, err
	}

	corners, err := t.corners(p)
	if err != nil {
		return nil, err
	}
	for _, c := range corners {
		if t.flux[c.node] == nil {
			return nil, &ConfigurationError{Path: g.Path, Err: fmt.Errorf("interpolating %s: node %s is unavailable", p, c.Params)}
		}
	}

	rows, err := ParallelMap(ctx, t.nMu, g.workers(), func(ctx context.Context, m int) ([]float64, error) {
		row := make([]float64, len(t.wave))
		for _, c := range corners {
			floats.AddScaled(row, c.weight, t.flux[c.node][m])
		}
		return row, nil
	})
	if err != nil {
		return nil, err
	}

	spec, err := opts.shape(g.Path, &Spectrum{
		Params: p,
		Wave:   t.wave,
		Flux:   rows,
		Mu:     append([]float64(nil), t.mu...),
		Meta:   map[string]interface{}{},
	})
	if err != nil {
		return nil, err
	}
	if opts.raw {
		spec.Wave = append([]float64(nil), t.wave...)
	}

	ip := &InterpolatedPoint{Spec: *spec}
	for k, v := range opts.meta {
		ip.Spec.Meta[k] = v
	}
	ip.Spec.Meta["Teff"], ip.Spec.Meta["logg"], ip.Spec.Meta["FeH"] = teff, logg, feh
	for _, c := range corners {
		ip.Corners = append(ip.Corners, c.Params)
	}

	return ip, nil
}
