package fieldsim

import(
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/abworrall/soss-contam/pkg/modelgrid"
)

// traceRaw is a 4 row by 6 column trace model; pixel values encode
// their position and the model temperature.
func traceRaw(teff, scale float64) *modelgrid.RawPoint {
	raw := &modelgrid.RawPoint{Flux: make([][]float64, 4), Wave: make([]float64, 6)}
	for x := range raw.Wave {
		raw.Wave[x] = float64(x + 1)
	}
	for y := range raw.Flux {
		raw.Flux[y] = make([]float64, 6)
		for x := range raw.Flux[y] {
			raw.Flux[y][x] = scale * (teff/1000 + float64(x) + 10*float64(y))
		}
	}
	return raw
}

func traceStore(scale float64, teffs ...float64) *modelgrid.MemStore {
	ms := modelgrid.NewMemStore()
	for _, teff := range teffs {
		ms.Add(modelgrid.Params{Teff: teff, Logg: 4.5, FeH: 0}, nil, traceRaw(teff, scale))
	}
	return ms
}

func traceMeta(teffs ...float64) TraceGridMeta {
	m := TraceGridMeta{PadX: 2, PadY: 1, DimX: 6, DimY: 4, Logg: 4.5, FeH: 0}
	for i, teff := range teffs {
		m.Colors.JH = append(m.Colors.JH, float64(i)*0.1)
		m.Colors.HK = append(m.Colors.HK, float64(i)*0.05)
		m.Colors.Teff = append(m.Colors.Teff, teff)
	}
	return m
}

func newTestGrid(t *testing.T, ms *modelgrid.MemStore) *modelgrid.Grid {
	t.Helper()
	g, err := modelgrid.New(context.Background(), ms, nil)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestTraceIndex(t *testing.T) {
	ctx := context.Background()
	field := newTestGrid(t, traceStore(1, 3000, 4000))
	o1store := traceStore(2, 3000, 4000)
	orders := [2]*modelgrid.Grid{newTestGrid(t, o1store), newTestGrid(t, traceStore(3, 3000, 4000))}

	ti, err := NewTraceIndex(ctx, traceMeta(3000, 3500, 4000), field, orders, nil)
	if err != nil {
		t.Fatalf("NewTraceIndex: %v", err)
	}

	if p := ti.Padding(); p.X != 2 || p.Y != 1 {
		t.Errorf("padding %v", p)
	}
	g, exists := ti.Field(3000)
	if !exists || g.Dx() != 6 || g.Dy() != 4 || g.Get(5, 3) != 3+5+30 {
		t.Fatalf("field trace 3000 = %v, %v", exists, g)
	}
	// Off-node temperatures get an interpolated trace
	if g, exists := ti.Field(3500); !exists || math.Abs(g.Get(1, 2)-(3.5+1+20)) > 1e-9 {
		t.Errorf("field trace 3500 = %v, %v", exists, g)
	}
	if _, exists := ti.Field(3200); exists {
		t.Errorf("trace for a temperature not in the colour table")
	}

	o1, o2, err := ti.Orders(ctx, 4000)
	if err != nil {
		t.Fatalf("Orders: %v", err)
	}
	if o1.Get(0, 0) != 8 || o2.Get(0, 0) != 12 {
		t.Errorf("order traces (0,0) = %v, %v", o1.Get(0, 0), o2.Get(0, 0))
	}

	loads := o1store.Loads()
	o1again, _, err := ti.Orders(ctx, 4000)
	if err != nil || o1again != o1 || o1store.Loads() != loads {
		t.Errorf("order traces were not cached (%d loads, then %d)", loads, o1store.Loads())
	}
}

func TestTraceIndexErrors(t *testing.T) {
	ctx := context.Background()
	field := newTestGrid(t, traceStore(1, 3000, 4000))
	var cfgErr *ConfigurationError

	_, err := NewTraceIndex(ctx, traceMeta(3000, 5000), field, [2]*modelgrid.Grid{}, nil)
	if !errors.As(err, &cfgErr) {
		t.Errorf("colour table outside the grid: err = %v, want ConfigurationError", err)
	}

	meta := traceMeta(3000)
	meta.DimX = 7
	_, err = NewTraceIndex(ctx, meta, field, [2]*modelgrid.Grid{}, nil)
	if !errors.As(err, &cfgErr) {
		t.Errorf("wrong dimensions: err = %v, want ConfigurationError", err)
	}

	ms := traceStore(1, 3000, 4000)
	ms.Fail[modelgrid.Params{Teff: 3000, Logg: 4.5}] = true
	ti, err := NewTraceIndex(ctx, traceMeta(3000, 4000), newTestGrid(t, ms), [2]*modelgrid.Grid{}, nil)
	if err != nil {
		t.Fatalf("one bad trace: %v", err)
	}
	if _, exists := ti.Field(3000); exists {
		t.Errorf("unloadable trace present")
	}
	if _, _, err := ti.Orders(ctx, 4000); !errors.As(err, &cfgErr) {
		t.Errorf("no order grids: err = %v", err)
	}

	// The engine refuses to start with a star it has no trace for
	e := testEngine(t, NewConfig(), ti)
	_, err = e.Run(ctx, []Star{{Teff: 3000}}, SweetSpot{X: 856, Y: 107, J: 9})
	var lie *LookupInconsistencyError
	if !errors.As(err, &lie) {
		t.Errorf("star without a trace: err = %v", err)
	}
}

func TestOpenTraceIndex(t *testing.T) {
	dir := t.TempDir()

	for sub, scale := range map[string]float64{"field": 1, "order1": 2, "order2": 3} {
		if err := os.Mkdir(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatal(err)
		}
		for _, teff := range []float64{3000, 4000} {
			hdr := map[string]interface{}{"teff": teff, "logg": 4.5, "feh": 0.0}
			filename := filepath.Join(dir, sub, fmt.Sprintf("trace-%.0f.yaml", teff))
			if err := modelgrid.WriteYAMLPoint(filename, hdr, traceRaw(teff, scale)); err != nil {
				t.Fatal(err)
			}
		}
	}

	meta := traceMeta(3000, 4000)
	if err := os.WriteFile(filepath.Join(dir, TraceGridMetaFile), []byte(meta.AsYaml()), 0o644); err != nil {
		t.Fatal(err)
	}

	ti, err := OpenTraceIndex(context.Background(), dir, 2, nil)
	if err != nil {
		t.Fatalf("OpenTraceIndex: %v", err)
	}
	if ti.Meta.DimY != 4 || ti.Meta.Colors.Len() != 2 {
		t.Errorf("metadata = %+v", ti.Meta)
	}
	if g, exists := ti.Field(4000); !exists || g.Get(0, 1) != 14 {
		t.Errorf("field trace 4000 = %v, %v", exists, g)
	}
	if _, o2, err := ti.Orders(context.Background(), 3000); err != nil || o2.Get(1, 0) != 12 {
		t.Errorf("order 2 trace: %v", err)
	}

	if _, err := OpenTraceIndex(context.Background(), t.TempDir(), 2, nil); err == nil {
		t.Errorf("empty directory accepted")
	}
}

func TestOpenTraceIndexKeepsEveryColumn(t *testing.T) {
	dir := t.TempDir()

	for _, sub := range []string{"field", "order1", "order2"} {
		if err := os.Mkdir(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatal(err)
		}
		for _, teff := range []float64{3000, 4000} {
			// No wavelength array; the generated axis runs out to 50um
			raw := traceRaw(teff, 1)
			raw.Wave = nil
			hdr := map[string]interface{}{"teff": teff, "logg": 4.5, "feh": 0.0, "CRVAL1": 1e4, "CDELT1": 1e5}
			filename := filepath.Join(dir, sub, fmt.Sprintf("trace-%.0f.yaml", teff))
			if err := modelgrid.WriteYAMLPoint(filename, hdr, raw); err != nil {
				t.Fatal(err)
			}
		}
	}

	meta := traceMeta(3000, 4000)
	metaFile := filepath.Join(dir, TraceGridMetaFile)
	if err := os.WriteFile(metaFile, []byte(meta.AsYaml()), 0o644); err != nil {
		t.Fatal(err)
	}

	ti, err := OpenTraceIndex(context.Background(), dir, 2, nil)
	if err != nil {
		t.Fatalf("OpenTraceIndex: %v", err)
	}
	g, exists := ti.Field(3000)
	if !exists || g.Dx() != 6 || g.Dy() != 4 || g.Get(5, 3) != 3+5+30 {
		t.Errorf("field trace 3000 = %v, %v", exists, g)
	}
	o1, _, err := ti.Orders(context.Background(), 4000)
	if err != nil || o1.Dx() != 6 {
		t.Errorf("order 1 trace: %v, %v", o1, err)
	}

	// Without dimensions the trace geometry can't be checked
	meta.DimX, meta.DimY = 0, 0
	if err := os.WriteFile(metaFile, []byte(meta.AsYaml()), 0o644); err != nil {
		t.Fatal(err)
	}
	var cfgErr *ConfigurationError
	if _, err := OpenTraceIndex(context.Background(), dir, 2, nil); !errors.As(err, &cfgErr) {
		t.Errorf("grid.yaml without dim_x/dim_y: err = %v", err)
	}
}
