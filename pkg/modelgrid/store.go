package modelgrid

import(
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/abworrall/soss-contam/pkg/logger"
)

// PointInfo describes one stored grid node: its key, where its data
// lives, and every header value it was indexed with.
type PointInfo struct {
	Params
	Filename string
	Header   map[string]interface{}
}

// RawPoint is the data in one model file, before any wavelength
// handling. Wave is nil when the file has no explicit wavelength axis;
// the grid then generates one from the CRVAL1/CDELT1 header pair.
type RawPoint struct {
	Flux [][]float64  // [mu][wavelength]
	Mu   []float64
	Wave []float64    // Angstrom
}

// A Store is the backing data for a ModelGrid.
type Store interface {
	// Index lists the grid nodes. Nodes whose headers can't be read are
	// skipped (and logged), not reported as an error.
	Index(ctx context.Context) ([]PointInfo, error)

	// Load reads the data for one node. Potentially slow.
	Load(ctx context.Context, pi PointInfo) (*RawPoint, error)

	// Name identifies the store in log output and errors.
	Name() string
}

var(
	// Header keyword renames, canonical name <- name in the model files.
	// The Phoenix (ACES) keywords are the default.
	PhoenixNames = map[string]string{
		"Teff":  "PHXTEFF",
		"logg":  "PHXLOGG",
		"FeH":   "PHXM_H",
		"mass":  "PHXMASS",
		"r_eff": "PHXREFF",
		"Lbol":  "PHXLUM",
	}
)

// {{{ DirStore

// DirStore is a directory of model files, one per grid node. Two
// formats are understood:
//
//  - .yaml: a `header` map, a `flux` [mu][wavelength] array, optional
//    `mu` and `wavelength` (Angstrom) arrays.
//  - .tif: a 16-bit grayscale image, rows are mu and columns are
//    wavelength, with `KEY=value` header pairs in the TIFF
//    ImageDescription tag. BSCALE/BZERO map pixel values to flux.
type DirStore struct {
	Dir   string
	Names map[string]string  // header renames; nil means PhoenixNames
	Log   *zap.SugaredLogger
}

func NewDirStore(dir string, log *zap.SugaredLogger) *DirStore {
	return &DirStore{Dir: dir, Names: PhoenixNames, Log: logger.OrNop(log)}
}

func (ds *DirStore)Name() string { return ds.Dir }

func (ds *DirStore)Index(ctx context.Context) ([]PointInfo, error) {
	contents, err := os.ReadDir(ds.Dir)
	if err != nil {
		return nil, &ConfigurationError{Path: ds.Dir, Err: err}
	}

	names := ds.Names
	if names == nil {
		names = PhoenixNames
	}
	log := logger.OrNop(ds.Log)

	pis := []PointInfo{}
	for _, content := range contents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if content.IsDir() {
			continue
		}

		filename := filepath.Join(ds.Dir, content.Name())
		var hdr map[string]interface{}

		switch strings.ToLower(filepath.Ext(filename)) {
		case ".yaml", ".yml":
			hdr, err = readYAMLHeader(filename)
		case ".tif", ".tiff":
			hdr, err = readTIFFHeader(filename)
		default:
			continue
		}

		if err == nil {
			var pi PointInfo
			if pi, err = newPointInfo(content.Name(), hdr, names); err == nil {
				pis = append(pis, pi)
				continue
			}
		}
		log.Warnf("%s could not be read into the model grid: %v", filename, err)
	}

	return pis, nil
}

func (ds *DirStore)Load(ctx context.Context, pi PointInfo) (*RawPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filename := filepath.Join(ds.Dir, pi.Filename)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return readYAMLPoint(filename)
	case ".tif", ".tiff":
		return readTIFFPoint(filename, pi.Header)
	}
	return nil, fmt.Errorf("load %s: unknown model file type", filename)
}

// }}}
// {{{ YAML model files

type yamlPointFile struct {
	Header     map[string]interface{} `yaml:"header"`
	Flux       [][]float64            `yaml:"flux,omitempty"`
	Mu         []float64              `yaml:"mu,omitempty"`
	Wavelength []float64              `yaml:"wavelength,omitempty"`
}

func readYAMLHeader(filename string) (map[string]interface{}, error) {
	contents, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	var hdrOnly struct {
		Header map[string]interface{} `yaml:"header"`
	}
	if err := yaml.Unmarshal(contents, &hdrOnly); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	if len(hdrOnly.Header) == 0 {
		return nil, fmt.Errorf("%s has no header", filename)
	}
	return hdrOnly.Header, nil
}

func readYAMLPoint(filename string) (*RawPoint, error) {
	contents, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	var pf yamlPointFile
	if err := yaml.Unmarshal(contents, &pf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	if len(pf.Flux) == 0 {
		return nil, fmt.Errorf("%s has no flux data", filename)
	}
	return &RawPoint{Flux: pf.Flux, Mu: pf.Mu, Wave: pf.Wavelength}, nil
}

// WriteYAMLPoint saves a model file that DirStore can read.
func WriteYAMLPoint(filename string, header map[string]interface{}, raw *RawPoint) error {
	b, err := yaml.Marshal(yamlPointFile{Header: header, Flux: raw.Flux, Mu: raw.Mu, Wavelength: raw.Wave})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filename, err)
	}
	return os.WriteFile(filename, b, 0o644)
}

// }}}
// {{{ header normalization

// newPointInfo renames the header keywords, turns every number into a
// float64, and pulls out the three grid parameters.
func newPointInfo(filename string, hdr map[string]interface{}, names map[string]string) (PointInfo, error) {
	norm := map[string]interface{}{}
	for k, v := range hdr {
		if f, ok := toFloat(v); ok {
			norm[k] = f
		} else {
			norm[k] = v
		}
	}

	for newName, oldName := range names {
		if v, exists := norm[oldName]; exists {
			delete(norm, oldName)
			norm[newName] = v
		}
	}
	// Plain lower-case keys are fine too
	for newName, oldName := range map[string]string{"Teff": "teff", "FeH": "feh"} {
		if v, exists := norm[oldName]; exists {
			delete(norm, oldName)
			norm[newName] = v
		}
	}

	pi := PointInfo{Filename: filename, Header: norm}
	for _, p := range []struct{ key string; dst *float64 }{
		{"Teff", &pi.Teff}, {"logg", &pi.Logg}, {"FeH", &pi.FeH},
	} {
		f, ok := norm[p.key].(float64)
		if !ok {
			return pi, fmt.Errorf("header has no numeric %s", p.key)
		}
		*p.dst = f
	}

	return pi, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64: return n, true
	case float32: return float64(n), true
	case int:     return float64(n), true
	case int64:   return float64(n), true
	case uint64:  return float64(n), true
	}
	return 0, false
}

// }}}
// {{{ MemStore

// MemStore holds grid nodes in memory. Nodes listed in Fail are indexed
// but can't be loaded.
type MemStore struct {
	Points []PointInfo
	Data   map[Params]*RawPoint
	Fail   map[Params]bool

	mu    sync.Mutex
	loads atomic.Int64
}

func NewMemStore() *MemStore {
	return &MemStore{Data: map[Params]*RawPoint{}, Fail: map[Params]bool{}}
}

// Add registers a node; header may be nil.
func (ms *MemStore)Add(p Params, header map[string]interface{}, raw *RawPoint) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	hdr := map[string]interface{}{"Teff": p.Teff, "logg": p.Logg, "FeH": p.FeH}
	for k, v := range header {
		if f, ok := toFloat(v); ok {
			v = f
		}
		hdr[k] = v
	}
	ms.Points = append(ms.Points, PointInfo{Params: p, Filename: p.String(), Header: hdr})
	ms.Data[p] = raw
}

// Loads counts calls to Load.
func (ms *MemStore)Loads() int64 { return ms.loads.Load() }

func (ms *MemStore)Name() string { return "memory" }

func (ms *MemStore)Index(ctx context.Context) ([]PointInfo, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return append([]PointInfo(nil), ms.Points...), ctx.Err()
}

func (ms *MemStore)Load(ctx context.Context, pi PointInfo) (*RawPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ms.loads.Add(1)

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.Fail[pi.Params] {
		return nil, fmt.Errorf("load %s: simulated read failure", pi.Params)
	}
	raw, exists := ms.Data[pi.Params]
	if !exists {
		return nil, fmt.Errorf("load %s: no such point", pi.Params)
	}
	return raw, nil
}

// }}}

// {{{ -------------------------={ E N D }=----------------------------------

// Local variables:
// folded-file: t
// end:

// }}}
