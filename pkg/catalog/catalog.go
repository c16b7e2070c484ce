// Package catalog is the narrow interface onto a point-source catalog
// (2MASS-like: position plus J, H and K magnitudes). A network service
// can sit behind StarCatalog; this package ships a file-backed and an
// in-memory implementation.
package catalog

import(
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v2"

	"github.com/abworrall/soss-contam/pkg/skycoord"
)

// DefaultRadiusArcmin is the cone search radius used around a target.
const DefaultRadiusArcmin = 2.5

// Record is one catalog source.
type Record struct {
	Name string  `yaml:"name,omitempty"`
	RA   float64 `yaml:"ra"`  // degrees
	Dec  float64 `yaml:"dec"` // degrees
	J    float64 `yaml:"j_m"`
	H    float64 `yaml:"h_m"`
	K    float64 `yaml:"k_m"`
}

func (r Record)Coord() skycoord.Coord {
	return skycoord.Coord{RAdeg: r.RA, DecDeg: r.Dec}
}

// StarCatalog resolves a sky position to the sources within a radius.
// Zero results is not an error.
type StarCatalog interface {
	Query(ctx context.Context, center skycoord.Coord, radiusArcmin float64) ([]Record, error)
}

// StaticCatalog is an in-memory list of sources.
type StaticCatalog []Record

func (sc StaticCatalog)Query(ctx context.Context, center skycoord.Coord, radiusArcmin float64) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return coneSearch(sc, center, radiusArcmin), nil
}

// coneSearch keeps the records within the radius, nearest first. Ties
// keep catalog order.
func coneSearch(recs []Record, center skycoord.Coord, radiusArcmin float64) []Record {
	type hit struct {
		rec Record
		sep float64
	}
	hits := []hit{}
	for _, r := range recs {
		if sep := skycoord.Separation(center, r.Coord()); sep*60.0 <= radiusArcmin {
			hits = append(hits, hit{r, sep})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].sep < hits[j].sep })

	out := make([]Record, len(hits))
	for i, h := range hits {
		out[i] = h.rec
	}
	return out
}

// FileCatalog serves queries from a YAML file holding a list of
// records, e.g. a cached cone search around a target. The file is read
// on every query, so it can be refreshed between runs.
type FileCatalog struct {
	Path string
}

type catalogFile struct {
	Sources []Record `yaml:"sources"`
}

func (fc FileCatalog)Query(ctx context.Context, center skycoord.Coord, radiusArcmin float64) ([]Record, error) {
	recs, err := LoadRecords(fc.Path)
	if err != nil {
		return nil, err
	}
	return StaticCatalog(recs).Query(ctx, center, radiusArcmin)
}

// LoadRecords reads a catalog YAML file.
func LoadRecords(path string) ([]Record, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog read %s: %w", path, err)
	}
	var cf catalogFile
	if err := yaml.Unmarshal(contents, &cf); err != nil {
		return nil, fmt.Errorf("catalog parse %s: %w", path, err)
	}
	return cf.Sources, nil
}

// WriteRecords saves records in the format LoadRecords reads.
func WriteRecords(path string, recs []Record) error {
	b, err := yaml.Marshal(catalogFile{Sources: recs})
	if err != nil {
		return fmt.Errorf("catalog marshal: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("catalog write %s: %w", path, err)
	}
	return nil
}
