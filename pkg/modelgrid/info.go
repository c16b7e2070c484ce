package modelgrid

import(
	"fmt"
	"sort"

	"gopkg.in/yaml.v2"
)

// GridInfo summarizes a grid's current (possibly restricted) state.
type GridInfo struct {
	Path      string                 `yaml:"path"`
	NModels   int                    `yaml:"n_models"`
	NTotal    int                    `yaml:"n_total"`
	Teff      []float64              `yaml:"teff"`
	Logg      []float64              `yaml:"logg"`
	FeH       []float64              `yaml:"feh"`
	WaveRange Range                  `yaml:"wave_range"`
	NBins     int                    `yaml:"n_bins,omitempty"`
	Loaded    bool                   `yaml:"flux_loaded"`
	Meta      map[string]interface{} `yaml:"meta,omitempty"`
}

func (g *Grid)Info() GridInfo {
	g.tensorMu.Lock()
	loaded := g.tensor != nil
	g.tensorMu.Unlock()

	g.mu.RLock()
	defer g.mu.RUnlock()

	gi := GridInfo{
		Path:      g.Path,
		NModels:   len(g.active),
		NTotal:    len(g.all),
		Teff:      append([]float64(nil), g.axes.Teff...),
		Logg:      append([]float64(nil), g.axes.Logg...),
		FeH:       append([]float64(nil), g.axes.FeH...),
		WaveRange: g.waveRange,
		NBins:     g.nBins,
		Loaded:    loaded,
		Meta:      map[string]interface{}{},
	}
	for k, v := range g.meta {
		gi.Meta[k] = v
	}
	return gi
}

func (gi GridInfo)AsYaml() string {
	b, _ := yaml.Marshal(gi)
	return string(b)
}

func (gi GridInfo)String() string {
	keys := []string{}
	for k := range gi.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	str := fmt.Sprintf("%s: %d/%d models\n", gi.Path, gi.NModels, gi.NTotal)
	str += fmt.Sprintf("  Teff %v\n  logg %v\n  FeH  %v\n", gi.Teff, gi.Logg, gi.FeH)
	str += fmt.Sprintf("  wavelength %g-%g um", gi.WaveRange[0], gi.WaveRange[1])
	if gi.NBins > 0 {
		str += fmt.Sprintf(", %d bins", gi.NBins)
	}
	str += "\n"
	for _, k := range keys {
		str += fmt.Sprintf("  %-8s %v\n", k, gi.Meta[k])
	}
	return str
}
