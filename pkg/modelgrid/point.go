package modelgrid

import(
	"fmt"
)

// Params is the key of a grid point.
type Params struct {
	Teff float64 `yaml:"teff"` // Effective temperature (K)
	Logg float64 `yaml:"logg"` // log surface gravity (dex)
	FeH  float64 `yaml:"feh"`  // log metallicity relative to solar (dex)
}

func (p Params)String() string {
	return fmt.Sprintf("Teff:%g/logg:%g/FeH:%g", p.Teff, p.Logg, p.FeH)
}

// A Spectrum is the data every grid point carries, whether it was read
// from a model file or interpolated.
type Spectrum struct {
	Params
	Wave []float64               // Wavelength axis, microns
	Flux [][]float64             // Indexed [mu][wavelength]
	Mu   []float64               // May be nil
	Meta map[string]interface{}  // Scalar metadata (all the non-varying header values)
}

// NWave is the length of the wavelength axis.
func (s *Spectrum)NWave() int { return len(s.Wave) }

// A Point is either an *ExactPoint or an *InterpolatedPoint.
type Point interface {
	Spectrum() *Spectrum
	isPoint()
}

// ExactPoint was loaded from the model file of a stored grid node.
type ExactPoint struct {
	Spec     Spectrum
	Filename string
}

func (p *ExactPoint)Spectrum() *Spectrum { return &p.Spec }
func (p *ExactPoint)isPoint()            {}

// InterpolatedPoint was synthesized from its neighbouring grid nodes.
type InterpolatedPoint struct {
	Spec    Spectrum
	Corners []Params  // The grid nodes that contributed, with non-zero weight
}

func (p *InterpolatedPoint)Spectrum() *Spectrum { return &p.Spec }
func (p *InterpolatedPoint)isPoint()            {}
