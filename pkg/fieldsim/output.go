package fieldsim

import(
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"
	"github.com/mdouchement/hdr/tmo"
	"github.com/skypies/util/histogram"
	"gopkg.in/yaml.v2"

	"github.com/abworrall/soss-contam/pkg/emath"
)

// {{{ PlaneImage

// PlaneImage presents one cube plane as a grey HDR image, flipped so
// detector row 0 is at the bottom. Implements hdr.Image.
type PlaneImage struct {
	Grid *emath.FloatGrid
}

// Implement image.Image
func (pi PlaneImage)ColorModel() color.Model { return hdrcolor.RGBModel }
func (pi PlaneImage)Bounds() image.Rectangle { return pi.Grid.Bounds() }
func (pi PlaneImage)At(x, y int) color.Color { return pi.HDRAt(x, y) }

// Implement hdr.Image
func (pi PlaneImage)HDRAt(x, y int) hdrcolor.Color {
	v := pi.Grid.Get(x, pi.Grid.Dy()-1-y)
	return hdrcolor.RGB{R: v, G: v, B: v}
}
func (pi PlaneImage)Size() int { return pi.Grid.Dx() * pi.Grid.Dy() }

// WriteHDR outputs a Radiance RGBE file.
func WriteHDR(img hdr.Image, filename string) error {
	if writer, err := os.Create(filename); err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	} else {
		defer writer.Close()
		return rgbe.Encode(writer, img)
	}
}

func WritePNG(img image.Image, filename string) error {
	if writer, err := os.Create(filename); err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	} else {
		defer writer.Close()
		return png.Encode(writer, img)
	}
}

// }}}
// {{{ Tonemapping

var(
	Tonemappers = []string{"drago03", "linear", "reinhard05"}
)

func ListTonemappers() string {
	return fmt.Sprintf("%v", Tonemappers)
}

// Tonemap squashes a plane into LDR. Most of a contamination plane is
// empty, so the operators are tuned to not blow out the traces.
func Tonemap(img hdr.Image, name string) (image.Image, error) {
	var op tmo.ToneMappingOperator
	switch name {
	case "drago03":
		d := tmo.NewDefaultDrago03(img)
		d.Bias = 1.0
		op = d
	case "linear":
		op = tmo.NewLinear(img)
	case "reinhard05":
		r := tmo.NewDefaultReinhard05(img)
		r.Chromatic = 0.0  // grey anyway
		r.Light     = 0.005
		op = r
	default:
		return nil, &ConfigurationError{What: "tonemapper", Err: fmt.Errorf("%q not recognized, wanted %s", name, ListTonemappers())}
	}
	return op.Perform(), nil
}

// }}}
// {{{ Summary

// PlaneSummary is the contamination total in one angle plane.
type PlaneSummary struct {
	AngleInfo     `yaml:",inline"`
	Flux          float64 `yaml:"flux"`
	Contamination float64 `yaml:"contamination"` // Flux relative to the target's orders
	Complete      bool    `yaml:"complete"`
}

type CubeSummary struct {
	Shape      [3]int         `yaml:"shape"`
	TargetFlux float64        `yaml:"target_flux"`
	Reference  bool           `yaml:"reference"`  // false if the order planes were never written
	Planes     []PlaneSummary `yaml:"planes"`

	// Distribution of per-angle contamination, in percent of the target
	ContaminationHistogram string `yaml:"contamination_histogram"`
}

func Summarize(cube *SimulationCube) CubeSummary {
	n, h, w := cube.Shape()
	cs := CubeSummary{
		Shape:      [3]int{n, h, w},
		TargetFlux: cube.Order(1).Sum() + cube.Order(2).Sum(),
		Reference:  cube.HasReference(),
	}

	done := map[int]bool{}
	for _, k := range cube.Completed() {
		done[k] = true
	}

	hist := histogram.Histogram{NumBuckets:100, ValMin:0, ValMax:100}
	for k, ai := range cube.Angles() {
		ps := PlaneSummary{AngleInfo: ai, Flux: cube.AnglePlane(k).Sum(), Complete: done[k]}
		if cs.TargetFlux > 0 {
			ps.Contamination = ps.Flux / cs.TargetFlux
		}
		if ps.Complete {
			hist.Add(histogram.ScalarVal(int(ps.Contamination * 100)))
		}
		cs.Planes = append(cs.Planes, ps)
	}
	cs.ContaminationHistogram = fmt.Sprintf("%v", hist)

	return cs
}

func (cs CubeSummary)AsYaml() string {
	b, err := yaml.Marshal(cs)
	if err != nil {
		return fmt.Sprintf("# can't marshal cube summary: %v\n", err)
	}
	return string(b)
}

// }}}
// {{{ WriteCube

type OutputOptions struct {
	PNG        bool    // False-colour previews of every plane
	Tonemapper string  // If set, also write a tonemapped PNG per plane
}

func planeTitle(cube *SimulationCube, i int) string {
	if i < 2 {
		return fmt.Sprintf("target, order %d", i+1)
	}
	ai := cube.angles[i-2]
	return fmt.Sprintf("PA %.1f (V3PA %.2f)", ai.PA, ai.V3PA)
}

// WriteCube writes each plane as plane-NNN.hdr (plus any previews) into
// dir, and the summary as cube.yaml.
func WriteCube(dir string, cube *SimulationCube, opts OutputOptions) (CubeSummary, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return CubeSummary{}, fmt.Errorf("output dir: %w", err)
	}

	for i:=0; i<cube.NumPlanes(); i++ {
		base := filepath.Join(dir, fmt.Sprintf("plane-%03d", i))
		img := PlaneImage{Grid: cube.Plane(i)}

		if err := WriteHDR(img, base+".hdr"); err != nil {
			return CubeSummary{}, err
		}
		if opts.PNG {
			if err := cube.Plane(i).ToImg(planeTitle(cube, i), base+".png"); err != nil {
				return CubeSummary{}, err
			}
		}
		if opts.Tonemapper != "" {
			ldr, err := Tonemap(img, opts.Tonemapper)
			if err != nil {
				return CubeSummary{}, err
			}
			if err := WritePNG(ldr, fmt.Sprintf("%s-%s.png", base, opts.Tonemapper)); err != nil {
				return CubeSummary{}, err
			}
		}
	}

	cs := Summarize(cube)
	if err := os.WriteFile(filepath.Join(dir, "cube.yaml"), []byte(cs.AsYaml()), 0o644); err != nil {
		return cs, fmt.Errorf("write summary: %w", err)
	}
	return cs, nil
}

// }}}

// {{{ -------------------------={ E N D }=----------------------------------

// Local variables:
// folded-file: t
// end:

// }}}
