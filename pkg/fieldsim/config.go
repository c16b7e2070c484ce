package fieldsim

import(
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/abworrall/soss-contam/pkg/catalog"
)

// Sweep is the set of position angles to simulate, in degrees. End is
// exclusive.
type Sweep struct {
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
	Step  float64 `yaml:"step"`
}

// Angles lists the position angles in the sweep.
func (s Sweep)Angles() []float64 {
	angles := []float64{}
	if s.Step <= 0 {
		return angles
	}
	// Index based, so long sweeps don't accumulate rounding drift
	for i:=0; ; i++ {
		a := s.Start + float64(i)*s.Step
		if a >= s.End {
			break
		}
		angles = append(angles, a)
	}
	return angles
}

// FieldOfView is the usable optical field, in detector pixels. It is
// bigger than the detector; bounds are inclusive.
type FieldOfView struct {
	XMin float64 `yaml:"x_min"`
	XMax float64 `yaml:"x_max"`
	YMin float64 `yaml:"y_min"`
	YMax float64 `yaml:"y_max"`
}

func (f FieldOfView)Contains(x, y float64) bool {
	return x >= f.XMin && x <= f.XMax && y >= f.YMin && y <= f.YMax
}

type Config struct {
	Verbosity           int         `yaml:"verbosity"`

	PixelScale          float64     `yaml:"pixel_scale"`     // arcsec per pixel
	SweetSpotX          float64     `yaml:"sweet_spot_x"`    // Detector pixel the target is placed on
	SweetSpotY          float64     `yaml:"sweet_spot_y"`
	Width               int         `yaml:"width"`           // Output frame, pixels
	Height              int         `yaml:"height"`

	Sweep               Sweep       `yaml:"sweep"`
	FieldOfView         FieldOfView `yaml:"field_of_view"`

	PlatformOffsetDeg   float64     `yaml:"platform_offset_deg"`   // V3PA = PA + this
	ApplyPlatformOffset bool        `yaml:"apply_platform_offset"` // Rotate by V3PA rather than PA

	RadiusArcmin        float64     `yaml:"radius_arcmin"`   // Catalog cone search
	Workers             int         `yaml:"workers"`         // Angles composited in parallel; 0 means NumCPU
}

func NewConfig() Config {
	return Config{
		PixelScale:        0.065,
		SweetSpotX:        856,
		SweetSpotY:        107,
		Width:             256,
		Height:            2048,
		Sweep:             Sweep{Start: 0, End: 360, Step: 1},
		FieldOfView:       FieldOfView{XMin: -162, XMax: 2047+185, YMin: -154, YMax: 2047+174},
		PlatformOffsetDeg: 0.57,
		RadiusArcmin:      catalog.DefaultRadiusArcmin,
	}
}

func newConfigFromYaml(b []byte) (Config, error) {
	c := NewConfig()
	err := yaml.Unmarshal(b, &c)
	return c, err
}

// LoadConfig reads a YAML config file; anything it doesn't set keeps
// its default.
func LoadConfig(filename string) (Config, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, &ConfigurationError{What: "config file", Err: err}
	}
	c, err := newConfigFromYaml(b)
	if err != nil {
		return Config{}, &ConfigurationError{What: "config file", Err: fmt.Errorf("%s: %w", filename, err)}
	}
	return c, c.Finalize()
}

func (c Config)AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("# can't marshal config yaml: %v\n", err)
	}
	return string(b)
}

// Finalize checks the config is usable.
func (c Config)Finalize() error {
	bad := func(format string, args ...interface{}) error {
		return &ConfigurationError{What: "config", Err: fmt.Errorf(format, args...)}
	}

	switch {
	case !(c.PixelScale > 0):
		return bad("pixel_scale %g must be positive", c.PixelScale)
	case c.Width <= 0 || c.Height <= 0:
		return bad("output frame %dx%d must be non-empty", c.Width, c.Height)
	case !(c.Sweep.Step > 0):
		return bad("sweep step %g must be positive", c.Sweep.Step)
	case len(c.Sweep.Angles()) == 0:
		return bad("sweep %g-%g holds no angles", c.Sweep.Start, c.Sweep.End)
	case c.FieldOfView.XMin > c.FieldOfView.XMax || c.FieldOfView.YMin > c.FieldOfView.YMax:
		return bad("field of view %+v is inverted", c.FieldOfView)
	case c.Workers < 0:
		return bad("workers %d", c.Workers)
	}

	for _, v := range []float64{c.SweetSpotX, c.SweetSpotY, c.PlatformOffsetDeg, c.RadiusArcmin} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ConfigurationError{What: "config", Err: errors.New("non-finite value")}
		}
	}

	return nil
}

// rotationDeg is the angle the sky offsets get rotated by at position
// angle `pa`, before the fixed 90 degree term.
func (c Config)rotationDeg(pa float64) float64 {
	if c.ApplyPlatformOffset {
		return pa + c.PlatformOffsetDeg
	}
	return pa
}
