package fieldsim

import(
	"errors"
	"fmt"
)

// ColorTable maps model colours to model temperatures: entry i is a
// model of temperature Teff[i] with colours (JH[i], HK[i]).
type ColorTable struct {
	JH   []float64 `yaml:"jh"`
	HK   []float64 `yaml:"hk"`
	Teff []float64 `yaml:"teff"`
}

func (ct ColorTable)Len() int { return len(ct.Teff) }

func (ct ColorTable)Validate() error {
	if ct.Len() == 0 {
		return &ConfigurationError{What: "colour table", Err: errors.New("empty")}
	}
	if len(ct.JH) != ct.Len() || len(ct.HK) != ct.Len() {
		return &ConfigurationError{What: "colour table", Err: fmt.Errorf("column lengths differ: jh %d, hk %d, teff %d",
			len(ct.JH), len(ct.HK), ct.Len())}
	}
	return nil
}

// Temperatures lists the distinct temperatures, in table order.
func (ct ColorTable)Temperatures() []float64 {
	seen := map[float64]bool{}
	ret := []float64{}
	for _, t := range ct.Teff {
		if !seen[t] {
			seen[t] = true
			ret = append(ret, t)
		}
	}
	return ret
}

// Classify returns the temperature of the table entry nearest (jh, hk)
// in colour space. On a tie the earliest entry wins.
func (ct ColorTable)Classify(jh, hk float64) (float64, error) {
	if err := ct.Validate(); err != nil {
		return 0, err
	}

	dist2 := func(i int) float64 {
		a, b := ct.JH[i]-jh, ct.HK[i]-hk
		return a*a + b*b
	}

	best, bestD := 0, dist2(0)
	for i:=1; i<ct.Len(); i++ {
		if d := dist2(i); d < bestD {
			best, bestD = i, d
		}
	}
	return ct.Teff[best], nil
}

// ClassifyStars assigns a temperature to every star.
func (ct ColorTable)ClassifyStars(stars []Star) error {
	for i := range stars {
		teff, err := ct.Classify(stars[i].JH, stars[i].HK)
		if err != nil {
			return err
		}
		stars[i].Teff = teff
	}
	return nil
}
