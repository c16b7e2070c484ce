package fieldsim

import(
	"fmt"
)

// A ConfigurationError stops a run before any compositing: a bad run
// config, an empty colour table, a trace grid that can't serve the
// colour table's temperatures.
type ConfigurationError struct {
	What string
	Err  error
}

func (e *ConfigurationError)Error() string { return fmt.Sprintf("fieldsim: bad %s: %v", e.What, e.Err) }
func (e *ConfigurationError)Unwrap() error { return e.Err }

// A LookupInconsistencyError means a star was classified to a
// temperature that has no trace model. The colour table and the trace
// index disagree, and the run can't continue without leaving part of
// the field uncovered.
type LookupInconsistencyError struct {
	Teff float64
	Star Star
}

func (e *LookupInconsistencyError)Error() string {
	return fmt.Sprintf("fieldsim: no trace model for Teff=%g (star at RA=%.6f, Dec=%.6f, J=%.3f)",
		e.Teff, e.Star.RA, e.Star.Dec, e.Star.J)
}
