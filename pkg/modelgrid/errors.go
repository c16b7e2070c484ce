package modelgrid

import(
	"errors"
	"fmt"
)

// ErrEmptyRestriction is returned by Restrict when the requested ranges
// would leave no models; the grid is left as it was.
var ErrEmptyRestriction = errors.New("restriction would leave 0 models in the grid")

// An OutOfRangeError means a requested parameter lies outside the
// min/max recorded for its axis.
type OutOfRangeError struct {
	Params
	Axis     string
	Min, Max float64
}

func (e *OutOfRangeError)Error() string {
	return fmt.Sprintf("model %s not in grid: %s outside [%g, %g]", e.Params, e.Axis, e.Min, e.Max)
}

// A ConfigurationError is a problem with the grid's backing data that
// stops it being used at all (unreadable directory, no models, a missing
// wavelength axis).
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError)Error() string { return fmt.Sprintf("model grid %s: %v", e.Path, e.Err) }
func (e *ConfigurationError)Unwrap() error { return e.Err }
