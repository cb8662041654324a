package pipeline

import (
	"fmt"
	"strings"

	"github.com/banshee-data/lifecycle.report/internal/usgeo"
)

// Year bounds for run selectors.
const (
	MinYear = 1900
	MaxYear = 2100
)

// ValidateSelector checks a (state, year) partition selector. State must
// be a known two-letter USPS code, year must fall in [MinYear, MaxYear].
// Case and surrounding whitespace are forgiven; everything else fails
// before any I/O happens.
func ValidateSelector(state string, year int) error {
	code := strings.ToUpper(strings.TrimSpace(state))
	if !usgeo.ValidState(code) {
		return fmt.Errorf("%w: unknown state %q", ErrSelector, state)
	}
	if year < MinYear || year > MaxYear {
		return fmt.Errorf("%w: year %d outside [%d, %d]", ErrSelector, year, MinYear, MaxYear)
	}
	return nil
}
