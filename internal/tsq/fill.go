package tsq

import "github.com/go-faster/errors"

// FillPolicy is the rule for producing a value at a timestamp where no raw
// sample exists.
type FillPolicy string

const (
	// FillNone emits no value for missing timestamps.
	FillNone FillPolicy = "none"
	// FillNaN emits a NaN.
	FillNaN FillPolicy = "nan"
	// FillNull emits an explicit null.
	FillNull FillPolicy = "null"
	// FillZero emits a zero.
	FillZero FillPolicy = "zero"
	// FillScalar emits a user-supplied scalar.
	FillScalar FillPolicy = "scalar"
)

// ParseFillPolicy parses a fill policy name.
func ParseFillPolicy(s string) (FillPolicy, error) {
	switch p := FillPolicy(s); p {
	case FillNone, FillNaN, FillNull, FillZero, FillScalar:
		return p, nil
	default:
		return "", errors.Errorf("unknown fill policy %q", s)
	}
}
