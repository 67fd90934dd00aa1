package driverstate

import (
	"errors"
	"fmt"
)

// Sentinel errors for frames the engine refuses to ingest.
var (
	// ErrNoFace is returned when the frame carries no face observation.
	ErrNoFace = errors.New("driverstate: no face in frame")

	// ErrDegenerateGeometry is wrapped by geometry errors from feature extraction.
	ErrDegenerateGeometry = errors.New("driverstate: degenerate eye geometry")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("driverstate: invalid config")
)

// FeatureError reports a non-finite, out-of-domain or absent feature value.
type FeatureError struct {
	Field string
	Value float64

	// Missing marks a field absent from the decoded frame; Value is unset.
	Missing bool
}

// Error implements the error interface.
func (e *FeatureError) Error() string {
	if e.Missing {
		return "driverstate: missing " + e.Field
	}
	return fmt.Sprintf("driverstate: invalid %s: %v", e.Field, e.Value)
}

// IsSkippable reports whether err describes a frame that should be skipped
// rather than a failure of the engine itself.
func IsSkippable(err error) bool {
	var fe *FeatureError
	return errors.Is(err, ErrNoFace) || errors.Is(err, ErrDegenerateGeometry) || errors.As(err, &fe)
}
