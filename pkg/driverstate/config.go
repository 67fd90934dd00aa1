package driverstate

import "fmt"

// Calibration constants measured on the reference camera setup.
const (
	// CalibrationBufferDim is how many frames are averaged into the pose baseline.
	CalibrationBufferDim = 30

	// OpenEAR and ClosedEAR are the eye aspect ratios of a fully open and a fully closed eye.
	OpenEAR   = 0.32
	ClosedEAR = 0.02

	// TemporalWindowSeconds is the span of the drowsiness window.
	TemporalWindowSeconds = 10.0

	// NormEARThreshold is the normalized openness below which an eye counts as closed.
	NormEARThreshold = 0.68

	// DrowsyFraction of the window spent closed raises the drowsy flag.
	DrowsyFraction = 0.8

	// BlinkDetectionSeconds is the minimum distracted dwell before a warning.
	BlinkDetectionSeconds = 0.25

	// GazeThreshold applies to each normalized gaze axis.
	GazeThreshold = 0.25

	// PoseThresholdDegrees applies to roll, calibrated pitch and calibrated yaw.
	PoseThresholdDegrees = 30.0

	// DefaultMaxFrameDuration bounds a single frame's weight in the window.
	DefaultMaxFrameDuration = 1.0
)

// Config holds the tunable parameters of an Engine
type Config struct {
	// Calibration
	CalibrationFrames int // Frames averaged into the pitch/yaw baseline

	// Eye openness normalization
	OpenEAR   float64 // EAR of a fully open eye
	ClosedEAR float64 // EAR of a fully closed eye

	// Drowsiness
	WindowSeconds    float64 // Sliding window length (seconds of frame time)
	ClosedThreshold  float64 // Normalized openness below this counts as closed
	DrowsyFraction   float64 // Fraction of WindowSeconds that must be closed
	MaxFrameDuration float64 // Frame durations are clamped to this before windowing

	// Distraction
	GazeThreshold        float64 // Per-axis normalized gaze limit
	PoseThreshold        float64 // Degrees, applied to |roll|, |pitch|, |yaw|
	BlinkDetectionWindow float64 // Seconds of sustained distraction before warning

	// SuppressDistractionWhileCalibrating holds the distraction warning low until
	// the pose baseline is complete. Off by default: detection runs in both modes.
	SuppressDistractionWhileCalibrating bool
}

// DefaultConfig returns the reference thresholds
func DefaultConfig() Config {
	return Config{
		CalibrationFrames: CalibrationBufferDim,

		OpenEAR:   OpenEAR,
		ClosedEAR: ClosedEAR,

		WindowSeconds:    TemporalWindowSeconds,
		ClosedThreshold:  NormEARThreshold,
		DrowsyFraction:   DrowsyFraction,
		MaxFrameDuration: DefaultMaxFrameDuration,

		GazeThreshold:        GazeThreshold,
		PoseThreshold:        PoseThresholdDegrees,
		BlinkDetectionWindow: BlinkDetectionSeconds,
	}
}

// DrowsyAfter returns the closed time, in seconds, that raises the drowsy flag.
func (c Config) DrowsyAfter() float64 {
	return c.DrowsyFraction * c.WindowSeconds
}

// Validate checks that the configuration can drive an engine.
func (c Config) Validate() error {
	if c.CalibrationFrames <= 0 {
		return fmt.Errorf("%w: calibration frames must be positive, got %d", ErrInvalidConfig, c.CalibrationFrames)
	}
	if c.OpenEAR == c.ClosedEAR {
		return fmt.Errorf("%w: open and closed EAR must differ (both %v)", ErrInvalidConfig, c.OpenEAR)
	}
	if c.WindowSeconds <= 0 {
		return fmt.Errorf("%w: window must be positive, got %v", ErrInvalidConfig, c.WindowSeconds)
	}
	if c.DrowsyFraction <= 0 || c.DrowsyFraction > 1 {
		return fmt.Errorf("%w: drowsy fraction must be in (0, 1], got %v", ErrInvalidConfig, c.DrowsyFraction)
	}
	if c.MaxFrameDuration <= 0 {
		return fmt.Errorf("%w: max frame duration must be positive, got %v", ErrInvalidConfig, c.MaxFrameDuration)
	}
	if c.GazeThreshold <= 0 || c.PoseThreshold <= 0 {
		return fmt.Errorf("%w: gaze and pose thresholds must be positive", ErrInvalidConfig)
	}
	if c.BlinkDetectionWindow < 0 {
		return fmt.Errorf("%w: blink detection window must not be negative, got %v", ErrInvalidConfig, c.BlinkDetectionWindow)
	}
	return nil
}
