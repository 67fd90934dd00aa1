package driverstate

import "math"

// DistractionDebouncer promotes sustained gaze or pose deviations to a warning.
//
// The accumulator grows by the frame duration while the instantaneous
// condition holds and drops to zero the first frame it does not, so a blink
// or a short glance never raises the warning.
type DistractionDebouncer struct {
	gazeThreshold float64
	poseThreshold float64
	dwell         float64

	distracted  bool
	accumulated float64
}

// NewDistractionDebouncer creates a debouncer using the configured thresholds.
func NewDistractionDebouncer(cfg Config) *DistractionDebouncer {
	return &DistractionDebouncer{
		gazeThreshold: cfg.GazeThreshold,
		poseThreshold: cfg.PoseThreshold,
		dwell:         cfg.BlinkDetectionWindow,
	}
}

// GazeDistracted reports whether either eye looks away on either axis.
func (d *DistractionDebouncer) GazeDistracted(left, right Vec2) bool {
	return math.Max(math.Abs(left.X), math.Abs(right.X)) > d.gazeThreshold ||
		math.Max(math.Abs(left.Y), math.Abs(right.Y)) > d.gazeThreshold
}

// PoseDistracted reports whether the head is turned or tilted past the limit.
func (d *DistractionDebouncer) PoseDistracted(pitch, yaw, roll float64) bool {
	return math.Abs(roll) > d.poseThreshold ||
		math.Abs(pitch) > d.poseThreshold ||
		math.Abs(yaw) > d.poseThreshold
}

// Update feeds one frame and returns the debounced warning.
func (d *DistractionDebouncer) Update(pitch, yaw, roll float64, leftGaze, rightGaze Vec2, duration float64) bool {
	d.distracted = d.GazeDistracted(leftGaze, rightGaze) || d.PoseDistracted(pitch, yaw, roll)
	if !d.distracted {
		d.accumulated = 0
	} else {
		d.accumulated += duration
	}
	return d.Warning()
}

// Warning reports whether the accumulated distracted time exceeds the dwell.
func (d *DistractionDebouncer) Warning() bool {
	return d.accumulated > d.dwell
}

// Instantaneous reports the undebounced condition of the last frame.
func (d *DistractionDebouncer) Instantaneous() bool {
	return d.distracted
}

// Accumulated returns the current distracted dwell in seconds.
func (d *DistractionDebouncer) Accumulated() float64 {
	return d.accumulated
}

// Reset clears the accumulator.
func (d *DistractionDebouncer) Reset() {
	d.distracted = false
	d.accumulated = 0
}
