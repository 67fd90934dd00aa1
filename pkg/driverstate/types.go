// Package driverstate infers driver alertness from per-frame facial geometry.
//
// An Engine owns all state for one camera stream. Feed it one FrameFeatures
// per frame and it returns a Report with debounced drowsy and distracted
// flags. The engine performs no I/O and is not safe for concurrent use:
// run one engine per stream.
package driverstate

import "math"

// Vec2 is a 2D vector, used for normalized gaze offsets.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FrameFeatures are the raw per-frame measurements supplied by the external
// landmark and pose collaborator.
type FrameFeatures struct {
	LeftEAR   float64 `json:"left_ear"`
	RightEAR  float64 `json:"right_ear"`
	LeftGaze  Vec2    `json:"left_gaze"`
	RightGaze Vec2    `json:"right_gaze"`
	PitchRaw  float64 `json:"pitch"`
	YawRaw    float64 `json:"yaw"`
	Roll      float64 `json:"roll"`

	// FrameDuration is the wall-clock time spent producing this frame, in seconds.
	FrameDuration float64 `json:"frame_duration"`
}

// Validate rejects non-finite values and negative durations.
func (f FrameFeatures) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"left_ear", f.LeftEAR},
		{"right_ear", f.RightEAR},
		{"left_gaze.x", f.LeftGaze.X},
		{"left_gaze.y", f.LeftGaze.Y},
		{"right_gaze.x", f.RightGaze.X},
		{"right_gaze.y", f.RightGaze.Y},
		{"pitch", f.PitchRaw},
		{"yaw", f.YawRaw},
		{"roll", f.Roll},
		{"frame_duration", f.FrameDuration},
	}
	for _, fd := range fields {
		if math.IsNaN(fd.v) || math.IsInf(fd.v, 0) {
			return &FeatureError{Field: fd.name, Value: fd.v}
		}
	}
	if f.FrameDuration < 0 {
		return &FeatureError{Field: "frame_duration", Value: f.FrameDuration}
	}
	return nil
}

// NormalizedFrame is a frame after calibration offsets and EAR normalization.
type NormalizedFrame struct {
	LeftOpen  float64 `json:"left_open"`
	RightOpen float64 `json:"right_open"`
	Pitch     float64 `json:"pitch"`
	Yaw       float64 `json:"yaw"`
	Roll      float64 `json:"roll"`
	LeftGaze  Vec2    `json:"left_gaze"`
	RightGaze Vec2    `json:"right_gaze"`
}

// Openness returns the openness of the more-closed eye.
func (n NormalizedFrame) Openness() float64 {
	return math.Min(n.LeftOpen, n.RightOpen)
}

// Mode is the orchestrator state.
type Mode string

const (
	ModeCalibrating Mode = "calibrating"
	ModeTracking    Mode = "tracking"
)

// Report is the engine output for one frame.
type Report struct {
	Drowsy            bool `json:"drowsy"`
	DistractedWarning bool `json:"distracted_warning"`
	Calibrating       bool `json:"calibrating"`

	// Diagnostics
	Mode           Mode    `json:"mode"`
	LeftOpen       float64 `json:"left_open"`
	RightOpen      float64 `json:"right_open"`
	Pitch          float64 `json:"pitch"`
	Yaw            float64 `json:"yaw"`
	Roll           float64 `json:"roll"`
	PitchOffset    float64 `json:"pitch_offset"`
	YawOffset      float64 `json:"yaw_offset"`
	ClosedTime     float64 `json:"closed_time"`
	ClosedFraction float64 `json:"closed_fraction"`
	DistractedTime float64 `json:"distracted_time"`
	FrameDuration  float64 `json:"frame_duration"`

	// Frame counts accepted frames since the engine was created.
	Frame uint64 `json:"frame"`

	// Skipped marks a repeated report for a frame that was not ingested.
	Skipped bool `json:"skipped,omitempty"`
}

// Nominal reports whether neither warning is raised.
func (r Report) Nominal() bool {
	return !r.Drowsy && !r.DistractedWarning
}
