package driverstate

import (
	"math"
	"testing"
)

func TestEyeOpenness(t *testing.T) {
	tests := []struct {
		name string
		ear  float64
		want float64
	}{
		{"fully open", OpenEAR, 1},
		{"fully closed", ClosedEAR, 0},
		{"half open", 0.17, 0.5},
		{"wider than reference", 0.47, 1.5},
		{"squeezed shut", 0, -1.0 / 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EyeOpenness(tt.ear)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("EyeOpenness(%v) = %v, want %v", tt.ear, got, tt.want)
			}
		})
	}
}

func TestNormalize_AppliesOffsets(t *testing.T) {
	f := FrameFeatures{
		LeftEAR:   OpenEAR,
		RightEAR:  ClosedEAR,
		LeftGaze:  Vec2{X: 0.1, Y: -0.2},
		RightGaze: Vec2{X: 0.3, Y: 0.4},
		PitchRaw:  12,
		YawRaw:    -7,
		Roll:      5,
	}

	n := Normalize(f, 2, -3)

	if n.Pitch != 10 || n.Yaw != -4 {
		t.Errorf("Pitch/Yaw = (%v, %v), want (10, -4)", n.Pitch, n.Yaw)
	}
	if n.Roll != 5 {
		t.Errorf("Roll = %v, want 5 (roll is not calibrated)", n.Roll)
	}
	if n.LeftGaze != f.LeftGaze || n.RightGaze != f.RightGaze {
		t.Error("Gaze should pass through unchanged")
	}
	if n.Openness() != n.RightOpen {
		t.Errorf("Openness = %v, want the more-closed eye %v", n.Openness(), n.RightOpen)
	}
}

func TestNormalize_IsPure(t *testing.T) {
	f := FrameFeatures{LeftEAR: 0.21, RightEAR: 0.27, PitchRaw: 3.3, YawRaw: -8.1, Roll: 1}

	a := Normalize(f, 1.1, 2.2)
	b := Normalize(f, 1.1, 2.2)
	if a != b {
		t.Errorf("Normalize not reproducible: %+v vs %+v", a, b)
	}

	cfg := DefaultConfig()
	if c := cfg.Normalize(f, 1.1, 2.2); c != a {
		t.Errorf("Config.Normalize with defaults differs: %+v vs %+v", c, a)
	}
}
