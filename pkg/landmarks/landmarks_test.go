package landmarks

import (
	"errors"
	"math"
	"testing"

	"github.com/teslashibe/go-dms/pkg/driverstate"
)

// openEye builds an eye 40px wide and 12px tall centred on (cx, cy).
func openEye(cx, cy float64) Eye {
	return Eye{
		Contour: [6]Point{
			{cx - 20, cy},
			{cx - 7, cy - 6},
			{cx + 7, cy - 6},
			{cx + 20, cy},
			{cx + 7, cy + 6},
			{cx - 7, cy + 6},
		},
		Left:   Point{cx - 20, cy},
		Right:  Point{cx + 20, cy},
		Top:    Point{cx, cy - 6},
		Bottom: Point{cx, cy + 6},
		Iris:   Point{cx, cy},
	}
}

func TestEAR(t *testing.T) {
	tests := []struct {
		name   string
		eye    Eye
		expect float64
	}{
		{"open eye", openEye(100, 100), 0.3},
		{"closed eye", func() Eye {
			e := openEye(100, 100)
			for i := range e.Contour {
				e.Contour[i].Y = 100
			}
			return e
		}(), 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := EAR(tc.eye.Contour)
			if err != nil {
				t.Fatalf("EAR: %v", err)
			}
			if math.Abs(got-tc.expect) > 1e-9 {
				t.Errorf("EAR = %v, want %v", got, tc.expect)
			}
		})
	}
}

func TestEAR_ZeroSpan(t *testing.T) {
	var p [6]Point
	_, err := EAR(p)
	if !errors.Is(err, driverstate.ErrDegenerateGeometry) {
		t.Errorf("Expected ErrDegenerateGeometry, got %v", err)
	}
}

func TestGaze(t *testing.T) {
	tests := []struct {
		name   string
		iris   Point
		expect driverstate.Vec2
	}{
		{"centred", Point{100, 100}, driverstate.Vec2{}},
		{"right edge", Point{120, 100}, driverstate.Vec2{X: 1}},
		{"half left", Point{90, 100}, driverstate.Vec2{X: -0.5}},
		{"looking down", Point{100, 103}, driverstate.Vec2{Y: 0.5}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := openEye(100, 100)
			e.Iris = tc.iris
			got, err := Gaze(e)
			if err != nil {
				t.Fatalf("Gaze: %v", err)
			}
			if math.Abs(got.X-tc.expect.X) > 1e-9 || math.Abs(got.Y-tc.expect.Y) > 1e-9 {
				t.Errorf("Gaze = %+v, want %+v", got, tc.expect)
			}
		})
	}
}

func TestGaze_DegenerateBox(t *testing.T) {
	flat := openEye(100, 100)
	flat.Top = flat.Bottom

	_, err := Gaze(flat)
	var ge *GeometryError
	if !errors.As(err, &ge) {
		t.Fatalf("Expected GeometryError, got %v", err)
	}
	if ge.Reason != "zero height" {
		t.Errorf("Reason = %q, want zero height", ge.Reason)
	}

	narrow := openEye(100, 100)
	narrow.Right = narrow.Left
	if _, err := Gaze(narrow); err == nil {
		t.Error("Expected error for zero width")
	}
}

func TestRoll(t *testing.T) {
	tests := []struct {
		name       string
		rightOuter Point
		leftOuter  Point
		expect     float64
	}{
		{"level", Point{50, 100}, Point{150, 100}, 0},
		{"tilted 45", Point{50, 100}, Point{150, 200}, 45},
		{"tilted -45", Point{50, 200}, Point{150, 100}, -45},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Roll(tc.rightOuter, tc.leftOuter)
			if math.Abs(got-tc.expect) > 1e-9 {
				t.Errorf("Roll = %v, want %v", got, tc.expect)
			}
		})
	}
}

func TestFeatures(t *testing.T) {
	face := Face{
		Right: openEye(80, 100),
		Left:  openEye(160, 100),
		Pitch: 5,
		Yaw:   -3,
	}

	f, err := Features(face, 0.04)
	if err != nil {
		t.Fatalf("Features: %v", err)
	}
	if math.Abs(f.LeftEAR-0.3) > 1e-9 || math.Abs(f.RightEAR-0.3) > 1e-9 {
		t.Errorf("EAR = (%v, %v), want 0.3", f.LeftEAR, f.RightEAR)
	}
	if f.PitchRaw != 5 || f.YawRaw != -3 || f.FrameDuration != 0.04 {
		t.Errorf("Pose or duration not carried: %+v", f)
	}
	if math.Abs(f.Roll) > 1e-9 {
		t.Errorf("Roll = %v, want 0", f.Roll)
	}
}

func TestFeatures_NamesFailingEye(t *testing.T) {
	face := Face{Right: openEye(80, 100), Left: openEye(160, 100)}
	face.Right.Top = face.Right.Bottom

	_, err := Features(face, 0.04)
	var ge *GeometryError
	if !errors.As(err, &ge) || ge.Eye != "right" {
		t.Errorf("Expected right eye GeometryError, got %v", err)
	}
	if !driverstate.IsSkippable(err) {
		t.Error("Geometry errors should be skippable")
	}
}

func TestSelectDriver(t *testing.T) {
	if SelectDriver(nil) != nil {
		t.Error("Expected nil for no faces")
	}

	faces := []Face{
		{W: 0.1, H: 0.1, Confidence: 0.95}, // passenger, far
		{W: 0.3, H: 0.4, Confidence: 0.85}, // driver, close
	}
	best := SelectDriver(faces)
	if best != &faces[1] {
		t.Errorf("Expected the larger face, got %+v", best)
	}
}
