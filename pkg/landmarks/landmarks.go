// Package landmarks turns 2D facial landmarks from an external detector into
// driverstate.FrameFeatures.
package landmarks

import (
	"fmt"
	"math"

	"github.com/teslashibe/go-dms/pkg/driverstate"
)

// minSpan is the smallest eye width or height, in pixels, accepted as a divisor.
const minSpan = 1e-6

// Point is an image coordinate in pixels.
type Point struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// Eye holds the landmarks of one eye as seen in the image.
type Eye struct {
	// Contour are the six EAR points: P1 and P4 are the horizontal corners,
	// P2 and P3 lie on the upper lid, P6 and P5 below them on the lower lid.
	Contour [6]Point `json:"contour" msgpack:"contour"`

	// Bounding corners of the eye opening.
	Left   Point `json:"left" msgpack:"left"`
	Right  Point `json:"right" msgpack:"right"`
	Top    Point `json:"top" msgpack:"top"`
	Bottom Point `json:"bottom" msgpack:"bottom"`

	Iris Point `json:"iris" msgpack:"iris"`
}

// Face is one detected face. Pitch and yaw come from the external pose solver.
type Face struct {
	Left  Eye `json:"left_eye" msgpack:"left_eye"`
	Right Eye `json:"right_eye" msgpack:"right_eye"`

	Pitch float64 `json:"pitch" msgpack:"pitch"`
	Yaw   float64 `json:"yaw" msgpack:"yaw"`

	// Detection box, normalized 0-1, and score.
	X          float64 `json:"x,omitempty" msgpack:"x"`
	Y          float64 `json:"y,omitempty" msgpack:"y"`
	W          float64 `json:"w,omitempty" msgpack:"w"`
	H          float64 `json:"h,omitempty" msgpack:"h"`
	Confidence float64 `json:"confidence,omitempty" msgpack:"confidence"`
}

// Area returns the area of the detection box
func (f Face) Area() float64 {
	return f.W * f.H
}

// GeometryError reports landmarks that cannot be normalized, such as an eye
// box with zero width.
type GeometryError struct {
	Eye    string
	Reason string
}

// Error implements the error interface.
func (e *GeometryError) Error() string {
	return fmt.Sprintf("landmarks: %s eye: %s", e.Eye, e.Reason)
}

// Unwrap lets callers match driverstate.ErrDegenerateGeometry.
func (e *GeometryError) Unwrap() error {
	return driverstate.ErrDegenerateGeometry
}

// EAR computes the eye aspect ratio from the six contour points.
func EAR(p [6]Point) (float64, error) {
	horizontal := math.Abs(p[0].X - p[3].X)
	if horizontal < minSpan {
		return 0, &GeometryError{Reason: "zero horizontal span"}
	}
	vertical := math.Abs(p[1].Y-p[5].Y) + math.Abs(p[2].Y-p[4].Y)
	return vertical / (2 * horizontal), nil
}

// Gaze returns the iris offset from the eye box centre, scaled so the box
// edges are at ±1.
func Gaze(e Eye) (driverstate.Vec2, error) {
	width := e.Right.X - e.Left.X
	height := e.Bottom.Y - e.Top.Y
	if math.Abs(width) < minSpan {
		return driverstate.Vec2{}, &GeometryError{Reason: "zero width"}
	}
	if math.Abs(height) < minSpan {
		return driverstate.Vec2{}, &GeometryError{Reason: "zero height"}
	}

	cx := (e.Left.X + e.Right.X) / 2
	cy := (e.Top.Y + e.Bottom.Y) / 2
	return driverstate.Vec2{
		X: (e.Iris.X - cx) / (width / 2),
		Y: (e.Iris.Y - cy) / (height / 2),
	}, nil
}

// Roll returns the head roll in degrees from the outer corners of both eyes,
// in (-180, 180]. A level head gives 0.
func Roll(rightOuter, leftOuter Point) float64 {
	roll := 180 + math.Atan2(rightOuter.Y-leftOuter.Y, rightOuter.X-leftOuter.X)*180/math.Pi
	if roll > 180 {
		roll -= 360
	}
	return roll
}

// Features derives the per-frame engine input from a face.
func Features(f Face, frameDuration float64) (driverstate.FrameFeatures, error) {
	leftEAR, err := EAR(f.Left.Contour)
	if err != nil {
		return driverstate.FrameFeatures{}, withEye(err, "left")
	}
	rightEAR, err := EAR(f.Right.Contour)
	if err != nil {
		return driverstate.FrameFeatures{}, withEye(err, "right")
	}
	leftGaze, err := Gaze(f.Left)
	if err != nil {
		return driverstate.FrameFeatures{}, withEye(err, "left")
	}
	rightGaze, err := Gaze(f.Right)
	if err != nil {
		return driverstate.FrameFeatures{}, withEye(err, "right")
	}

	return driverstate.FrameFeatures{
		LeftEAR:       leftEAR,
		RightEAR:      rightEAR,
		LeftGaze:      leftGaze,
		RightGaze:     rightGaze,
		PitchRaw:      f.Pitch,
		YawRaw:        f.Yaw,
		Roll:          Roll(f.Right.Left, f.Left.Right),
		FrameDuration: frameDuration,
	}, nil
}

func withEye(err error, eye string) error {
	if ge, ok := err.(*GeometryError); ok {
		ge.Eye = eye
	}
	return err
}

// SelectDriver picks the face most likely to be the driver.
// Priority: confidence * 0.7 + relative area * 0.3
func SelectDriver(faces []Face) *Face {
	if len(faces) == 0 {
		return nil
	}
	if len(faces) == 1 {
		return &faces[0]
	}

	maxArea := 0.0
	for _, f := range faces {
		if f.Area() > maxArea {
			maxArea = f.Area()
		}
	}

	bestScore := -1.0
	var best *Face
	for i := range faces {
		score := faces[i].Confidence * 0.7
		if maxArea > 0 {
			score += (faces[i].Area() / maxArea) * 0.3
		}
		if score > bestScore {
			bestScore = score
			best = &faces[i]
		}
	}
	return best
}
