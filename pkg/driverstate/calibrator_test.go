package driverstate

import (
	"math"
	"testing"
)

func TestPoseCalibrator_ZeroBeforeSamples(t *testing.T) {
	c := NewPoseCalibrator(CalibrationBufferDim)

	p, y := c.Offsets()
	if p != 0 || y != 0 {
		t.Errorf("Offsets before any sample = (%v, %v), want (0, 0)", p, y)
	}
	if !c.Calibrating() {
		t.Error("Expected fresh calibrator to be calibrating")
	}
}

func TestPoseCalibrator_MeanOfFilledSlots(t *testing.T) {
	c := NewPoseCalibrator(CalibrationBufferDim)

	p, y := c.Observe(10, -4)
	if p != 10 || y != -4 {
		t.Errorf("After one sample got (%v, %v), want (10, -4)", p, y)
	}

	p, y = c.Observe(20, 4)
	if p != 15 || y != 0 {
		t.Errorf("After two samples got (%v, %v), want (15, 0)", p, y)
	}
}

func TestPoseCalibrator_FreezesWhenFull(t *testing.T) {
	c := NewPoseCalibrator(CalibrationBufferDim)

	for i := 1; i <= CalibrationBufferDim; i++ {
		c.Observe(float64(i), 2*float64(i))
	}
	if c.Calibrating() {
		t.Fatal("Expected calibration to be complete after buffer fills")
	}

	// mean(1..30) = 15.5
	p, y := c.Offsets()
	if math.Abs(p-15.5) > 1e-9 || math.Abs(y-31) > 1e-9 {
		t.Errorf("Offsets = (%v, %v), want (15.5, 31)", p, y)
	}

	p2, y2 := c.Observe(1000, -1000)
	if p2 != p || y2 != y {
		t.Errorf("Offsets changed after freeze: (%v, %v) -> (%v, %v)", p, y, p2, y2)
	}
	if c.Samples() != CalibrationBufferDim {
		t.Errorf("Samples = %d, want %d", c.Samples(), CalibrationBufferDim)
	}
}

func TestPoseCalibrator_ResetDiscardsHistory(t *testing.T) {
	c := NewPoseCalibrator(CalibrationBufferDim)
	for i := 0; i < 12; i++ {
		c.Observe(50, 50)
	}

	c.Reset()
	c.Reset() // idempotent

	if c.Samples() != 0 {
		t.Errorf("Samples after reset = %d, want 0", c.Samples())
	}
	p, y := c.Observe(4, -2)
	if p != 4 || y != -2 {
		t.Errorf("Offsets after reset = (%v, %v), want (4, -2)", p, y)
	}
}

func TestPoseCalibrator_DefaultSize(t *testing.T) {
	c := NewPoseCalibrator(0)
	if c.Size() != CalibrationBufferDim {
		t.Errorf("Size = %d, want %d", c.Size(), CalibrationBufferDim)
	}
}
