package driverstate

// PoseCalibrator learns the pitch/yaw baseline of the camera mounting.
//
// The first Size() observations after construction or Reset are averaged;
// later observations leave the offsets untouched.
type PoseCalibrator struct {
	pitch []float64
	yaw   []float64
	n     int

	pitchOffset float64
	yawOffset   float64
}

// NewPoseCalibrator creates a calibrator averaging size samples.
func NewPoseCalibrator(size int) *PoseCalibrator {
	if size <= 0 {
		size = CalibrationBufferDim
	}
	return &PoseCalibrator{
		pitch: make([]float64, size),
		yaw:   make([]float64, size),
	}
}

// Observe records a raw pose sample while calibrating and returns the
// current offsets.
func (c *PoseCalibrator) Observe(pitchRaw, yawRaw float64) (pitchOffset, yawOffset float64) {
	if c.n < len(c.pitch) {
		c.pitch[c.n] = pitchRaw
		c.yaw[c.n] = yawRaw
		c.n++
		c.pitchOffset = mean(c.pitch[:c.n])
		c.yawOffset = mean(c.yaw[:c.n])
	}
	return c.pitchOffset, c.yawOffset
}

// Offsets returns the current offsets without recording a sample.
func (c *PoseCalibrator) Offsets() (pitchOffset, yawOffset float64) {
	return c.pitchOffset, c.yawOffset
}

// Reset discards all samples and restarts calibration. Safe to call repeatedly.
func (c *PoseCalibrator) Reset() {
	for i := range c.pitch {
		c.pitch[i] = 0
		c.yaw[i] = 0
	}
	c.n = 0
	c.pitchOffset = 0
	c.yawOffset = 0
}

// Calibrating reports whether the buffer still accepts samples.
func (c *PoseCalibrator) Calibrating() bool {
	return c.n < len(c.pitch)
}

// Samples returns the number of recorded samples.
func (c *PoseCalibrator) Samples() int {
	return c.n
}

// Size returns the buffer capacity.
func (c *PoseCalibrator) Size() int {
	return len(c.pitch)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
