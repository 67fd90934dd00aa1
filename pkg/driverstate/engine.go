package driverstate

import "math"

// Engine sequences the calibrator, normalizer, drowsiness window and
// distraction debouncer for one stream.
type Engine struct {
	cfg Config

	calibrator *PoseCalibrator
	window     *DrowsinessWindow
	debouncer  *DistractionDebouncer

	mode   Mode
	frames uint64
	last   Report
}

// New creates an engine in calibrating mode.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:        cfg,
		calibrator: NewPoseCalibrator(cfg.CalibrationFrames),
		window:     NewDrowsinessWindow(cfg),
		debouncer:  NewDistractionDebouncer(cfg),
		mode:       ModeCalibrating,
	}
	e.last = Report{Calibrating: true, Mode: ModeCalibrating}
	return e, nil
}

// NewDefault creates an engine with DefaultConfig.
func NewDefault() *Engine {
	e, err := New(DefaultConfig())
	if err != nil {
		panic(err) // DefaultConfig is always valid
	}
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Mode returns the current orchestrator mode.
func (e *Engine) Mode() Mode {
	return e.mode
}

// Last returns the most recent report.
func (e *Engine) Last() Report {
	return e.last
}

// Process ingests one frame and returns its report.
//
// A frame that fails validation is not ingested: the previous report is
// returned with Skipped set, together with the validation error.
func (e *Engine) Process(f FrameFeatures) (Report, error) {
	if err := f.Validate(); err != nil {
		return e.Skip(), err
	}

	dt := math.Min(f.FrameDuration, e.cfg.MaxFrameDuration)

	calibrating := e.calibrator.Calibrating()
	pitchOffset, yawOffset := e.calibrator.Observe(f.PitchRaw, f.YawRaw)
	if !e.calibrator.Calibrating() {
		e.mode = ModeTracking
	}

	n := e.cfg.Normalize(f, pitchOffset, yawOffset)
	drowsy := e.window.Push(n.Openness(), dt)
	distracted := e.debouncer.Update(n.Pitch, n.Yaw, n.Roll, n.LeftGaze, n.RightGaze, dt)
	if calibrating && e.cfg.SuppressDistractionWhileCalibrating {
		distracted = false
	}

	mode := ModeTracking
	if calibrating {
		mode = ModeCalibrating
	}

	e.frames++
	e.last = Report{
		Drowsy:            drowsy,
		DistractedWarning: distracted,
		Calibrating:       calibrating,
		Mode:              mode,
		LeftOpen:          n.LeftOpen,
		RightOpen:         n.RightOpen,
		Pitch:             n.Pitch,
		Yaw:               n.Yaw,
		Roll:              n.Roll,
		PitchOffset:       pitchOffset,
		YawOffset:         yawOffset,
		ClosedTime:        e.window.ClosedTime(),
		ClosedFraction:    e.window.ClosedFraction(),
		DistractedTime:    e.debouncer.Accumulated(),
		FrameDuration:     dt,
		Frame:             e.frames,
	}
	return e.last, nil
}

// Skip records a frame without a usable observation and repeats the
// previous report.
func (e *Engine) Skip() Report {
	r := e.last
	r.Skipped = true
	return r
}

// ResetCalibration restarts pose calibration. The drowsiness window and the
// distraction accumulator are kept. Safe to call at any time.
func (e *Engine) ResetCalibration() {
	e.calibrator.Reset()
	e.mode = ModeCalibrating
	e.last.Calibrating = true
	e.last.Mode = ModeCalibrating
}

// Offsets returns the current pitch and yaw calibration offsets.
func (e *Engine) Offsets() (pitch, yaw float64) {
	return e.calibrator.Offsets()
}

// CalibrationProgress returns recorded and required calibration samples.
func (e *Engine) CalibrationProgress() (have, want int) {
	return e.calibrator.Samples(), e.calibrator.Size()
}

// WindowTotal returns the summed duration held by the drowsiness window.
func (e *Engine) WindowTotal() float64 {
	return e.window.Total()
}
