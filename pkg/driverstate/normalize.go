package driverstate

// EyeOpenness maps an eye aspect ratio onto the reference open/closed span.
// The result is not clamped: very wide or squeezed eyes fall outside [0, 1].
func EyeOpenness(ear float64) float64 {
	return eyeOpenness(ear, OpenEAR, ClosedEAR)
}

func eyeOpenness(ear, open, closed float64) float64 {
	return (ear - closed) / (open - closed)
}

// Normalize applies calibration offsets and EAR normalization using the
// reference constants. It has no side effects.
func Normalize(f FrameFeatures, pitchOffset, yawOffset float64) NormalizedFrame {
	return normalizeWith(f, pitchOffset, yawOffset, OpenEAR, ClosedEAR)
}

// Normalize applies calibration offsets and the configured EAR span.
func (c Config) Normalize(f FrameFeatures, pitchOffset, yawOffset float64) NormalizedFrame {
	return normalizeWith(f, pitchOffset, yawOffset, c.OpenEAR, c.ClosedEAR)
}

func normalizeWith(f FrameFeatures, pitchOffset, yawOffset, open, closed float64) NormalizedFrame {
	return NormalizedFrame{
		LeftOpen:  eyeOpenness(f.LeftEAR, open, closed),
		RightOpen: eyeOpenness(f.RightEAR, open, closed),
		Pitch:     f.PitchRaw - pitchOffset,
		Yaw:       f.YawRaw - yawOffset,
		Roll:      f.Roll,
		LeftGaze:  f.LeftGaze,
		RightGaze: f.RightGaze,
	}
}
