package driverstate

import "testing"

// frame is exactly representable so sums hit the thresholds without drift.
const frame = 0.125

func TestDrowsinessWindow_OpenEyesNeverDrowsy(t *testing.T) {
	w := NewDrowsinessWindow(DefaultConfig())

	for i := 0; i < 500; i++ {
		if w.Push(1.0, 0.1) {
			t.Fatalf("Drowsy with open eyes at frame %d", i)
		}
	}
}

func TestDrowsinessWindow_TotalNeverExceedsWindow(t *testing.T) {
	w := NewDrowsinessWindow(DefaultConfig())
	durations := []float64{0.033, 0.5, 0.01, 0.9, 0.2, 0.066, 1.0, 0.04}

	for i := 0; i < 400; i++ {
		w.Push(0.5, durations[i%len(durations)])
		if w.Total() > TemporalWindowSeconds+windowEpsilon {
			t.Fatalf("Total %v exceeds window after push %d", w.Total(), i)
		}
	}
}

func TestDrowsinessWindow_ClosedEightSeconds(t *testing.T) {
	w := NewDrowsinessWindow(DefaultConfig())

	// 63 * 0.125 = 7.875s closed: not yet
	for i := 0; i < 63; i++ {
		if w.Push(0, frame) {
			t.Fatalf("Drowsy too early at frame %d", i)
		}
	}
	// 64 * 0.125 = 8.0s closed: drowsy
	if !w.Push(0, frame) {
		t.Fatalf("Expected drowsy at 8.0s closed, closed time %v", w.ClosedTime())
	}

	// Stays drowsy while eyes stay closed
	for i := 0; i < 200; i++ {
		if !w.Push(0, frame) {
			t.Fatalf("Drowsy cleared while eyes closed at frame %d", i)
		}
	}
}

func TestDrowsinessWindow_ClosedEightSecondsInexactFrames(t *testing.T) {
	tests := []struct {
		name   string
		dt     float64
		frames int // frames summing to exactly 8s
	}{
		{"100ms", 0.1, 80},
		{"30fps", 1.0 / 30, 240},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewDrowsinessWindow(DefaultConfig())
			for i := 0; i < tt.frames-1; i++ {
				if w.Push(0, tt.dt) {
					t.Fatalf("Drowsy too early at frame %d, closed time %v", i, w.ClosedTime())
				}
			}
			if !w.Push(0, tt.dt) {
				t.Errorf("Expected drowsy after %d frames, closed time %v", tt.frames, w.ClosedTime())
			}
		})
	}
}

func TestDrowsinessWindow_ThresholdIsStrict(t *testing.T) {
	w := NewDrowsinessWindow(DefaultConfig())

	for i := 0; i < 100; i++ {
		w.Push(NormEARThreshold, frame)
	}
	if w.ClosedTime() != 0 {
		t.Errorf("Samples at the threshold counted as closed: %v", w.ClosedTime())
	}
}

func TestDrowsinessWindow_RecoversAsClosedTimeSlidesOut(t *testing.T) {
	w := NewDrowsinessWindow(DefaultConfig())

	for i := 0; i < 64; i++ {
		w.Push(0, frame)
	}
	// Open frames fill the rest of the window: 64 + 16 = 80 frames = 10s
	for i := 0; i < 16; i++ {
		if !w.Push(1, frame) {
			t.Fatalf("Drowsy cleared before closed samples left the window (frame %d)", i)
		}
	}
	if w.Total() != TemporalWindowSeconds {
		t.Fatalf("Total = %v, want %v", w.Total(), TemporalWindowSeconds)
	}

	// Next open frame evicts one closed sample: 7.875s closed
	if w.Push(1, frame) {
		t.Errorf("Expected drowsy to clear, closed time %v", w.ClosedTime())
	}
	if w.Len() != 80 {
		t.Errorf("Len = %d, want 80", w.Len())
	}
}

func TestDrowsinessWindow_SlowFrameEvictsMany(t *testing.T) {
	w := NewDrowsinessWindow(DefaultConfig())

	for i := 0; i < 80; i++ {
		w.Push(0, frame)
	}
	w.Push(1, 5)

	if w.Total() != 10 {
		t.Errorf("Total = %v, want 10", w.Total())
	}
	if w.ClosedTime() != 5 {
		t.Errorf("ClosedTime = %v, want 5", w.ClosedTime())
	}
	if w.ClosedFraction() != 0.5 {
		t.Errorf("ClosedFraction = %v, want 0.5", w.ClosedFraction())
	}
}

func TestDrowsinessWindow_OversizedFrameIsBounded(t *testing.T) {
	w := NewDrowsinessWindow(DefaultConfig())
	w.Push(0, 1)
	w.Push(0, 60)

	if w.Len() != 1 || w.Total() != TemporalWindowSeconds {
		t.Errorf("Len=%d Total=%v, want 1 and %v", w.Len(), w.Total(), TemporalWindowSeconds)
	}
}

func TestDrowsinessWindow_Reset(t *testing.T) {
	w := NewDrowsinessWindow(DefaultConfig())
	for i := 0; i < 70; i++ {
		w.Push(0, frame)
	}
	w.Reset()

	if w.Len() != 0 || w.Total() != 0 || w.Drowsy() {
		t.Errorf("Reset left state: len=%d total=%v drowsy=%v", w.Len(), w.Total(), w.Drowsy())
	}
}
