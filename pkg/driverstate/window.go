package driverstate

// windowEpsilon absorbs float drift when durations sum exactly to the window.
const windowEpsilon = 1e-9

type windowEntry struct {
	openness float64
	duration float64
}

// DrowsinessWindow is a time-bounded sliding window of eye openness samples.
//
// The window is measured in accumulated frame duration, not frame count, so
// it holds the most recent WindowSeconds of processing time regardless of
// frame rate.
type DrowsinessWindow struct {
	length      float64
	threshold   float64
	drowsyAfter float64

	entries []windowEntry
	total   float64
	closed  float64
}

// NewDrowsinessWindow creates a window using the configured length and thresholds.
func NewDrowsinessWindow(cfg Config) *DrowsinessWindow {
	return &DrowsinessWindow{
		length:      cfg.WindowSeconds,
		threshold:   cfg.ClosedThreshold,
		drowsyAfter: cfg.DrowsyAfter(),
	}
}

// Push evicts the oldest samples until the new one fits, appends it and
// reports whether the closed time reached the drowsy limit.
func (w *DrowsinessWindow) Push(openness, duration float64) bool {
	if duration < 0 {
		duration = 0
	}
	if duration > w.length {
		duration = w.length
	}

	for len(w.entries) > 0 && w.total+duration > w.length+windowEpsilon {
		w.total -= w.entries[0].duration
		w.entries = w.entries[1:]
	}

	w.entries = append(w.entries, windowEntry{openness: openness, duration: duration})
	w.recompute()

	return w.Drowsy()
}

// recompute refreshes the sums from the entries so rounding does not accumulate.
func (w *DrowsinessWindow) recompute() {
	w.total = 0
	w.closed = 0
	for _, e := range w.entries {
		w.total += e.duration
		if e.openness < w.threshold {
			w.closed += e.duration
		}
	}
}

// Drowsy reports whether the closed time reached the drowsy limit.
func (w *DrowsinessWindow) Drowsy() bool {
	return len(w.entries) > 0 && w.closed+windowEpsilon >= w.drowsyAfter
}

// Total returns the summed duration of all samples in the window.
func (w *DrowsinessWindow) Total() float64 {
	return w.total
}

// ClosedTime returns the summed duration of samples below the threshold.
func (w *DrowsinessWindow) ClosedTime() float64 {
	return w.closed
}

// ClosedFraction returns ClosedTime relative to the full window length.
func (w *DrowsinessWindow) ClosedFraction() float64 {
	if w.length == 0 {
		return 0
	}
	return w.closed / w.length
}

// Len returns the number of samples held.
func (w *DrowsinessWindow) Len() int {
	return len(w.entries)
}

// Reset empties the window.
func (w *DrowsinessWindow) Reset() {
	w.entries = nil
	w.total = 0
	w.closed = 0
}
