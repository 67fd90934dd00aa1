package replay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/teslashibe/go-dms/pkg/driverstate"
)

const header = "left_ear,right_ear,left_gaze_x,left_gaze_y,right_gaze_x,right_gaze_y,pitch,yaw,roll,frame_duration"

func TestReaderRows(t *testing.T) {
	input := header + ",face\n" +
		"0.3,0.31,0,0,0,0,2,-1,0,0.033,1\n" +
		"# comment\n" +
		"0,0,0,0,0,0,0,0,0,0.05,false\n" +
		"reset\n"

	r := NewReader(strings.NewReader(input))

	row, err := r.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if row.Kind != RowFrame || row.Line != 2 {
		t.Errorf("row 1 = %v line %d", row.Kind, row.Line)
	}
	f := row.Features
	if f.LeftEAR != 0.3 || f.RightEAR != 0.31 || f.PitchRaw != 2 || f.YawRaw != -1 || f.FrameDuration != 0.033 {
		t.Errorf("row 1 features = %+v", f)
	}

	row, err = r.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if row.Kind != RowNoFace || row.Features.FrameDuration != 0.05 {
		t.Errorf("row 2 = %+v", row)
	}

	row, err = r.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if row.Kind != RowReset {
		t.Errorf("row 3 kind = %v, want reset", row.Kind)
	}

	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next at end = %v, want io.EOF", err)
	}
}

func TestReaderWithoutFaceColumn(t *testing.T) {
	r := NewReader(strings.NewReader(header + "\n0.3,0.3,0,0,0,0,0,0,0,0.1\n"))
	row, err := r.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if row.Kind != RowFrame {
		t.Errorf("kind = %v, want frame", row.Kind)
	}
}

func TestReaderErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(error) bool
	}{
		{
			name:  "empty",
			input: "",
			check: func(err error) bool { return errors.Is(err, ErrBadHeader) },
		},
		{
			name:  "wrong column",
			input: strings.Replace(header, "pitch", "tilt", 1) + "\n",
			check: func(err error) bool { return errors.Is(err, ErrBadHeader) },
		},
		{
			name:  "bad float",
			input: header + "\n0.3,abc,0,0,0,0,0,0,0,0.1\n",
			check: func(err error) bool {
				var pe *ParseError
				return errors.As(err, &pe) && pe.Column == "right_ear" && pe.Line == 2
			},
		},
		{
			name:  "short row",
			input: header + "\n0.3,0.3\n",
			check: func(err error) bool {
				var pe *ParseError
				return errors.As(err, &pe)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(strings.NewReader(tt.input)).Next()
			if !tt.check(err) {
				t.Errorf("Next error = %v", err)
			}
		})
	}
}

func TestWriterReadBack(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteFrame(driverstate.FrameFeatures{LeftEAR: 0.25, RightEAR: 0.3, YawRaw: 12.5, FrameDuration: 0.04})
	w.WriteNoFace(0.04)
	w.WriteReset()
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	r := NewReader(&buf)
	var kinds []RowKind
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		kinds = append(kinds, row.Kind)
		if row.Kind == RowFrame && row.Features.YawRaw != 12.5 {
			t.Errorf("yaw = %v, want 12.5", row.Features.YawRaw)
		}
	}

	want := []RowKind{RowFrame, RowNoFace, RowReset}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("kinds[%d] = %v, want %v", i, kinds[i], want[i])
		}
	}
}

func TestRunDrowsyRecording(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	// 30 calibration frames, then 10s of closed eyes at 0.5s per frame
	for i := 0; i < 30; i++ {
		w.WriteFrame(driverstate.FrameFeatures{LeftEAR: 0.32, RightEAR: 0.32, FrameDuration: 0.1})
	}
	for i := 0; i < 20; i++ {
		w.WriteFrame(driverstate.FrameFeatures{LeftEAR: 0.02, RightEAR: 0.02, FrameDuration: 0.5})
	}
	w.WriteNoFace(0.5)
	w.WriteReset()
	w.Flush()

	var observed int
	sum, err := Run(context.Background(), NewReader(&buf), driverstate.NewDefault(), func(Row, driverstate.Report) {
		observed++
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if sum.Rows != 52 || sum.Frames != 50 || sum.NoFace != 1 || sum.Resets != 1 {
		t.Errorf("Summary = %+v", sum)
	}
	if observed != 51 {
		t.Errorf("observed %d reports, want 51", observed)
	}
	if sum.DrowsyAlerts != 1 || sum.DrowsyFrames == 0 {
		t.Errorf("drowsy alerts = %d frames = %d, want one alert", sum.DrowsyAlerts, sum.DrowsyFrames)
	}
	if sum.DistractedAlerts != 0 {
		t.Errorf("distracted alerts = %d, want 0", sum.DistractedAlerts)
	}
}

func TestRunCountsIngestedWarningFrames(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for i := 0; i < 30; i++ {
		w.WriteFrame(driverstate.FrameFeatures{LeftEAR: 0.32, RightEAR: 0.32, FrameDuration: 0.1})
	}
	// drowsy from the 16th closed frame: 5 drowsy frames
	for i := 0; i < 20; i++ {
		w.WriteFrame(driverstate.FrameFeatures{LeftEAR: 0.02, RightEAR: 0.02, FrameDuration: 0.5})
	}
	for i := 0; i < 3; i++ {
		w.WriteNoFace(0.5)
	}
	w.WriteFrame(driverstate.FrameFeatures{LeftEAR: 0.02, RightEAR: 0.02, FrameDuration: -1})
	w.Flush()

	var drowsyReports int
	sum, err := Run(context.Background(), NewReader(&buf), driverstate.NewDefault(), func(_ Row, r driverstate.Report) {
		if r.Drowsy {
			drowsyReports++
		}
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if sum.DrowsyFrames != 5 {
		t.Errorf("DrowsyFrames = %d, want 5", sum.DrowsyFrames)
	}
	if sum.NoFace != 3 || sum.Skipped != 1 {
		t.Errorf("Summary = %+v", sum)
	}
	// repeated reports still reach the observer
	if drowsyReports != 9 {
		t.Errorf("drowsy reports observed = %d, want 9", drowsyReports)
	}
}

func TestRunSkipsInvalidFeatures(t *testing.T) {
	input := header + "\n0.3,0.3,0,0,0,0,0,0,0,-1\n"
	sum, err := Run(context.Background(), NewReader(strings.NewReader(input)), driverstate.NewDefault(), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sum.Skipped != 1 || sum.Frames != 0 {
		t.Errorf("Summary = %+v", sum)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, NewReader(strings.NewReader(header+"\n")), driverstate.NewDefault(), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}
