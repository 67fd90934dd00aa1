// Package replay reads and writes recorded per-frame features as CSV and
// drives an engine from a recording.
//
// A recording has the header
//
//	left_ear,right_ear,left_gaze_x,left_gaze_y,right_gaze_x,right_gaze_y,pitch,yaw,roll,frame_duration[,face]
//
// The optional face column marks frames without a face (0 or false). A row
// whose first field is "reset" requests a calibration reset.
package replay

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/teslashibe/go-dms/pkg/driverstate"
)

// Header is the column order for recordings.
var Header = []string{
	"left_ear", "right_ear",
	"left_gaze_x", "left_gaze_y",
	"right_gaze_x", "right_gaze_y",
	"pitch", "yaw", "roll",
	"frame_duration", "face",
}

const (
	featureColumns = 10
	resetMarker    = "reset"
)

// ErrBadHeader is returned when a recording's header does not match Header.
var ErrBadHeader = errors.New("replay: bad header")

// RowKind classifies a recording row.
type RowKind int

const (
	RowFrame RowKind = iota
	RowNoFace
	RowReset
)

func (k RowKind) String() string {
	switch k {
	case RowFrame:
		return "frame"
	case RowNoFace:
		return "no_face"
	case RowReset:
		return "reset"
	}
	return "unknown"
}

// Row is one parsed recording row.
type Row struct {
	Kind     RowKind
	Features driverstate.FrameFeatures

	// Line is the 1-based line number in the source.
	Line int
}

// ParseError locates a malformed field.
type ParseError struct {
	Line   int
	Column string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("replay: line %d: %s: %v", e.Line, e.Column, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Reader reads rows from a recording
type Reader struct {
	r       *csv.Reader
	hasFace bool
	read    bool
}

// NewReader creates a reader. The header is consumed on the first Next.
func NewReader(r io.Reader) *Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	return &Reader{r: cr}
}

func (r *Reader) readHeader() error {
	rec, err := r.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty input", ErrBadHeader)
		}
		return err
	}
	if len(rec) != featureColumns && len(rec) != featureColumns+1 {
		return fmt.Errorf("%w: %d columns", ErrBadHeader, len(rec))
	}
	for i, name := range rec {
		if strings.TrimSpace(name) != Header[i] {
			return fmt.Errorf("%w: column %d is %q, want %q", ErrBadHeader, i+1, name, Header[i])
		}
	}
	r.hasFace = len(rec) == featureColumns+1
	return nil
}

// Next returns the next row, or io.EOF at the end of the recording.
func (r *Reader) Next() (Row, error) {
	if !r.read {
		r.read = true
		if err := r.readHeader(); err != nil {
			return Row{}, err
		}
	}

	rec, err := r.r.Read()
	if err != nil {
		return Row{}, err
	}
	line, _ := r.r.FieldPos(0)

	if strings.EqualFold(strings.TrimSpace(rec[0]), resetMarker) {
		return Row{Kind: RowReset, Line: line}, nil
	}

	want := featureColumns
	if r.hasFace {
		want++
	}
	if len(rec) != want {
		return Row{}, &ParseError{Line: line, Column: "row", Err: fmt.Errorf("%d fields, want %d", len(rec), want)}
	}

	var v [featureColumns]float64
	for i := 0; i < featureColumns; i++ {
		f, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
		if err != nil {
			return Row{}, &ParseError{Line: line, Column: Header[i], Err: err}
		}
		v[i] = f
	}

	row := Row{
		Kind: RowFrame,
		Line: line,
		Features: driverstate.FrameFeatures{
			LeftEAR:       v[0],
			RightEAR:      v[1],
			LeftGaze:      driverstate.Vec2{X: v[2], Y: v[3]},
			RightGaze:     driverstate.Vec2{X: v[4], Y: v[5]},
			PitchRaw:      v[6],
			YawRaw:        v[7],
			Roll:          v[8],
			FrameDuration: v[9],
		},
	}

	if r.hasFace {
		face, err := strconv.ParseBool(strings.TrimSpace(rec[featureColumns]))
		if err != nil {
			return Row{}, &ParseError{Line: line, Column: "face", Err: err}
		}
		if !face {
			row.Kind = RowNoFace
		}
	}
	return row, nil
}

// Writer writes a recording with the face column
type Writer struct {
	w           *csv.Writer
	wroteHeader bool
}

// NewWriter creates a writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: csv.NewWriter(w)}
}

func (w *Writer) header() error {
	if w.wroteHeader {
		return nil
	}
	w.wroteHeader = true
	return w.w.Write(Header)
}

// WriteFrame appends a frame row.
func (w *Writer) WriteFrame(f driverstate.FrameFeatures) error {
	if err := w.header(); err != nil {
		return err
	}
	return w.w.Write([]string{
		formatFloat(f.LeftEAR), formatFloat(f.RightEAR),
		formatFloat(f.LeftGaze.X), formatFloat(f.LeftGaze.Y),
		formatFloat(f.RightGaze.X), formatFloat(f.RightGaze.Y),
		formatFloat(f.PitchRaw), formatFloat(f.YawRaw), formatFloat(f.Roll),
		formatFloat(f.FrameDuration), "1",
	})
}

// WriteNoFace appends a row for a frame without a face.
func (w *Writer) WriteNoFace(frameDuration float64) error {
	if err := w.header(); err != nil {
		return err
	}
	row := make([]string, len(Header))
	for i := range row {
		row[i] = "0"
	}
	row[9] = formatFloat(frameDuration)
	return w.w.Write(row)
}

// WriteReset appends a reset marker.
func (w *Writer) WriteReset() error {
	if err := w.header(); err != nil {
		return err
	}
	return w.w.Write([]string{resetMarker})
}

// Flush writes buffered rows to the underlying writer.
func (w *Writer) Flush() error {
	w.w.Flush()
	return w.w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
