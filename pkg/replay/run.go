package replay

import (
	"context"
	"errors"
	"io"

	"github.com/teslashibe/go-dms/pkg/driverstate"
)

// Summary aggregates a replay. Warning counts cover ingested frames only.
type Summary struct {
	Rows             int     `json:"rows"`
	Frames           int     `json:"frames"`
	NoFace           int     `json:"no_face"`
	Skipped          int     `json:"skipped"`
	Resets           int     `json:"resets"`
	DrowsyFrames     int     `json:"drowsy_frames"`
	DistractedFrames int     `json:"distracted_frames"`
	DrowsyAlerts     int     `json:"drowsy_alerts"`
	DistractedAlerts int     `json:"distracted_alerts"`
	Duration         float64 `json:"duration"`
}

// Observer is called once per row that produced a report. Reset rows
// are not reported.
type Observer func(row Row, report driverstate.Report)

// count tallies warning frames and onsets for one ingested frame
func (s *Summary) count(prev, rep driverstate.Report) {
	if rep.Drowsy {
		s.DrowsyFrames++
		if !prev.Drowsy {
			s.DrowsyAlerts++
		}
	}
	if rep.DistractedWarning {
		s.DistractedFrames++
		if !prev.DistractedWarning {
			s.DistractedAlerts++
		}
	}
}

// Run feeds every row of r through e. Frames the engine refuses are
// counted as skipped and reported with the engine's repeated report.
func Run(ctx context.Context, r *Reader, e *driverstate.Engine, observe Observer) (Summary, error) {
	var (
		sum  Summary
		prev driverstate.Report
	)

	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return sum, nil
		}
		if err != nil {
			return sum, err
		}
		sum.Rows++

		var rep driverstate.Report
		switch row.Kind {
		case RowReset:
			sum.Resets++
			e.ResetCalibration()
			continue
		case RowNoFace:
			sum.NoFace++
			rep = e.Skip()
		default:
			rep, err = e.Process(row.Features)
			if err != nil {
				if !driverstate.IsSkippable(err) {
					return sum, err
				}
				sum.Skipped++
				rep = e.Skip()
			} else {
				sum.Frames++
				sum.Duration += rep.FrameDuration
				sum.count(prev, rep)
				prev = rep
			}
		}

		if observe != nil {
			observe(row, rep)
		}
	}
}
