package session

import (
	"context"
	"time"

	"github.com/teslashibe/go-dms/pkg/driverstate"
)

// AlertKind names the warning that changed.
type AlertKind string

const (
	AlertDrowsy           AlertKind = "drowsy"
	AlertDistracted       AlertKind = "distracted"
	AlertCalibrationReset AlertKind = "calibration_reset"
)

// Alert is a warning transition on one stream: raised (Active) or cleared.
type Alert struct {
	Stream         string    `json:"stream"`
	Kind           AlertKind `json:"kind"`
	Active         bool      `json:"active"`
	Frame          uint64    `json:"frame"`
	ClosedTime     float64   `json:"closed_time"`
	DistractedTime float64   `json:"distracted_time"`
	At             time.Time `json:"at"`
}

// AlertSink receives alert transitions. Implementations must be safe for
// concurrent use; alerts from different streams arrive on different goroutines.
type AlertSink interface {
	HandleAlert(ctx context.Context, a Alert) error
}

// AlertSinkFunc adapts a function to AlertSink.
type AlertSinkFunc func(ctx context.Context, a Alert) error

// HandleAlert calls f.
func (f AlertSinkFunc) HandleAlert(ctx context.Context, a Alert) error {
	return f(ctx, a)
}

// transitions compares consecutive reports and returns the warnings that
// were raised or cleared.
func transitions(stream string, prev, next driverstate.Report, at time.Time) []Alert {
	var alerts []Alert
	mk := func(kind AlertKind, active bool) Alert {
		return Alert{
			Stream:         stream,
			Kind:           kind,
			Active:         active,
			Frame:          next.Frame,
			ClosedTime:     next.ClosedTime,
			DistractedTime: next.DistractedTime,
			At:             at,
		}
	}
	if prev.Drowsy != next.Drowsy {
		alerts = append(alerts, mk(AlertDrowsy, next.Drowsy))
	}
	if prev.DistractedWarning != next.DistractedWarning {
		alerts = append(alerts, mk(AlertDistracted, next.DistractedWarning))
	}
	return alerts
}
