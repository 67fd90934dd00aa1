// Package session keeps one driver state engine per camera stream and
// serialises access to it across transports.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-dms/pkg/debug"
	"github.com/teslashibe/go-dms/pkg/driverstate"
	"github.com/teslashibe/go-dms/pkg/landmarks"
)

// ErrNotFound is returned for operations on a stream that is not open.
var ErrNotFound = errors.New("session: stream not found")

// Config configures a Registry.
type Config struct {
	// Engine is applied to every new stream.
	Engine driverstate.Config

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a registry config with the default engine thresholds.
func DefaultConfig() Config {
	return Config{Engine: driverstate.DefaultConfig()}
}

// Session is one stream and its engine.
type Session struct {
	ID      string
	Created time.Time

	// emit serializes a frame's engine step with its observer and sink
	// delivery so alerts leave in frame order. Taken before mu.
	emit sync.Mutex

	mu       sync.Mutex
	engine   *driverstate.Engine
	lastSeen time.Time
	skipped  uint64
}

// Info is a point-in-time view of a session.
type Info struct {
	ID                string             `json:"id"`
	Created           time.Time          `json:"created"`
	LastSeen          time.Time          `json:"last_seen"`
	Mode              driverstate.Mode   `json:"mode"`
	CalibrationFrames int                `json:"calibration_frames"`
	Skipped           uint64             `json:"skipped"`
	Report            driverstate.Report `json:"report"`
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	have, _ := s.engine.CalibrationProgress()
	return Info{
		ID:                s.ID,
		Created:           s.Created,
		LastSeen:          s.lastSeen,
		Mode:              s.engine.Mode(),
		CalibrationFrames: have,
		Skipped:           s.skipped,
		Report:            s.engine.Last(),
	}
}

// Last returns the most recent report of the session.
func (s *Session) Last() driverstate.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Last()
}

// Stats contains registry statistics
type Stats struct {
	Streams         int    `json:"streams"`
	FramesProcessed uint64 `json:"frames_processed"`
	FramesSkipped   uint64 `json:"frames_skipped"`
	AlertsRaised    uint64 `json:"alerts_raised"`
	SinkErrors      uint64 `json:"sink_errors"`
}

// Registry owns the sessions of all streams.
type Registry struct {
	cfg Config
	log *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	sinkMu    sync.RWMutex
	sinks     []AlertSink
	observers []func(stream string, r driverstate.Report)

	framesProcessed atomic.Uint64
	framesSkipped   atomic.Uint64
	alertsRaised    atomic.Uint64
	sinkErrors      atomic.Uint64
}

// NewRegistry validates the engine config and returns an empty registry.
func NewRegistry(cfg Config) (*Registry, error) {
	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cfg:      cfg,
		log:      logger,
		sessions: make(map[string]*Session),
	}, nil
}

// AddSink registers a receiver for alert transitions.
func (r *Registry) AddSink(s AlertSink) {
	r.sinkMu.Lock()
	r.sinks = append(r.sinks, s)
	r.sinkMu.Unlock()
}

// OnReport registers a callback for every accepted frame's report.
func (r *Registry) OnReport(fn func(stream string, rep driverstate.Report)) {
	r.sinkMu.Lock()
	r.observers = append(r.observers, fn)
	r.sinkMu.Unlock()
}

// Open returns the session for id, creating it if needed.
// An empty id gets a generated UUID.
func (r *Registry) Open(id string) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s, nil
	}

	engine, err := driverstate.New(r.cfg.Engine)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	s := &Session{
		ID:       id,
		Created:  now,
		engine:   engine,
		lastSeen: now,
	}
	r.sessions[id] = s
	r.log.Info("stream opened", "stream", id, "streams", len(r.sessions))
	return s, nil
}

// Get returns the session for id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Close removes the session for id.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	count := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	r.log.Info("stream closed", "stream", id, "streams", count)
	return nil
}

// List returns a snapshot of every session, ordered by ID.
func (r *Registry) List() []Info {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Process feeds one frame to the stream's engine, opening the stream on
// first use. Skippable frame errors are returned alongside the repeated
// previous report.
func (r *Registry) Process(ctx context.Context, id string, f driverstate.FrameFeatures) (driverstate.Report, error) {
	s, err := r.Open(id)
	if err != nil {
		return driverstate.Report{}, err
	}

	s.emit.Lock()
	defer s.emit.Unlock()

	s.mu.Lock()
	prev := s.engine.Last()
	rep, err := s.engine.Process(f)
	now := time.Now()
	s.lastSeen = now
	if err != nil {
		s.skipped++
	}
	s.mu.Unlock()

	if err != nil {
		r.framesSkipped.Add(1)
		debug.Log("frame skipped", "stream", s.ID, "error", err)
		return rep, err
	}

	r.framesProcessed.Add(1)
	debug.FrameLog("frame", "stream", s.ID, "frame", rep.Frame, "drowsy", rep.Drowsy,
		"distracted", rep.DistractedWarning, "calibrating", rep.Calibrating)

	r.notify(s.ID, rep)
	for _, a := range transitions(s.ID, prev, rep, now) {
		r.dispatch(ctx, a)
	}
	return rep, nil
}

// ProcessLandmarks converts a face to frame features and processes them.
// A nil face or unusable eye geometry skips the frame.
func (r *Registry) ProcessLandmarks(ctx context.Context, id string, face *landmarks.Face, frameDuration float64) (driverstate.Report, error) {
	if face == nil {
		return r.Skip(id, driverstate.ErrNoFace)
	}
	f, err := landmarks.Features(*face, frameDuration)
	if err != nil {
		return r.Skip(id, err)
	}
	return r.Process(ctx, id, f)
}

// Skip records a frame that carried no usable observation and returns the
// stream's previous report, marked skipped, with cause.
func (r *Registry) Skip(id string, cause error) (driverstate.Report, error) {
	s, err := r.Open(id)
	if err != nil {
		return driverstate.Report{}, err
	}

	s.mu.Lock()
	rep := s.engine.Skip()
	s.lastSeen = time.Now()
	s.skipped++
	s.mu.Unlock()

	r.framesSkipped.Add(1)
	debug.Log("frame skipped", "stream", s.ID, "error", cause)
	return rep, cause
}

// Reset restarts pose calibration on a stream and returns the stream's
// report as of the reset.
func (r *Registry) Reset(ctx context.Context, id string) (driverstate.Report, error) {
	s, ok := r.Get(id)
	if !ok {
		return driverstate.Report{}, ErrNotFound
	}

	s.emit.Lock()
	defer s.emit.Unlock()

	s.mu.Lock()
	s.engine.ResetCalibration()
	last := s.engine.Last()
	s.mu.Unlock()

	r.log.Info("calibration reset", "stream", id)
	r.dispatch(ctx, Alert{
		Stream:         id,
		Kind:           AlertCalibrationReset,
		Active:         true,
		Frame:          last.Frame,
		ClosedTime:     last.ClosedTime,
		DistractedTime: last.DistractedTime,
		At:             time.Now(),
	})
	return last, nil
}

// Prune closes sessions not seen for longer than idle and returns how many
// were removed.
func (r *Registry) Prune(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)

	r.mu.Lock()
	var stale []string
	for id, s := range r.sessions {
		s.mu.Lock()
		if s.lastSeen.Before(cutoff) {
			stale = append(stale, id)
		}
		s.mu.Unlock()
	}
	for _, id := range stale {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, id := range stale {
		r.log.Info("stream pruned", "stream", id, "idle", idle)
	}
	return len(stale)
}

// Stats returns registry statistics
func (r *Registry) Stats() Stats {
	return Stats{
		Streams:         r.Len(),
		FramesProcessed: r.framesProcessed.Load(),
		FramesSkipped:   r.framesSkipped.Load(),
		AlertsRaised:    r.alertsRaised.Load(),
		SinkErrors:      r.sinkErrors.Load(),
	}
}

func (r *Registry) notify(stream string, rep driverstate.Report) {
	r.sinkMu.RLock()
	observers := r.observers
	r.sinkMu.RUnlock()

	for _, fn := range observers {
		fn(stream, rep)
	}
}

func (r *Registry) dispatch(ctx context.Context, a Alert) {
	if a.Active && a.Kind != AlertCalibrationReset {
		r.alertsRaised.Add(1)
	}
	r.log.Info("alert", "stream", a.Stream, "kind", a.Kind, "active", a.Active, "frame", a.Frame)

	r.sinkMu.RLock()
	sinks := r.sinks
	r.sinkMu.RUnlock()

	for _, s := range sinks {
		if err := s.HandleAlert(ctx, a); err != nil {
			r.sinkErrors.Add(1)
			r.log.Warn("alert sink failed", "stream", a.Stream, "kind", a.Kind, "error", err)
		}
	}
}
