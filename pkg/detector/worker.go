// Package detector runs an external face landmark detector as a subprocess
// and turns its output into per-frame results.
//
// The detector writes one record per camera frame to stdout, each framed as
// a 4-byte big-endian length followed by a msgpack-encoded Record. Its
// stderr is forwarded to the log.
package detector

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-dms/pkg/landmarks"
)

// DefaultFrameDuration is used for the first record and for records whose
// timestamp does not advance.
const DefaultFrameDuration = 1.0 / 30

const stopTimeout = 2 * time.Second

// Record is one frame of detector output.
type Record struct {
	Seq       uint64           `msgpack:"seq"`
	Timestamp float64          `msgpack:"timestamp"` // seconds, monotonic
	FaceFound bool             `msgpack:"face_found"`
	Faces     []landmarks.Face `msgpack:"faces"`
}

// Result is a decoded record ready for the engine.
type Result struct {
	Seq uint64

	// Face is the selected driver face, nil when none was found.
	Face *landmarks.Face

	// Duration is the time since the previous record, in seconds.
	Duration float64
}

// Config contains configuration for the detector worker
type Config struct {
	Command string
	Args    []string

	// ResultBuffer is the results channel size (default 10)
	ResultBuffer int

	// DefaultFrameDuration overrides the package default
	DefaultFrameDuration float64

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Metrics contains worker counters
type Metrics struct {
	Records     uint64    `json:"records"`
	NoFace      uint64    `json:"no_face"`
	BadRecords  uint64    `json:"bad_records"`
	Dropped     uint64    `json:"dropped"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	ProcessDone bool      `json:"process_done"`
}

// Worker manages one detector process
type Worker struct {
	cfg Config
	log *slog.Logger

	cmd     *exec.Cmd
	results chan Result

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	isActive atomic.Bool
	exited   chan struct{}

	lastTimestamp float64
	haveTimestamp bool

	records    atomic.Uint64
	noFace     atomic.Uint64
	badRecords atomic.Uint64
	dropped    atomic.Uint64
	lastSeenAt atomic.Value // time.Time
}

// New creates a worker. Call Start to spawn the process.
func New(cfg Config) (*Worker, error) {
	if cfg.Command == "" {
		return nil, errors.New("detector: command is required")
	}
	if cfg.ResultBuffer <= 0 {
		cfg.ResultBuffer = 10
	}
	if cfg.DefaultFrameDuration <= 0 {
		cfg.DefaultFrameDuration = DefaultFrameDuration
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		cfg:     cfg,
		log:     logger,
		results: make(chan Result, cfg.ResultBuffer),
		exited:  make(chan struct{}),
	}, nil
}

// Results returns the result channel. It is closed when the detector's
// stdout ends.
func (w *Worker) Results() <-chan Result {
	return w.results
}

// Start spawns the detector process
func (w *Worker) Start(ctx context.Context) error {
	if w.isActive.Load() {
		return errors.New("detector: worker already started")
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.cmd = exec.CommandContext(ctx, w.cfg.Command, w.cfg.Args...)

	stdout, err := w.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := w.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := w.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start detector: %w", err)
	}
	w.isActive.Store(true)
	w.lastSeenAt.Store(time.Now())

	w.log.Info("detector spawned", "command", w.cfg.Command, "pid", w.cmd.Process.Pid)

	// Pipes must be drained before Wait
	var pipes sync.WaitGroup
	pipes.Add(2)
	w.wg.Add(3)
	go func() {
		defer w.wg.Done()
		defer pipes.Done()
		w.readResults(ctx, stdout)
	}()
	go func() {
		defer w.wg.Done()
		defer pipes.Done()
		w.logStderr(stderr)
	}()
	go func() {
		defer w.wg.Done()
		pipes.Wait()
		w.waitProcess(ctx)
	}()

	return nil
}

// readResults decodes records until r ends, then closes the results channel
func (w *Worker) readResults(ctx context.Context, r io.Reader) {
	defer close(w.results)

	for {
		var rec Record
		err := Decode(r, &rec)
		if err != nil {
			var de *DecodeError
			if errors.As(err, &de) {
				w.badRecords.Add(1)
				w.log.Error("failed to unmarshal detector record", "error", err)
				continue
			}
			if errors.Is(err, io.EOF) {
				w.log.Debug("detector stdout closed")
			} else {
				w.log.Error("detector stream broken", "error", err)
			}
			return
		}

		res := w.result(rec)

		select {
		case w.results <- res:
		case <-ctx.Done():
			return
		default:
			w.dropped.Add(1)
			w.log.Warn("dropping detector result, results channel full", "seq", rec.Seq)
		}
	}
}

// result converts a record, tracking frame durations across records
func (w *Worker) result(rec Record) Result {
	w.records.Add(1)
	w.lastSeenAt.Store(time.Now())

	dt := w.cfg.DefaultFrameDuration
	if w.haveTimestamp && rec.Timestamp > w.lastTimestamp {
		dt = rec.Timestamp - w.lastTimestamp
	}
	w.lastTimestamp = rec.Timestamp
	w.haveTimestamp = true

	res := Result{Seq: rec.Seq, Duration: dt}
	if rec.FaceFound {
		res.Face = landmarks.SelectDriver(rec.Faces)
	}
	if res.Face == nil {
		w.noFace.Add(1)
	}
	return res
}

// logStderr forwards detector stderr, mapping level prefixes to slog levels
func (w *Worker) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "[ERROR]"), strings.Contains(line, "[CRITICAL]"):
			w.log.Error("detector", "line", line)
		case strings.Contains(line, "[WARNING]"), strings.Contains(line, "[WARN]"):
			w.log.Warn("detector", "line", line)
		default:
			w.log.Debug("detector", "line", line)
		}
	}
}

// waitProcess reaps the detector process
func (w *Worker) waitProcess(ctx context.Context) {
	defer close(w.exited)
	err := w.cmd.Wait()
	w.isActive.Store(false)

	switch {
	case ctx.Err() != nil:
		w.log.Debug("detector stopped", "error", err)
	case err != nil:
		w.log.Error("detector exited unexpectedly", "error", err)
	default:
		w.log.Info("detector exited")
	}
}

// Done is closed when the detector process has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.exited
}

// Stop terminates the detector and waits for the worker goroutines.
func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(stopTimeout):
		w.log.Warn("detector did not stop in time, killing")
		if w.cmd != nil && w.cmd.Process != nil {
			w.cmd.Process.Kill()
		}
	}
}

// Metrics returns the worker counters
func (w *Worker) Metrics() Metrics {
	m := Metrics{
		Records:    w.records.Load(),
		NoFace:     w.noFace.Load(),
		BadRecords: w.badRecords.Load(),
		Dropped:    w.dropped.Load(),
	}
	if t, ok := w.lastSeenAt.Load().(time.Time); ok {
		m.LastSeenAt = t
	}
	select {
	case <-w.exited:
		m.ProcessDone = true
	default:
	}
	return m
}
