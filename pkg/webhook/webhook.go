// Package webhook posts alert transitions to an HTTP endpoint.
//
// Alerts are queued and delivered by a single goroutine so that a slow
// endpoint never stalls frame processing. Failed deliveries are retried
// with backoff and then dropped.
package webhook

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-dms/internal/httpc"
	"github.com/teslashibe/go-dms/pkg/session"
)

// ErrQueueFull is returned by HandleAlert when the delivery queue is full.
var ErrQueueFull = errors.New("webhook: queue full")

// Config configures a Notifier.
type Config struct {
	URL     string
	Timeout time.Duration // per request (default 10s)
	Retries int           // extra attempts after the first (default 2, negative for none)
	Queue   int           // pending alerts (default 64)

	// IncludeCleared also delivers alerts whose Active is false.
	IncludeCleared bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Stats contains delivery counters
type Stats struct {
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

// Notifier is a session.AlertSink that posts alerts as JSON.
type Notifier struct {
	cfg    Config
	client *http.Client
	log    *slog.Logger
	queue  chan session.Alert

	backoff time.Duration

	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a notifier. Call Run to start delivery.
func New(cfg Config) *Notifier {
	if cfg.Retries < 0 {
		cfg.Retries = 0
	} else if cfg.Retries == 0 {
		cfg.Retries = 2
	}
	if cfg.Queue <= 0 {
		cfg.Queue = 64
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		cfg:     cfg,
		client:  httpc.NewClient(cfg.Timeout),
		log:     logger,
		queue:   make(chan session.Alert, cfg.Queue),
		backoff: 500 * time.Millisecond,
	}
}

// HandleAlert queues a for delivery.
func (n *Notifier) HandleAlert(_ context.Context, a session.Alert) error {
	if !a.Active && !n.cfg.IncludeCleared {
		return nil
	}
	select {
	case n.queue <- a:
		return nil
	default:
		n.dropped.Add(1)
		return ErrQueueFull
	}
}

// Run delivers queued alerts until ctx is done
func (n *Notifier) Run(ctx context.Context) {
	n.log.Info("webhook delivery started", "url", n.cfg.URL)
	for {
		select {
		case <-ctx.Done():
			if pending := len(n.queue); pending > 0 {
				n.log.Warn("webhook stopped with pending alerts", "pending", pending)
			}
			return
		case a := <-n.queue:
			n.deliver(ctx, a)
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, a session.Alert) {
	wait := n.backoff
	var err error
	for attempt := 0; attempt <= n.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			wait *= 2
		}

		err = httpc.PostJSON(ctx, n.client, n.cfg.URL, a)
		if err == nil {
			n.delivered.Add(1)
			return
		}
		n.log.Debug("webhook attempt failed", "attempt", attempt+1, "error", err)
	}

	n.failed.Add(1)
	n.log.Warn("webhook delivery failed", "stream", a.Stream, "kind", a.Kind, "error", err)
}

// Stats returns delivery counters
func (n *Notifier) Stats() Stats {
	return Stats{
		Delivered: n.delivered.Load(),
		Failed:    n.failed.Load(),
		Dropped:   n.dropped.Load(),
	}
}
