// Package web assembles the dms-server HTTP surface: stream and observer
// WebSockets, the REST API, health and metrics.
package web

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/go-dms/pkg/hub"
	"github.com/teslashibe/go-dms/pkg/monitor"
	"github.com/teslashibe/go-dms/pkg/session"
)

// Options configures a Server.
type Options struct {
	Addr     string
	Version  string
	Registry *session.Registry
	Alerts   monitor.AlertStore // optional

	// RequestLog enables fiber's access log
	RequestLog bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server is the dms-server HTTP server
type Server struct {
	app     *fiber.App
	addr    string
	version string
	started time.Time
	log     *slog.Logger

	registry *session.Registry
	monitor  *monitor.Monitor
	reports  *hub.Hub
}

// NewServer wires the monitor and report hub into the registry and builds
// the fiber app.
func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		addr:     opts.Addr,
		version:  opts.Version,
		started:  time.Now(),
		log:      log,
		registry: opts.Registry,
		monitor: monitor.New(monitor.Config{
			Registry: opts.Registry,
			Alerts:   opts.Alerts,
			Logger:   log.With("component", "monitor"),
		}),
		reports: hub.New("reports", log.With("component", "hub")),
	}

	// Cameras get their own alerts, observers get every report and alert
	opts.Registry.AddSink(s.monitor)
	opts.Registry.AddSink(s.reports)
	opts.Registry.OnReport(s.reports.BroadcastReport)

	app := fiber.New(fiber.Config{
		AppName:               "dms-server",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	if opts.RequestLog {
		app.Use(logger.New())
	}

	// WebSocket routes
	s.monitor.RegisterRoutes(app)
	app.Get("/ws/reports", s.reports.Handler())

	// API routes
	s.monitor.RegisterAPIRoutes(app.Group("/api"))

	app.Get("/health", s.handleHealth)
	app.Get("/metrics", s.handleMetrics)

	s.app = app
	return s
}

// App returns the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Monitor returns the stream monitor
func (s *Server) Monitor() *monitor.Monitor {
	return s.monitor
}

// Reports returns the observer hub
func (s *Server) Reports() *hub.Hub {
	return s.reports
}

// Start runs the report hub and serves until ctx is done, then shuts down.
func (s *Server) Start(ctx context.Context) error {
	go s.reports.Run(ctx)

	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", s.addr,
			"stream_ws", "/ws/stream/:id", "observer_ws", "/ws/reports", "api", "/api/streams")
		errc <- s.app.Listen(s.addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}
