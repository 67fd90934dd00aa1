package web

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

// handleHealth reports liveness and a short summary
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":      "ok",
		"version":     s.version,
		"uptime":      time.Since(s.started).Round(time.Second).String(),
		"streams":     s.registry.Len(),
		"connections": s.monitor.ConnectionCount(),
		"observers":   s.reports.ClientCount(),
	})
}

// handleMetrics exposes counters in Prometheus text format
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	reg := s.registry.Stats()
	mon := s.monitor.GetStats()

	c.Set(fiber.HeaderContentType, "text/plain; version=0.0.4")
	return c.SendString(fmt.Sprintf(`# HELP dms_streams Open driver streams
# TYPE dms_streams gauge
dms_streams %d

# HELP dms_connections Connected camera clients
# TYPE dms_connections gauge
dms_connections %d

# HELP dms_observers Connected dashboard observers
# TYPE dms_observers gauge
dms_observers %d

# HELP dms_frames_processed Frames accepted by an engine
# TYPE dms_frames_processed counter
dms_frames_processed %d

# HELP dms_frames_skipped Frames skipped for missing or malformed features
# TYPE dms_frames_skipped counter
dms_frames_skipped %d

# HELP dms_alerts_raised Drowsy and distracted warnings raised
# TYPE dms_alerts_raised counter
dms_alerts_raised %d

# HELP dms_alert_sink_errors Alert deliveries that failed
# TYPE dms_alert_sink_errors counter
dms_alert_sink_errors %d

# HELP dms_messages_received WebSocket messages received
# TYPE dms_messages_received counter
dms_messages_received %d

# HELP dms_messages_sent WebSocket messages sent
# TYPE dms_messages_sent counter
dms_messages_sent %d

# HELP dms_bad_messages WebSocket messages rejected
# TYPE dms_bad_messages counter
dms_bad_messages %d

# HELP dms_observer_drops Observer broadcasts dropped on a full queue
# TYPE dms_observer_drops counter
dms_observer_drops %d
`,
		reg.Streams, mon.Connections, s.reports.ClientCount(),
		reg.FramesProcessed, reg.FramesSkipped, reg.AlertsRaised, reg.SinkErrors,
		mon.MessagesReceived, mon.MessagesSent, mon.BadMessages,
		s.reports.Dropped()))
}
