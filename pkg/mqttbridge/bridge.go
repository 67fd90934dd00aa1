// Package mqttbridge connects the session registry to an MQTT broker.
//
// Frame features arrive on <prefix>/<stream>/features, control commands on
// <prefix>/<stream>/control. Every accepted report is published on
// <prefix>/<stream>/state and every alert transition on <prefix>/<stream>/alerts.
package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/teslashibe/go-dms/pkg/driverstate"
	"github.com/teslashibe/go-dms/pkg/protocol"
	"github.com/teslashibe/go-dms/pkg/session"
)

// Topic suffixes
const (
	SuffixFeatures = "features"
	SuffixControl  = "control"
	SuffixState    = "state"
	SuffixAlerts   = "alerts"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 2 * time.Second
	disconnectWait = 250 // milliseconds
)

// ErrBadTopic is returned for topics outside <prefix>/<stream>/<suffix>.
var ErrBadTopic = errors.New("mqttbridge: unexpected topic")

// Config configures a Bridge.
type Config struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// ControlCommand is the JSON payload of a control message.
type ControlCommand struct {
	Command string `json:"command"` // "reset" or "close"
}

// publisher is the part of mqtt.Client the bridge publishes through
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Stats contains bridge statistics
type Stats struct {
	FramesReceived  uint64 `json:"frames_received"`
	BadPayloads     uint64 `json:"bad_payloads"`
	Published       uint64 `json:"published"`
	PublishFailures uint64 `json:"publish_failures"`
}

// Bridge relays frames and reports between MQTT and a session registry.
type Bridge struct {
	cfg      Config
	registry *session.Registry
	log      *slog.Logger

	client  mqtt.Client
	pub     publisher
	ctx     context.Context
	pending sync.WaitGroup // alert publishes in flight

	framesReceived  atomic.Uint64
	badPayloads     atomic.Uint64
	published       atomic.Uint64
	publishFailures atomic.Uint64
}

// New creates a bridge. Call Start to connect.
func New(cfg Config, registry *session.Registry) *Bridge {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		cfg:      cfg,
		registry: registry,
		log:      logger,
		ctx:      context.Background(),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = b.onConnect
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		b.log.Warn("connection lost, will auto-reconnect", "error", err)
	}
	opts.OnReconnecting = func(mqtt.Client, *mqtt.ClientOptions) {
		b.log.Info("reconnecting", "broker", cfg.Broker)
	}

	b.client = mqtt.NewClient(opts)
	b.pub = b.client
	return b
}

// Attach registers the bridge as a report observer and alert sink.
func (b *Bridge) Attach() {
	b.registry.OnReport(b.PublishState)
	b.registry.AddSink(b)
}

// Start connects to the broker. Subscriptions are (re)made on every connect.
func (b *Bridge) Start(ctx context.Context) error {
	b.ctx = ctx
	b.log.Info("connecting", "broker", b.cfg.Broker, "client_id", b.cfg.ClientID)

	token := b.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqttbridge: connect timeout after %s", connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqttbridge: connect failed: %w", err)
	}
	return nil
}

// Stop disconnects from the broker
func (b *Bridge) Stop() {
	b.pending.Wait()
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(disconnectWait)
	}
	b.log.Info("stopped", "stats", b.Stats())
}

func (b *Bridge) onConnect(client mqtt.Client) {
	subs := map[string]mqtt.MessageHandler{
		b.topic("+", SuffixFeatures): b.onFeatures,
		b.topic("+", SuffixControl):  b.onControl,
	}
	for topic, handler := range subs {
		token := client.Subscribe(topic, b.cfg.QoS, handler)
		if !token.WaitTimeout(5 * time.Second) {
			b.log.Error("subscribe timeout", "topic", topic)
			continue
		}
		if err := token.Error(); err != nil {
			b.log.Error("subscribe failed", "topic", topic, "error", err)
			continue
		}
		b.log.Info("subscribed", "topic", topic)
	}
}

// onFeatures handles one frame of protocol.FeaturesData JSON
func (b *Bridge) onFeatures(_ mqtt.Client, msg mqtt.Message) {
	stream, err := b.streamFromTopic(msg.Topic(), SuffixFeatures)
	if err != nil {
		b.badPayloads.Add(1)
		b.log.Warn("ignoring message", "topic", msg.Topic(), "error", err)
		return
	}
	b.framesReceived.Add(1)

	var fd protocol.FeaturesData
	if err := json.Unmarshal(msg.Payload(), &fd); err != nil {
		b.badPayloads.Add(1)
		b.log.Warn("features unmarshal error", "stream", stream, "error", err)
		var fe *driverstate.FeatureError
		if errors.As(err, &fe) {
			b.registry.Skip(stream, err)
		}
		return
	}

	if fd.NoFace {
		b.registry.Skip(stream, driverstate.ErrNoFace)
		return
	}
	if _, err := b.registry.Process(b.ctx, stream, fd.FrameFeatures); err != nil && !driverstate.IsSkippable(err) {
		b.log.Error("process frame", "stream", stream, "error", err)
	}
}

// onControl handles {"command": "reset"} or a bare "reset" payload
func (b *Bridge) onControl(_ mqtt.Client, msg mqtt.Message) {
	stream, err := b.streamFromTopic(msg.Topic(), SuffixControl)
	if err != nil {
		b.badPayloads.Add(1)
		b.log.Warn("ignoring message", "topic", msg.Topic(), "error", err)
		return
	}

	cmd := ControlCommand{Command: strings.TrimSpace(string(msg.Payload()))}
	if strings.HasPrefix(cmd.Command, "{") {
		if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
			b.badPayloads.Add(1)
			b.log.Warn("control unmarshal error", "stream", stream, "error", err)
			return
		}
	}

	switch cmd.Command {
	case "reset":
		if _, err := b.registry.Open(stream); err != nil {
			b.log.Error("open stream", "stream", stream, "error", err)
			return
		}
		if _, err := b.registry.Reset(b.ctx, stream); err != nil {
			b.log.Error("reset", "stream", stream, "error", err)
		}
	case "close":
		if err := b.registry.Close(stream); err != nil {
			b.log.Warn("close", "stream", stream, "error", err)
		}
	default:
		b.badPayloads.Add(1)
		b.log.Warn("unknown control command", "stream", stream, "command", cmd.Command)
	}
}

// PublishState publishes a report on <prefix>/<stream>/state
func (b *Bridge) PublishState(stream string, r driverstate.Report) {
	payload, err := json.Marshal(r)
	if err != nil {
		b.log.Error("state marshal error", "stream", stream, "error", err)
		return
	}
	// State is fire-and-forget; only alerts wait for the broker
	b.pub.Publish(b.topic(stream, SuffixState), b.cfg.QoS, false, payload)
	b.published.Add(1)
}

// HandleAlert implements session.AlertSink by publishing on
// <prefix>/<stream>/alerts. Alerts raised by MQTT frames arrive on the paho
// router goroutine, which must not block; watchPublish counts the outcome.
func (b *Bridge) HandleAlert(_ context.Context, a session.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}

	token := b.pub.Publish(b.topic(a.Stream, SuffixAlerts), b.cfg.QoS, false, payload)
	b.pending.Add(1)
	go b.watchPublish(token, a)
	return nil
}

// watchPublish waits for an alert publish to complete
func (b *Bridge) watchPublish(token mqtt.Token, a session.Alert) {
	defer b.pending.Done()

	if !token.WaitTimeout(publishTimeout) {
		b.publishFailures.Add(1)
		b.log.Warn("publish alert timeout", "stream", a.Stream, "kind", a.Kind)
		return
	}
	if err := token.Error(); err != nil {
		b.publishFailures.Add(1)
		b.log.Warn("publish alert failed", "stream", a.Stream, "kind", a.Kind, "error", err)
		return
	}
	b.published.Add(1)
}

// Stats returns bridge statistics
func (b *Bridge) Stats() Stats {
	return Stats{
		FramesReceived:  b.framesReceived.Load(),
		BadPayloads:     b.badPayloads.Load(),
		Published:       b.published.Load(),
		PublishFailures: b.publishFailures.Load(),
	}
}

func (b *Bridge) topic(stream, suffix string) string {
	return b.cfg.TopicPrefix + "/" + stream + "/" + suffix
}

// streamFromTopic extracts <stream> from <prefix>/<stream>/<suffix>
func (b *Bridge) streamFromTopic(topic, suffix string) (string, error) {
	rest, ok := strings.CutPrefix(topic, b.cfg.TopicPrefix+"/")
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}
	stream, ok := strings.CutSuffix(rest, "/"+suffix)
	if !ok || stream == "" || strings.Contains(stream, "/") {
		return "", fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}
	return stream, nil
}
