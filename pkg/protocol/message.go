// Package protocol defines the WebSocket message types exchanged between
// camera-side clients, dashboards and the dms-server.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-dms/pkg/driverstate"
	"github.com/teslashibe/go-dms/pkg/landmarks"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Client → Server messages
	TypeFeatures  MessageType = "features"  // Precomputed frame features
	TypeLandmarks MessageType = "landmarks" // Raw eye landmarks and head pose
	TypeReset     MessageType = "reset"     // Restart pose calibration

	// Server → Client messages
	TypeReport MessageType = "report" // Engine report for one frame
	TypeAlert  MessageType = "alert"  // Warning raised or cleared
	TypeError  MessageType = "error"  // Rejected message

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Client → Server Message Types
// =============================================================================

// FeaturesData carries one frame of precomputed features.
// NoFace marks a frame in which the detector found no face.
//
// Every feature field is required unless NoFace is set. Decoding a payload
// with an absent or null field fails with a *driverstate.FeatureError
// whose Missing flag is set.
type FeaturesData struct {
	driverstate.FrameFeatures
	NoFace bool `json:"no_face,omitempty"`
}

var (
	requiredFeatures = []string{"left_ear", "right_ear", "pitch", "yaw", "roll", "frame_duration"}
	requiredGaze     = []string{"left_gaze", "right_gaze"}
)

// UnmarshalJSON decodes the payload and checks that every feature is present.
func (d *FeaturesData) UnmarshalJSON(b []byte) error {
	type plain FeaturesData
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	if !p.NoFace {
		if err := checkFeatures(b); err != nil {
			return err
		}
	}
	*d = FeaturesData(p)
	return nil
}

func checkFeatures(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	for _, name := range requiredFeatures {
		if !present(fields[name]) {
			return &driverstate.FeatureError{Field: name, Missing: true}
		}
	}
	for _, name := range requiredGaze {
		if !present(fields[name]) {
			return &driverstate.FeatureError{Field: name, Missing: true}
		}
		var axes map[string]json.RawMessage
		if err := json.Unmarshal(fields[name], &axes); err != nil {
			return err
		}
		for _, axis := range []string{"x", "y"} {
			if !present(axes[axis]) {
				return &driverstate.FeatureError{Field: name + "." + axis, Missing: true}
			}
		}
	}
	return nil
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// LandmarksData carries raw landmarks for the server to convert.
// A nil Face means no face was found.
type LandmarksData struct {
	Face          *landmarks.Face `json:"face,omitempty"`
	FrameDuration float64         `json:"frame_duration"`
}

// ResetData requests a calibration restart.
type ResetData struct {
	Reason string `json:"reason,omitempty"`
}

// =============================================================================
// Server → Client Message Types
// =============================================================================

// ReportData wraps an engine report with its stream.
type ReportData struct {
	Stream string             `json:"stream"`
	Report driverstate.Report `json:"report"`
}

// AlertData describes a warning transition on a stream.
type AlertData struct {
	Stream         string  `json:"stream"`
	Kind           string  `json:"kind"` // "drowsy", "distracted", "calibration_reset"
	Active         bool    `json:"active"`
	Frame          uint64  `json:"frame"`
	ClosedTime     float64 `json:"closed_time"`
	DistractedTime float64 `json:"distracted_time"`
}

// ErrorData reports why a message was rejected.
type ErrorData struct {
	Code    string `json:"code"` // "bad_message", "skipped", "unsupported"
	Message string `json:"message"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
