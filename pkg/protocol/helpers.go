package protocol

import (
	"github.com/teslashibe/go-dms/pkg/driverstate"
	"github.com/teslashibe/go-dms/pkg/landmarks"
)

// Error codes carried in ErrorData.
const (
	CodeBadMessage  = "bad_message"
	CodeSkipped     = "skipped"
	CodeUnsupported = "unsupported"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewFeaturesMessage creates a features message
func NewFeaturesMessage(f driverstate.FrameFeatures) (*Message, error) {
	return NewMessage(TypeFeatures, FeaturesData{FrameFeatures: f})
}

// NewNoFaceMessage creates a features message for a frame without a face
func NewNoFaceMessage(frameDuration float64) (*Message, error) {
	return NewMessage(TypeFeatures, FeaturesData{
		FrameFeatures: driverstate.FrameFeatures{FrameDuration: frameDuration},
		NoFace:        true,
	})
}

// NewLandmarksMessage creates a landmarks message
func NewLandmarksMessage(face *landmarks.Face, frameDuration float64) (*Message, error) {
	return NewMessage(TypeLandmarks, LandmarksData{
		Face:          face,
		FrameDuration: frameDuration,
	})
}

// NewResetMessage creates a calibration reset message
func NewResetMessage(reason string) (*Message, error) {
	return NewMessage(TypeReset, ResetData{Reason: reason})
}

// NewReportMessage creates a report message
func NewReportMessage(stream string, r driverstate.Report) (*Message, error) {
	return NewMessage(TypeReport, ReportData{Stream: stream, Report: r})
}

// NewAlertMessage creates an alert message
func NewAlertMessage(a AlertData) (*Message, error) {
	return NewMessage(TypeAlert, a)
}

// NewErrorMessage creates an error message
func NewErrorMessage(code, message string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Code: code, Message: message})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{ID: id})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetFeaturesData extracts frame features from a message
func (m *Message) GetFeaturesData() (*FeaturesData, error) {
	if !present(m.Data) {
		return nil, &driverstate.FeatureError{Field: "data", Missing: true}
	}
	var data FeaturesData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetLandmarksData extracts landmarks from a message
func (m *Message) GetLandmarksData() (*LandmarksData, error) {
	var data LandmarksData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetResetData extracts a reset request from a message
func (m *Message) GetResetData() (*ResetData, error) {
	var data ResetData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetReportData extracts a report from a message
func (m *Message) GetReportData() (*ReportData, error) {
	var data ReportData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetAlertData extracts an alert from a message
func (m *Message) GetAlertData() (*AlertData, error) {
	var data AlertData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts an error from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
