// Package hub fans driver state reports and alerts out to dashboard
// observers using the channel-based broadcast pattern.
package hub

// Message is a pre-encoded JSON frame queued for observers.
type Message struct {
	// Stream is the source stream; observers filtering on another stream
	// skip the message.
	Stream string
	Data   []byte
}

// NewMessage creates a message for stream from encoded JSON
func NewMessage(stream string, data []byte) Message {
	return Message{Stream: stream, Data: data}
}
