package detector

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxFrameSize bounds a single length-prefixed record.
const MaxFrameSize = 1 << 20

// ErrFrameTooLarge is returned for a length prefix above MaxFrameSize.
var ErrFrameTooLarge = errors.New("detector: frame too large")

// Encode writes v as a 4-byte big-endian length prefix followed by msgpack.
func Encode(w io.Writer, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal msgpack record: %w", err)
	}
	if len(data) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}

	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[4:], data)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// Decode reads one length-prefixed msgpack record into v. It returns io.EOF
// when r ends cleanly between records.
func Decode(r io.Reader, v any) error {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("failed to read length prefix: %w", err)
	}

	n := binary.BigEndian.Uint32(lengthBuf[:])
	if n > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}

	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("failed to read msgpack data (expected %d bytes): %w", n, err)
	}
	if err := msgpack.Unmarshal(data, v); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}

// DecodeError is a well-framed record whose payload failed to unmarshal.
// The stream stays in sync after one.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "detector: bad record: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
