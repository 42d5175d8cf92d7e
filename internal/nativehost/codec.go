// Package nativehost speaks the browser native messaging protocol on stdin/stdout
// and streams block status to an extension.
package nativehost

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxMessageSize bounds a single incoming message.
const MaxMessageSize = 4 << 20

// ErrMessageTooLarge is returned for a length prefix above MaxMessageSize.
var ErrMessageTooLarge = errors.New("native message too large")

// ReadMessage reads one length-prefixed JSON object.
// A clean EOF before the prefix returns io.EOF; a truncated frame returns io.ErrUnexpectedEOF.
func ReadMessage(r io.Reader) (map[string]any, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(prefix[:])
	if n > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, n)
	}

	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, &ParseError{Err: err}
	}
	return msg, nil
}

// WriteMessage writes v as one length-prefixed JSON message.
func WriteMessage(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[4:], data)
	_, err = w.Write(buf)
	return err
}

// ParseError is a well-framed message whose body is not a JSON object.
// The stream stays usable after it.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse native message: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
