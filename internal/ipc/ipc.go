package ipc

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/berrythewa/bandman/internal/types"
)

const (
	// HeaderSize is the width of the frame header. The payload length sits
	// in the first four bytes; the rest is reserved and written as zero.
	HeaderSize = 8

	// DefaultMaxFrameSize bounds the payload length accepted by decoders.
	DefaultMaxFrameSize = 1 << 20
)

var (
	// ErrFrame marks a corrupt or truncated frame. The stream cannot be
	// resynchronized and the connection should be dropped.
	ErrFrame = errors.New("malformed frame")

	// ErrPayload marks a well-framed message whose form failed to decode.
	ErrPayload = errors.New("malformed payload")

	// ErrIncomplete is returned by SplitFrame until a whole frame is buffered.
	ErrIncomplete = errors.New("incomplete frame")
)

// Encode serializes a request or response into a single frame.
func Encode(msg any) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	if len(payload) > DefaultMaxFrameSize {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrFrame, len(payload), DefaultMaxFrameSize)
	}
	frame := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[HeaderSize:], payload)
	return frame, nil
}

// SplitFrame extracts the first frame payload from buf. It returns the
// payload and the number of bytes consumed, or ErrIncomplete when buf
// does not hold a whole frame yet.
func SplitFrame(buf []byte, maxSize int) ([]byte, int, error) {
	if len(buf) < HeaderSize {
		return nil, 0, ErrIncomplete
	}
	n, err := payloadLength(buf[:HeaderSize], maxSize)
	if err != nil {
		return nil, 0, err
	}
	if len(buf) < HeaderSize+n {
		return nil, 0, ErrIncomplete
	}
	return buf[HeaderSize : HeaderSize+n], HeaderSize + n, nil
}

// ReadFrame reads one frame payload from a blocking stream.
// A clean end of stream before any header byte is reported as io.EOF.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: reading header: %v", ErrFrame, err)
	}
	n, err := payloadLength(header[:], maxSize)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: reading %d byte payload: %v", ErrFrame, n, err)
	}
	return payload, nil
}

// WriteFrame encodes msg and writes it as one frame.
func WriteFrame(w io.Writer, msg any) error {
	frame, err := Encode(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

func payloadLength(header []byte, maxSize int) (int, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	n := binary.BigEndian.Uint32(header)
	if uint64(n) > uint64(maxSize) {
		return 0, fmt.Errorf("%w: payload length %d exceeds %d", ErrFrame, n, maxSize)
	}
	return int(n), nil
}

// wireRequest keeps the form raw so a bad form does not hide the command.
type wireRequest struct {
	Command  string          `json:"command"`
	Argument string          `json:"argument"`
	Form     json.RawMessage `json:"form,omitempty"`
}

// DecodeRequest decodes a frame payload into a request. On ErrPayload the
// returned request still carries the command name and argument.
func DecodeRequest(payload []byte) (*Request, error) {
	var wire wireRequest
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrame, err)
	}

	req := &Request{Command: wire.Command, Argument: wire.Argument}
	if len(wire.Form) == 0 || bytes.Equal(wire.Form, []byte("null")) {
		return req, nil
	}

	dec := json.NewDecoder(bytes.NewReader(wire.Form))
	dec.DisallowUnknownFields()
	var form types.BandForm
	if err := dec.Decode(&form); err != nil {
		return req, fmt.Errorf("%w: form: %v", ErrPayload, err)
	}
	req.Form = &form
	return req, nil
}

// DecodeResponse decodes a frame payload into a response.
func DecodeResponse(payload []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrame, err)
	}
	if !resp.Code.valid() {
		return nil, fmt.Errorf("%w: unknown response code %q", ErrPayload, resp.Code)
	}
	return &resp, nil
}

// ReadRequest reads and decodes one request from a blocking stream.
func ReadRequest(r io.Reader) (*Request, error) {
	payload, err := ReadFrame(r, DefaultMaxFrameSize)
	if err != nil {
		return nil, err
	}
	return DecodeRequest(payload)
}

// ReadResponse reads and decodes one response from a blocking stream.
func ReadResponse(r io.Reader) (*Response, error) {
	payload, err := ReadFrame(r, DefaultMaxFrameSize)
	if err != nil {
		return nil, err
	}
	return DecodeResponse(payload)
}
