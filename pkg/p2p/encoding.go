package p2p

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Every message on the wire is one frame:
// [4-byte big-endian length N] [N bytes of encoded Message]
const frameHeaderSize = 4

// MaxFrameSize is the largest payload a 32-bit length prefix can describe.
const MaxFrameSize = math.MaxUint32

var (
	ErrShortFrame    = errors.New("connection closed mid-frame")
	ErrFrameTooLarge = errors.New("frame exceeds size limit")
)

// WriteFrame writes the length prefix and payload, then flushes.
func WriteFrame(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	bw := bufio.NewWriter(w)
	var header [frameHeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := bw.Write(header[:]); err != nil {
		return fmt.Errorf("failed to write frame length: %w", err)
	}
	if _, err := bw.Write(payload); err != nil {
		return fmt.Errorf("failed to write frame payload (%d bytes): %w", len(payload), err)
	}
	return bw.Flush()
}

// Decoder reads frames off a stream.
// MaxSize caps the accepted payload length; 0 means only the 32-bit limit applies.
type Decoder struct {
	MaxSize uint32
}

// ReadFrame reads exactly one frame and returns its payload.
// A stream that ends before the declared length is reached is an error, never a short payload.
func (d Decoder) ReadFrame(r io.Reader) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: got partial length prefix", ErrShortFrame)
		}
		return nil, fmt.Errorf("failed to read frame length: %w", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if d.MaxSize > 0 && length > d.MaxSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, length, d.MaxSize)
	}

	// grow the buffer as bytes arrive instead of trusting the prefix with one big allocation
	var buf bytes.Buffer
	n, err := io.CopyN(&buf, r, int64(length))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: read %d of %d bytes", ErrShortFrame, n, length)
		}
		return nil, fmt.Errorf("failed to read frame payload (%d bytes): %w", length, err)
	}
	return buf.Bytes(), nil
}

// ReadFrame reads one frame with no size limit beyond the 32-bit prefix.
func ReadFrame(r io.Reader) ([]byte, error) {
	return Decoder{}.ReadFrame(r)
}

// WriteMessage encodes msg and writes it as one frame.
func WriteMessage(w io.Writer, msg *Message) error {
	payload, err := Marshal(msg)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}

// ReadMessage reads one frame and decodes it.
func (d Decoder) ReadMessage(r io.Reader) (*Message, error) {
	payload, err := d.ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return Unmarshal(payload)
}
