package p2p

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, 1023, 1024, 1025, 64 * 1024, 3 * 1024 * 1024} {
		payload := make([]byte, size)
		rand.Read(payload)

		var buf bytes.Buffer
		if err := WriteFrame(&buf, payload); err != nil {
			t.Fatalf("size %d: write: %v", size, err)
		}
		if buf.Len() != size+4 {
			t.Fatalf("size %d: expected %d bytes on the wire, got %d", size, size+4, buf.Len())
		}

		got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("size %d: read: %v", size, err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("size %d: payload mismatch", size)
		}
	}
}

func TestFrameLengthIsBigEndian(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, make([]byte, 0x010203)); err != nil {
		t.Fatal(err)
	}
	header := buf.Bytes()[:4]
	if !bytes.Equal(header, []byte{0x00, 0x01, 0x02, 0x03}) {
		t.Fatalf("unexpected length prefix % x", header)
	}
}

func TestReadFrameClosedMidPayload(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	go func() {
		// announce 100 bytes, deliver 10, hang up
		client.Write([]byte{0, 0, 0, 100})
		client.Write(make([]byte, 10))
		client.Close()
	}()

	_, err := ReadFrame(server)
	if !errors.Is(err, ErrShortFrame) {
		t.Fatalf("expected ErrShortFrame, got %v", err)
	}
}

func TestReadFrameClosedMidHeader(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0, 0}))
	if !errors.Is(err, ErrShortFrame) {
		t.Fatalf("expected ErrShortFrame, got %v", err)
	}

	_, err = ReadFrame(bytes.NewReader(nil))
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF on an empty stream, got %v", err)
	}
}

func TestDecoderRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, make([]byte, 2048)); err != nil {
		t.Fatal(err)
	}
	_, err := Decoder{MaxSize: 1024}.ReadFrame(&buf)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestMessageOverFrame(t *testing.T) {
	var buf bytes.Buffer
	req := &Message{Payload: UploadRequest{Filename: "a.txt", Data: []byte("hello")}}
	if err := WriteMessage(&buf, req); err != nil {
		t.Fatal(err)
	}
	got, err := Decoder{}.ReadMessage(&buf)
	if err != nil {
		t.Fatal(err)
	}
	up, ok := got.Payload.(UploadRequest)
	if !ok {
		t.Fatalf("expected UploadRequest, got %T", got.Payload)
	}
	if up.Filename != "a.txt" || string(up.Data) != "hello" {
		t.Fatalf("unexpected payload %+v", up)
	}
}
