package p2p

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func roundTrip(t *testing.T, p Payload) Payload {
	t.Helper()
	b, err := Marshal(&Message{Payload: p})
	if err != nil {
		t.Fatalf("marshal %T: %v", p, err)
	}
	msg, err := Unmarshal(b)
	if err != nil {
		t.Fatalf("unmarshal %T: %v", p, err)
	}
	if msg.Type() != p.Type() {
		t.Fatalf("type changed: sent %s, got %s", p.Type(), msg.Type())
	}
	return msg.Payload
}

func sampleFileInfo() FileInfo {
	return FileInfo{
		Hash:     bytes.Repeat([]byte{0xab}, HashSize),
		Size:     1500,
		Filename: "notes.txt",
		Chunks: []ChunkInfo{
			{Index: 0, Size: 1024, Hash: bytes.Repeat([]byte{0x01}, HashSize)},
			{Index: 1, Size: 476, Hash: bytes.Repeat([]byte{0x02}, HashSize)},
		},
	}
}

func TestEmptyPayloadStillDecodes(t *testing.T) {
	// every field is a zero value, so only the envelope carries information
	got := roundTrip(t, ChunkRequest{})
	if _, ok := got.(ChunkRequest); !ok {
		t.Fatalf("expected ChunkRequest, got %T", got)
	}
}

func TestNegativeChunkIndexSurvives(t *testing.T) {
	got := roundTrip(t, ChunkRequest{FileHash: make([]byte, HashSize), ChunkIndex: -3}).(ChunkRequest)
	if got.ChunkIndex != -3 {
		t.Fatalf("expected chunk index -3, got %d", got.ChunkIndex)
	}
}

func TestNestedMessagesRoundTrip(t *testing.T) {
	fi := sampleFileInfo()
	peer := Node{Host: "10.0.0.2", Port: 8001}

	search := SearchResponse{
		Status: StatusSuccess,
		Results: []NodeSearchResult{
			{Node: peer, Status: StatusSuccess, Files: []FileInfo{fi}},
			{Node: Node{Host: "10.0.0.3", Port: 8002}, Status: StatusSuccess},
		},
	}
	if got := roundTrip(t, search); !reflect.DeepEqual(got, search) {
		t.Fatalf("search response mismatch:\n got %+v\nwant %+v", got, search)
	}

	repl := ReplicateResponse{
		Status: StatusUnableToComplete,
		NodeStatusList: []NodeReplicationStatus{
			{Node: peer, ChunkIndex: 0, Status: StatusSuccess},
			{Node: peer, ChunkIndex: 1, Status: StatusSuccess},
		},
	}
	if got := roundTrip(t, repl); !reflect.DeepEqual(got, repl) {
		t.Fatalf("replicate response mismatch:\n got %+v\nwant %+v", got, repl)
	}

	up := UploadResponse{Status: StatusSuccess, FileInfo: &fi}
	gotUp := roundTrip(t, up).(UploadResponse)
	if gotUp.FileInfo == nil || !reflect.DeepEqual(*gotUp.FileInfo, fi) {
		t.Fatalf("upload response file info mismatch: %+v", gotUp.FileInfo)
	}
}

func TestUnmarshalRejectsMissingPayload(t *testing.T) {
	// type says DOWNLOAD_RESPONSE but only a chunk request payload is present
	b := protowire.AppendTag(nil, fieldMessageType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(TypeDownloadResponse))
	b = protowire.AppendTag(b, fieldPayloadBase+protowire.Number(TypeChunkRequest), protowire.BytesType)
	b = protowire.AppendBytes(b, nil)

	if _, err := Unmarshal(b); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	b, err := Marshal(&Message{Payload: SearchRequest{Regex: ".*"}})
	if err != nil {
		t.Fatal(err)
	}
	b = protowire.AppendTag(b, 99, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 42)

	msg, err := Unmarshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Payload.(SearchRequest).Regex != ".*" {
		t.Fatalf("unexpected payload %+v", msg.Payload)
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	if _, err := Unmarshal([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Fatal("expected an error for truncated input")
	}
}
