package p2p

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the protobuf schema shared with every peer.
// Changing any of these breaks compatibility with running nodes.
const (
	fieldMessageType protowire.Number = 1
	// payload fields are 2 + MessageType
	fieldPayloadBase protowire.Number = 2
)

var (
	ErrUnknownMessage = errors.New("unknown message type")
	errWireType       = errors.New("unexpected wire type")
)

// Marshal encodes msg in protobuf wire format.
func Marshal(msg *Message) ([]byte, error) {
	if msg == nil || msg.Payload == nil {
		return nil, fmt.Errorf("%w: empty message", ErrUnknownMessage)
	}

	var body []byte
	switch p := msg.Payload.(type) {
	case ChunkRequest:
		body = appendBytes(body, 1, p.FileHash)
		body = appendInt(body, 2, p.ChunkIndex)
	case ChunkResponse:
		body = appendInt(body, 1, int(p.Status))
		body = appendBytes(body, 2, p.Data)
	case DownloadRequest:
		body = appendBytes(body, 1, p.FileHash)
	case DownloadResponse:
		body = appendInt(body, 1, int(p.Status))
		body = appendBytes(body, 2, p.Data)
	case UploadRequest:
		body = appendString(body, 1, p.Filename)
		body = appendBytes(body, 2, p.Data)
	case UploadResponse:
		body = appendInt(body, 1, int(p.Status))
		if p.FileInfo != nil {
			body = appendMessage(body, 2, encodeFileInfo(nil, *p.FileInfo))
		}
	case LocalSearchRequest:
		body = appendString(body, 1, p.Regex)
	case LocalSearchResponse:
		body = appendInt(body, 1, int(p.Status))
		for _, fi := range p.FileInfo {
			body = appendMessage(body, 2, encodeFileInfo(nil, fi))
		}
	case SearchRequest:
		body = appendString(body, 1, p.Regex)
	case SearchResponse:
		body = appendInt(body, 1, int(p.Status))
		for _, r := range p.Results {
			body = appendMessage(body, 2, encodeNodeSearchResult(nil, r))
		}
	case ReplicateRequest:
		body = appendMessage(body, 1, encodeFileInfo(nil, p.FileInfo))
	case ReplicateResponse:
		body = appendInt(body, 1, int(p.Status))
		for _, s := range p.NodeStatusList {
			body = appendMessage(body, 2, encodeNodeReplicationStatus(nil, s))
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, msg.Payload)
	}

	t := msg.Payload.Type()
	out := appendInt(nil, fieldMessageType, int(t))
	// the payload is always written, even when empty, so the receiver sees it as set
	out = appendMessage(out, fieldPayloadBase+protowire.Number(t), body)
	return out, nil
}

// Unmarshal decodes a protobuf-encoded Message.
func Unmarshal(b []byte) (*Message, error) {
	var (
		t        MessageType
		payloads = make(map[protowire.Number][]byte)
	)
	err := forEachField(b, func(f field) error {
		if f.num == fieldMessageType {
			v, err := f.int()
			t = MessageType(v)
			return err
		}
		if f.num >= fieldPayloadBase && f.num < fieldPayloadBase+protowire.Number(len(typeNames)) {
			v, err := f.embedded()
			payloads[f.num] = v
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}

	body, ok := payloads[fieldPayloadBase+protowire.Number(t)]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no payload", ErrUnknownMessage, t)
	}

	p, err := decodePayload(t, body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", t, err)
	}
	return &Message{Payload: p}, nil
}

func decodePayload(t MessageType, b []byte) (Payload, error) {
	switch t {
	case TypeChunkRequest:
		var p ChunkRequest
		err := forEachField(b, func(f field) (err error) {
			switch f.num {
			case 1:
				p.FileHash, err = f.embedded()
			case 2:
				p.ChunkIndex, err = f.int()
			}
			return err
		})
		return p, err
	case TypeChunkResponse:
		var p ChunkResponse
		err := forEachField(b, func(f field) (err error) {
			switch f.num {
			case 1:
				p.Status, err = f.status()
			case 2:
				p.Data, err = f.embedded()
			}
			return err
		})
		return p, err
	case TypeDownloadRequest:
		var p DownloadRequest
		err := forEachField(b, func(f field) (err error) {
			if f.num == 1 {
				p.FileHash, err = f.embedded()
			}
			return err
		})
		return p, err
	case TypeDownloadResponse:
		var p DownloadResponse
		err := forEachField(b, func(f field) (err error) {
			switch f.num {
			case 1:
				p.Status, err = f.status()
			case 2:
				p.Data, err = f.embedded()
			}
			return err
		})
		return p, err
	case TypeUploadRequest:
		var p UploadRequest
		err := forEachField(b, func(f field) (err error) {
			switch f.num {
			case 1:
				p.Filename, err = f.string()
			case 2:
				p.Data, err = f.embedded()
			}
			return err
		})
		return p, err
	case TypeUploadResponse:
		var p UploadResponse
		err := forEachField(b, func(f field) (err error) {
			switch f.num {
			case 1:
				p.Status, err = f.status()
			case 2:
				var raw []byte
				if raw, err = f.embedded(); err != nil {
					return err
				}
				fi, err := decodeFileInfo(raw)
				p.FileInfo = &fi
				return err
			}
			return err
		})
		return p, err
	case TypeLocalSearchRequest:
		var p LocalSearchRequest
		err := forEachField(b, func(f field) (err error) {
			if f.num == 1 {
				p.Regex, err = f.string()
			}
			return err
		})
		return p, err
	case TypeLocalSearchResponse:
		var p LocalSearchResponse
		err := forEachField(b, func(f field) (err error) {
			switch f.num {
			case 1:
				p.Status, err = f.status()
			case 2:
				var raw []byte
				if raw, err = f.embedded(); err != nil {
					return err
				}
				fi, err := decodeFileInfo(raw)
				p.FileInfo = append(p.FileInfo, fi)
				return err
			}
			return err
		})
		return p, err
	case TypeSearchRequest:
		var p SearchRequest
		err := forEachField(b, func(f field) (err error) {
			if f.num == 1 {
				p.Regex, err = f.string()
			}
			return err
		})
		return p, err
	case TypeSearchResponse:
		var p SearchResponse
		err := forEachField(b, func(f field) (err error) {
			switch f.num {
			case 1:
				p.Status, err = f.status()
			case 2:
				var raw []byte
				if raw, err = f.embedded(); err != nil {
					return err
				}
				r, err := decodeNodeSearchResult(raw)
				p.Results = append(p.Results, r)
				return err
			}
			return err
		})
		return p, err
	case TypeReplicateRequest:
		var p ReplicateRequest
		err := forEachField(b, func(f field) (err error) {
			if f.num == 1 {
				var raw []byte
				if raw, err = f.embedded(); err != nil {
					return err
				}
				p.FileInfo, err = decodeFileInfo(raw)
			}
			return err
		})
		return p, err
	case TypeReplicateResponse:
		var p ReplicateResponse
		err := forEachField(b, func(f field) (err error) {
			switch f.num {
			case 1:
				p.Status, err = f.status()
			case 2:
				var raw []byte
				if raw, err = f.embedded(); err != nil {
					return err
				}
				s, err := decodeNodeReplicationStatus(raw)
				p.NodeStatusList = append(p.NodeStatusList, s)
				return err
			}
			return err
		})
		return p, err
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, t)
}

// -------- nested messages --------

func encodeNode(b []byte, n Node) []byte {
	b = appendString(b, 1, n.Host)
	return appendInt(b, 2, n.Port)
}

func decodeNode(b []byte) (Node, error) {
	var n Node
	err := forEachField(b, func(f field) (err error) {
		switch f.num {
		case 1:
			n.Host, err = f.string()
		case 2:
			n.Port, err = f.int()
		}
		return err
	})
	return n, err
}

func encodeChunkInfo(b []byte, c ChunkInfo) []byte {
	b = appendInt(b, 1, c.Index)
	b = appendInt(b, 2, c.Size)
	return appendBytes(b, 3, c.Hash)
}

func decodeChunkInfo(b []byte) (ChunkInfo, error) {
	var c ChunkInfo
	err := forEachField(b, func(f field) (err error) {
		switch f.num {
		case 1:
			c.Index, err = f.int()
		case 2:
			c.Size, err = f.int()
		case 3:
			c.Hash, err = f.embedded()
		}
		return err
	})
	return c, err
}

func encodeFileInfo(b []byte, fi FileInfo) []byte {
	b = appendBytes(b, 1, fi.Hash)
	b = appendInt(b, 2, fi.Size)
	b = appendString(b, 3, fi.Filename)
	for _, c := range fi.Chunks {
		b = appendMessage(b, 4, encodeChunkInfo(nil, c))
	}
	return b
}

func decodeFileInfo(b []byte) (FileInfo, error) {
	var fi FileInfo
	err := forEachField(b, func(f field) (err error) {
		switch f.num {
		case 1:
			fi.Hash, err = f.embedded()
		case 2:
			fi.Size, err = f.int()
		case 3:
			fi.Filename, err = f.string()
		case 4:
			var raw []byte
			if raw, err = f.embedded(); err != nil {
				return err
			}
			c, err := decodeChunkInfo(raw)
			fi.Chunks = append(fi.Chunks, c)
			return err
		}
		return err
	})
	return fi, err
}

func encodeNodeSearchResult(b []byte, r NodeSearchResult) []byte {
	b = appendMessage(b, 1, encodeNode(nil, r.Node))
	b = appendInt(b, 2, int(r.Status))
	for _, fi := range r.Files {
		b = appendMessage(b, 3, encodeFileInfo(nil, fi))
	}
	return b
}

func decodeNodeSearchResult(b []byte) (NodeSearchResult, error) {
	var r NodeSearchResult
	err := forEachField(b, func(f field) (err error) {
		switch f.num {
		case 1:
			var raw []byte
			if raw, err = f.embedded(); err != nil {
				return err
			}
			r.Node, err = decodeNode(raw)
		case 2:
			r.Status, err = f.status()
		case 3:
			var raw []byte
			if raw, err = f.embedded(); err != nil {
				return err
			}
			fi, err := decodeFileInfo(raw)
			r.Files = append(r.Files, fi)
			return err
		}
		return err
	})
	return r, err
}

func encodeNodeReplicationStatus(b []byte, s NodeReplicationStatus) []byte {
	b = appendMessage(b, 1, encodeNode(nil, s.Node))
	b = appendInt(b, 2, s.ChunkIndex)
	return appendInt(b, 3, int(s.Status))
}

func decodeNodeReplicationStatus(b []byte) (NodeReplicationStatus, error) {
	var s NodeReplicationStatus
	err := forEachField(b, func(f field) (err error) {
		switch f.num {
		case 1:
			var raw []byte
			if raw, err = f.embedded(); err != nil {
				return err
			}
			s.Node, err = decodeNode(raw)
		case 2:
			s.ChunkIndex, err = f.int()
		case 3:
			s.Status, err = f.status()
		}
		return err
	})
	return s, err
}

// -------- field primitives --------

// proto3: zero scalars are not written
func appendInt(b []byte, num protowire.Number, v int) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	// negative int32 values are sign-extended to 64 bits, as protobuf does
	return protowire.AppendVarint(b, uint64(int64(v)))
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	return appendMessage(b, num, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendMessage(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

type field struct {
	num   protowire.Number
	typ   protowire.Type
	u     uint64
	bytes []byte
}

func (f field) int() (int, error) {
	if f.typ != protowire.VarintType {
		return 0, fmt.Errorf("%w for field %d: %d", errWireType, f.num, f.typ)
	}
	return int(int32(f.u)), nil
}

func (f field) status() (Status, error) {
	v, err := f.int()
	return Status(v), err
}

func (f field) embedded() ([]byte, error) {
	if f.typ != protowire.BytesType {
		return nil, fmt.Errorf("%w for field %d: %d", errWireType, f.num, f.typ)
	}
	return f.bytes, nil
}

func (f field) string() (string, error) {
	v, err := f.embedded()
	return string(v), err
}

// forEachField walks the top-level fields of b, skipping unknown wire types.
func forEachField(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.u, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}
