package p2p

import (
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
)

// HashSize is the length of every file and chunk content hash (MD5).
const HashSize = 16

// Status is the outcome carried by every response.
type Status int32

const (
	StatusSuccess          Status = 0
	StatusMessageError     Status = 1 // malformed or invalid request
	StatusUnableToComplete Status = 2 // valid request that cannot be satisfied
	StatusProcessingError  Status = 3 // failure while processing, e.g. peer I/O
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusMessageError:
		return "MESSAGE_ERROR"
	case StatusUnableToComplete:
		return "UNABLE_TO_COMPLETE"
	case StatusProcessingError:
		return "PROCESSING_ERROR"
	default:
		return "Status(" + strconv.Itoa(int(s)) + ")"
	}
}

// MessageType selects the payload carried by a Message.
type MessageType int32

const (
	TypeChunkRequest MessageType = iota
	TypeChunkResponse
	TypeDownloadRequest
	TypeDownloadResponse
	TypeUploadRequest
	TypeUploadResponse
	TypeLocalSearchRequest
	TypeLocalSearchResponse
	TypeSearchRequest
	TypeSearchResponse
	TypeReplicateRequest
	TypeReplicateResponse
)

var typeNames = [...]string{
	"CHUNK_REQUEST", "CHUNK_RESPONSE",
	"DOWNLOAD_REQUEST", "DOWNLOAD_RESPONSE",
	"UPLOAD_REQUEST", "UPLOAD_RESPONSE",
	"LOCAL_SEARCH_REQUEST", "LOCAL_SEARCH_RESPONSE",
	"SEARCH_REQUEST", "SEARCH_RESPONSE",
	"REPLICATE_REQUEST", "REPLICATE_RESPONSE",
}

func (t MessageType) String() string {
	if t >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "MessageType(" + strconv.Itoa(int(t)) + ")"
}

// Node identifies a peer process on the wire.
type Node struct {
	Host string
	Port int
}

// Addr returns the dialable host:port form.
func (n Node) Addr() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}

func (n Node) String() string {
	return n.Addr()
}

// ParseNode splits a host:port string.
func ParseNode(addr string) (Node, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return Node{}, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Node{}, fmt.Errorf("invalid port in %q: %w", addr, err)
	}
	if port < 0 || port > 65535 {
		return Node{}, fmt.Errorf("port %d out of range in %q", port, addr)
	}
	return Node{Host: host, Port: port}, nil
}

// ChunkInfo describes one chunk of a file.
type ChunkInfo struct {
	Index int
	Size  int
	Hash  []byte
}

// FileInfo describes a whole file: its content hash, total size, name and ordered chunks.
type FileInfo struct {
	Hash     []byte
	Size     int
	Filename string
	Chunks   []ChunkInfo
}

// HashString renders a content hash for logs and the CLI.
func HashString(h []byte) string {
	return hex.EncodeToString(h)
}

// Payload is implemented by every request and response variant.
// The set is closed: only the types in this file satisfy it.
type Payload interface {
	Type() MessageType
	isPayload()
}

// Message is the envelope sent in one frame.
type Message struct {
	Payload Payload
}

// Type reports the kind of the wrapped payload.
func (m *Message) Type() MessageType {
	return m.Payload.Type()
}

type ChunkRequest struct {
	FileHash   []byte
	ChunkIndex int
}

type ChunkResponse struct {
	Status Status
	Data   []byte
}

type DownloadRequest struct {
	FileHash []byte
}

type DownloadResponse struct {
	Status Status
	Data   []byte
}

type UploadRequest struct {
	Filename string
	Data     []byte
}

type UploadResponse struct {
	Status   Status
	FileInfo *FileInfo
}

type LocalSearchRequest struct {
	Regex string
}

type LocalSearchResponse struct {
	Status   Status
	FileInfo []FileInfo
}

type SearchRequest struct {
	Regex string
}

// NodeSearchResult holds the files one node reported for a search.
type NodeSearchResult struct {
	Node   Node
	Status Status
	Files  []FileInfo
}

type SearchResponse struct {
	Status  Status
	Results []NodeSearchResult
}

type ReplicateRequest struct {
	FileInfo FileInfo
}

// NodeReplicationStatus records which peer served a chunk during replication.
type NodeReplicationStatus struct {
	Node       Node
	ChunkIndex int
	Status     Status
}

type ReplicateResponse struct {
	Status         Status
	NodeStatusList []NodeReplicationStatus
}

func (ChunkRequest) Type() MessageType        { return TypeChunkRequest }
func (ChunkResponse) Type() MessageType       { return TypeChunkResponse }
func (DownloadRequest) Type() MessageType     { return TypeDownloadRequest }
func (DownloadResponse) Type() MessageType    { return TypeDownloadResponse }
func (UploadRequest) Type() MessageType       { return TypeUploadRequest }
func (UploadResponse) Type() MessageType      { return TypeUploadResponse }
func (LocalSearchRequest) Type() MessageType  { return TypeLocalSearchRequest }
func (LocalSearchResponse) Type() MessageType { return TypeLocalSearchResponse }
func (SearchRequest) Type() MessageType       { return TypeSearchRequest }
func (SearchResponse) Type() MessageType      { return TypeSearchResponse }
func (ReplicateRequest) Type() MessageType    { return TypeReplicateRequest }
func (ReplicateResponse) Type() MessageType   { return TypeReplicateResponse }

func (ChunkRequest) isPayload()        {}
func (ChunkResponse) isPayload()       {}
func (DownloadRequest) isPayload()     {}
func (DownloadResponse) isPayload()    {}
func (UploadRequest) isPayload()       {}
func (UploadResponse) isPayload()      {}
func (LocalSearchRequest) isPayload()  {}
func (LocalSearchResponse) isPayload() {}
func (SearchRequest) isPayload()       {}
func (SearchResponse) isPayload()      {}
func (ReplicateRequest) isPayload()    {}
func (ReplicateResponse) isPayload()   {}
