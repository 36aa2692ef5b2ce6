package server

import (
	"bytes"
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Ankesh2004/GO-P2PFS/internal/storage"
	"github.com/Ankesh2004/GO-P2PFS/pkg/p2p"
)

// handleReplicate pulls a file this node does not have from its peers, chunk by chunk.
func (s *Server) handleReplicate(ctx context.Context, log zerolog.Logger, req p2p.ReplicateRequest) p2p.ReplicateResponse {
	target := req.FileInfo
	if target.Filename == "" {
		log.Error().Msg("replicate rejected: empty filename")
		return p2p.ReplicateResponse{Status: p2p.StatusMessageError}
	}
	// a held name needs nothing else from the request
	if _, ok := s.Store.HashOf(target.Filename); ok {
		log.Debug().Str("file", target.Filename).Msg("already stored, nothing to replicate")
		return p2p.ReplicateResponse{Status: p2p.StatusSuccess}
	}
	fileHash, err := storage.HashFromBytes(target.Hash)
	if err != nil {
		log.Error().Err(err).Str("file", target.Filename).Msg("replicate rejected")
		return p2p.ReplicateResponse{Status: p2p.StatusMessageError}
	}
	if err := validateChunkList(target.Chunks); err != nil {
		log.Error().Err(err).Str("file", target.Filename).Msg("replicate rejected")
		return p2p.ReplicateResponse{Status: p2p.StatusMessageError}
	}

	log = log.With().Str("file", target.Filename).Stringer("hash", fileHash).Logger()
	if s.Store.Knows(target.Filename, fileHash) {
		log.Debug().Msg("already stored, nothing to replicate")
		return p2p.ReplicateResponse{Status: p2p.StatusSuccess}
	}

	r := newReplication(s.Client, s.Peers, target, log)
	status := r.run(ctx)
	resp := p2p.ReplicateResponse{Status: status, NodeStatusList: r.statuses}
	if status != p2p.StatusSuccess {
		return resp
	}

	if got := storage.Sum(storage.Join(r.chunks)); got != fileHash {
		log.Error().Stringer("got", got).Msg("replicated content does not match file hash")
		resp.Status = p2p.StatusUnableToComplete
		return resp
	}

	stored, err := s.Store.PutIfUnknown(target.Filename, fileHash, r.chunks)
	if err != nil {
		log.Error().Err(err).Msg("failed to persist replicated file")
		resp.Status = p2p.StatusProcessingError
		return resp
	}
	if stored {
		log.Info().Int("chunks", len(r.chunks)).Msg("file replicated")
	} else {
		log.Debug().Msg("file stored concurrently, replica discarded")
	}
	return resp
}

func validateChunkList(chunks []p2p.ChunkInfo) error {
	if len(chunks) == 0 {
		return fmt.Errorf("no chunks listed")
	}
	for i, c := range chunks {
		if c.Index != i {
			return fmt.Errorf("chunk %d listed at position %d", c.Index, i)
		}
		if c.Size < 0 || c.Size > storage.ChunkSize {
			return fmt.Errorf("chunk %d has invalid size %d", i, c.Size)
		}
		if len(c.Hash) != storage.HashSize {
			return fmt.Errorf("chunk %d has a %d-byte hash", i, len(c.Hash))
		}
	}
	return nil
}

// replication is one in-progress pull. Fetched chunks stay private to it
// until the caller commits them, so a failed pull leaves nothing behind.
type replication struct {
	client *Client
	peers  []p2p.Node
	target p2p.FileInfo
	log    zerolog.Logger

	// lastValid is the peer the next chunk is asked from first: the last one
	// that served a chunk. Peers before it are not retried.
	lastValid int
	chunks    [][]byte
	statuses  []p2p.NodeReplicationStatus
}

func newReplication(client *Client, peers []p2p.Node, target p2p.FileInfo, log zerolog.Logger) *replication {
	return &replication{
		client: client,
		peers:  peers,
		target: target,
		log:    log,
		chunks: make([][]byte, 0, len(target.Chunks)),
	}
}

func (r *replication) run(ctx context.Context) p2p.Status {
	for _, want := range r.target.Chunks {
		if !r.fetch(ctx, want) {
			r.log.Error().
				Int("index", want.Index).
				Int("from_peer", r.lastValid).
				Msg("replicate failed: no peer could serve chunk")
			return p2p.StatusUnableToComplete
		}
	}
	if len(r.statuses) != len(r.target.Chunks) {
		return p2p.StatusUnableToComplete
	}
	return p2p.StatusSuccess
}

// fetch tries peers from lastValid onwards until one returns the expected bytes.
func (r *replication) fetch(ctx context.Context, want p2p.ChunkInfo) bool {
	for i := r.lastValid; i < len(r.peers); i++ {
		if ctx.Err() != nil {
			return false
		}
		peer := r.peers[i]
		log := r.log.With().Stringer("peer", peer).Int("index", want.Index).Logger()

		resp, err := r.client.Chunk(ctx, peer, r.target.Hash, want.Index)
		if err != nil {
			log.Warn().Err(err).Msg("chunk fetch failed, trying next peer")
			continue
		}
		if resp.Status != p2p.StatusSuccess {
			log.Warn().Stringer("status", resp.Status).Msg("peer cannot serve chunk, trying next peer")
			continue
		}
		if err := verifyChunk(want, resp.Data); err != nil {
			log.Warn().Err(err).Msg("chunk failed verification, trying next peer")
			continue
		}

		r.chunks = append(r.chunks, resp.Data)
		r.lastValid = i
		r.statuses = append(r.statuses, p2p.NodeReplicationStatus{
			Node:       peer,
			ChunkIndex: want.Index,
			Status:     p2p.StatusSuccess,
		})
		return true
	}
	return false
}

// verifyChunk checks received bytes against the requester's metadata.
// We never trust a peer's claim about what it sent.
func verifyChunk(want p2p.ChunkInfo, data []byte) error {
	if len(data) != want.Size {
		return fmt.Errorf("size %d, expected %d", len(data), want.Size)
	}
	if got := storage.Sum(data); !bytes.Equal(got[:], want.Hash) {
		return fmt.Errorf("hash %s, expected %s", got, p2p.HashString(want.Hash))
	}
	return nil
}
