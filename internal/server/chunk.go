package server

import (
	"github.com/rs/zerolog"

	"github.com/Ankesh2004/GO-P2PFS/internal/storage"
	"github.com/Ankesh2004/GO-P2PFS/pkg/p2p"
)

func (s *Server) handleChunk(log zerolog.Logger, req p2p.ChunkRequest) p2p.ChunkResponse {
	h, err := storage.HashFromBytes(req.FileHash)
	if err != nil {
		log.Error().Err(err).Msg("chunk request rejected")
		return p2p.ChunkResponse{Status: p2p.StatusMessageError}
	}
	if req.ChunkIndex < 0 {
		log.Error().Int("index", req.ChunkIndex).Msg("chunk request rejected: negative index")
		return p2p.ChunkResponse{Status: p2p.StatusMessageError}
	}

	chunks, ok := s.Store.Chunks(h)
	if !ok {
		log.Debug().Stringer("hash", h).Msg("chunk of unknown file")
		return p2p.ChunkResponse{Status: p2p.StatusUnableToComplete}
	}
	if req.ChunkIndex >= len(chunks) {
		log.Error().
			Stringer("hash", h).
			Int("index", req.ChunkIndex).
			Int("chunks", len(chunks)).
			Msg("chunk index past end of file")
		return p2p.ChunkResponse{Status: p2p.StatusUnableToComplete}
	}
	return p2p.ChunkResponse{Status: p2p.StatusSuccess, Data: chunks[req.ChunkIndex]}
}
