package server

import (
	"github.com/rs/zerolog"

	"github.com/Ankesh2004/GO-P2PFS/internal/storage"
	"github.com/Ankesh2004/GO-P2PFS/pkg/p2p"
)

// handleDownload returns a whole file in one response.
func (s *Server) handleDownload(log zerolog.Logger, req p2p.DownloadRequest) p2p.DownloadResponse {
	h, err := storage.HashFromBytes(req.FileHash)
	if err != nil {
		log.Error().Err(err).Msg("download rejected")
		return p2p.DownloadResponse{Status: p2p.StatusMessageError}
	}

	chunks, ok := s.Store.Chunks(h)
	if !ok {
		log.Debug().Stringer("hash", h).Msg("download of unknown file")
		return p2p.DownloadResponse{Status: p2p.StatusUnableToComplete}
	}
	return p2p.DownloadResponse{Status: p2p.StatusSuccess, Data: storage.Join(chunks)}
}
