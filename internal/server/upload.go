package server

import (
	"github.com/rs/zerolog"

	"github.com/Ankesh2004/GO-P2PFS/internal/storage"
	"github.com/Ankesh2004/GO-P2PFS/pkg/p2p"
)

// handleUpload stores a file under its name. Uploading a name that is already
// taken succeeds without touching the stored content.
func (s *Server) handleUpload(log zerolog.Logger, req p2p.UploadRequest) p2p.UploadResponse {
	if req.Filename == "" {
		log.Error().Msg("upload rejected: empty filename")
		return p2p.UploadResponse{Status: p2p.StatusMessageError}
	}

	hash := storage.Sum(req.Data)
	_, chunks := storage.Chunk(req.Data)

	stored, err := s.Store.Put(req.Filename, hash, chunks)
	if err != nil {
		log.Error().Err(err).Str("file", req.Filename).Msg("failed to persist upload")
		return p2p.UploadResponse{Status: p2p.StatusProcessingError}
	}
	if !stored {
		log.Debug().Str("file", req.Filename).Msg("filename already stored, upload ignored")
	} else {
		log.Info().
			Str("file", req.Filename).
			Stringer("hash", hash).
			Int("size", len(req.Data)).
			Int("chunks", len(chunks)).
			Msg("file uploaded")
	}

	f, ok := s.lookupByName(req.Filename)
	if !ok {
		return p2p.UploadResponse{Status: p2p.StatusSuccess}
	}
	fi := fileInfo(f)
	return p2p.UploadResponse{Status: p2p.StatusSuccess, FileInfo: &fi}
}

func (s *Server) lookupByName(name string) (storage.File, bool) {
	h, ok := s.Store.HashOf(name)
	if !ok {
		return storage.File{}, false
	}
	chunks, ok := s.Store.Chunks(h)
	if !ok {
		return storage.File{}, false
	}
	return storage.File{Name: name, Hash: h, Chunks: chunks}, true
}
