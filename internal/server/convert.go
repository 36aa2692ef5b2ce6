package server

import (
	"github.com/Ankesh2004/GO-P2PFS/internal/storage"
	"github.com/Ankesh2004/GO-P2PFS/pkg/p2p"
)

func fileInfo(f storage.File) p2p.FileInfo {
	return p2p.FileInfo{
		Hash:     f.Hash.Bytes(),
		Size:     f.Size(),
		Filename: f.Name,
		Chunks:   chunkInfos(storage.MetadataFromBuffers(f.Chunks)),
	}
}

func chunkInfos(metas []storage.ChunkMeta) []p2p.ChunkInfo {
	out := make([]p2p.ChunkInfo, len(metas))
	for i, m := range metas {
		out[i] = p2p.ChunkInfo{Index: m.Index, Size: m.Size, Hash: m.Hash.Bytes()}
	}
	return out
}
