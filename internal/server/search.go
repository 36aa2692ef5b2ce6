package server

import (
	"context"
	"fmt"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/Ankesh2004/GO-P2PFS/pkg/p2p"
)

// compileWhole compiles pattern so that it only matches entire filenames.
func compileWhole(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}
	return re, nil
}

func (s *Server) localMatches(re *regexp.Regexp) []p2p.FileInfo {
	files := s.Store.Match(re)
	infos := make([]p2p.FileInfo, len(files))
	for i, f := range files {
		infos[i] = fileInfo(f)
	}
	return infos
}

// handleLocalSearch searches only this node's store. No matches is still a success.
func (s *Server) handleLocalSearch(log zerolog.Logger, req p2p.LocalSearchRequest) p2p.LocalSearchResponse {
	re, err := compileWhole(req.Regex)
	if err != nil {
		log.Error().Err(err).Msg("local search rejected")
		return p2p.LocalSearchResponse{Status: p2p.StatusMessageError}
	}
	return p2p.LocalSearchResponse{Status: p2p.StatusSuccess, FileInfo: s.localMatches(re)}
}

// handleSearch asks every peer in order, then appends this node's own matches.
// A peer that cannot be reached fails the whole search.
func (s *Server) handleSearch(ctx context.Context, log zerolog.Logger, req p2p.SearchRequest) p2p.SearchResponse {
	re, err := compileWhole(req.Regex)
	if err != nil {
		log.Error().Err(err).Msg("search rejected")
		return p2p.SearchResponse{Status: p2p.StatusMessageError}
	}

	results := make([]p2p.NodeSearchResult, 0, len(s.Peers)+1)
	for _, peer := range s.Peers {
		resp, err := s.Client.LocalSearch(ctx, peer, req.Regex)
		if err != nil {
			log.Error().Err(err).Stringer("peer", peer).Msg("search aborted: peer failed")
			return p2p.SearchResponse{Status: p2p.StatusProcessingError}
		}
		if resp.Status != p2p.StatusSuccess {
			log.Debug().Stringer("peer", peer).Stringer("status", resp.Status).Msg("peer skipped")
			continue
		}
		results = append(results, p2p.NodeSearchResult{
			Node:   peer,
			Status: p2p.StatusSuccess,
			Files:  resp.FileInfo,
		})
	}

	results = append(results, p2p.NodeSearchResult{
		Node:   s.Self,
		Status: p2p.StatusSuccess,
		Files:  s.localMatches(re),
	})
	return p2p.SearchResponse{Status: p2p.StatusSuccess, Results: results}
}
