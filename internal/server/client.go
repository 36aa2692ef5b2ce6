package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ankesh2004/GO-P2PFS/pkg/p2p"
)

// ErrUnexpectedResponse is returned when a node answers with the wrong message kind.
var ErrUnexpectedResponse = errors.New("unexpected response")

// Client issues typed requests to other nodes. Each call is one connection.
type Client struct {
	transport p2p.Transport
}

func NewClient(transport p2p.Transport) *Client {
	return &Client{transport: transport}
}

func (c *Client) Upload(ctx context.Context, node p2p.Node, filename string, data []byte) (p2p.UploadResponse, error) {
	return call[p2p.UploadResponse](ctx, c, node, p2p.UploadRequest{Filename: filename, Data: data})
}

func (c *Client) Download(ctx context.Context, node p2p.Node, fileHash []byte) (p2p.DownloadResponse, error) {
	return call[p2p.DownloadResponse](ctx, c, node, p2p.DownloadRequest{FileHash: fileHash})
}

func (c *Client) Chunk(ctx context.Context, node p2p.Node, fileHash []byte, index int) (p2p.ChunkResponse, error) {
	return call[p2p.ChunkResponse](ctx, c, node, p2p.ChunkRequest{FileHash: fileHash, ChunkIndex: index})
}

func (c *Client) LocalSearch(ctx context.Context, node p2p.Node, regex string) (p2p.LocalSearchResponse, error) {
	return call[p2p.LocalSearchResponse](ctx, c, node, p2p.LocalSearchRequest{Regex: regex})
}

func (c *Client) Search(ctx context.Context, node p2p.Node, regex string) (p2p.SearchResponse, error) {
	return call[p2p.SearchResponse](ctx, c, node, p2p.SearchRequest{Regex: regex})
}

func (c *Client) Replicate(ctx context.Context, node p2p.Node, fi p2p.FileInfo) (p2p.ReplicateResponse, error) {
	return call[p2p.ReplicateResponse](ctx, c, node, p2p.ReplicateRequest{FileInfo: fi})
}

func call[T p2p.Payload](ctx context.Context, c *Client, node p2p.Node, req p2p.Payload) (T, error) {
	var zero T
	resp, err := c.transport.Call(ctx, node.Addr(), &p2p.Message{Payload: req})
	if err != nil {
		return zero, err
	}
	out, ok := resp.Payload.(T)
	if !ok {
		return zero, fmt.Errorf("%w from %s: got %s, want %s", ErrUnexpectedResponse, node, resp.Type(), zero.Type())
	}
	return out, nil
}
