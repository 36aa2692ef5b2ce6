package p2p

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Transport carries one request and its response to a remote node.
type Transport interface {
	Call(ctx context.Context, addr string, req *Message) (*Message, error)
}

// Listen opens a TCP listener for the node.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	lc := net.ListenConfig{Control: setSocketReuseAddr}
	return lc.Listen(ctx, "tcp", addr)
}

// ================== TCP Peer ==========================

// TCPPeer is one side of a single request/response exchange.
type TCPPeer struct {
	net.Conn
	decoder   Decoder
	ioTimeout time.Duration // each Send and Receive must finish within this, 0 = no deadline
}

func NewTCPPeer(conn net.Conn, decoder Decoder, ioTimeout time.Duration) *TCPPeer {
	return &TCPPeer{
		Conn:      conn,
		decoder:   decoder,
		ioTimeout: ioTimeout,
	}
}

// Send writes msg as one frame.
func (p *TCPPeer) Send(msg *Message) error {
	if err := p.extendDeadline(); err != nil {
		return err
	}
	return WriteMessage(p.Conn, msg)
}

// Receive blocks until one full frame arrives and decodes it.
func (p *TCPPeer) Receive() (*Message, error) {
	if err := p.extendDeadline(); err != nil {
		return nil, err
	}
	return p.decoder.ReadMessage(p.Conn)
}

func (p *TCPPeer) extendDeadline() error {
	if p.ioTimeout <= 0 {
		return nil
	}
	return p.Conn.SetDeadline(time.Now().Add(p.ioTimeout))
}

// ============ TCP Transport options ============

type TCPTransportOptions struct {
	DialTimeout    time.Duration
	IOTimeout      time.Duration
	MaxMessageSize uint32
}

// ============= TCP Transport =================

// TCPTransport dials a fresh connection per call: the protocol carries exactly
// one request and one response per connection.
type TCPTransport struct {
	TCPTransportOptions
	dialer net.Dialer
}

func NewTCPTransport(options TCPTransportOptions) *TCPTransport {
	return &TCPTransport{
		TCPTransportOptions: options,
		dialer:              net.Dialer{Timeout: options.DialTimeout},
	}
}

// Call dials addr, sends req and waits for the response.
func (t *TCPTransport) Call(ctx context.Context, addr string, req *Message) (*Message, error) {
	conn, err := t.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	// a cancelled context unblocks any pending read or write
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	peer := NewTCPPeer(conn, Decoder{MaxSize: t.MaxMessageSize}, t.IOTimeout)
	if err := peer.Send(req); err != nil {
		return nil, fmt.Errorf("send %s to %s: %w", req.Type(), addr, err)
	}
	resp, err := peer.Receive()
	if err != nil {
		return nil, fmt.Errorf("receive response to %s from %s: %w", req.Type(), addr, err)
	}
	return resp, nil
}
