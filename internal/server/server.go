package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Ankesh2004/GO-P2PFS/internal/config"
	"github.com/Ankesh2004/GO-P2PFS/internal/storage"
	"github.com/Ankesh2004/GO-P2PFS/pkg/p2p"
)

// Server accepts connections and answers exactly one request on each.
// Connections are served by a fixed pool of Workers goroutines; while all
// of them are busy the accept loop waits and further callers queue in the
// listen backlog.
type Server struct {
	config.Options

	Store  *storage.FileStore
	Client *Client

	logger  zerolog.Logger
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	listener  net.Listener
	conns     chan net.Conn
	acceptWG  sync.WaitGroup
	workerWG  sync.WaitGroup
	closeOnce sync.Once
}

// New creates a server. transport may be nil, in which case peers are reached
// over TCP with the timeouts from opts.
func New(opts config.Options, store *storage.FileStore, transport p2p.Transport, logger zerolog.Logger) *Server {
	opts = opts.Defaults()
	if transport == nil {
		transport = p2p.NewTCPTransport(p2p.TCPTransportOptions{
			DialTimeout:    opts.DialTimeout,
			IOTimeout:      opts.IOTimeout,
			MaxMessageSize: opts.MaxMessageSize,
		})
	}

	var limiter *rate.Limiter
	if opts.AcceptRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.AcceptRate), opts.AcceptBurst)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		Options: opts,
		Store:   store,
		Client:  NewClient(transport),
		logger:  logger.With().Str("node", opts.Self.String()).Logger(),
		limiter: limiter,
		ctx:     ctx,
		cancel:  cancel,
		conns:   make(chan net.Conn),
	}
}

// Start binds the node's own address and begins serving in the background.
func (s *Server) Start() error {
	ln, err := p2p.Listen(s.ctx, s.Self.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Self.Addr(), err)
	}
	s.Serve(ln)
	return nil
}

// Serve starts the worker pool and the accept loop on ln. It does not block.
func (s *Server) Serve(ln net.Listener) {
	s.listener = ln
	for i := 0; i < s.Workers; i++ {
		s.workerWG.Add(1)
		go s.worker()
	}
	s.acceptWG.Add(1)
	go s.acceptLoop()

	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Int("workers", s.Workers).
		Int("peers", len(s.Peers)).
		Msg("node listening")
}

// Addr is the bound listen address, nil before Serve.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops accepting, aborts outbound peer calls and waits for in-flight
// connections to finish.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		if s.listener != nil {
			err = s.listener.Close()
		}
		s.acceptWG.Wait()
		close(s.conns)
		s.workerWG.Wait()
		s.logger.Info().Msg("node stopped")
	})
	return err
}

// -------- Accept loop / worker pool --------

func (s *Server) acceptLoop() {
	defer s.acceptWG.Done()

	var backoff time.Duration
	for {
		if s.limiter != nil {
			if err := s.limiter.Wait(s.ctx); err != nil {
				return
			}
		}

		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.ctx.Err() != nil {
				return
			}
			backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
			s.logger.Error().Err(err).Dur("retry_in", backoff).Msg("accept failed")
			select {
			case <-time.After(backoff):
				continue
			case <-s.ctx.Done():
				return
			}
		}
		backoff = 0

		select {
		case s.conns <- conn:
		case <-s.ctx.Done():
			conn.Close()
			return
		}
	}
}

func (s *Server) worker() {
	defer s.workerWG.Done()
	for conn := range s.conns {
		s.handleConn(conn)
	}
}

// handleConn runs one full request/response cycle and closes the connection.
// Nothing that goes wrong here reaches other connections.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	log := s.logger.With().
		Str("conn", uuid.NewString()).
		Str("remote", conn.RemoteAddr().String()).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("handler panicked")
		}
	}()

	peer := p2p.NewTCPPeer(conn, p2p.Decoder{MaxSize: s.MaxMessageSize}, s.IOTimeout)
	req, err := peer.Receive()
	if err != nil {
		log.Error().Err(err).Msg("failed to read request")
		return
	}
	log = log.With().Stringer("kind", req.Type()).Logger()
	log.Debug().Msg("request received")

	resp, err := s.Handle(s.ctx, log, req)
	if err != nil {
		log.Error().Err(err).Msg("request dropped")
		return
	}
	if err := peer.Send(resp); err != nil {
		log.Error().Err(err).Msg("failed to send response")
		return
	}
	log.Debug().Stringer("kind", resp.Type()).Msg("response sent")
}

// Handle answers one request. Protocol outcomes are carried in the response
// status; an error means there is nothing sensible to answer.
func (s *Server) Handle(ctx context.Context, log zerolog.Logger, req *p2p.Message) (*p2p.Message, error) {
	var resp p2p.Payload

	switch v := req.Payload.(type) {
	case p2p.UploadRequest:
		resp = s.handleUpload(log, v)
	case p2p.DownloadRequest:
		resp = s.handleDownload(log, v)
	case p2p.ChunkRequest:
		resp = s.handleChunk(log, v)
	case p2p.LocalSearchRequest:
		resp = s.handleLocalSearch(log, v)
	case p2p.SearchRequest:
		resp = s.handleSearch(ctx, log, v)
	case p2p.ReplicateRequest:
		resp = s.handleReplicate(ctx, log, v)

	case p2p.UploadResponse, p2p.DownloadResponse, p2p.ChunkResponse,
		p2p.LocalSearchResponse, p2p.SearchResponse, p2p.ReplicateResponse:
		return nil, fmt.Errorf("%s is a response, not a request", req.Type())
	default:
		return nil, fmt.Errorf("unknown message type: %T", req.Payload)
	}

	return &p2p.Message{Payload: resp}, nil
}
