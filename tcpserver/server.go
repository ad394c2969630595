package tcpserver

import (
	"context"
	"net"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/stratumrpc/stratum"
)

// Server accepts inbound TCP connections, wraps each in a stratum.Transport
// driven by a stratum.Driver, and tracks them in an idle-evicting Registry.
// Grounded on the teacher's Listener/Server/run accept loop (serve.go),
// generalized from the teacher's Binder-per-connection hook to a factory
// returning a fresh post-connect ConnectionState per accepted socket.
type Server struct {
	listener    net.Listener
	registry    *Registry
	postConnect func() *stratum.ConnectionState
	logger      *zap.Logger

	wg sync.WaitGroup
}

// ServerOption configures a Server at construction time.
type ServerOption func(*Server)

// WithLogger sets the server's logger (default zap.NewNop()).
func WithLogger(logger *zap.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRegistry supplies a pre-configured Registry (e.g. a non-default idle
// timeout) instead of the 5-minute default.
func WithRegistry(r *Registry) ServerOption {
	return func(s *Server) { s.registry = r }
}

// NewServer constructs a Server. postConnect builds a fresh ConnectionState
// for each newly-accepted connection — typically the dialect's root state.
func NewServer(listener net.Listener, postConnect func() *stratum.ConnectionState, opts ...ServerOption) *Server {
	s := &Server{
		listener:    listener,
		postConnect: postConnect,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = NewRegistry(0, s.logger)
	}
	return s
}

// Serve runs the accept loop until ctx is cancelled or the listener errors.
// It blocks; callers typically run it in its own goroutine. Each accepted
// connection's reader/writer workers run in their own goroutines; once the
// accept loop stops, Serve waits for every connection's reader worker to
// exit before returning. Writer workers are not waited on.
func (s *Server) Serve(ctx context.Context) error {
	s.registry.Start()
	defer s.registry.Stop()

	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || isClosingNetError(err) {
				break
			}
			s.logger.Error("accept failed", zap.Error(err))
			return err
		}
		s.wg.Add(1)
		go s.handle(conn)
	}

	s.wg.Wait()
	return nil
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()

	transport := stratum.NewTransport(stratum.WithLogger(s.logger))
	id := s.registry.Add(transport)
	defer s.registry.Remove(id)

	channel := &touchingChannel{Conn: conn, onRead: func() { s.registry.Touch(id) }}
	if err := transport.Bind(channel, s.postConnect()); err != nil {
		s.logger.Error("bind failed", zap.Error(err))
		_ = conn.Close()
		return
	}

	driver := stratum.NewDriver(transport, channel, s.logger)
	driver.Run()
}

// touchingChannel wraps a net.Conn, invoking onRead after every successful
// Read so the registry's idle window resets on inbound traffic, per
// spec.md §9's "resets on inbound message, regardless of mechanism".
type touchingChannel struct {
	net.Conn
	onRead func()
}

func (c *touchingChannel) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if n > 0 {
		c.onRead()
	}
	return n, err
}

// isClosingNetError mirrors the driver's isClosingError heuristic (spec.md
// §4.5), applied to the listener's own Accept error instead of a
// connection's read error.
func isClosingNetError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "use of closed network connection")
}
