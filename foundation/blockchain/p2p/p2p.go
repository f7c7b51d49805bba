// Package p2p carries wire messages between nodes over TCP. Every message
// travels on its own connection: the sender dials, writes the frame and
// closes.
package p2p

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/wire"
	"github.com/btcsuite/go-socks/socks"
)

// EventHandler defines a function that is called when events occur in the
// processing of connections.
type EventHandler func(v string, args ...any)

// Handler represents the behavior required to process a received message.
type Handler interface {
	Handle(ctx context.Context, msg wire.Message) error
}

// =============================================================================

// Server accepts connections from other nodes and hands every decoded
// message to the handler.
type Server struct {
	listener  net.Listener
	handler   Handler
	evHandler EventHandler
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// Listen opens the TCP listener on the host. Serve must be called to start
// accepting connections.
func Listen(host string, handler Handler, evHandler EventHandler) (*Server, error) {
	if evHandler == nil {
		evHandler = func(string, ...any) {}
	}

	listener, err := net.Listen("tcp", host)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	srv := Server{
		listener:  listener,
		handler:   handler,
		evHandler: evHandler,
		ctx:       ctx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
	}

	return &srv, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until the listener is closed. Each connection
// is served by its own goroutine.
func (s *Server) Serve() error {
	s.evHandler("p2p: Serve: listening: %s", s.listener.Addr())

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		s.track(conn, true)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			defer conn.Close()

			s.serveConn(conn)
		}()
	}
}

// Shutdown closes the listener and every open connection, then waits for
// the connection goroutines to finish.
func (s *Server) Shutdown() error {
	s.evHandler("p2p: shutdown: started")
	defer s.evHandler("p2p: shutdown: completed")

	s.cancel()
	err := s.listener.Close()

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	return err
}

// serveConn decodes messages until the peer closes the connection. A
// malformed frame ends the connection. Handler errors are reported and the
// connection keeps being read.
func (s *Server) serveConn(conn net.Conn) {
	remote := conn.RemoteAddr().String()

	for {
		msg, err := wire.Decode(conn)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
			case wire.IsDeserializationError(err):
				s.evHandler("p2p: serveConn: %s: ERROR: closing connection: %s", remote, err)
			case s.ctx.Err() != nil:
			default:
				s.evHandler("p2p: serveConn: %s: ERROR: read: %s", remote, err)
			}
			return
		}

		if err := s.handler.Handle(s.ctx, msg); err != nil {
			s.evHandler("p2p: serveConn: %s: %s: ERROR: %s", remote, msg.Command(), err)
		}
	}
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if add {
		s.conns[conn] = struct{}{}
		return
	}
	delete(s.conns, conn)
}

// =============================================================================

// Dialer delivers messages by opening a connection to the peer, optionally
// through a SOCKS5 proxy.
type Dialer struct {
	Timeout time.Duration
	Proxy   *socks.Proxy
}

// NewDialer constructs a dialer. An empty proxy address dials directly.
func NewDialer(timeout time.Duration, proxyAddr string, proxyUser string, proxyPass string) *Dialer {
	d := Dialer{
		Timeout: timeout,
	}

	if proxyAddr != "" {
		d.Proxy = &socks.Proxy{
			Addr:     proxyAddr,
			Username: proxyUser,
			Password: proxyPass,
		}
	}

	return &d
}

// Send implements the state.Transport interface.
func (d *Dialer) Send(ctx context.Context, host string, msg wire.Message) error {
	conn, err := d.dial(ctx, host)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	} else if d.Timeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(d.Timeout))
	}

	return wire.Encode(conn, msg)
}

func (d *Dialer) dial(ctx context.Context, host string) (net.Conn, error) {
	timeout := d.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); timeout == 0 || until < timeout {
			timeout = until
		}
	}

	if d.Proxy != nil {
		return d.Proxy.DialTimeout("tcp", host, timeout)
	}

	nd := net.Dialer{Timeout: timeout}
	return nd.DialContext(ctx, "tcp", host)
}
