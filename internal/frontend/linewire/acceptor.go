package linewire

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/chatbridge/internal/config"
)

// ErrAddressResolution is returned when an accepted connection has no usable remote address.
var ErrAddressResolution = errors.New("remote address resolution failed")

// SessionHandler processes one accepted connection.
// HandleSession runs in the connection's own goroutine and owns the Conn until it returns.
type SessionHandler interface {
	HandleSession(ctx context.Context, conn *Conn) error
}

// Acceptor listens for bridge connections on a TCP port and dispatches
// each connection to a SessionHandler.
type Acceptor struct {
	cfg     config.BridgeConfig
	handler SessionHandler
	logger  *zap.Logger

	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}
	mu       sync.Mutex
	running  bool
	conns    map[*Conn]struct{}
}

// NewAcceptor creates an acceptor with the given configuration.
//
// Precondition: cfg must have a valid port; handler and logger must be non-nil.
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(cfg config.BridgeConfig, handler SessionHandler, logger *zap.Logger) *Acceptor {
	return &Acceptor{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		quit:    make(chan struct{}),
		conns:   make(map[*Conn]struct{}),
	}
}

// ListenAndServe starts the TCP listener and accepts connections until Stop is called.
// This method blocks until the acceptor is stopped.
//
// Precondition: The acceptor must not already be running.
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) ListenAndServe() error {
	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	a.mu.Lock()
	a.listener = listener
	a.running = true
	a.mu.Unlock()

	a.logger.Info("chat bridge listening",
		zap.String("addr", listener.Addr().String()),
	)

	for {
		raw, err := listener.Accept()
		if err != nil {
			select {
			case <-a.quit:
				return nil
			default:
				a.logger.Error("accepting connection", zap.Error(err))
				continue
			}
		}

		a.wg.Add(1)
		go a.handleConn(raw)
	}
}

// ResolveRemoteAddr returns the "host:port" of the peer, or ErrAddressResolution.
func ResolveRemoteAddr(raw net.Conn) (string, error) {
	addr := raw.RemoteAddr()
	if addr == nil {
		return "", ErrAddressResolution
	}
	if _, _, err := net.SplitHostPort(addr.String()); err != nil {
		return "", fmt.Errorf("%w: %w", ErrAddressResolution, err)
	}
	return addr.String(), nil
}

// handleConn processes a single TCP connection.
func (a *Acceptor) handleConn(raw net.Conn) {
	defer a.wg.Done()
	start := time.Now()

	addr, err := ResolveRemoteAddr(raw)
	if err != nil {
		a.logger.Error("rejecting connection", zap.Error(err))
		_ = raw.Close()
		return
	}

	a.logger.Debug("incoming connection", zap.String("remote_addr", addr))

	conn := NewConn(raw, Options{
		ReadTimeout:   a.cfg.ReadTimeout,
		WriteTimeout:  a.cfg.WriteTimeout,
		MaxLineLength: a.cfg.MaxLineLength,
		Terminator:    a.cfg.Terminator(),
	})
	if !a.track(conn) {
		_ = conn.Close()
		return
	}
	defer a.untrack(conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-a.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := a.handler.HandleSession(ctx, conn); err != nil {
		a.logger.Debug("session ended",
			zap.String("remote_addr", addr),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
	} else {
		a.logger.Debug("session ended cleanly",
			zap.String("remote_addr", addr),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// track records conn so Stop can force it closed. It reports false once stopping has begun.
func (a *Acceptor) track(conn *Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return false
	}
	a.conns[conn] = struct{}{}
	return true
}

func (a *Acceptor) untrack(conn *Conn) {
	a.mu.Lock()
	delete(a.conns, conn)
	a.mu.Unlock()
	_ = conn.Close()
}

// Stop closes the listener, force-closes every live connection, and waits
// for all session goroutines to finish.
//
// Postcondition: All connections are closed and goroutines have exited.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false

	close(a.quit)
	if a.listener != nil {
		a.listener.Close()
	}
	for conn := range a.conns {
		_ = conn.Close()
	}
	a.mu.Unlock()

	a.wg.Wait()
	a.logger.Info("chat bridge stopped")
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the acceptor is currently accepting connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}
