package linewire

import (
	"bufio"
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/chatbridge/internal/config"
)

// echoHandler is a test SessionHandler that echoes lines back to the client.
type echoHandler struct {
	sessionCount atomic.Int32
}

func (h *echoHandler) HandleSession(_ context.Context, conn *Conn) error {
	h.sessionCount.Add(1)
	for {
		line, err := conn.ReadLine()
		if err != nil {
			return err
		}
		if line == "quit" {
			_ = conn.WriteLine("bye")
			return nil
		}
		_ = conn.WriteLine("echo: " + line)
	}
}

func testConfig() config.BridgeConfig {
	return config.BridgeConfig{
		Host:           "127.0.0.1",
		Port:           0, // random port
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
		MaxLineLength:  DefaultMaxLineLength,
		LineTerminator: config.TerminatorLF,
	}
}

func startAcceptor(t *testing.T, handler SessionHandler) *Acceptor {
	t.Helper()
	acc := NewAcceptor(testConfig(), handler, zaptest.NewLogger(t))

	errCh := make(chan error, 1)
	go func() {
		errCh <- acc.ListenAndServe()
	}()

	deadline := time.After(2 * time.Second)
	for {
		if acc.IsRunning() && acc.Addr() != "" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("acceptor did not start in time")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Cleanup(func() {
		acc.Stop()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("acceptor did not stop in time")
		}
	})
	return acc
}

func TestAcceptorEchoesLines(t *testing.T) {
	handler := &echoHandler{}
	acc := startAcceptor(t, handler)

	conn, err := net.DialTimeout("tcp", acc.Addr(), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	reader := bufio.NewReader(conn)

	_, err = conn.Write([]byte("hello\r\n"))
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "echo: hello\n", line)

	_, _ = conn.Write([]byte("quit\x00"))
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "bye\n", line)

	assert.Equal(t, int32(1), handler.sessionCount.Load())
}

func TestAcceptorMultipleClients(t *testing.T) {
	handler := &echoHandler{}
	acc := startAcceptor(t, handler)

	const numClients = 3
	for i := 0; i < numClients; i++ {
		conn, err := net.DialTimeout("tcp", acc.Addr(), 2*time.Second)
		require.NoError(t, err)
		_, _ = conn.Write([]byte("quit\n"))
		buf := make([]byte, 16)
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _ = conn.Read(buf)
		conn.Close()
	}

	require.Eventually(t, func() bool {
		return handler.sessionCount.Load() == numClients
	}, 2*time.Second, 10*time.Millisecond)
}

// blockingHandler parks on ReadLine until the connection is closed under it.
type blockingHandler struct {
	started chan struct{}
	ended   chan error
}

func (h *blockingHandler) HandleSession(_ context.Context, conn *Conn) error {
	close(h.started)
	_, err := conn.ReadLine()
	h.ended <- err
	return err
}

func TestAcceptorStopClosesLiveSessions(t *testing.T) {
	handler := &blockingHandler{started: make(chan struct{}), ended: make(chan error, 1)}
	acc := NewAcceptor(testConfig(), handler, zaptest.NewLogger(t))
	go func() { _ = acc.ListenAndServe() }()
	require.Eventually(t, func() bool { return acc.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	conn, err := net.DialTimeout("tcp", acc.Addr(), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-handler.started:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not start")
	}

	acc.Stop()
	select {
	case err := <-handler.ended:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session was not closed by Stop")
	}
	assert.False(t, acc.IsRunning())
}

type addrlessConn struct {
	net.Conn
}

func (addrlessConn) RemoteAddr() net.Addr { return nil }

func TestResolveRemoteAddr(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	_, err := ResolveRemoteAddr(addrlessConn{Conn: server})
	assert.ErrorIs(t, err, ErrAddressResolution)

	// net.Pipe addresses carry no port.
	_, err = ResolveRemoteAddr(server)
	assert.ErrorIs(t, err, ErrAddressResolution)
}
