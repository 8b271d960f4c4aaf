package testutil

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

// LineClient is a bridge protocol client for integration tests. Outbound
// lines end in "\n"; inbound lines are split on "\n" or NUL.
type LineClient struct {
	conn   net.Conn
	reader *bufio.Reader
	t      *testing.T
}

// NewLineClient dials addr and returns a connected client.
//
// Precondition: addr must be a valid "host:port" string with a listening server.
// Postcondition: Returns a connected LineClient or fails the test.
func NewLineClient(t *testing.T, addr string) *LineClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &LineClient{conn: conn, reader: bufio.NewReader(conn), t: t}
}

// Send writes text followed by "\n".
func (c *LineClient) Send(text string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.WriteString(c.conn, text+"\n"); err != nil {
		c.t.Fatalf("sending %q: %v", text, err)
	}
}

// SendRaw writes data unchanged.
func (c *LineClient) SendRaw(data string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.WriteString(c.conn, data); err != nil {
		c.t.Fatalf("sending %q: %v", data, err)
	}
}

// Close closes the client side of the connection.
func (c *LineClient) Close() {
	_ = c.conn.Close()
}

// ReadLine reads one inbound line, failing the test on timeout or error.
func (c *LineClient) ReadLine(timeout time.Duration) string {
	c.t.Helper()
	line, err := c.readLine(timeout)
	if err != nil {
		c.t.Fatalf("reading line: got %q, error: %v", line, err)
	}
	return line
}

// ExpectClosed asserts the server closes the connection without sending
// anything further.
func (c *LineClient) ExpectClosed(timeout time.Duration) {
	c.t.Helper()
	line, err := c.readLine(timeout)
	if err == nil {
		c.t.Fatalf("expected connection close, got line %q", line)
	}
	if !errors.Is(err, io.EOF) && !isConnReset(err) {
		c.t.Fatalf("expected connection close, got error: %v", err)
	}
}

// ExpectSilence asserts that no line arrives within d.
func (c *LineClient) ExpectSilence(d time.Duration) {
	c.t.Helper()
	line, err := c.readLine(d)
	if err == nil {
		c.t.Fatalf("expected no output, got line %q", line)
	}
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		c.t.Fatalf("expected read timeout, got: %v", err)
	}
}

func (c *LineClient) readLine(timeout time.Duration) (string, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	var buf strings.Builder
	for {
		b, err := c.reader.ReadByte()
		if err != nil {
			return buf.String(), err
		}
		if b == '\n' || b == 0 {
			return buf.String(), nil
		}
		buf.WriteByte(b)
	}
}

func isConnReset(err error) bool {
	return strings.Contains(err.Error(), "connection reset")
}
