// Package linewire implements the plain-text line transport used by bridge
// clients: a framed connection and the TCP acceptor that owns its lifecycle.
package linewire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// DefaultMaxLineLength matches the receive buffer of the legacy connector.
const DefaultMaxLineLength = 4096

var (
	// ErrIO wraps any transport-level read or write failure.
	ErrIO = errors.New("i/o failure")
	// ErrConnectionClosed is returned when the peer closes the stream, including mid-line.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrLineTooLong is returned when a line exceeds the configured maximum length.
	ErrLineTooLong = errors.New("line too long")
)

// Options controls framing and deadlines for a Conn.
type Options struct {
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	MaxLineLength int
	// Terminator is appended by WriteLine. It may be empty.
	Terminator string
}

// Conn wraps a TCP connection with line framing.
// Reads are owned by a single goroutine; writes are serialized and may come
// from any goroutine.
type Conn struct {
	raw    net.Conn
	reader *bufio.Reader
	opts   Options

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps a raw connection with line framing.
//
// Precondition: raw must be a valid, open network connection.
// Postcondition: Returns a Conn ready for reading and writing.
func NewConn(raw net.Conn, opts Options) *Conn {
	if opts.MaxLineLength <= 0 {
		opts.MaxLineLength = DefaultMaxLineLength
	}
	return &Conn{
		raw:    raw,
		reader: bufio.NewReaderSize(raw, 4096),
		opts:   opts,
	}
}

// ReadLine reads one line terminated by '\n' or NUL. The terminator is
// consumed and not returned; carriage returns are dropped wherever they occur.
//
// Postcondition: Returns the line, or an error wrapping ErrConnectionClosed,
// ErrLineTooLong, or ErrIO.
func (c *Conn) ReadLine() (string, error) {
	if c.opts.ReadTimeout > 0 {
		_ = c.raw.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	}
	line, err := readLine(c.reader, c.opts.MaxLineLength)
	return string(line), err
}

// readLine scans r one byte at a time until a terminator.
func readLine(r io.ByteReader, maxLen int) ([]byte, error) {
	var line bytes.Buffer
	for {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return line.Bytes(), ErrConnectionClosed
			}
			return line.Bytes(), fmt.Errorf("%w: %w", ErrIO, err)
		}

		switch b {
		case '\n', 0:
			return line.Bytes(), nil
		case '\r':
			continue
		}

		if line.Len() >= maxLen {
			return line.Bytes(), ErrLineTooLong
		}
		line.WriteByte(b)
	}
}

// WriteLine sends text followed by the configured terminator.
//
// Postcondition: text + terminator is written to the connection, or an error wrapping ErrIO.
func (c *Conn) WriteLine(text string) error {
	return c.Write([]byte(text + c.opts.Terminator))
}

// Write sends raw bytes to the client.
//
// Postcondition: The data is written to the connection, or an error wrapping ErrIO.
func (c *Conn) Write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opts.WriteTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}
	if _, err := c.raw.Write(data); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}

// Close closes the underlying TCP connection. Repeated calls return the first result.
//
// Postcondition: The connection is closed and blocked reads return.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.raw.Close()
	})
	return c.closeErr
}

// RemoteAddr returns the remote network address of the client.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}
