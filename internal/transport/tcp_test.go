package transport

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTCPConnReadLine verifies LF and CRLF framing and delivery of an
// unterminated final line before io.EOF.
func TestTCPConnReadLine(t *testing.T) {
	client, server := net.Pipe()
	conn := NewTCP(server)

	go func() {
		_, _ = client.Write([]byte("alice\r\nhello world\n\nlast"))
		_ = client.Close()
	}()

	for _, want := range []string{"alice", "hello world", "", "last"} {
		line, err := conn.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, want, line)
	}

	_, err := conn.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

// TestTCPConnWriteLine verifies that each write is newline terminated.
func TestTCPConnWriteLine(t *testing.T) {
	client, server := net.Pipe()
	conn := NewTCP(server)
	defer conn.Close()

	done := make(chan error, 1)
	go func() {
		done <- conn.WriteLine("bob: hi")
	}()

	reader := bufio.NewReader(client)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "bob: hi\n", line)
	assert.NoError(t, <-done)
}

// TestTCPConnLineTooLong verifies that an oversized line is a read error
// and not mistaken for a clean EOF.
func TestTCPConnLineTooLong(t *testing.T) {
	client, server := net.Pipe()
	conn := NewTCP(server, WithMaxLineBytes(8))
	defer conn.Close()

	go func() {
		_, _ = client.Write([]byte(strings.Repeat("x", 32) + "\n"))
	}()

	_, err := conn.ReadLine()
	require.Error(t, err)
	assert.False(t, errors.Is(err, io.EOF))
	assert.ErrorIs(t, err, bufio.ErrTooLong)
}

// TestTCPConnClose verifies idempotent close and write-after-close behavior.
func TestTCPConnClose(t *testing.T) {
	_, server := net.Pipe()
	conn := NewTCP(server)

	require.NoError(t, conn.Close())
	assert.ErrorIs(t, conn.Close(), ErrClosed)
	assert.ErrorIs(t, conn.WriteLine("late"), ErrClosed)

	_, err := conn.ReadLine()
	assert.Error(t, err)
	assert.True(t, IsExpectedCloseError(err))
}

// TestIsExpectedCloseError covers the error strings produced by closed sockets.
func TestIsExpectedCloseError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"eof", io.EOF, true},
		{"closed", ErrClosed, true},
		{"net closed", net.ErrClosed, true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"other", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsExpectedCloseError(tt.err))
		})
	}
}
