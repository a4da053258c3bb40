// Package client implements the interactive console side of the line protocol.
package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/Tyrowin/linechat/internal/transport"
)

// exitGrace bounds the wait for the server to hang up after /exit.
const exitGrace = 2 * time.Second

// Client is a connected chat client. Server lines are copied to its output.
type Client struct {
	conn *transport.TCPConn
	out  io.Writer
}

// Dial connects to a chat server at addr.
func Dial(ctx context.Context, addr string, out io.Writer) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	return New(conn, out), nil
}

// New wraps an established connection.
func New(conn net.Conn, out io.Writer) *Client {
	return &Client{conn: transport.NewTCP(conn), out: out}
}

// Login sends the username line. A blank name makes the server assign an
// anonymous one.
func (c *Client) Login(username string) error {
	return c.Send(username)
}

// Send writes one line to the server.
func (c *Client) Send(line string) error {
	if err := c.conn.WriteLine(line); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// Listen prints server lines until the connection ends. A hang-up from
// either side is not an error.
func (c *Client) Listen() error {
	for {
		line, err := c.conn.ReadLine()
		if err != nil {
			if transport.IsExpectedCloseError(err) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if _, err := fmt.Fprintln(c.out, line); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Run sends each line of in to the server while printing server lines. It
// returns when the server closes the connection, when the user types /exit,
// when in is exhausted, or when ctx is cancelled. The connection is closed
// on return.
func (c *Client) Run(ctx context.Context, in io.Reader) error {
	defer func() { _ = c.Close() }()

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- c.Listen()
	}()

	done := make(chan struct{})
	defer close(done)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case err := <-listenErr:
			return err
		case <-ctx.Done():
			return c.hangUp(listenErr)
		case line, ok := <-lines:
			if !ok {
				return c.hangUp(listenErr)
			}
			if strings.EqualFold(strings.TrimSpace(line), "/exit") {
				_, _ = fmt.Fprintln(c.out, "Disconnecting...")
				if err := c.Send(line); err != nil {
					return err
				}
				return c.awaitHangUp(listenErr)
			}
			if err := c.Send(line); err != nil {
				return err
			}
		}
	}
}

func (c *Client) hangUp(listenErr <-chan error) error {
	_ = c.Close()
	return <-listenErr
}

// awaitHangUp waits for the server to close the connection after /exit.
func (c *Client) awaitHangUp(listenErr <-chan error) error {
	select {
	case err := <-listenErr:
		return err
	case <-time.After(exitGrace):
		return c.hangUp(listenErr)
	}
}
