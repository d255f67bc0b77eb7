// Package client implements the reference sqmean client.
//
// A Client wraps one TCP connection and performs request/response
// exchanges. A Manager runs the client loop: connect, send a random value
// in [0, 1023], read the mean, pause, repeat. Every I/O failure consumes one
// attempt from a budget shared by the whole Manager; when the budget reaches
// zero the loop stops.
package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/vango-dev/sqmean/pkg/protocol"
)

// Client is one connection to a sqmean server. It is not safe for
// concurrent exchanges.
type Client struct {
	nc   net.Conn
	rbuf [protocol.ResponseSize]byte
}

// Dial connects to host:port.
func Dial(ctx context.Context, host string, port int) (*Client, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("client: dial: %w", err)
	}
	return &Client{nc: nc}, nil
}

// NewClient wraps an existing connection.
func NewClient(nc net.Conn) *Client {
	return &Client{nc: nc}
}

// Exchange sends v and returns the mean the server answers with.
func (c *Client) Exchange(v uint32) (uint64, error) {
	if _, err := c.nc.Write(protocol.EncodeRequest(v)); err != nil {
		return 0, fmt.Errorf("client: send: %w", err)
	}
	if _, err := io.ReadFull(c.nc, c.rbuf[:]); err != nil {
		return 0, fmt.Errorf("client: receive: %w", err)
	}
	mean, err := protocol.DecodeResponse(c.rbuf[:])
	if err != nil {
		return 0, fmt.Errorf("client: decode: %w", err)
	}
	return mean, nil
}

// SetDeadline sets the read and write deadline of the connection.
func (c *Client) SetDeadline(t time.Time) error {
	return c.nc.SetDeadline(t)
}

// LocalAddr returns the local address of the connection.
func (c *Client) LocalAddr() string {
	return c.nc.LocalAddr().String()
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.nc.Close()
}
