// Package session owns the lifecycle of one upstream AMI connection:
// connect, authenticate, then stream events onto the bus until the
// connection dies.
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/tinytelemetry/amiharvest/internal/amiproto"
	"github.com/tinytelemetry/amiharvest/internal/model"
)

// Client performs a single connect → authenticate → stream pass against one
// endpoint. Qualifying frames (at least one header, including Event) are
// forwarded; everything else is discarded.
type Client struct {
	endpoint model.ServerEndpoint
	out      chan<- model.RoutedEvent
	tracker  *Tracker
}

// Run drives the session until the stream errors or ctx is cancelled.
// The returned error describes why the session ended; a cancelled ctx
// returns ctx.Err().
func (c *Client) Run(ctx context.Context) error {
	c.tracker.setState(StateConnecting)
	c.tracker.attempts.Add(1)

	addr := net.JoinHostPort(c.endpoint.Host, strconv.Itoa(c.endpoint.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	defer conn.Close()

	// Closing the connection is the only way to unblock a pending read.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c.tracker.setState(StateAuthenticating)
	dec := amiproto.NewDecoder(conn)

	banner, err := dec.ReadFrame(true)
	if err != nil {
		return fmt.Errorf("read greeting: %w", err)
	}
	if banner.Rest != amiproto.Greeting {
		return fmt.Errorf("unexpected greeting %q", strings.TrimRight(banner.Rest, "\r\n"))
	}

	if err := amiproto.WriteAction(conn, "Login",
		amiproto.Field{Name: "Username", Value: c.endpoint.Username},
		amiproto.Field{Name: "Secret", Value: c.endpoint.Password},
	); err != nil {
		return fmt.Errorf("send login: %w", err)
	}

	reply, err := dec.ReadFrame(false)
	if err != nil {
		return fmt.Errorf("read login reply: %w", err)
	}
	resp, ok := reply.Headers["Response"]
	if !ok {
		return errors.New("login reply has no Response header")
	}
	if resp != "Success" {
		return fmt.Errorf("login refused: Response=%q", resp)
	}

	c.tracker.setState(StateStreaming)
	for {
		msg, rerr := dec.ReadFrame(false)

		// A frame cut short by a read error is still delivered if it
		// qualifies; the error is handled after.
		if len(msg.Headers) > 0 {
			if _, isEvent := msg.Event(); isEvent {
				ev := model.RoutedEvent{
					Source:   c.endpoint.Name,
					Message:  msg,
					Received: time.Now().UTC(),
				}
				select {
				case c.out <- ev:
					c.tracker.forwarded.Add(1)
				case <-ctx.Done():
					return ctx.Err()
				}
			} else {
				c.tracker.dropped.Add(1)
			}
		}

		if rerr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("stream read: %w", rerr)
		}
	}
}
