package rcon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

var (
	// ErrAuth means the server rejected the password. Retrying with the
	// same credentials will not help.
	ErrAuth = errors.New("rcon: authentication rejected")

	// ErrNotConnected means the session is closed or was never opened.
	ErrNotConnected = errors.New("rcon: not connected")
)

// DefaultTimeout bounds dial/read/write when Options.Timeout is zero.
const DefaultTimeout = 5 * time.Second

type Options struct {
	Host     string
	Port     uint16
	Password string
	Timeout  time.Duration
}

func (o Options) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return DefaultTimeout
}

func (o Options) addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(int(o.Port)))
}

// Conn is one authenticated console session.
type Conn struct {
	mu     sync.Mutex
	opts   Options
	tc     net.Conn
	nextID int32
}

// Dial opens the TCP transport and authenticates. A rejected password
// yields ErrAuth; transport failures pass through (wrapped) so callers can
// classify them as retryable.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	d := net.Dialer{Timeout: opts.timeout()}
	tc, err := d.DialContext(ctx, "tcp", opts.addr())
	if err != nil {
		return nil, fmt.Errorf("rcon: dial %s: %w", opts.addr(), err)
	}

	c := &Conn{opts: opts, tc: tc, nextID: 1}
	if err := c.auth(ctx); err != nil {
		_ = tc.Close()
		return nil, err
	}
	return c, nil
}

func (c *Conn) auth(ctx context.Context) error {
	if err := c.setDeadline(ctx); err != nil {
		return err
	}
	id := c.nextID
	c.nextID++
	if err := writePacket(c.tc, id, typeAuth, c.opts.Password); err != nil {
		return fmt.Errorf("rcon: auth write: %w", err)
	}

	// Some servers precede the auth response with an empty response-value
	// frame; skip those until the auth response arrives.
	for {
		gotID, typ, _, err := readPacket(c.tc)
		if err != nil {
			return fmt.Errorf("rcon: auth read: %w", err)
		}
		if typ != typeAuthResponse {
			continue
		}
		switch gotID {
		case id:
			return nil
		case -1:
			return ErrAuth
		default:
			return &ProtocolError{Reason: fmt.Sprintf("auth response id %d, want %d", gotID, id)}
		}
	}
}

// Exec sends one command and returns the full response body. Responses
// spanning multiple frames are reassembled using an empty trailer request:
// the server echoes the trailer id after all pending fragments.
func (c *Conn) Exec(ctx context.Context, command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tc == nil {
		return "", ErrNotConnected
	}
	if len(command) > maxPayload {
		return "", fmt.Errorf("rcon: command exceeds %d bytes", maxPayload)
	}
	if err := c.setDeadline(ctx); err != nil {
		return "", err
	}

	cmdID := c.nextID
	trailerID := c.nextID + 1
	c.nextID += 2

	if err := writePacket(c.tc, cmdID, typeExecCommand, command); err != nil {
		return "", fmt.Errorf("rcon: exec write: %w", err)
	}
	if err := writePacket(c.tc, trailerID, typeResponse, ""); err != nil {
		return "", fmt.Errorf("rcon: trailer write: %w", err)
	}

	var body string
	for {
		gotID, typ, frag, err := readPacket(c.tc)
		if err != nil {
			return "", fmt.Errorf("rcon: exec read: %w", err)
		}
		switch {
		case gotID == trailerID:
			return body, nil
		case gotID == cmdID && typ == typeResponse:
			body += frag
		default:
			return "", &ProtocolError{Reason: fmt.Sprintf("unexpected frame id=%d type=%d", gotID, typ)}
		}
	}
}

// Close tears down the transport. Idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tc == nil {
		return nil
	}
	err := c.tc.Close()
	c.tc = nil
	return err
}

// setDeadline bounds the next network operation by the sooner of the
// configured timeout and the context deadline.
func (c *Conn) setDeadline(ctx context.Context) error {
	if c.tc == nil {
		return ErrNotConnected
	}
	dl := time.Now().Add(c.opts.timeout())
	if ctxDL, ok := ctx.Deadline(); ok && ctxDL.Before(dl) {
		dl = ctxDL
	}
	return c.tc.SetDeadline(dl)
}
