package h2

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/mavleo96/h2sync/internal/models"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
)

// NextProtoTLS is the ALPN protocol negotiated for HTTP/2 over TLS
const NextProtoTLS = "h2"

// Dial connects to addr, writes the client preface and the initial SETTINGS, and
// starts reading. A nil tlsConfig dials cleartext HTTP/2 with prior knowledge.
func Dial(ctx context.Context, addr string, tlsConfig *tls.Config, settings []models.SettingSpec) (*Conn, error) {
	initial, err := Settings(settings)
	if err != nil {
		return nil, err
	}

	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	nc := raw
	if tlsConfig != nil {
		tc := tls.Client(raw, tlsConfig)
		if err := tc.HandshakeContext(ctx); err != nil {
			raw.Close()
			return nil, fmt.Errorf("tls handshake with %s failed: %w", addr, err)
		}
		if p := tc.ConnectionState().NegotiatedProtocol; p != NextProtoTLS {
			tc.Close()
			return nil, fmt.Errorf("%s negotiated protocol %q instead of %q", addr, p, NextProtoTLS)
		}
		nc = tc
	}

	if _, err := io.WriteString(nc, http2.ClientPreface); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to write client preface: %w", err)
	}
	c := newConn(nc, "ClientConn")
	if err := c.framer.WriteSettings(initial...); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to write initial settings: %w", err)
	}
	c.start()
	log.Infof("[ClientConn] Connected to %s", addr)
	return c, nil
}

// Accept waits for the first connection on lis, checks the client preface and the
// initial SETTINGS, answers with its own SETTINGS and starts reading.
func Accept(ctx context.Context, lis net.Listener, tlsConfig *tls.Config, settings []models.SettingSpec) (*Conn, error) {
	initial, err := Settings(settings)
	if err != nil {
		return nil, err
	}

	type accepted struct {
		conn net.Conn
		err  error
	}
	acceptCh := make(chan accepted, 1)
	go func() {
		conn, err := lis.Accept()
		acceptCh <- accepted{conn: conn, err: err}
	}()

	var raw net.Conn
	select {
	case a := <-acceptCh:
		if a.err != nil {
			return nil, fmt.Errorf("failed to accept on %s: %w", lis.Addr(), a.err)
		}
		raw = a.conn
	case <-ctx.Done():
		lis.Close()
		return nil, context.Cause(ctx)
	}
	log.Infof("[ServerConn] Accepted connection from %s", raw.RemoteAddr())

	// bound the handshake by ctx
	stop := context.AfterFunc(ctx, func() { raw.SetDeadline(time.Now()) })
	defer stop()

	nc := raw
	if tlsConfig != nil {
		tc := tls.Server(raw, tlsConfig)
		if err := tc.HandshakeContext(ctx); err != nil {
			raw.Close()
			return nil, fmt.Errorf("tls handshake failed: %w", err)
		}
		nc = tc
	}

	if err := readPreface(nc); err != nil {
		nc.Close()
		return nil, withCause(ctx, err)
	}
	c := newConn(nc, "ServerConn")
	f, err := c.framer.ReadFrame()
	if err != nil {
		nc.Close()
		return nil, withCause(ctx, fmt.Errorf("failed to read initial settings: %w", err))
	}
	sf, ok := f.(*http2.SettingsFrame)
	if !ok || sf.IsAck() {
		nc.Close()
		return nil, fmt.Errorf("%w: first frame is %s, not SETTINGS", ErrBadPreface, f.Header().Type)
	}
	if err := c.framer.WriteSettings(initial...); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to write initial settings: %w", err)
	}
	if err := c.framer.WriteSettingsAck(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to acknowledge initial settings: %w", err)
	}
	if !stop() {
		nc.Close()
		return nil, context.Cause(ctx)
	}
	c.markPreface()
	c.start()
	return c, nil
}

func readPreface(r io.Reader) error {
	buf := make([]byte, len(http2.ClientPreface))
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("failed to read client preface: %w", err)
	}
	if string(buf) != http2.ClientPreface {
		return fmt.Errorf("%w: got %q", ErrBadPreface, buf)
	}
	return nil
}

// withCause prefers the cancellation cause when ctx ending interrupted an I/O call
func withCause(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return err
}
