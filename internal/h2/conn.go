package h2

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/mavleo96/h2sync/internal/models"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

const (
	inboundBuffer   = 256
	headerTableSize = 4096
)

// Conn is one HTTP/2 connection driven frame by frame.
// Writes are serialized; a single read loop decodes inbound frames, answers
// SETTINGS and PING, and queues everything else for Next.
type Conn struct {
	conn   net.Conn
	framer *http2.Framer
	label  string

	wmu  sync.Mutex
	hbuf bytes.Buffer
	henc *hpack.Encoder

	frames      chan models.FrameSpec
	preface     chan struct{}
	prefaceOnce sync.Once
	goaway      chan struct{}
	goawayOnce  sync.Once
	lastGoaway  atomic.Pointer[models.FrameSpec]

	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	err       error
}

func newConn(c net.Conn, label string) *Conn {
	hc := &Conn{
		conn:    c,
		label:   label,
		frames:  make(chan models.FrameSpec, inboundBuffer),
		preface: make(chan struct{}),
		goaway:  make(chan struct{}),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	hc.henc = hpack.NewEncoder(&hc.hbuf)
	hc.framer = http2.NewFramer(c, c)
	hc.framer.AllowIllegalWrites = true
	hc.framer.ReadMetaHeaders = hpack.NewDecoder(headerTableSize, nil)
	return hc
}

func (c *Conn) start() {
	go c.readLoop()
}

func (c *Conn) readLoop() {
	defer close(c.done)
	for {
		f, err := c.framer.ReadFrame()
		if err != nil {
			var se http2.StreamError
			if errors.As(err, &se) {
				log.Warnf("[%s] Ignoring stream error: %v", c.label, se)
				continue
			}
			c.err = fmt.Errorf("%w: %v", ErrConnectionClosed, err)
			log.Infof("[%s] Read loop ended: %v", c.label, err)
			return
		}

		spec := decodeFrame(f)
		log.Debugf("[%s] Received %s", c.label, spec)

		switch fr := f.(type) {
		case *http2.SettingsFrame:
			if !fr.IsAck() {
				if err := c.withWrite(func() error { return c.framer.WriteSettingsAck() }); err != nil {
					log.Warnf("[%s] Failed to acknowledge settings: %v", c.label, err)
				}
				first := false
				c.prefaceOnce.Do(func() {
					first = true
					close(c.preface)
				})
				if first {
					continue
				}
			}
		case *http2.PingFrame:
			if !fr.IsAck() {
				data := fr.Data
				if err := c.withWrite(func() error { return c.framer.WritePing(true, data) }); err != nil {
					log.Warnf("[%s] Failed to acknowledge ping: %v", c.label, err)
				}
			}
		case *http2.GoAwayFrame:
			c.lastGoaway.Store(&spec)
			c.goawayOnce.Do(func() { close(c.goaway) })
		}

		select {
		case c.frames <- spec:
		case <-c.closing:
			c.err = ErrConnectionClosed
			return
		}
	}
}

// markPreface records that the peer's preface SETTINGS were consumed before the read loop started
func (c *Conn) markPreface() {
	c.prefaceOnce.Do(func() { close(c.preface) })
}

// WaitForPreface blocks until the peer's initial SETTINGS frame arrives
func (c *Conn) WaitForPreface(ctx context.Context) error {
	select {
	case <-c.preface:
		return nil
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// Next returns the next inbound frame. Frames that arrived before the connection
// ended are delivered before the terminal error.
func (c *Conn) Next(ctx context.Context) (models.FrameSpec, error) {
	select {
	case f := <-c.frames:
		return f, nil
	default:
	}
	select {
	case f := <-c.frames:
		return f, nil
	case <-c.done:
		select {
		case f := <-c.frames:
			return f, nil
		default:
			return models.FrameSpec{}, c.err
		}
	case <-ctx.Done():
		return models.FrameSpec{}, context.Cause(ctx)
	}
}

// Goaway returns the last GOAWAY frame received, if any
func (c *Conn) Goaway() (models.FrameSpec, bool) {
	select {
	case <-c.goaway:
		return *c.lastGoaway.Load(), true
	default:
		return models.FrameSpec{}, false
	}
}

// Closed reports whether the read side of the connection has ended
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// WriteFrame encodes and writes one scripted frame
func (c *Conn) WriteFrame(f models.FrameSpec) error {
	err := c.withWrite(func() error { return c.encodeFrame(f) })
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", f, err)
	}
	log.Debugf("[%s] Sent %s", c.label, f)
	return nil
}

func (c *Conn) withWrite(fn func() error) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return fn()
}

// Close closes the connection and waits for the read loop to exit
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closing)
		err = c.conn.Close()
		<-c.done
	})
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
