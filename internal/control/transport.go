package control

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mavleo96/h2sync/internal/utils"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Channel is an established point-to-point control connection
type Channel interface {
	Send(m *Message) error
	Recv() (*Message, error)
	Close() error
}

// closeGrace bounds how long Close waits for the peer to end its stream before the
// control server is stopped hard
const closeGrace = 2 * time.Second

// acceptor hands the first Sync stream over to Listen and rejects any other
type acceptor struct {
	taken   atomic.Bool
	streams chan *servedStream
}

// servedStream is a Sync stream owned by its handler. Only the handler goroutine
// receives from it; sends are refused once the handler has returned.
type servedStream struct {
	stream   grpc.ServerStream
	incoming chan inbound
	done     chan struct{}
	ended    chan struct{}

	sendMu sync.Mutex
	closed bool
}

// Sync serves one control stream until the peer ends it or the listening channel
// is closed
func (a *acceptor) Sync(stream grpc.ServerStream) error {
	if !a.taken.CompareAndSwap(false, true) {
		log.Warnf("[Control] Rejected extra control stream")
		return status.Error(codes.ResourceExhausted, "control channel already established")
	}
	s := &servedStream{
		stream:   stream,
		incoming: make(chan inbound),
		done:     make(chan struct{}),
		ended:    make(chan struct{}),
	}
	a.streams <- s
	defer s.end()
	for {
		m, err := recvStruct(stream)
		select {
		case s.incoming <- inbound{msg: m, err: err}:
		case <-s.done:
			return nil
		}
		if err != nil {
			return nil
		}
	}
}

// end runs as the handler returns; the stream is not touched afterwards
func (s *servedStream) end() {
	s.sendMu.Lock()
	s.closed = true
	s.sendMu.Unlock()
	close(s.ended)
}

// listenerChannel is the accepting side of the control channel
type listenerChannel struct {
	server    *grpc.Server
	served    *servedStream
	closeOnce sync.Once
}

// Listen serves the control service on lis and waits for the peer's stream
func Listen(ctx context.Context, lis net.Listener) (Channel, error) {
	acc := &acceptor{streams: make(chan *servedStream, 1)}
	server := grpc.NewServer()
	server.RegisterService(&controlServiceDesc, acc)
	go func() {
		if err := server.Serve(lis); err != nil {
			log.Warnf("[Control] Control server stopped: %v", err)
		}
	}()
	log.Infof("[Control] Waiting for peer on %s", lis.Addr())

	select {
	case s := <-acc.streams:
		log.Infof("[Control] Peer connected")
		return &listenerChannel{server: server, served: s}, nil
	case <-ctx.Done():
		server.Stop()
		return nil, context.Cause(ctx)
	}
}

func (c *listenerChannel) Send(m *Message) error {
	s := c.served
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.closed {
		return ErrChannelClosed
	}
	return sendStruct(s.stream, m)
}

func (c *listenerChannel) Recv() (*Message, error) {
	s := c.served
	select {
	case in := <-s.incoming:
		return in.msg, in.err
	case <-s.ended:
		return nil, ErrChannelClosed
	case <-s.done:
		return nil, ErrChannelClosed
	}
}

func (c *listenerChannel) Close() error {
	c.closeOnce.Do(func() {
		// the handler returns once the peer ends its stream; a graceful stop then
		// flushes what was sent. A peer that never ends it is cut off after closeGrace.
		close(c.served.done)
		stopped := make(chan struct{})
		go func() {
			c.server.GracefulStop()
			close(stopped)
		}()
		timer := time.NewTimer(closeGrace)
		defer timer.Stop()
		select {
		case <-stopped:
		case <-timer.C:
			log.Warnf("[Control] Peer did not end the control stream, stopping")
			c.server.Stop()
			<-stopped
		}
	})
	return nil
}

// dialerChannel is the connecting side of the control channel
type dialerChannel struct {
	conn      *grpc.ClientConn
	stream    grpc.ClientStream
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Dial opens the Sync stream to the peer, waiting until it becomes reachable
func Dial(ctx context.Context, addr string) (Channel, error) {
	conn, err := utils.Connect(addr)
	if err != nil {
		return nil, err
	}

	// the stream outlives ctx; ctx only bounds the wait for the peer
	streamCtx, cancel := context.WithCancel(context.Background())
	established := make(chan struct{})
	defer close(established)
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-established:
		}
	}()

	log.Infof("[Control] Dialing peer at %s", addr)
	stream, err := conn.NewStream(streamCtx, &controlServiceDesc.Streams[0], syncMethod)
	if err != nil {
		cancel()
		conn.Close()
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		return nil, fmt.Errorf("failed to open control stream to %s: %w", addr, err)
	}
	return &dialerChannel{conn: conn, stream: stream, cancel: cancel}, nil
}

func (c *dialerChannel) Send(m *Message) error {
	return sendStruct(c.stream, m)
}

func (c *dialerChannel) Recv() (*Message, error) {
	return recvStruct(c.stream)
}

func (c *dialerChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.stream.CloseSend()
		c.cancel()
		err = c.conn.Close()
	})
	return err
}
