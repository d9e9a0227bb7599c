package control

import (
	"io"
	"sync"
)

// pipeChannel is one end of an in-process channel pair
type pipeChannel struct {
	in     <-chan *Message
	out    chan<- *Message
	closed chan struct{}
	peer   *pipeChannel
	once   sync.Once
}

// Pipe returns two connected in-process channels. Messages sent on one end are
// received on the other in order; closing either end disconnects both.
func Pipe() (Channel, Channel) {
	ab := make(chan *Message, 64)
	ba := make(chan *Message, 64)
	a := &pipeChannel{in: ba, out: ab, closed: make(chan struct{})}
	b := &pipeChannel{in: ab, out: ba, closed: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

func (p *pipeChannel) Send(m *Message) error {
	select {
	case <-p.closed:
		return io.ErrClosedPipe
	case <-p.peer.closed:
		return io.ErrClosedPipe
	default:
	}
	cp := *m
	select {
	case p.out <- &cp:
		return nil
	case <-p.closed:
		return io.ErrClosedPipe
	case <-p.peer.closed:
		return io.ErrClosedPipe
	}
}

func (p *pipeChannel) Recv() (*Message, error) {
	select {
	case m := <-p.in:
		return m, nil
	case <-p.closed:
		return nil, io.ErrClosedPipe
	case <-p.peer.closed:
		// deliver what the peer sent before it went away
		select {
		case m := <-p.in:
			return m, nil
		default:
			return nil, io.EOF
		}
	}
}

func (p *pipeChannel) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}
