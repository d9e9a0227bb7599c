package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/mavleo96/h2sync/internal/h2"
	"github.com/mavleo96/h2sync/internal/models"
	log "github.com/sirupsen/logrus"
)

// Event is what an HTTP/2 session reports at the end of an operation
type Event int

const (
	EventStarted Event = iota
	EventPrefaceReceived
	EventFramesSent
	EventTestCompleted
	EventConnectionTerminated
	EventGoawayReceived
	EventError
)

func (e Event) String() string {
	switch e {
	case EventStarted:
		return "Started"
	case EventPrefaceReceived:
		return "PrefaceReceived"
	case EventFramesSent:
		return "FramesSent"
	case EventTestCompleted:
		return "TestCompleted"
	case EventConnectionTerminated:
		return "ConnectionTerminated"
	case EventGoawayReceived:
		return "GoawayReceived"
	case EventError:
		return "Error"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// Outcome is the event an operation ended with; Err is set for EventError and
// carries the diagnostic of the other early endings
type Outcome struct {
	Event Event
	Err   error
}

func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s: %v", o.Event, o.Err)
	}
	return o.Event.String()
}

var errNotBuilt = errors.New("session not built")

// ErrNoEndpoint is returned by Build when the endpoint of the branch taken has no address
var ErrNoEndpoint = errors.New("no HTTP/2 endpoint address configured")

func failed(err error) Outcome {
	return Outcome{Event: EventError, Err: err}
}

// Driver owns the local HTTP/2 endpoint of one role
type Driver interface {
	Build(ctx context.Context) Outcome
	WaitForPreface(ctx context.Context) Outcome
	SendFrames(ctx context.Context, frames models.ScenarioFrameSet) ([]models.FrameSpec, Outcome)
	ReceiveFrames(ctx context.Context, frames models.ScenarioFrameSet) ([]models.FrameSpec, Outcome)
	Close() error
}

// session holds the connection shared by both driver variants
type session struct {
	label string
	conn  *h2.Conn
}

func (s *session) sendFrames(ctx context.Context, frames models.ScenarioFrameSet) ([]models.FrameSpec, Outcome) {
	if s.conn == nil {
		return nil, failed(errNotBuilt)
	}
	sent := make([]models.FrameSpec, 0, len(frames))
	for _, f := range frames {
		if g, ok := s.conn.Goaway(); ok {
			log.Warnf("[%s] GOAWAY received after %d of %d frames", s.label, len(sent), len(frames))
			return sent, Outcome{Event: EventGoawayReceived, Err: fmt.Errorf("goaway %s", g.ErrorCode)}
		}
		if ctx.Err() != nil {
			return sent, failed(context.Cause(ctx))
		}
		if err := s.conn.WriteFrame(f); err != nil {
			if s.conn.Closed() {
				return sent, Outcome{Event: EventConnectionTerminated, Err: err}
			}
			return sent, failed(err)
		}
		sent = append(sent, f)
	}
	log.Infof("[%s] Sent %d frames", s.label, len(sent))
	return sent, Outcome{Event: EventFramesSent}
}

func (s *session) receiveFrames(ctx context.Context, frames models.ScenarioFrameSet) ([]models.FrameSpec, Outcome) {
	if s.conn == nil {
		return nil, failed(errNotBuilt)
	}
	received := make([]models.FrameSpec, 0, len(frames))
	for len(received) < len(frames) {
		got, err := s.conn.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return received, failed(context.Cause(ctx))
			}
			if errors.Is(err, h2.ErrConnectionClosed) {
				log.Warnf("[%s] Connection terminated after %d of %d frames", s.label, len(received), len(frames))
				return received, Outcome{Event: EventConnectionTerminated, Err: err}
			}
			return received, failed(err)
		}

		expected := frames[len(received)]
		if h2.Matches(expected, got) {
			received = append(received, got)
			continue
		}
		if got.NormalizedType() == "GOAWAY" {
			log.Warnf("[%s] GOAWAY received after %d of %d frames", s.label, len(received), len(frames))
			return received, Outcome{Event: EventGoawayReceived, Err: fmt.Errorf("goaway %s", got.ErrorCode)}
		}
		log.Debugf("[%s] Skipping %s while expecting %s", s.label, got, expected)
	}
	log.Infof("[%s] Received %d frames", s.label, len(received))
	return received, Outcome{Event: EventTestCompleted}
}

func (s *session) close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	log.Infof("[%s] Closed", s.label)
	return err
}
