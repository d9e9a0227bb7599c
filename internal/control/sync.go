package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mavleo96/h2sync/internal/models"
	log "github.com/sirupsen/logrus"
)

// Synchronizer implements the phase-tagged rendezvous over a control channel.
// It is used by a single goroutine; only its reader runs concurrently.
type Synchronizer struct {
	ch       Channel
	role     models.Role
	incoming chan inbound
	done     chan struct{}

	// sync messages of other phases, kept until a matching rendezvous asks for them
	pending  []*Message
	lastPeer models.ResultCode
	readErr  error
	seq      int64

	closeOnce sync.Once
}

type inbound struct {
	msg *Message
	err error
}

// NewSynchronizer starts reading from ch
func NewSynchronizer(ch Channel, role models.Role) *Synchronizer {
	s := &Synchronizer{
		ch:       ch,
		role:     role,
		incoming: make(chan inbound, 64),
		done:     make(chan struct{}),
		pending:  make([]*Message, 0),
	}
	go s.readLoop()
	return s
}

func (s *Synchronizer) readLoop() {
	for {
		m, err := s.ch.Recv()
		select {
		case s.incoming <- inbound{msg: m, err: err}:
		case <-s.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// ExchangeSync sends the local outcome tagged with phase and blocks until the peer's
// message for the same phase arrives. Messages of any other phase never satisfy the
// wait; they are buffered for a later rendezvous. A timeout of zero waits until ctx ends.
func (s *Synchronizer) ExchangeSync(ctx context.Context, phase models.PhaseLabel, outcome models.ResultCode, timeout time.Duration) (models.ResultCode, error) {
	if s.readErr != nil {
		return models.Undefined, s.readErr
	}

	s.seq++
	msg := &Message{Kind: KindSync, Role: s.role, Phase: phase, Outcome: outcome, Seq: s.seq}
	if err := s.ch.Send(msg); err != nil {
		s.readErr = fmt.Errorf("%w: %v", ErrChannelClosed, err)
		return models.Undefined, s.readErr
	}
	log.Infof("[Synchronizer] Sent %s", msg)

	if m := s.takePending(phase); m != nil {
		log.Infof("[Synchronizer] Matched buffered %s", m)
		return m.Outcome, nil
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	for {
		select {
		case in := <-s.incoming:
			m, err := s.accept(in)
			if err != nil {
				return models.Undefined, err
			}
			if m == nil {
				continue
			}
			if m.Phase == phase {
				log.Infof("[Synchronizer] Matched %s", m)
				return m.Outcome, nil
			}
			log.Warnf("[Synchronizer] Buffered out-of-phase %s while waiting for %s", m, phase)
			s.pending = append(s.pending, m)
		case <-ctx.Done():
			return models.Undefined, context.Cause(ctx)
		case <-timeoutCh:
			log.Warnf("[Synchronizer] Timed out after %s waiting for %s", timeout, phase)
			return models.Undefined, ErrSyncTimeout
		}
	}
}

// accept records an inbound item; it returns nil for messages that are not sync messages
func (s *Synchronizer) accept(in inbound) (*Message, error) {
	if in.err != nil {
		s.readErr = fmt.Errorf("%w: %v", ErrChannelClosed, in.err)
		return nil, s.readErr
	}
	if in.msg.Kind != KindSync {
		log.Warnf("[Synchronizer] Discarded unexpected %s", in.msg)
		return nil, nil
	}
	s.lastPeer = in.msg.Outcome
	return in.msg, nil
}

func (s *Synchronizer) takePending(phase models.PhaseLabel) *Message {
	for i, m := range s.pending {
		if m.Phase == phase {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return m
		}
	}
	return nil
}

// LastKnownPeerOutcome returns the most recent outcome the peer announced, including
// messages that arrived but were not consumed by a rendezvous yet
func (s *Synchronizer) LastKnownPeerOutcome() models.ResultCode {
	for s.readErr == nil {
		select {
		case in := <-s.incoming:
			m, err := s.accept(in)
			if err == nil && m != nil {
				s.pending = append(s.pending, m)
			}
		default:
			return s.lastPeer
		}
	}
	return s.lastPeer
}

// Close stops the reader and closes the underlying channel
func (s *Synchronizer) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.ch.Close()
	})
	return err
}
