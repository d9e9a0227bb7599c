package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mavleo96/h2sync/internal/arbiter"
	"github.com/mavleo96/h2sync/internal/classifier"
	"github.com/mavleo96/h2sync/internal/control"
	"github.com/mavleo96/h2sync/internal/driver"
	"github.com/mavleo96/h2sync/internal/models"
	"github.com/mavleo96/h2sync/internal/utils"
	log "github.com/sirupsen/logrus"
)

// step performs the work of one state and returns the next state
func (m *Machine) step(s State) State {
	switch s {
	case StateInit:
		return StateSetTimeoutTarget
	case StateSetTimeoutTarget:
		m.arbiter, m.ctx = arbiter.Arm(m.parent, m.cfg.GlobalTimeout)
		return StateSettingUpControlChannel
	case StateSettingUpControlChannel:
		return m.setUpControlChannel()

	case StateBuildingHTTP2Client:
		return m.buildClient()
	case StateWaitingServerPreface:
		if out := m.tc.session.WaitForPreface(m.ctx); out.Event != driver.EventPrefaceReceived {
			return m.fail(out)
		}
		return StateSendingClientFrames
	case StateSendingClientFrames:
		return m.sendFrames(m.cfg.ClientFrames, models.PhaseClientFramesSent, StateExchangingSyncClientFramesSent)
	case StateReceivingServerFrame:
		return m.receiveFrames(m.cfg.ServerFrames, StateExchangingSyncServerFramesSent)

	case StateBuildingHTTP2Server:
		return m.buildSession(false, StateReceivingClientFrames)
	case StateReceivingClientFrames:
		m.tc.currentPhaseLabel = models.PhaseClientFramesSent
		return m.receiveFrames(m.cfg.ClientFrames, StateExchangingSyncClientFramesSent)
	case StateSendingServerFrames:
		return m.sendFrames(m.cfg.ServerFrames, models.PhaseServerFramesSent, StateExchangingSyncServerFramesSent)

	case StateExchangingSyncClientFramesSent, StateExchangingSyncServerFramesSent:
		return m.exchangeSync(s)

	case StateCleanupClient, StateCleanupServer:
		return m.cleanup()
	case StateTimeout:
		return m.terminate(timeoutPair())
	default:
		return m.terminate(errorPair(fmt.Errorf("no transition out of state %s", s)))
	}
}

// interrupted routes a run whose context ended: to TIMEOUT when the deadline fired,
// otherwise the caller canceled the run
func (m *Machine) interrupted() State {
	if m.arbiter.Fired() {
		return StateTimeout
	}
	return m.terminate(errorPair(context.Cause(m.ctx)))
}

func errorPair(err error) models.ResultPair {
	return models.ResultPair{Self: models.Error, Detail: err.Error()}
}

func (m *Machine) setUpControlChannel() State {
	session, err := m.setupControl(m.ctx, m.cfg, m.tc.role, m.runID)
	if err != nil {
		if m.ctx.Err() != nil {
			return m.interrupted()
		}
		log.Errorf("[Machine] Control channel setup failed: %v", err)
		return m.terminate(errorPair(err))
	}
	m.tc.controlChannel = session.Channel
	m.tc.roleComparisonValue = session.ComparisonValue
	m.tc.synchronizer = control.NewSynchronizer(session.Channel, m.tc.role)
	log.Infof("[Machine] Control channel ready with %s peer", session.PeerRole)
	return m.branch(StateSettingUpControlChannel)
}

func (m *Machine) buildClient() State {
	// ordering bias only: gives the server instance time to listen
	if d := m.cfg.Stagger(); d > 0 {
		log.Infof("[Machine] Holding %s before building the HTTP/2 client", d)
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-m.ctx.Done():
			timer.Stop()
			return m.interrupted()
		}
	}
	return m.buildSession(true, StateWaitingServerPreface)
}

func (m *Machine) buildSession(clientBranch bool, next State) State {
	d := m.newDriver(clientBranch, m.cfg)
	m.tc.session = d
	if out := d.Build(m.ctx); out.Event != driver.EventStarted {
		return m.fail(out)
	}
	return next
}

func (m *Machine) sendFrames(frames models.ScenarioFrameSet, phase models.PhaseLabel, next State) State {
	m.tc.currentPhaseLabel = phase
	sent, out := m.tc.session.SendFrames(m.ctx, frames)
	m.tc.sentFrames = append(m.tc.sentFrames, sent...)
	log.Infof("[Machine] Sent %s", utils.FramesString(sent))
	if out.Event != driver.EventFramesSent {
		return m.fail(out)
	}
	return next
}

func (m *Machine) receiveFrames(frames models.ScenarioFrameSet, next State) State {
	received, out := m.tc.session.ReceiveFrames(m.ctx, frames)
	m.tc.receivedFrames = append(m.tc.receivedFrames, received...)
	log.Infof("[Machine] Received %s", utils.FramesString(received))
	if out.Event != driver.EventTestCompleted {
		return m.fail(out)
	}
	return next
}

// fail routes a driver outcome that ended an operation early to FINAL
func (m *Machine) fail(out driver.Outcome) State {
	if m.ctx.Err() != nil {
		return m.interrupted()
	}
	log.Warnf("[Machine] HTTP/2 session ended early: %s", out)
	detail := ""
	if out.Err != nil {
		detail = out.Err.Error()
	}
	switch out.Event {
	case driver.EventConnectionTerminated:
		return m.terminate(models.ResultPair{
			Self:   models.ConnectionTerminated,
			Peer:   m.tc.lastKnownPeerResult(),
			Detail: detail,
		})
	case driver.EventGoawayReceived:
		return m.terminate(models.ResultPair{Self: models.GoawayReceived, Detail: detail})
	default:
		if out.Err == nil {
			out.Err = fmt.Errorf("unexpected event %s", out.Event)
		}
		return m.terminate(errorPair(out.Err))
	}
}

func (m *Machine) exchangeSync(s State) State {
	phase := models.PhaseLabel(s)
	m.tc.currentPhaseLabel = phase
	peer, err := m.tc.synchronizer.ExchangeSync(m.ctx, phase, models.Success, m.cfg.SyncTimeout)
	if err != nil {
		if m.arbiter.Fired() || m.ctx.Err() != nil {
			return m.interrupted()
		}
		cause := classifier.CauseChannelError
		if errors.Is(err, control.ErrSyncTimeout) {
			cause = classifier.CauseSyncTimeout
		}
		code, cerr := classifier.Classify(phase, m.tc.h2Role(), cause)
		if cerr != nil {
			return m.terminate(errorPair(cerr))
		}
		log.Warnf("[Machine] Rendezvous %s failed (%s): classified as %s", phase, cause, code)
		return m.terminate(models.ResultPair{Peer: code, Detail: err.Error()})
	}
	if peer != models.Success {
		log.Warnf("[Machine] Peer reported %s at %s", peer, phase)
		return m.terminate(models.ResultPair{Peer: peer})
	}
	return m.branch(s)
}

func (m *Machine) cleanup() State {
	if err := m.tc.session.Close(); err != nil {
		log.Warnf("[Machine] HTTP/2 session closed with error: %v", err)
	}
	m.tc.session = nil
	local := models.Success
	peer := m.tc.lastKnownPeerResult()
	if m.tc.h2Role() == models.RoleClient {
		return m.terminate(models.PairFromRoles(models.RoleClient, local, peer))
	}
	return m.terminate(models.PairFromRoles(models.RoleServer, peer, local))
}
