package control

import (
	"context"
	"fmt"
	"net"

	"github.com/mavleo96/h2sync/internal/config"
	"github.com/mavleo96/h2sync/internal/models"
	log "github.com/sirupsen/logrus"
)

// Session is an established control channel together with what the handshake
// negotiated about the peer
type Session struct {
	Channel   Channel
	PeerRole  models.Role
	PeerRunID string
	// Primary is true on the instance that dialed the control channel
	Primary bool
	// ComparisonValue is the value the instance role is compared against at
	// every role-dependent transition
	ComparisonValue string
}

// Identity is what an instance announces about itself in hello
type Identity struct {
	Role  models.Role
	RunID string
	// Scenario is a digest of the loaded scenario; empty skips the comparison
	Scenario string
}

// Setup establishes the control channel described by cfg and performs the hello
// handshake. An empty comparisonValue is negotiated: it becomes the role announced
// by the dialing peer.
func Setup(ctx context.Context, id Identity, comparisonValue string, cfg *config.ControllerConfig) (*Session, error) {
	var ch Channel
	var err error
	switch cfg.Mode {
	case config.ModeListen:
		var lis net.Listener
		lis, err = net.Listen("tcp", cfg.ListenAddress)
		if err != nil {
			return nil, fmt.Errorf("failed to listen for control channel on %s: %w", cfg.ListenAddress, err)
		}
		ch, err = Listen(ctx, lis)
	case config.ModeDial:
		ch, err = Dial(ctx, cfg.PeerAddress)
	default:
		return nil, fmt.Errorf("invalid control channel mode %q", cfg.Mode)
	}
	if err != nil {
		return nil, err
	}

	session, err := Handshake(ctx, ch, id, cfg.Mode == config.ModeDial, comparisonValue)
	if err != nil {
		ch.Close()
		return nil, err
	}
	return session, nil
}

// Handshake exchanges hello messages over an established channel
func Handshake(ctx context.Context, ch Channel, id Identity, primary bool, comparisonValue string) (*Session, error) {
	role := id.Role
	hello := &Message{Kind: KindHello, Role: role, RunID: id.RunID, Scenario: id.Scenario, ComparisonValue: comparisonValue}
	if err := ch.Send(hello); err != nil {
		return nil, fmt.Errorf("%w: sending hello: %v", ErrChannelClosed, err)
	}

	type recvResult struct {
		msg *Message
		err error
	}
	resultCh := make(chan recvResult, 1)
	go func() {
		m, err := ch.Recv()
		resultCh <- recvResult{msg: m, err: err}
	}()

	var peer *Message
	select {
	case r := <-resultCh:
		if r.err != nil {
			return nil, fmt.Errorf("%w: waiting for hello: %v", ErrChannelClosed, r.err)
		}
		peer = r.msg
	case <-ctx.Done():
		ch.Close()
		return nil, context.Cause(ctx)
	}

	if peer.Kind != KindHello {
		return nil, fmt.Errorf("%w: expected hello, got %s", ErrMalformedMessage, peer)
	}
	if peer.Role == role {
		return nil, fmt.Errorf("%w: %s", ErrRoleConflict, role)
	}
	if _, err := models.ParseRole(string(peer.Role)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if id.Scenario != "" && peer.Scenario != "" && id.Scenario != peer.Scenario {
		return nil, fmt.Errorf("%w: local %.12s, peer %.12s", ErrScenarioMismatch, id.Scenario, peer.Scenario)
	}

	// an empty value resolves to the dialer's role on both sides
	negotiated := string(peer.Role)
	if primary {
		negotiated = string(role)
	}
	if comparisonValue == "" {
		comparisonValue = negotiated
		log.Infof("[Control] Negotiated role comparison value %q", comparisonValue)
	}
	peerValue := peer.ComparisonValue
	if peerValue == "" {
		peerValue = negotiated
	}
	localClient := string(role) == comparisonValue
	peerClient := string(peer.Role) == peerValue
	if localClient == peerClient {
		return nil, fmt.Errorf("%w: %s compares against %q, %s peer against %q",
			ErrBranchConflict, role, comparisonValue, peer.Role, peerValue)
	}
	log.Infof("[Control] Handshake complete with %s peer (run %s)", peer.Role, peer.RunID)

	return &Session{
		Channel:         ch,
		PeerRole:        peer.Role,
		PeerRunID:       peer.RunID,
		Primary:         primary,
		ComparisonValue: comparisonValue,
	}, nil
}
