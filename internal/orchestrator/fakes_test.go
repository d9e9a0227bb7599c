package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/mavleo96/h2sync/internal/config"
	"github.com/mavleo96/h2sync/internal/control"
	"github.com/mavleo96/h2sync/internal/driver"
	"github.com/mavleo96/h2sync/internal/models"
)

var (
	testClientFrames = models.ScenarioFrameSet{
		{Type: "HEADERS", StreamID: 1, Headers: []models.HeaderField{
			{Name: ":method", Value: "POST"},
			{Name: ":scheme", Value: "http"},
			{Name: ":path", Value: "/"},
			{Name: ":authority", Value: "localhost"},
		}},
		{Type: "DATA", StreamID: 1, Payload: "a"},
		{Type: "DATA", StreamID: 1, Flags: []string{"END_STREAM"}, Payload: "b"},
	}
	testServerFrames = models.ScenarioFrameSet{
		{Type: "HEADERS", StreamID: 1, Headers: []models.HeaderField{{Name: ":status", Value: "200"}}},
		{Type: "DATA", StreamID: 1, Flags: []string{"END_STREAM"}, Payload: "ok"},
	}
)

func testConfig(role, comparison string) *config.Config {
	stagger := time.Duration(0)
	return &config.Config{
		Role:                role,
		RoleComparisonValue: comparison,
		GlobalTimeout:       5 * time.Second,
		SyncTimeout:         time.Second,
		StaggerDelay:        &stagger,
		ClientFrames:        testClientFrames,
		ServerFrames:        testServerFrames,
	}
}

// fakePeer plays the other instance's side of the control channel
type fakePeer struct {
	ch   control.Channel
	role models.Role
	// phases the peer answers; nil answers every phase
	answer map[models.PhaseLabel]bool
	// phases announced before anything is received
	announce []models.PhaseLabel
	// close the channel on the first sync message instead of answering
	hangUp bool
}

func (p *fakePeer) run() {
	for {
		m, err := p.ch.Recv()
		if err != nil {
			return
		}
		if m.Kind != control.KindSync {
			continue
		}
		if p.hangUp {
			p.ch.Close()
			return
		}
		if p.answer == nil || p.answer[m.Phase] {
			p.send(m.Phase)
		}
	}
}

func (p *fakePeer) send(phase models.PhaseLabel) {
	p.ch.Send(&control.Message{Kind: control.KindSync, Role: p.role, Phase: phase, Outcome: models.Success})
}

func pipeSetup(peer *fakePeer) ControlSetup {
	return func(ctx context.Context, cfg *config.Config, role models.Role, runID string) (*control.Session, error) {
		local, remote := control.Pipe()
		peer.ch = remote
		peer.role = role.Peer()
		for _, phase := range peer.announce {
			peer.send(phase)
		}
		go peer.run()
		comparison := cfg.RoleComparisonValue
		if comparison == "" {
			comparison = string(role)
		}
		return &control.Session{Channel: local, PeerRole: role.Peer(), ComparisonValue: comparison}, nil
	}
}

// fakeDriver completes every operation at once unless told otherwise
type fakeDriver struct {
	mu           sync.Mutex
	clientBranch bool
	outcomes     map[string]driver.Outcome
	block        map[string]bool
	delay        time.Duration
	closeDelay   time.Duration
	closed       int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{outcomes: map[string]driver.Outcome{}, block: map[string]bool{}}
}

func (d *fakeDriver) result(ctx context.Context, op string, ok driver.Event) driver.Outcome {
	time.Sleep(d.delay)
	if d.block[op] {
		<-ctx.Done()
		return driver.Outcome{Event: driver.EventError, Err: context.Cause(ctx)}
	}
	if out, found := d.outcomes[op]; found {
		return out
	}
	return driver.Outcome{Event: ok}
}

func (d *fakeDriver) Build(ctx context.Context) driver.Outcome {
	return d.result(ctx, "build", driver.EventStarted)
}

func (d *fakeDriver) WaitForPreface(ctx context.Context) driver.Outcome {
	return d.result(ctx, "preface", driver.EventPrefaceReceived)
}

func (d *fakeDriver) SendFrames(ctx context.Context, frames models.ScenarioFrameSet) ([]models.FrameSpec, driver.Outcome) {
	out := d.result(ctx, "send", driver.EventFramesSent)
	if out.Event != driver.EventFramesSent {
		return frames[:1], out
	}
	return frames, out
}

func (d *fakeDriver) ReceiveFrames(ctx context.Context, frames models.ScenarioFrameSet) ([]models.FrameSpec, driver.Outcome) {
	out := d.result(ctx, "receive", driver.EventTestCompleted)
	if out.Event != driver.EventTestCompleted {
		return frames[:1], out
	}
	return frames, out
}

func (d *fakeDriver) Close() error {
	time.Sleep(d.closeDelay)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

func (d *fakeDriver) closeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func fakeFactory(d *fakeDriver) DriverFactory {
	return func(clientBranch bool, cfg *config.Config) driver.Driver {
		d.clientBranch = clientBranch
		return d
	}
}

// withStepHook runs hook after the work of each state, before its transition is taken
func withStepHook(hook func(State)) Option {
	return func(m *Machine) {
		m.afterStep = hook
	}
}
