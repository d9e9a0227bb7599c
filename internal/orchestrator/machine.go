package orchestrator

import (
	"context"
	"time"

	"github.com/mavleo96/h2sync/internal/arbiter"
	"github.com/mavleo96/h2sync/internal/config"
	"github.com/mavleo96/h2sync/internal/control"
	"github.com/mavleo96/h2sync/internal/crypto"
	"github.com/mavleo96/h2sync/internal/driver"
	"github.com/mavleo96/h2sync/internal/models"
	log "github.com/sirupsen/logrus"
)

// ControlSetup establishes the control channel for a run
type ControlSetup func(ctx context.Context, cfg *config.Config, role models.Role, runID string) (*control.Session, error)

// DriverFactory creates the session driver of the branch the instance takes
type DriverFactory func(clientBranch bool, cfg *config.Config) driver.Driver

// Option configures a Machine
type Option func(*Machine)

// WithControlSetup replaces how the control channel is established
func WithControlSetup(setup ControlSetup) Option {
	return func(m *Machine) {
		m.setupControl = setup
	}
}

// WithDriverFactory replaces how session drivers are created
func WithDriverFactory(factory DriverFactory) Option {
	return func(m *Machine) {
		m.newDriver = factory
	}
}

// WithMetrics records transitions and results into metrics
func WithMetrics(metrics *Metrics) Option {
	return func(m *Machine) {
		m.metrics = metrics
	}
}

// Machine is the orchestration state machine. The same definition runs in both
// roles; role-dependent transitions go through roleBranches.
type Machine struct {
	cfg   *config.Config
	runID string

	setupControl ControlSetup
	newDriver    DriverFactory
	metrics      *Metrics
	afterStep    func(State)

	parent  context.Context
	ctx     context.Context
	arbiter *arbiter.Arbiter
	state   State
	tc      *TestContext
	started bool
}

// CreateMachine creates a machine for one run
func CreateMachine(cfg *config.Config, runID string, opts ...Option) *Machine {
	m := &Machine{
		cfg:          cfg,
		runID:        runID,
		setupControl: defaultControlSetup,
		newDriver:    defaultDriverFactory,
		state:        StateInit,
		tc:           newTestContext(cfg.ParsedRole(), cfg.RoleComparisonValue, runID),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func defaultControlSetup(ctx context.Context, cfg *config.Config, role models.Role, runID string) (*control.Session, error) {
	controllerCfg, err := config.ParseControllerConfig(cfg.ControllerConfigPath())
	if err != nil {
		return nil, err
	}
	scenario, err := crypto.ScenarioDigest(cfg.ClientFrames, cfg.ServerFrames)
	if err != nil {
		return nil, err
	}
	id := control.Identity{Role: role, RunID: runID, Scenario: scenario}
	return control.Setup(ctx, id, cfg.RoleComparisonValue, controllerCfg)
}

func defaultDriverFactory(clientBranch bool, cfg *config.Config) driver.Driver {
	if clientBranch {
		return driver.NewClientDriver(cfg.Client)
	}
	return driver.NewServerDriver(cfg.Server)
}

// Start runs the machine from INIT to FINAL and returns the result pair, ordered
// self-then-peer. It never fails: every failure is reported through the pair.
// A machine runs once; later calls return the first run's result.
func (m *Machine) Start(ctx context.Context) models.ResultPair {
	if m.started {
		return m.tc.results()
	}
	m.started = true
	m.parent = ctx
	m.ctx = ctx
	begin := time.Now()

	log.Infof("[Machine] Starting run %s as %s", m.runID, m.tc.role)
	m.tc.trace = append(m.tc.trace, m.state)
	m.metrics.transition(m.state)
	for !m.state.IsTerminal() {
		current := m.state
		next := m.step(current)
		if m.afterStep != nil {
			m.afterStep(current)
		}
		if m.arbiter.Fired() && next != StateFinal && next != StateTimeout {
			log.Warnf("[Machine] Global deadline preempted %s", current)
			next = StateTimeout
		}
		m.transition(next)
	}

	pair := m.tc.results()
	m.metrics.result(pair, time.Since(begin))
	log.Infof("[Machine] Run %s finished with %s", m.runID, pair)
	return pair
}

// Report returns the record of the run; it is complete once Start returned
func (m *Machine) Report() *Report {
	return m.tc.report()
}

func (m *Machine) transition(to State) {
	log.Infof("[Machine] %s -> %s", m.state, to)
	m.state = to
	m.tc.trace = append(m.tc.trace, to)
	m.metrics.transition(to)
}

// branch resolves a role-dependent transition of the current state
func (m *Machine) branch(from State) State {
	clientBranch := m.tc.takesClientBranch()
	next := roleBranches[from][clientBranch]
	log.Debugf("[Machine] %s: role %q vs %q, client branch %t", from, m.tc.role, m.tc.roleComparisonValue, clientBranch)
	return next
}

// terminate assigns the result pair of a terminal transition and releases what the
// run still holds. A deadline that already fired wins over pair.
func (m *Machine) terminate(pair models.ResultPair) State {
	if !m.arbiter.Cancel() {
		pair = timeoutPair()
	}
	m.tc.setResults(pair)
	m.release()
	return StateFinal
}

func timeoutPair() models.ResultPair {
	return models.ResultPair{Self: models.GlobalTimeout, Detail: arbiter.ErrGlobalTimeout.Error()}
}

// release closes the session and the control channel, best effort
func (m *Machine) release() {
	if m.tc.session != nil {
		if err := m.tc.session.Close(); err != nil {
			log.Warnf("[Machine] Failed to close HTTP/2 session: %v", err)
		}
		m.tc.session = nil
	}
	if m.tc.synchronizer != nil {
		if err := m.tc.synchronizer.Close(); err != nil {
			log.Warnf("[Machine] Failed to close control channel: %v", err)
		}
		m.tc.synchronizer = nil
		m.tc.controlChannel = nil
	} else if m.tc.controlChannel != nil {
		if err := m.tc.controlChannel.Close(); err != nil {
			log.Warnf("[Machine] Failed to close control channel: %v", err)
		}
		m.tc.controlChannel = nil
	}
}
