package orchestrator

import (
	"github.com/mavleo96/h2sync/internal/control"
	"github.com/mavleo96/h2sync/internal/driver"
	"github.com/mavleo96/h2sync/internal/models"
	log "github.com/sirupsen/logrus"
)

// TestContext is the record threaded through every phase of one run.
// It is only touched by the machine's goroutine.
type TestContext struct {
	role                models.Role
	roleComparisonValue string
	runID               string

	controlChannel control.Channel
	synchronizer   *control.Synchronizer
	session        driver.Driver

	sentFrames     []models.FrameSpec
	receivedFrames []models.FrameSpec

	localResult       models.ResultCode
	peerResult        models.ResultCode
	detail            string
	resultsSet        bool
	currentPhaseLabel models.PhaseLabel

	trace []State
}

func newTestContext(role models.Role, comparisonValue, runID string) *TestContext {
	return &TestContext{
		role:                role,
		roleComparisonValue: comparisonValue,
		runID:               runID,
		sentFrames:          make([]models.FrameSpec, 0),
		receivedFrames:      make([]models.FrameSpec, 0),
		trace:               make([]State, 0),
	}
}

// takesClientBranch is re-evaluated at every role-dependent transition
func (tc *TestContext) takesClientBranch() bool {
	return string(tc.role) == tc.roleComparisonValue
}

// h2Role is the HTTP/2 role of the branch the instance takes
func (tc *TestContext) h2Role() models.Role {
	if tc.takesClientBranch() {
		return models.RoleClient
	}
	return models.RoleServer
}

// setResults assigns the result pair; it never overwrites an earlier assignment
func (tc *TestContext) setResults(pair models.ResultPair) bool {
	if tc.resultsSet {
		log.Warnf("[Machine] Ignoring result %s: results already set to %s", pair, tc.results())
		return false
	}
	tc.localResult = pair.Self
	tc.peerResult = pair.Peer
	tc.detail = pair.Detail
	tc.resultsSet = true
	return true
}

func (tc *TestContext) results() models.ResultPair {
	return models.ResultPair{Self: tc.localResult, Peer: tc.peerResult, Detail: tc.detail}
}

// lastKnownPeerResult is the most recent outcome the peer announced over the control channel
func (tc *TestContext) lastKnownPeerResult() models.ResultCode {
	if tc.synchronizer == nil {
		return models.Undefined
	}
	return tc.synchronizer.LastKnownPeerOutcome()
}

// Report is the post-hoc record of a finished run
type Report struct {
	RunID               string             `json:"run_id"`
	Role                models.Role        `json:"role"`
	RoleComparisonValue string             `json:"role_comparison_value"`
	Result              models.ResultPair  `json:"result"`
	SentFrames          []models.FrameSpec `json:"sent_frames"`
	ReceivedFrames      []models.FrameSpec `json:"received_frames"`
	Trace               []State            `json:"trace"`
}

func (tc *TestContext) report() *Report {
	return &Report{
		RunID:               tc.runID,
		Role:                tc.role,
		RoleComparisonValue: tc.roleComparisonValue,
		Result:              tc.results(),
		SentFrames:          tc.sentFrames,
		ReceivedFrames:      tc.receivedFrames,
		Trace:               tc.trace,
	}
}
