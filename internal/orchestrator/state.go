package orchestrator

import "github.com/mavleo96/h2sync/internal/models"

// State is a state of the orchestration machine
type State string

const (
	StateInit                    State = "INIT"
	StateSetTimeoutTarget        State = "SET_TIMEOUT_TARGET"
	StateSettingUpControlChannel State = "SETTING_UP_CONTROL_CHANNEL"

	StateBuildingHTTP2Client  State = "BUILDING_HTTP2_CLIENT"
	StateWaitingServerPreface State = "WAITING_SERVER_PREFACE"
	StateSendingClientFrames  State = "SENDING_CLIENT_FRAMES"
	StateReceivingServerFrame State = "RECEIVING_SERVER_FRAMES"
	StateCleanupClient        State = "CLEANUP_CLIENT"

	StateBuildingHTTP2Server   State = "BUILDING_HTTP2_SERVER"
	StateReceivingClientFrames State = "RECEIVING_CLIENT_FRAMES"
	StateSendingServerFrames   State = "SENDING_SERVER_FRAMES"
	StateCleanupServer         State = "CLEANUP_SERVER"

	StateExchangingSyncClientFramesSent = State(models.PhaseClientFramesSent)
	StateExchangingSyncServerFramesSent = State(models.PhaseServerFramesSent)

	StateTimeout State = "TIMEOUT"
	StateFinal   State = "FINAL"
)

// roleBranches is the dispatch table of every role-dependent transition, keyed by
// state and by whether the instance takes the client-labeled branch
var roleBranches = map[State]map[bool]State{
	StateSettingUpControlChannel: {
		true:  StateBuildingHTTP2Client,
		false: StateBuildingHTTP2Server,
	},
	StateExchangingSyncClientFramesSent: {
		true:  StateReceivingServerFrame,
		false: StateSendingServerFrames,
	},
	StateExchangingSyncServerFramesSent: {
		true:  StateCleanupClient,
		false: StateCleanupServer,
	},
}

// IsTerminal reports whether no transition leaves the state
func (s State) IsTerminal() bool {
	return s == StateFinal
}
