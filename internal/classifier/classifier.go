package classifier

import (
	"fmt"

	"github.com/mavleo96/h2sync/internal/models"
)

// Cause is the failure observed at a rendezvous
type Cause int

const (
	// CauseSyncTimeout means the peer never reached the rendezvous in time
	CauseSyncTimeout Cause = iota
	// CauseChannelError means the control channel failed during the rendezvous
	CauseChannelError
)

func (c Cause) String() string {
	switch c {
	case CauseSyncTimeout:
		return "sync timeout"
	case CauseChannelError:
		return "channel error"
	default:
		return fmt.Sprintf("Cause(%d)", int(c))
	}
}

type key struct {
	phase models.PhaseLabel
	role  models.Role
}

// table assigns to each observer what it infers about the other side
var table = map[key]models.ResultCode{
	{models.PhaseClientFramesSent, models.RoleClient}: models.ServerFailedToStartOrReceiveAllFrames,
	{models.PhaseClientFramesSent, models.RoleServer}: models.ClientReceivedErrorFromProxy,
	{models.PhaseServerFramesSent, models.RoleClient}: models.ServerReceivedErrorFromProxy,
	{models.PhaseServerFramesSent, models.RoleServer}: models.ClientFailedToReceiveAllFrames,
}

// Classify maps a failed rendezvous to a diagnostic result. Both causes classify
// the same way: either way the observer only knows the peer did not arrive.
func Classify(phase models.PhaseLabel, role models.Role, cause Cause) (models.ResultCode, error) {
	code, ok := table[key{phase, role}]
	if !ok {
		return models.Undefined, fmt.Errorf("no classification for %s observed by %q at %s", cause, role, phase)
	}
	return code, nil
}
