package control

import "errors"

var (
	// ErrSyncTimeout is returned when a rendezvous is not matched within its timeout
	ErrSyncTimeout = errors.New("timed out waiting for peer at rendezvous")
	// ErrChannelClosed is returned once the control channel is closed or disconnected
	ErrChannelClosed = errors.New("control channel closed")
	// ErrMalformedMessage is returned for a message that cannot be decoded
	ErrMalformedMessage = errors.New("malformed control message")
	// ErrRoleConflict is returned when both peers announce the same role
	ErrRoleConflict = errors.New("both control peers announced the same role")
	// ErrBranchConflict is returned when the comparison values of the peers put both
	// on the same branch
	ErrBranchConflict = errors.New("both control peers resolve to the same branch")
	// ErrScenarioMismatch is returned when the peers loaded different scenarios
	ErrScenarioMismatch = errors.New("control peers run different scenarios")
)
