package models

// ResultCode is the diagnostic outcome of one side of a test run
type ResultCode string

const (
	// Undefined is the zero value; a result field that no terminal transition filled
	Undefined ResultCode = ""
	Success   ResultCode = "Success"

	ServerFailedToStartOrReceiveAllFrames ResultCode = "ServerFailedToStartOrReceiveAllFrames"
	ClientReceivedErrorFromProxy          ResultCode = "ClientReceivedErrorFromProxy"
	ServerReceivedErrorFromProxy          ResultCode = "ServerReceivedErrorFromProxy"
	ClientFailedToReceiveAllFrames        ResultCode = "ClientFailedToReceiveAllFrames"

	ConnectionTerminated ResultCode = "ConnectionTerminated"
	GoawayReceived       ResultCode = "GoawayReceived"
	GlobalTimeout        ResultCode = "GlobalTimeout"

	// Error marks a setup or driver failure; the message is kept in ResultPair.Detail
	Error ResultCode = "Error"
)

func (c ResultCode) String() string {
	if c == Undefined {
		return "Undefined"
	}
	return string(c)
}

// IsDefined reports whether the code was assigned
func (c ResultCode) IsDefined() bool {
	return c != Undefined
}

// ResultPair is the outcome reported at FINAL, ordered self-then-peer.
//
// Self is always the outcome of the reporting instance and Peer what it observed of
// the other instance, whichever HTTP/2 role each of them played.
type ResultPair struct {
	Self   ResultCode `json:"self" yaml:"self"`
	Peer   ResultCode `json:"peer" yaml:"peer"`
	Detail string     `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// PairFromRoles builds a self-then-peer pair out of role-named results.
// A client reports (clientResult, serverResult), a server (serverResult, clientResult).
func PairFromRoles(self Role, clientResult, serverResult ResultCode) ResultPair {
	if self == RoleClient {
		return ResultPair{Self: clientResult, Peer: serverResult}
	}
	return ResultPair{Self: serverResult, Peer: clientResult}
}

// OK reports whether both sides succeeded
func (p ResultPair) OK() bool {
	return p.Self == Success && p.Peer == Success
}

func (p ResultPair) String() string {
	s := "(" + p.Self.String() + ", " + p.Peer.String() + ")"
	if p.Detail != "" {
		s += ": " + p.Detail
	}
	return s
}
