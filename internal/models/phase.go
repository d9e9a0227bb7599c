package models

// PhaseLabel tags a control-channel rendezvous so that a message from another
// phase can never satisfy it
type PhaseLabel string

const (
	PhaseClientFramesSent PhaseLabel = "EXCHANGING_SYNC_CLIENT_FRAMES_SENT"
	PhaseServerFramesSent PhaseLabel = "EXCHANGING_SYNC_SERVER_FRAMES_SENT"
)
