package h2

import "errors"

var (
	// ErrBadPreface is returned when the peer does not open with the HTTP/2 client preface
	ErrBadPreface = errors.New("bad http2 connection preface")
	// ErrConnectionClosed is returned once the connection's read side has ended
	ErrConnectionClosed = errors.New("http2 connection closed")
	// ErrUnsupportedFrame is returned for a scripted frame type the engine cannot write
	ErrUnsupportedFrame = errors.New("unsupported frame type")
)
