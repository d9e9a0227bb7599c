package driver

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/mavleo96/h2sync/internal/config"
	"github.com/mavleo96/h2sync/internal/h2"
	"github.com/mavleo96/h2sync/internal/models"
	log "github.com/sirupsen/logrus"
)

// ServerDriver accepts one HTTP/2 connection, receives first and sends second
type ServerDriver struct {
	cfg config.ServerEndpoint
	lis net.Listener
	session
}

// NewServerDriver creates a server driver for the endpoint
func NewServerDriver(cfg config.ServerEndpoint) *ServerDriver {
	return &ServerDriver{cfg: cfg, session: session{label: "ServerDriver"}}
}

// Listen binds the listening endpoint ahead of Build and returns its address
func (d *ServerDriver) Listen() (net.Addr, error) {
	if d.lis != nil {
		return d.lis.Addr(), nil
	}
	if d.cfg.ListenAddress == "" {
		return nil, fmt.Errorf("%w: server.listen_address", ErrNoEndpoint)
	}
	lis, err := net.Listen("tcp", d.cfg.ListenAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", d.cfg.ListenAddress, err)
	}
	d.lis = lis
	log.Infof("[ServerDriver] Listening on %s", lis.Addr())
	return lis.Addr(), nil
}

func (d *ServerDriver) tlsConfig() (*tls.Config, error) {
	if !d.cfg.TLS {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(d.cfg.CertFile, d.cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{h2.NextProtoTLS},
	}, nil
}

// Build listens and accepts the first connection, consuming its preface
func (d *ServerDriver) Build(ctx context.Context) Outcome {
	tlsConfig, err := d.tlsConfig()
	if err != nil {
		return failed(err)
	}
	if _, err := d.Listen(); err != nil {
		return failed(err)
	}
	conn, err := h2.Accept(ctx, d.lis, tlsConfig, d.cfg.Settings)
	// only the first connection is served
	d.lis.Close()
	if err != nil {
		return failed(err)
	}
	d.conn = conn
	log.Infof("[ServerDriver] Started, client preface received")
	return Outcome{Event: EventStarted}
}

// WaitForPreface returns immediately: the client preface is consumed by Build
func (d *ServerDriver) WaitForPreface(ctx context.Context) Outcome {
	if d.conn == nil {
		return failed(errNotBuilt)
	}
	return Outcome{Event: EventPrefaceReceived}
}

// ReceiveFrames waits for the client frames in order
func (d *ServerDriver) ReceiveFrames(ctx context.Context, frames models.ScenarioFrameSet) ([]models.FrameSpec, Outcome) {
	return d.receiveFrames(ctx, frames)
}

// SendFrames sends the server frames in order
func (d *ServerDriver) SendFrames(ctx context.Context, frames models.ScenarioFrameSet) ([]models.FrameSpec, Outcome) {
	return d.sendFrames(ctx, frames)
}

// Close tears down the connection and the listener if nothing was accepted
func (d *ServerDriver) Close() error {
	if d.lis != nil {
		d.lis.Close()
	}
	return d.close()
}
