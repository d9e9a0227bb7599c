package driver

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/mavleo96/h2sync/internal/config"
	"github.com/mavleo96/h2sync/internal/h2"
	"github.com/mavleo96/h2sync/internal/models"
	log "github.com/sirupsen/logrus"
)

// ClientDriver connects out to the HTTP/2 server, sends first and receives second
type ClientDriver struct {
	cfg config.ClientEndpoint
	session
}

// NewClientDriver creates a client driver for the endpoint
func NewClientDriver(cfg config.ClientEndpoint) *ClientDriver {
	return &ClientDriver{cfg: cfg, session: session{label: "ClientDriver"}}
}

func (d *ClientDriver) tlsConfig() *tls.Config {
	if !d.cfg.TLS {
		return nil
	}
	return &tls.Config{
		NextProtos:         []string{h2.NextProtoTLS},
		ServerName:         d.cfg.ServerName,
		InsecureSkipVerify: d.cfg.InsecureSkipVerify,
	}
}

// Build connects to the configured address and sends the connection preface
func (d *ClientDriver) Build(ctx context.Context) Outcome {
	if d.cfg.Address == "" {
		return failed(fmt.Errorf("%w: client.address", ErrNoEndpoint))
	}
	conn, err := h2.Dial(ctx, d.cfg.Address, d.tlsConfig(), d.cfg.Settings)
	if err != nil {
		return failed(err)
	}
	d.conn = conn
	log.Infof("[ClientDriver] Started against %s", d.cfg.Address)
	return Outcome{Event: EventStarted}
}

// WaitForPreface blocks until the server's SETTINGS arrive
func (d *ClientDriver) WaitForPreface(ctx context.Context) Outcome {
	if d.conn == nil {
		return failed(errNotBuilt)
	}
	if err := d.conn.WaitForPreface(ctx); err != nil {
		return failed(err)
	}
	log.Infof("[ClientDriver] Server preface received")
	return Outcome{Event: EventPrefaceReceived}
}

// SendFrames sends the client frames in order
func (d *ClientDriver) SendFrames(ctx context.Context, frames models.ScenarioFrameSet) ([]models.FrameSpec, Outcome) {
	return d.sendFrames(ctx, frames)
}

// ReceiveFrames waits for the server frames in order
func (d *ClientDriver) ReceiveFrames(ctx context.Context, frames models.ScenarioFrameSet) ([]models.FrameSpec, Outcome) {
	return d.receiveFrames(ctx, frames)
}

// Close tears down the connection
func (d *ClientDriver) Close() error {
	return d.close()
}
