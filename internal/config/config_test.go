package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mavleo96/h2sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestParseConfig(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, "client.yaml", `
role: Client
controller_config_filename: controller.yaml
sync_timeout: 3s
stagger_delay: 0s
client:
  address: 127.0.0.1:8443
  tls: true
  server_name: proxy.local
  settings:
    - {id: ENABLE_PUSH, value: 0}
client_frames:
  - type: HEADERS
    stream_id: 1
    flags: [END_STREAM]
    headers:
      - {name: ":method", value: GET}
server_frames:
  - type: GOAWAY
    last_stream_id: 1
    error_code: NO_ERROR
`)
	cfg, err := ParseConfig(p)
	require.NoError(t, err)

	assert.Equal(t, "client", cfg.Role)
	assert.Equal(t, models.RoleClient, cfg.ParsedRole())
	assert.Equal(t, defaultGlobalTimeout, cfg.GlobalTimeout)
	assert.Equal(t, 3*time.Second, cfg.SyncTimeout)
	assert.Equal(t, time.Duration(0), cfg.Stagger())
	assert.Equal(t, filepath.Join(dir, "controller.yaml"), cfg.ControllerConfigPath())
	assert.True(t, cfg.Client.TLS)
	assert.Equal(t, []models.SettingSpec{{ID: "ENABLE_PUSH", Value: 0}}, cfg.Client.Settings)

	require.Len(t, cfg.ClientFrames, 1)
	assert.True(t, cfg.ClientFrames[0].HasFlag("end_stream"))
	assert.Equal(t, []models.HeaderField{{Name: ":method", Value: "GET"}}, cfg.ClientFrames[0].Headers)
	require.Len(t, cfg.ServerFrames, 1)
	assert.Equal(t, uint32(1), cfg.ServerFrames[0].LastID)
}

func TestParseConfigDefaults(t *testing.T) {
	p := writeConfig(t, t.TempDir(), "server.yaml", `
role: server
role_comparison_value: CLIENT
controller_config_filename: /etc/h2sync/controller.yaml
server:
  listen_address: 127.0.0.1:8080
`)
	cfg, err := ParseConfig(p)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.SyncTimeout)
	assert.Equal(t, defaultStaggerDelay, cfg.Stagger())
	assert.Equal(t, "client", cfg.RoleComparisonValue)
	assert.Equal(t, "/etc/h2sync/controller.yaml", cfg.ControllerConfigPath())
}

func TestParseConfigUnboundedRendezvous(t *testing.T) {
	p := writeConfig(t, t.TempDir(), "client.yaml", `
role: client
controller_config_filename: controller.yaml
global_timeout: 30s
sync_timeout: 0s
client:
  address: 127.0.0.1:8443
`)
	cfg, err := ParseConfig(p)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.SyncTimeout)
	assert.Equal(t, 30*time.Second, cfg.GlobalTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad role", Config{Role: "proxy", ControllerConfigFilename: "c.yaml"}},
		{"missing controller config", Config{Role: "client", Client: ClientEndpoint{Address: "a:1"}}},
		{"client without address", Config{Role: "client", ControllerConfigFilename: "c.yaml"}},
		{"server without listen address", Config{Role: "server", ControllerConfigFilename: "c.yaml"}},
		{"tls without certificate", Config{Role: "server", ControllerConfigFilename: "c.yaml", Server: ServerEndpoint{ListenAddress: ":1", TLS: true}}},
		{"negative timeout", Config{Role: "client", ControllerConfigFilename: "c.yaml", Client: ClientEndpoint{Address: "a:1"}, SyncTimeout: -time.Second}},
		{"bad comparison value", Config{Role: "client", RoleComparisonValue: "primary", ControllerConfigFilename: "c.yaml", Client: ClientEndpoint{Address: "a:1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}

func TestParseControllerConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := ParseControllerConfig(writeConfig(t, dir, "listen.yaml", "mode: listen\nlisten_address: 0.0.0.0:7000\n"))
	require.NoError(t, err)
	assert.Equal(t, ModeListen, cfg.Mode)

	_, err = ParseControllerConfig(writeConfig(t, dir, "dial.yaml", "mode: dial\n"))
	assert.Error(t, err)

	_, err = ParseControllerConfig(writeConfig(t, dir, "bogus.yaml", "mode: broadcast\n"))
	assert.Error(t, err)

	_, err = ParseControllerConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
