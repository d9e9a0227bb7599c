package orchestrator

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/mavleo96/h2sync/internal/config"
	"github.com/mavleo96/h2sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())
	return addr
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

const scenarioFrames = `
client_frames:
  - type: HEADERS
    stream_id: 1
    headers:
      - {name: ":method", value: POST}
      - {name: ":scheme", value: http}
      - {name: ":path", value: /echo}
      - {name: ":authority", value: localhost}
  - type: DATA
    stream_id: 1
    payload: hello
  - type: DATA
    stream_id: 1
    flags: [END_STREAM]
    payload: world
server_frames:
  - type: HEADERS
    stream_id: 1
    headers:
      - {name: ":status", value: "200"}
  - type: DATA
    stream_id: 1
    flags: [END_STREAM]
    payload: bye
`

func TestTwoInstancesCompleteScenario(t *testing.T) {
	dir := t.TempDir()
	controlAddr := freeAddr(t)
	h2Addr := freeAddr(t)

	writeFile(t, dir, "controller-server.yaml", fmt.Sprintf("mode: listen\nlisten_address: %s\n", controlAddr))
	writeFile(t, dir, "controller-client.yaml", fmt.Sprintf("mode: dial\npeer_address: %s\n", controlAddr))
	serverPath := writeFile(t, dir, "server.yaml", fmt.Sprintf(`role: server
controller_config_filename: controller-server.yaml
global_timeout: 20s
sync_timeout: 10s
server:
  listen_address: %s
%s`, h2Addr, scenarioFrames))
	clientPath := writeFile(t, dir, "client.yaml", fmt.Sprintf(`role: client
controller_config_filename: controller-client.yaml
global_timeout: 20s
sync_timeout: 10s
stagger_delay: 100ms
client:
  address: %s
%s`, h2Addr, scenarioFrames))

	serverCfg, err := config.ParseConfig(serverPath)
	require.NoError(t, err)
	clientCfg, err := config.ParseConfig(clientPath)
	require.NoError(t, err)

	server := CreateMachine(serverCfg, "server-run")
	client := CreateMachine(clientCfg, "client-run")

	serverDone := make(chan models.ResultPair, 1)
	go func() { serverDone <- server.Start(context.Background()) }()
	clientPair := client.Start(context.Background())
	serverPair := <-serverDone

	assert.Equal(t, models.ResultPair{Self: models.Success, Peer: models.Success}, clientPair)
	assert.Equal(t, models.ResultPair{Self: models.Success, Peer: models.Success}, serverPair)

	clientReport := client.Report()
	serverReport := server.Report()
	assert.Len(t, clientReport.SentFrames, 3)
	assert.Len(t, clientReport.ReceivedFrames, 2)
	assert.Len(t, serverReport.ReceivedFrames, 3)
	assert.Len(t, serverReport.SentFrames, 2)
	assert.Equal(t, "world", serverReport.ReceivedFrames[2].Payload)
	assert.Equal(t, "bye", clientReport.ReceivedFrames[1].Payload)

	// the negotiated comparison value is the dialer's role on both sides
	assert.Equal(t, "client", clientReport.RoleComparisonValue)
	assert.Equal(t, "client", serverReport.RoleComparisonValue)
	assert.Contains(t, clientReport.Trace, StateCleanupClient)
	assert.Contains(t, serverReport.Trace, StateCleanupServer)
}
