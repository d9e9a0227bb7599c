package driver

import (
	"context"
	"testing"
	"time"

	"github.com/mavleo96/h2sync/internal/config"
	"github.com/mavleo96/h2sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	clientFrames = models.ScenarioFrameSet{
		{Type: "HEADERS", StreamID: 1, Headers: []models.HeaderField{
			{Name: ":method", Value: "POST"},
			{Name: ":scheme", Value: "http"},
			{Name: ":path", Value: "/upload"},
			{Name: ":authority", Value: "localhost"},
		}},
		{Type: "DATA", StreamID: 1, Payload: "part-1"},
		{Type: "DATA", StreamID: 1, Flags: []string{"END_STREAM"}, Payload: "part-2"},
	}
	serverFrames = models.ScenarioFrameSet{
		{Type: "HEADERS", StreamID: 1, Headers: []models.HeaderField{{Name: ":status", Value: "200"}}},
		{Type: "DATA", StreamID: 1, Flags: []string{"END_STREAM"}, Payload: "done"},
	}
)

func buildPair(t *testing.T) (*ClientDriver, *ServerDriver) {
	t.Helper()
	server := NewServerDriver(config.ServerEndpoint{ListenAddress: "127.0.0.1:0"})
	addr, err := server.Listen()
	require.NoError(t, err)
	client := NewClientDriver(config.ClientEndpoint{Address: addr.String()})
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	built := make(chan Outcome, 1)
	go func() { built <- server.Build(ctx) }()

	require.Equal(t, EventStarted, client.Build(ctx).Event)
	require.Equal(t, EventStarted, (<-built).Event)
	require.Equal(t, EventPrefaceReceived, client.WaitForPreface(ctx).Event)
	require.Equal(t, EventPrefaceReceived, server.WaitForPreface(ctx).Event)
	return client, server
}

func TestDriversTransferScriptedFrames(t *testing.T) {
	client, server := buildPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sent, out := client.SendFrames(ctx, clientFrames)
	assert.Equal(t, EventFramesSent, out.Event)
	assert.Len(t, sent, 3)

	received, out := server.ReceiveFrames(ctx, clientFrames)
	assert.Equal(t, EventTestCompleted, out.Event)
	require.Len(t, received, 3)
	assert.Equal(t, "part-2", received[2].Payload)

	sent, out = server.SendFrames(ctx, serverFrames)
	assert.Equal(t, EventFramesSent, out.Event)
	assert.Len(t, sent, 2)

	received, out = client.ReceiveFrames(ctx, serverFrames)
	assert.Equal(t, EventTestCompleted, out.Event)
	require.Len(t, received, 2)
	assert.Equal(t, []models.HeaderField{{Name: ":status", Value: "200"}}, received[0].Headers)
}

func TestReceiveEndsOnGoaway(t *testing.T) {
	client, server := buildPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, out := server.SendFrames(ctx, models.ScenarioFrameSet{
		serverFrames[0],
		{Type: "GOAWAY", LastID: 1, ErrorCode: "PROTOCOL_ERROR"},
	})
	require.Equal(t, EventFramesSent, out.Event)

	received, out := client.ReceiveFrames(ctx, serverFrames)
	assert.Equal(t, EventGoawayReceived, out.Event)
	assert.Len(t, received, 1)

	// a GOAWAY seen before sending stops the transfer
	sent, out := client.SendFrames(ctx, clientFrames)
	assert.Equal(t, EventGoawayReceived, out.Event)
	assert.Empty(t, sent)
}

func TestReceiveEndsOnConnectionTerminated(t *testing.T) {
	client, server := buildPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, out := client.SendFrames(ctx, clientFrames[:1])
	require.Equal(t, EventFramesSent, out.Event)

	first, out := server.ReceiveFrames(ctx, clientFrames[:1])
	require.Equal(t, EventTestCompleted, out.Event)
	require.Len(t, first, 1)
	require.NoError(t, client.Close())

	received, out := server.ReceiveFrames(ctx, clientFrames[1:])
	assert.Equal(t, EventConnectionTerminated, out.Event)
	assert.Empty(t, received)
}

func TestReceiveHonorsContext(t *testing.T) {
	client, _ := buildPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	received, out := client.ReceiveFrames(ctx, serverFrames)
	assert.Equal(t, EventError, out.Event)
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
	assert.Empty(t, received)
}

func TestBuildFailureIsError(t *testing.T) {
	server := NewServerDriver(config.ServerEndpoint{ListenAddress: "127.0.0.1:0"})
	addr, err := server.Listen()
	require.NoError(t, err)
	require.NoError(t, server.Close())

	client := NewClientDriver(config.ClientEndpoint{Address: addr.String()})
	out := client.Build(context.Background())
	assert.Equal(t, EventError, out.Event)
	assert.Error(t, out.Err)

	_, out = client.SendFrames(context.Background(), clientFrames)
	assert.Equal(t, EventError, out.Event)
}

func TestBuildWithoutEndpointAddress(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out := NewClientDriver(config.ClientEndpoint{}).Build(ctx)
	assert.Equal(t, EventError, out.Event)
	assert.ErrorIs(t, out.Err, ErrNoEndpoint)

	server := NewServerDriver(config.ServerEndpoint{})
	defer server.Close()
	out = server.Build(ctx)
	assert.Equal(t, EventError, out.Event)
	assert.ErrorIs(t, out.Err, ErrNoEndpoint)
}
