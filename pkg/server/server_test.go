package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triplexrpc/triplex/pkg/config"
	"github.com/triplexrpc/triplex/pkg/rpc"
)

func boolPtr(b bool) *bool { return &b }

// testConfig enables every transport on an OS-assigned port so tests never
// collide on well-known ports.
func testConfig() *config.Config {
	cfg := config.GetDefaultConfig()
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Server.WebSocket.Port = 0
	cfg.Server.TCPStream.Port = 0
	cfg.Server.KCP.Port = 0
	return cfg
}

func TestNew_GatewayPerEnabledTransport(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.TCPStream.Enabled = boolPtr(false)

	srv, err := New(cfg)
	require.NoError(t, err)

	var transports []rpc.Transport
	for _, gw := range srv.Gateways() {
		transports = append(transports, gw.Transport())
	}
	assert.ElementsMatch(t, []rpc.Transport{rpc.TransportWS, rpc.TransportKCP}, transports)
	assert.NotNil(t, srv.Router())
}

func TestNew_MetricsRegistryOnlyWhenEnabled(t *testing.T) {
	t.Parallel()

	srv, err := New(testConfig())
	require.NoError(t, err)
	assert.Nil(t, srv.Registry())

	cfg := testConfig()
	cfg.Metrics.Enabled = true
	srv, err = New(cfg)
	require.NoError(t, err)
	assert.NotNil(t, srv.Registry())
}

func TestNew_RejectsUnusableJWTSecret(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Security.EnableAuthentication = true
	cfg.Security.JWTSecret = "too-short"

	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "websocket gateway")
}

func TestServe_NoGatewaysAndRestart(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.WebSocket.Enabled = boolPtr(false)
	cfg.Server.TCPStream.Enabled = boolPtr(false)
	cfg.Server.KCP.Enabled = boolPtr(false)

	srv, err := New(cfg)
	require.NoError(t, err)
	assert.Empty(t, srv.Gateways())

	err = srv.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no gateways enabled")

	// A server serves once; the second call must not rebind anything.
	err = srv.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestGatewayStatus_SnapshotsEveryGateway(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.WebSocket.Port = 6100
	cfg.Server.TCPStream.Port = 6103
	cfg.Server.KCP.Port = 6104

	srv, err := New(cfg)
	require.NoError(t, err)

	statuses := srv.GatewayStatus()
	require.Len(t, statuses, 3)

	byTransport := make(map[string]int)
	for _, st := range statuses {
		byTransport[st.Transport] = st.Port
		assert.Zero(t, st.ActiveConnections)
	}
	assert.Equal(t, 6100, byTransport["ws"])
	assert.Equal(t, 6103, byTransport["tcp"])
	assert.Equal(t, 6104, byTransport["kcp"])
}
