package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triplexrpc/triplex/internal/auth"
	"github.com/triplexrpc/triplex/internal/logger"
	"github.com/triplexrpc/triplex/pkg/client"
	"github.com/triplexrpc/triplex/pkg/config"
	"github.com/triplexrpc/triplex/pkg/rpc"
)

func TestMain(m *testing.M) {
	// Connection lifecycle logging drowns the test output at INFO.
	_ = logger.Init(logger.Config{Level: "ERROR", Format: "text", Output: "stderr"})
	os.Exit(m.Run())
}

// addrer is implemented by every gateway; the interface lives with the
// tests because production code addresses gateways by configured port.
type addrer interface{ Addr() net.Addr }

// startNode builds a server from cfg, installs the demo handlers plus any
// extra registrations, and serves it until test cleanup. Cleanup fails the
// test when the drain was not clean.
func startNode(t *testing.T, cfg *config.Config, register ...func(*rpc.Router)) *Server {
	t.Helper()

	srv, err := New(cfg)
	require.NoError(t, err)

	RegisterDemoHandlers(srv.Router())
	for _, fn := range register {
		fn(srv.Router())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err, "server did not shut down cleanly")
		case <-time.After(10 * time.Second):
			t.Error("server did not shut down in time")
		}
	})

	return srv
}

// endpointFor returns a client endpoint for the node's gateway on the given
// transport, resolving the OS-assigned port.
func endpointFor(t *testing.T, srv *Server, transport rpc.Transport) string {
	t.Helper()

	for _, gw := range srv.Gateways() {
		if gw.Transport() != transport {
			continue
		}
		a, ok := gw.(addrer)
		require.True(t, ok, "%s gateway exposes no bound address", transport)
		addr := a.Addr()
		require.NotNil(t, addr, "%s gateway has no listener", transport)

		_, port, err := net.SplitHostPort(addr.String())
		require.NoError(t, err)

		switch transport {
		case rpc.TransportWS:
			return fmt.Sprintf("ws://127.0.0.1:%s/ws", port)
		case rpc.TransportTCP:
			return fmt.Sprintf("tcp://127.0.0.1:%s", port)
		case rpc.TransportKCP:
			return fmt.Sprintf("kcp://127.0.0.1:%s", port)
		}
	}

	t.Fatalf("node has no %s gateway", transport)
	return ""
}

// httpBase returns the HTTP origin of the node's WebSocket listener.
func httpBase(t *testing.T, srv *Server) string {
	t.Helper()
	for _, gw := range srv.Gateways() {
		if gw.Transport() != rpc.TransportWS {
			continue
		}
		addr := gw.(addrer).Addr()
		require.NotNil(t, addr)
		_, port, err := net.SplitHostPort(addr.String())
		require.NoError(t, err)
		return "http://127.0.0.1:" + port
	}
	t.Fatal("node has no ws gateway")
	return ""
}

// dialClient connects a client to endpoint and closes it at test cleanup,
// before the node's own cleanup shuts the server down.
func dialClient(t *testing.T, endpoint string, opts ...client.Option) *client.Client {
	t.Helper()

	cl, err := client.New(endpoint, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, cl.Connect(ctx))
	return cl
}

func decodePingResponse(data []byte) (any, error) {
	var rsp PingResponse
	if err := json.Unmarshal(data, &rsp); err != nil {
		return nil, err
	}
	return &rsp, nil
}

func TestE2E_PingAcrossTransports(t *testing.T) {
	t.Parallel()

	srv := startNode(t, testConfig())

	for _, transport := range rpc.Transports {
		t.Run(string(transport), func(t *testing.T) {
			cl := dialClient(t, endpointFor(t, srv, transport))
			assert.Equal(t, transport, cl.Transport())

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			reply, err := cl.SendRequest(ctx, CommandPing, PingRequest{Message: "over " + string(transport)})
			require.NoError(t, err)
			assert.Equal(t, CommandPing, reply.ID)
			assert.NotEmpty(t, reply.RequestID)

			var rsp PingResponse
			require.NoError(t, json.Unmarshal(reply.Data, &rsp))
			assert.Equal(t, "Pong: over "+string(transport), rsp.Message)
			assert.Positive(t, rsp.Timestamp)
		})
	}
}

func TestE2E_EchoReturnsRawBytes(t *testing.T) {
	t.Parallel()

	srv := startNode(t, testConfig())
	cl := dialClient(t, endpointFor(t, srv, rpc.TransportTCP))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	body := []byte("not json \x00\x01 just bytes")
	reply, err := cl.SendRequest(ctx, CommandEcho, body)
	require.NoError(t, err)
	assert.Equal(t, body, reply.Data)
}

func TestE2E_UnknownCommand(t *testing.T) {
	t.Parallel()

	srv := startNode(t, testConfig())
	cl := dialClient(t, endpointFor(t, srv, rpc.TransportTCP))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := cl.SendRequest(ctx, "does.not.exist", nil)
	var remote *client.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "does.not.exist", remote.Command)
	assert.Equal(t, "Command 'does.not.exist' not supported", remote.Reason)
}

func TestE2E_HandlerPanicKeepsConnectionAlive(t *testing.T) {
	t.Parallel()

	srv := startNode(t, testConfig(), func(r *rpc.Router) {
		r.RegisterAll("explode", rpc.HandlerEntry{
			Handle: func(ctx context.Context, req any, rsp rpc.Responder) error {
				panic("kaboom")
			},
		})
	})
	cl := dialClient(t, endpointFor(t, srv, rpc.TransportWS))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := cl.SendRequest(ctx, "explode", nil)
	var remote *client.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "Handler error: kaboom", remote.Reason)

	// The same connection keeps serving.
	reply, err := cl.SendRequest(ctx, CommandPing, PingRequest{Message: "still here"})
	require.NoError(t, err)

	var rsp PingResponse
	require.NoError(t, json.Unmarshal(reply.Data, &rsp))
	assert.Equal(t, "Pong: still here", rsp.Message)
}

func TestE2E_BroadcastTargetsOneConnection(t *testing.T) {
	t.Parallel()

	srv := startNode(t, testConfig())
	endpoint := endpointFor(t, srv, rpc.TransportWS)

	pushesA := make(chan []byte, 4)
	pushesB := make(chan []byte, 4)

	clA := dialClient(t, endpoint)
	clA.Register(CommandMessageTest, nil, func(msg any) { pushesA <- msg.([]byte) }, nil)
	clB := dialClient(t, endpoint)
	clB.Register(CommandMessageTest, nil, func(msg any) { pushesB <- msg.([]byte) }, nil)

	conns := srv.Router().Connections()
	require.Eventually(t, func() bool { return conns.Count(rpc.TransportWS) == 2 },
		5*time.Second, 10*time.Millisecond)

	b := srv.Router().Broadcaster(rpc.TransportWS, CommandMessageTest)

	// Named send reaches exactly one of the two clients.
	target := conns.Snapshot(rpc.TransportWS)[0]
	require.NoError(t, b.Send(target.ID(), []byte(`{"message":"direct"}`)))

	received := 0
	deadline := time.After(2 * time.Second)
	for received == 0 {
		select {
		case body := <-pushesA:
			assert.JSONEq(t, `{"message":"direct"}`, string(body))
			received++
		case body := <-pushesB:
			assert.JSONEq(t, `{"message":"direct"}`, string(body))
			received++
		case <-deadline:
			t.Fatal("no client received the named push")
		}
	}
	select {
	case <-pushesA:
		received++
	case <-pushesB:
		received++
	case <-time.After(200 * time.Millisecond):
	}
	assert.Equal(t, 1, received, "named push fanned out to more than one connection")

	// SendAll reaches both.
	require.NoError(t, b.SendAll([]byte(`{"message":"everyone"}`)))
	for name, ch := range map[string]chan []byte{"A": pushesA, "B": pushesB} {
		select {
		case body := <-ch:
			assert.JSONEq(t, `{"message":"everyone"}`, string(body))
		case <-time.After(2 * time.Second):
			t.Fatalf("client %s missed the broadcast", name)
		}
	}

	// Unknown connection ids fail fast instead of buffering.
	err := b.Send("no-such-connection", []byte("x"))
	assert.ErrorIs(t, err, rpc.ErrConnectionNotFound)
}

func TestE2E_MessageFeedPushesToSubscribers(t *testing.T) {
	t.Parallel()

	srv := startNode(t, testConfig())

	feedCtx, stopFeed := context.WithCancel(context.Background())
	t.Cleanup(stopFeed)
	go RunMessageFeed(feedCtx, srv.Router(), 50*time.Millisecond)

	pushes := make(chan []byte, 8)
	cl := dialClient(t, endpointFor(t, srv, rpc.TransportWS))
	cl.Register(CommandMessageTest, nil, func(msg any) { pushes <- msg.([]byte) }, nil)

	select {
	case body := <-pushes:
		var feed FeedMessage
		require.NoError(t, json.Unmarshal(body, &feed))
		assert.Equal(t, "hello", feed.Message)
		assert.GreaterOrEqual(t, feed.Seq, uint64(1))
		assert.Positive(t, feed.Timestamp)
	case <-time.After(5 * time.Second):
		t.Fatal("no feed push arrived")
	}
}

func TestE2E_RequesterSurvivesReconnect(t *testing.T) {
	t.Parallel()

	srv := startNode(t, testConfig())

	connected := make(chan struct{}, 4)
	disconnected := make(chan struct{}, 4)
	cl := dialClient(t, endpointFor(t, srv, rpc.TransportTCP),
		client.WithAutoReconnect(0),
		client.OnConnect(func() { connected <- struct{}{} }),
		client.OnDisconnect(func() { disconnected <- struct{}{} }),
	)
	<-connected

	// The requester is obtained before the connection drops and must keep
	// working after the reconnect driver replaces the socket.
	requester := cl.Register(CommandPing, decodePingResponse, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	reply, err := requester.SendRequest(ctx, PingRequest{Message: "before"})
	require.NoError(t, err)
	assert.Equal(t, "Pong: before", reply.(*PingResponse).Message)

	// Drop the connection server-side.
	conns := srv.Router().Connections()
	snapshot := conns.Snapshot(rpc.TransportTCP)
	require.Len(t, snapshot, 1)
	require.NoError(t, snapshot[0].Close())

	select {
	case <-disconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("client never noticed the drop")
	}
	select {
	case <-connected:
	case <-time.After(10 * time.Second):
		t.Fatal("client never reconnected")
	}

	reply, err = requester.SendRequest(ctx, PingRequest{Message: "after"})
	require.NoError(t, err)
	assert.Equal(t, "Pong: after", reply.(*PingResponse).Message)
	assert.Equal(t, client.StateConnected, cl.State())
}

func TestE2E_TCPFramingViolationClosesConnection(t *testing.T) {
	t.Parallel()

	srv := startNode(t, testConfig())
	endpoint := endpointFor(t, srv, rpc.TransportTCP)

	addr := endpoint[len("tcp://"):]
	sock, err := net.DialTimeout("tcp", addr, 5*time.Second)
	require.NoError(t, err)
	defer sock.Close()

	// A length prefix beyond the frame ceiling poisons the stream offset:
	// the server must close without attempting a reply.
	_, err = sock.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	require.NoError(t, err)

	require.NoError(t, sock.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 1)
	n, err := sock.Read(buf)
	assert.Zero(t, n, "server replied to a framing violation")
	assert.ErrorIs(t, err, io.EOF)

	// The listener keeps accepting.
	cl := dialClient(t, endpoint)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = cl.SendRequest(ctx, CommandPing, PingRequest{Message: "still up"})
	require.NoError(t, err)
}

func TestE2E_WebSocketAuth(t *testing.T) {
	t.Parallel()

	const secret = "0123456789abcdef0123456789abcdef"

	whoami := func(r *rpc.Router) {
		r.RegisterAll("whoami", rpc.HandlerEntry{
			Encode: rpc.JSONEncoder(),
			Handle: func(ctx context.Context, req any, rsp rpc.Responder) error {
				subject := ""
				if c, ok := rpc.ConnFromContext(ctx); ok {
					if p := c.Info().Principal; p != nil {
						subject = p.Subject
					}
				}
				return rsp.Send(map[string]string{"subject": subject})
			},
		})
	}

	tokens, err := auth.NewService(secret)
	require.NoError(t, err)

	t.Run("optional authentication", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.Server.TCPStream.Enabled = boolPtr(false)
		cfg.Server.KCP.Enabled = boolPtr(false)
		cfg.Security.EnableAuthentication = true
		cfg.Security.JWTSecret = secret
		srv := startNode(t, cfg, whoami)
		endpoint := endpointFor(t, srv, rpc.TransportWS)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// A valid token becomes the connection's principal.
		token, err := tokens.Mint("alice", time.Minute, nil)
		require.NoError(t, err)
		cl := dialClient(t, endpoint, client.WithToken(token))
		reply, err := cl.SendRequest(ctx, "whoami", nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"subject":"alice"}`, string(reply.Data))

		// No token connects anonymously.
		anon := dialClient(t, endpoint)
		reply, err = anon.SendRequest(ctx, "whoami", nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"subject":""}`, string(reply.Data))

		// A presented but invalid token is refused at the upgrade.
		bad, err := client.New(endpoint, client.WithToken("garbage"))
		require.NoError(t, err)
		defer bad.Close()
		err = bad.Connect(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})

	t.Run("required authentication", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.Server.TCPStream.Enabled = boolPtr(false)
		cfg.Server.KCP.Enabled = boolPtr(false)
		cfg.Security.EnableAuthentication = true
		cfg.Security.RequireAuthenticatedUser = true
		cfg.Security.JWTSecret = secret
		srv := startNode(t, cfg, whoami)
		endpoint := endpointFor(t, srv, rpc.TransportWS)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// Anonymous upgrades are refused outright.
		anon, err := client.New(endpoint)
		require.NoError(t, err)
		defer anon.Close()
		err = anon.Connect(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")

		// Authenticated peers still connect.
		token, err := tokens.Mint("bob", time.Minute, nil)
		require.NoError(t, err)
		cl := dialClient(t, endpoint, client.WithToken(token))
		reply, err := cl.SendRequest(ctx, "whoami", nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"subject":"bob"}`, string(reply.Data))
	})
}

func TestE2E_HealthzAndMetrics(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Metrics.Enabled = true
	srv := startNode(t, cfg)

	_ = dialClient(t, endpointFor(t, srv, rpc.TransportWS))
	base := httpBase(t, srv)

	httpClient := &http.Client{Timeout: 5 * time.Second}

	var health struct {
		Status string `json:"status"`
		Data   struct {
			Service          string `json:"service"`
			TotalConnections int32  `json:"total_connections"`
			Gateways         []struct {
				Transport         string `json:"transport"`
				Port              int    `json:"port"`
				ActiveConnections int32  `json:"active_connections"`
			} `json:"gateways"`
		} `json:"data"`
	}

	// The upgrade completes before Connect returns, but the server-side
	// counter increments on its own goroutine.
	require.Eventually(t, func() bool {
		rsp, err := httpClient.Get(base + "/healthz")
		if err != nil {
			return false
		}
		defer rsp.Body.Close()
		if rsp.StatusCode != http.StatusOK {
			return false
		}
		if err := json.NewDecoder(rsp.Body).Decode(&health); err != nil {
			return false
		}
		return health.Data.TotalConnections == 1
	}, 5*time.Second, 50*time.Millisecond)

	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "triplex", health.Data.Service)
	require.Len(t, health.Data.Gateways, 3)
	for _, gw := range health.Data.Gateways {
		if gw.Transport == "ws" {
			assert.Equal(t, int32(1), gw.ActiveConnections)
		} else {
			assert.Zero(t, gw.ActiveConnections)
		}
	}

	rsp, err := httpClient.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(rsp.Body)
	rsp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rsp.StatusCode)
	assert.Contains(t, string(body), "triplex_connections_active")
}

func TestE2E_MetricsEndpointAbsentWhenDisabled(t *testing.T) {
	t.Parallel()

	srv := startNode(t, testConfig())
	base := httpBase(t, srv)

	httpClient := &http.Client{Timeout: 5 * time.Second}
	rsp, err := httpClient.Get(base + "/metrics")
	require.NoError(t, err)
	defer rsp.Body.Close()
	assert.Equal(t, http.StatusNotFound, rsp.StatusCode)
}

func TestE2E_GracefulShutdown(t *testing.T) {
	t.Parallel()

	srv, err := New(testConfig())
	require.NoError(t, err)
	RegisterDemoHandlers(srv.Router())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	endpoint := endpointFor(t, srv, rpc.TransportTCP)
	cl := dialClient(t, endpoint)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	_, err = cl.SendRequest(pingCtx, CommandPing, PingRequest{Message: "hi"})
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		// Idle connections drain inside the shutdown timeout.
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}

	// The listener is gone.
	fresh, err := client.New(endpoint, client.WithConnectTimeout(time.Second))
	require.NoError(t, err)
	defer fresh.Close()
	dialCtx, dialCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dialCancel()
	assert.Error(t, fresh.Connect(dialCtx))
}
