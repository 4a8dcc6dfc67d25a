package wsconn

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/agilecore/boardsyncd/internal/broadcast"
	"github.com/agilecore/boardsyncd/internal/idempotency"
	"github.com/agilecore/boardsyncd/internal/registry"
	"github.com/agilecore/boardsyncd/internal/storage"
	"github.com/agilecore/boardsyncd/internal/wire"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func newTestServer(t *testing.T) (*httptest.Server, *idempotency.Store, *broadcast.Broadcaster) {
	t.Helper()
	db := storage.NewTestDB(t)
	idem, err := idempotency.NewStore(100, time.Minute)
	require.NoError(t, err)
	t.Cleanup(idem.Close)
	bc := broadcast.NewBroadcaster(16)
	reg := registry.NewRegistry(100, 100)

	deps := Deps{
		Broadcaster:            bc,
		Idempotency:            idem,
		RequestTimeout:         time.Second,
		HeartbeatInterval:      time.Minute,
		RateLimitWindow:        time.Minute,
		RateLimitMax:           1000,
		RateLimitMaxViolations: 3,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		guard, err := reg.TryRegister("acme", "conn-1")
		if err != nil {
			ws.Close()
			return
		}
		c := New("conn-1", "acme", "u1", ws, db, guard, deps)
		c.Run(make(chan struct{}))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, idem, bc
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, messageID string, kind wire.Kind, payload interface{}) {
	t.Helper()
	env, err := wire.NewEnvelope(messageID, kind, time.Now().UnixMilli(), payload)
	require.NoError(t, err)
	encoded, err := wire.Encode(env)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, encoded))
}

func readEnvelope(t *testing.T, conn *websocket.Conn) *wire.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := wire.Decode(data)
	require.NoError(t, err)
	return env
}

func TestPingReturnsPongEchoingTimestamp(t *testing.T) {
	srv, _, _ := newTestServer(t)
	conn := dial(t, srv)

	ts := time.Now().UnixMilli()
	sendEnvelope(t, conn, "m1", wire.KindPing, wire.PingRequest{Timestamp: ts})

	env := readEnvelope(t, conn)
	require.Equal(t, wire.KindPong, env.Kind)

	var pong wire.PongEvent
	require.NoError(t, json.Unmarshal(env.Payload, &pong))
	require.Equal(t, ts, pong.ClientTimestamp)
}

func TestNonBinaryFrameClosesConnection(t *testing.T) {
	srv, _, _ := newTestServer(t)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not a frame")))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok)
	require.Equal(t, string(CloseProtocolError), closeErr.Text)
}

func TestCreateProjectRoundTripsThroughSocket(t *testing.T) {
	srv, _, _ := newTestServer(t)
	conn := dial(t, srv)

	sendEnvelope(t, conn, "create-1", wire.KindCreateProject, wire.CreateProjectRequest{Title: "Roadmap"})

	env := readEnvelope(t, conn)
	require.Equal(t, wire.KindProjectCreated, env.Kind)
	require.Equal(t, "create-1", env.MessageID)
}

func TestRateLimitedConnectionIsClosedAfterViolations(t *testing.T) {
	db := storage.NewTestDB(t)
	idem, err := idempotency.NewStore(100, time.Minute)
	require.NoError(t, err)
	t.Cleanup(idem.Close)
	bc := broadcast.NewBroadcaster(16)
	reg := registry.NewRegistry(100, 100)

	deps := Deps{
		Broadcaster:            bc,
		Idempotency:            idem,
		RequestTimeout:         time.Second,
		HeartbeatInterval:      time.Minute,
		RateLimitWindow:        time.Hour,
		RateLimitMax:           1,
		RateLimitMaxViolations: 2,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		guard, err := reg.TryRegister("acme", "conn-2")
		if err != nil {
			ws.Close()
			return
		}
		c := New("conn-2", "acme", "u1", ws, db, guard, deps)
		c.Run(make(chan struct{}))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	conn := dial(t, srv)

	for i := 0; i < 3; i++ {
		sendEnvelope(t, conn, "ping", wire.KindPing, wire.PingRequest{Timestamp: time.Now().UnixMilli()})
	}

	sawClose := false
	for i := 0; i < 5; i++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err := conn.ReadMessage()
		if err != nil {
			if _, ok := err.(*websocket.CloseError); ok {
				sawClose = true
			}
			break
		}
	}
	require.True(t, sawClose, "connection should be closed after exceeding the violation budget")
}
