package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picksy/syncd/internal/models"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Serve(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := hub.NewClient(r.URL.Query().Get("id"), conn)
		if err := hub.Register(r.Context(), client); err != nil {
			return
		}
		go client.WritePump()
		client.ReadPump()
	}))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestHubBroadcastsLibrary(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url+"?id=a")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.EmitLibrary([]models.PhotoPayload{{ID: "p1", Filename: "a.jpg", SyncStatus: models.SyncStatusPending}})

	msg := readJSON(t, conn)
	assert.Equal(t, CommandSetLibrary, msg["command"])
	photos, ok := msg["photos"].([]any)
	require.True(t, ok)
	require.Len(t, photos, 1)
	assert.Equal(t, "p1", photos[0].(map[string]any)["id"])
	assert.Equal(t, "pending", photos[0].(map[string]any)["sync_status"])
}

func TestHubTopicFilter(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url+"?id=b")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageSubscribe, Topic: TopicPresence}))
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessagePing}))
	pong := readJSON(t, conn)
	assert.Equal(t, MessagePong, pong["type"])

	hub.EmitLibrary(nil)
	hub.EmitPresence(models.PresenceGraph{LocalPeer: models.Peer{PeerKey: "local"}})

	msg := readJSON(t, conn)
	assert.Equal(t, CommandPresence, msg["command"])
	assert.Equal(t, "local", msg["local_peer"].(map[string]any)["peer_key"])
	assert.Equal(t, []any{}, msg["remote_peers"])
}

func TestNewLibraryEventNeverNull(t *testing.T) {
	data, err := json.Marshal(NewLibraryEvent(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"SetLibrary","photos":[]}`, string(data))
}

func TestMultiAndRecorder(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	m := Multi{a, b}
	m.EmitLibrary([]models.PhotoPayload{{ID: "x"}})
	m.EmitPresence(models.PresenceGraph{})

	for _, r := range []*Recorder{a, b} {
		require.Len(t, r.Library(), 1)
		assert.Equal(t, "x", r.LastLibrary()[0].ID)
		assert.Len(t, r.Presence(), 1)
	}
}
