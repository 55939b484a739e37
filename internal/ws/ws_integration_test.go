package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dial connects a real WebSocket client to a test server running the full
// handler stack.
func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readTyped(t *testing.T, conn *websocket.Conn, msgType string) json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var probe struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(data, &probe))
		if probe.Type == msgType {
			return data
		}
	}
}

func writeCommand(t *testing.T, conn *websocket.Conn, cmd Command) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(cmd))
}

func TestIntegration_ConnectSwitchAndClose(t *testing.T) {
	f := newFixture(t)
	handler := NewHandler(f.dispatcher)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.HandleConnection(w, r)
	}))
	defer server.Close()

	conn := dial(t, server)

	// Accepting a connection binds it to the first tab and syncs it.
	var sync StateSync
	require.NoError(t, json.Unmarshal(readTyped(t, conn, MsgStateSync), &sync))
	first, _ := f.registry.First()
	assert.Equal(t, first.ID(), sync.TabID)

	// Opening a new tab announces the list and syncs the requester.
	writeCommand(t, conn, Command{Type: CmdNewSession})
	var update TabsUpdate
	require.NoError(t, json.Unmarshal(readTyped(t, conn, MsgTabsUpdate), &update))
	require.Len(t, update.Tabs, 2)
	require.NoError(t, json.Unmarshal(readTyped(t, conn, MsgStateSync), &sync))
	assert.Equal(t, update.Tabs[1].ID, sync.TabID)

	// A scoped event for the watched tab arrives verbatim.
	f.hub.BroadcastScoped(update.Tabs[1].ID, []byte(`{"type":"text_delta","text":"hi"}`))
	delta := readTyped(t, conn, "text_delta")
	assert.JSONEq(t, `{"type":"text_delta","text":"hi"}`, string(delta))

	// Closing the watched tab rebinds and re-syncs to the survivor.
	writeCommand(t, conn, Command{Type: CmdCloseTab, TabID: update.Tabs[1].ID})
	require.NoError(t, json.Unmarshal(readTyped(t, conn, MsgStateSync), &sync))
	assert.Equal(t, update.Tabs[0].ID, sync.TabID)
}

func TestIntegration_TwoViewersScoping(t *testing.T) {
	f := newFixture(t)
	handler := NewHandler(f.dispatcher)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.HandleConnection(w, r)
	}))
	defer server.Close()

	viewerA := dial(t, server)
	readTyped(t, viewerA, MsgStateSync)
	viewerB := dial(t, server)
	readTyped(t, viewerB, MsgStateSync)

	// Move viewer B to its own tab.
	writeCommand(t, viewerB, Command{Type: CmdNewSession})
	var update TabsUpdate
	require.NoError(t, json.Unmarshal(readTyped(t, viewerB, MsgTabsUpdate), &update))
	readTyped(t, viewerB, MsgStateSync)
	readTyped(t, viewerA, MsgTabsUpdate)

	// Events for B's tab reach only B; ping/pong proves nothing else was
	// queued for A.
	f.hub.BroadcastScoped(update.Tabs[1].ID, []byte(`{"type":"text_delta","text":"secret"}`))
	readTyped(t, viewerB, "text_delta")

	writeCommand(t, viewerA, Command{Type: CmdPing})
	var probe struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(readTyped(t, viewerA, MsgPong), &probe))
	assert.Equal(t, MsgPong, probe.Type)
}
