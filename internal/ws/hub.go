package ws

import (
	"encoding/json"
	"sync"
)

// Hub is the client binding table and broadcast router. It maps each live
// connection to the tab it currently watches and fans messages out either to
// the watchers of one tab or to every connection. A connection has at most
// one binding at a time; last bind wins.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]string // bound tab id, "" while unbound
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]string)}
}

// Register adds a connection with no binding yet.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = ""
}

// Unregister removes a connection and its binding. Called on disconnect.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.Close()
}

// Bind sets or overwrites the tab a connection watches. Binds always
// originate from operations that just created or confirmed the tab, so no
// existence check happens here; a binding gone stale by a concurrent close
// is corrected reactively by the close flow.
func (h *Hub) Bind(c *Client, tabID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		h.clients[c] = tabID
	}
}

// Binding returns the tab a connection currently watches.
func (h *Hub) Binding(c *Client) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	tabID, ok := h.clients[c]
	if !ok || tabID == "" {
		return "", false
	}
	return tabID, true
}

// BoundTo returns the connections currently watching a tab.
func (h *Hub) BoundTo(tabID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*Client
	for c, bound := range h.clients {
		if bound == tabID {
			out = append(out, c)
		}
	}
	return out
}

// BroadcastScoped delivers data only to connections bound to tabID. This is
// what keeps one tab's stream out of another tab's transcript.
func (h *Hub) BroadcastScoped(tabID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c, bound := range h.clients {
		if bound == tabID {
			c.Send(data)
		}
	}
}

// BroadcastAll delivers data to every connection regardless of binding.
// Reserved for registry-wide facts: tab lists and correlated requests.
func (h *Hub) BroadcastAll(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.Send(data)
	}
}

// BroadcastAllMessage marshals v and delivers it to every connection.
func (h *Hub) BroadcastAllMessage(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.BroadcastAll(data)
	return nil
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close closes every client and empties the table.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*Client]string)
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
