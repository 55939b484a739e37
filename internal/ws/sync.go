package ws

import (
	"encoding/json"
	"log"

	"github.com/agent-console/backend/internal/model"
	"github.com/agent-console/backend/internal/tab"
)

// BuildSync serializes a tab's full current state into the snapshot a
// reconnecting or switching viewer rebuilds its view from. Side-effect-free:
// two calls with no intervening runtime activity yield equal output.
func BuildSync(h *tab.Handle) StateSync {
	rt := h.Runtime()
	msgs := rt.Messages()
	if msgs == nil {
		msgs = []model.Message{}
	}
	return StateSync{
		Type:      MsgStateSync,
		TabID:     h.ID(),
		Messages:  msgs,
		Streaming: rt.Streaming(),
		ModelID:   rt.ModelID(),
		SessionID: rt.SessionID(),
	}
}

// sendSync unicasts a state sync to one connection. Syncs are never
// broadcast; each goes only to the connection being reconciled.
func sendSync(c *Client, h *tab.Handle) {
	data, err := json.Marshal(BuildSync(h))
	if err != nil {
		log.Printf("marshal state sync for tab %s: %v", h.ID(), err)
		return
	}
	c.Send(data)
}
