package ws

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

// drain empties a client's queue, returning everything delivered so far.
func drain(c *Client) []string {
	var out []string
	for {
		select {
		case msg, ok := <-c.SendChan():
			if !ok {
				return out
			}
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestHub_BindAndRebind(t *testing.T) {
	h := NewHub()
	c := NewClient(nil)
	h.Register(c)

	_, ok := h.Binding(c)
	assert.False(t, ok, "fresh connection has no binding")

	h.Bind(c, "tab-1")
	tabID, ok := h.Binding(c)
	assert.True(t, ok)
	assert.Equal(t, "tab-1", tabID)

	// Last bind wins.
	h.Bind(c, "tab-2")
	tabID, _ = h.Binding(c)
	assert.Equal(t, "tab-2", tabID)

	h.Unregister(c)
	_, ok = h.Binding(c)
	assert.False(t, ok)
}

func TestHub_BindUnregisteredConnectionIsNoop(t *testing.T) {
	h := NewHub()
	c := NewClient(nil)

	h.Bind(c, "tab-1")
	_, ok := h.Binding(c)
	assert.False(t, ok)
	assert.Equal(t, 0, h.ClientCount())
}

func TestHub_ScopedDeliveryAndAll(t *testing.T) {
	h := NewHub()
	watcher := NewClient(nil)
	other := NewClient(nil)
	unbound := NewClient(nil)
	h.Register(watcher)
	h.Register(other)
	h.Register(unbound)
	h.Bind(watcher, "tab-1")
	h.Bind(other, "tab-2")

	h.BroadcastScoped("tab-1", []byte("scoped"))
	assert.Equal(t, []string{"scoped"}, drain(watcher))
	assert.Empty(t, drain(other))
	assert.Empty(t, drain(unbound))

	h.BroadcastAll([]byte("global"))
	assert.Equal(t, []string{"global"}, drain(watcher))
	assert.Equal(t, []string{"global"}, drain(other))
	assert.Equal(t, []string{"global"}, drain(unbound))
}

func TestHub_SendToClosedClientIsSilent(t *testing.T) {
	h := NewHub()
	c := NewClient(nil)
	h.Register(c)
	h.Bind(c, "tab-1")
	c.Close()

	// Must not panic or error; closing concurrently with a broadcast is
	// expected.
	h.BroadcastScoped("tab-1", []byte("late"))
	h.BroadcastAll([]byte("late"))
	assert.True(t, c.IsClosed())
}

// For all tabs T1 != T2, an event for T2 is never delivered to a connection
// bound to T1.
func TestHub_ScopingProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("scoped broadcasts never leak across tabs", prop.ForAll(
		func(bindings []int, target int) bool {
			h := NewHub()
			defer h.Close()

			tabOf := func(n int) string { return fmt.Sprintf("tab-%d", n) }

			clients := make([]*Client, len(bindings))
			for i, b := range bindings {
				clients[i] = NewClient(nil)
				h.Register(clients[i])
				h.Bind(clients[i], tabOf(b))
			}

			payload := "event-for-" + tabOf(target)
			h.BroadcastScoped(tabOf(target), []byte(payload))

			for i, b := range bindings {
				got := drain(clients[i])
				if b == target {
					if len(got) != 1 || got[0] != payload {
						return false
					}
				} else if len(got) != 0 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 4)),
		gen.IntRange(0, 4),
	))

	properties.Property("broadcast-all reaches every connection", prop.ForAll(
		func(numClients int) bool {
			h := NewHub()
			defer h.Close()

			clients := make([]*Client, numClients)
			for i := range clients {
				clients[i] = NewClient(nil)
				h.Register(clients[i])
				if i%2 == 0 {
					h.Bind(clients[i], fmt.Sprintf("tab-%d", i))
				}
			}

			h.BroadcastAll([]byte("global"))

			for _, c := range clients {
				if got := drain(c); len(got) != 1 || got[0] != "global" {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}

func TestHub_Close(t *testing.T) {
	h := NewHub()
	c1 := NewClient(nil)
	c2 := NewClient(nil)
	h.Register(c1)
	h.Register(c2)

	h.Close()
	assert.Equal(t, 0, h.ClientCount())

	assert.Eventually(t, func() bool {
		return c1.IsClosed() && c2.IsClosed()
	}, time.Second, time.Millisecond)
}
