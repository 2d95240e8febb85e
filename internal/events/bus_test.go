package events_test

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgekit/forgeflow/internal/events"
)

func TestEmitFanOutInSubscriptionOrder(t *testing.T) {
	bus := events.NewBus(nil)

	var order []string
	bus.On("custom:test", func(any) { order = append(order, "first") })
	bus.On("custom:test", func(any) { order = append(order, "second") })
	bus.On("custom:test", func(any) { order = append(order, "third") })

	had := bus.Emit("custom:test", nil)
	require.True(t, had)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestEmitWithoutListeners(t *testing.T) {
	bus := events.NewBus(nil)
	assert.False(t, bus.Emit("custom:nobody-home", "payload"))
}

func TestEmitDeliversPayload(t *testing.T) {
	bus := events.NewBus(nil)

	var got events.PluginLoaded
	bus.On(events.EventPluginLoaded, func(payload any) {
		got = payload.(events.PluginLoaded)
	})

	bus.Emit(events.EventPluginLoaded, events.PluginLoaded{Name: "stats", Version: "1.2.0"})
	assert.Equal(t, "stats", got.Name)
	assert.Equal(t, "1.2.0", got.Version)
}

func TestOnceFiresExactlyOnce(t *testing.T) {
	bus := events.NewBus(nil)

	calls := 0
	bus.Once("plugin:enabled", func(any) { calls++ })

	bus.Emit("plugin:enabled", events.PluginEnabled{Name: "a"})
	bus.Emit("plugin:enabled", events.PluginEnabled{Name: "b"})
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.ListenerCount("plugin:enabled"))
}

func TestOffRemovesListener(t *testing.T) {
	bus := events.NewBus(nil)

	calls := 0
	id := bus.On("custom:x", func(any) { calls++ })
	keep := 0
	bus.On("custom:x", func(any) { keep++ })

	require.True(t, bus.Off("custom:x", id))
	assert.False(t, bus.Off("custom:x", id))

	bus.Emit("custom:x", nil)
	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, keep)
}

func TestPanickingListenerDoesNotBreakDelivery(t *testing.T) {
	bus := events.NewBus(nil)

	var after bool
	bus.On("custom:boom", func(any) { panic("listener bug") })
	bus.On("custom:boom", func(any) { after = true })

	require.NotPanics(t, func() { bus.Emit("custom:boom", nil) })
	assert.True(t, after)
}

func TestManyListenersPerEvent(t *testing.T) {
	bus := events.NewBus(nil)

	var mu sync.Mutex
	seen := make(map[int]bool)
	for i := 0; i < 150; i++ {
		i := i
		bus.On("custom:crowd", func(any) {
			mu.Lock()
			seen[i] = true
			mu.Unlock()
		})
	}

	bus.Emit("custom:crowd", nil)
	assert.Len(t, seen, 150)
}

func TestIsCustom(t *testing.T) {
	assert.True(t, events.IsCustom("custom:anything"))
	assert.False(t, events.IsCustom(events.EventPluginLoaded))
	assert.False(t, events.IsCustom(fmt.Sprintf("auth:%s", "user-created")))
}

func TestEmitWarnsOnUncataloguedName(t *testing.T) {
	var buf bytes.Buffer
	bus := events.NewBus(slog.New(slog.NewTextHandler(&buf, nil)))

	delivered := false
	bus.On("plugin:lodaed", func(any) { delivered = true })

	// A typo'd name is still delivered, but flagged.
	require.True(t, bus.Emit("plugin:lodaed", nil))
	assert.True(t, delivered)
	assert.Contains(t, buf.String(), "outside catalogue")

	buf.Reset()
	bus.Emit(events.EventPluginLoaded, events.PluginLoaded{Name: "x", Version: "1"})
	bus.Emit("custom:anything-goes", nil)
	assert.NotContains(t, buf.String(), "outside catalogue")
}
