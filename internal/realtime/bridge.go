package realtime

import (
	"github.com/forgekit/forgeflow/internal/events"
)

// BindBus forwards the plugin lifecycle catalogue and the shutdown event to
// every connected websocket client.
func BindBus(hub *Hub, bus *events.Bus) {
	if hub == nil || bus == nil {
		return
	}
	forward := func(name string) {
		bus.On(name, func(payload any) {
			hub.Broadcast(name, payload)
		})
	}
	forward(events.EventPluginLoaded)
	forward(events.EventPluginEnabled)
	forward(events.EventPluginDisabled)
	forward(events.EventPluginUnloaded)
	forward(events.EventShutdown)
}
