// Package events provides the in-process publish/subscribe bus shared by the
// plugin lifecycle machinery and the plugins themselves.
//
// Dispatch is synchronous: Emit returns after every listener registered at
// the time of the call has been invoked, in subscription order. A panicking
// listener is recovered and logged so it cannot break delivery to the rest.
package events

import (
	"log/slog"
	"strings"
	"sync"
)

// System event names. Payload shapes are the typed structs below.
const (
	EventPluginLoaded   = "plugin:loaded"
	EventPluginEnabled  = "plugin:enabled"
	EventPluginDisabled = "plugin:disabled"
	EventPluginUnloaded = "plugin:unloaded"
	EventShutdown       = "system:shutdown"
	EventHealthCheck    = "system:health-check"
)

// CustomPrefix is the namespace reserved for free-form plugin events.
const CustomPrefix = "custom:"

// PluginLoaded is the payload for EventPluginLoaded.
type PluginLoaded struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// PluginEnabled is the payload for EventPluginEnabled.
type PluginEnabled struct {
	Name string `json:"name"`
}

// PluginDisabled is the payload for EventPluginDisabled.
type PluginDisabled struct {
	Name string `json:"name"`
}

// PluginUnloaded is the payload for EventPluginUnloaded.
type PluginUnloaded struct {
	Name string `json:"name"`
}

// Shutdown is the payload for EventShutdown.
type Shutdown struct {
	Reason string `json:"reason"`
}

// HealthCheck is the payload for EventHealthCheck.
type HealthCheck struct {
	Status string `json:"status"`
}

// IsCustom reports whether name falls in the free-form custom namespace.
func IsCustom(name string) bool {
	return strings.HasPrefix(name, CustomPrefix)
}

var catalogue = map[string]struct{}{
	EventPluginLoaded:   {},
	EventPluginEnabled:  {},
	EventPluginDisabled: {},
	EventPluginUnloaded: {},
	EventShutdown:       {},
	EventHealthCheck:    {},
}

// knownName accepts the fixed catalogue plus the custom namespace.
func knownName(name string) bool {
	if _, ok := catalogue[name]; ok {
		return true
	}
	return IsCustom(name)
}

// Listener receives the payload passed to Emit.
type Listener func(payload any)

type subscription struct {
	id   uint64
	fn   Listener
	once bool
}

// Bus is a typed publish/subscribe hub keyed by event name.
//
// The listener table is guarded by a RWMutex: hooks run from a single
// goroutine, but HTTP handlers and plugin goroutines may emit concurrently.
type Bus struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[string][]*subscription
	log       *slog.Logger
}

// NewBus creates an empty bus. If logger is nil, slog.Default is used.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		listeners: make(map[string][]*subscription),
		log:       logger.With("component", "event-bus"),
	}
}

// On subscribes fn to the named event and returns a subscription id usable
// with Off. Listeners fire in subscription order.
func (b *Bus) On(name string, fn Listener) uint64 {
	return b.subscribe(name, fn, false)
}

// Once subscribes fn for a single delivery. The subscription is removed
// before fn is invoked.
func (b *Bus) Once(name string, fn Listener) uint64 {
	return b.subscribe(name, fn, true)
}

func (b *Bus) subscribe(name string, fn Listener, once bool) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.listeners[name] = append(b.listeners[name], &subscription{id: b.nextID, fn: fn, once: once})
	return b.nextID
}

// Off removes the subscription with the given id from the named event.
// It reports whether a subscription was removed.
func (b *Bus) Off(name string, id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.listeners[name]
	for i, s := range subs {
		if s.id == id {
			b.listeners[name] = append(subs[:i:i], subs[i+1:]...)
			if len(b.listeners[name]) == 0 {
				delete(b.listeners, name)
			}
			return true
		}
	}
	return false
}

// Emit synchronously delivers payload to every listener currently subscribed
// to name, in subscription order, and reports whether any listener existed.
// Names outside the catalogue and the custom: namespace are delivered anyway
// but logged, since they are usually a typo'd constant.
func (b *Bus) Emit(name string, payload any) bool {
	if !knownName(name) {
		b.log.Warn("event name outside catalogue and custom namespace", "event", name)
	}
	b.mu.Lock()
	subs := b.listeners[name]
	if len(subs) == 0 {
		b.mu.Unlock()
		return false
	}
	snapshot := make([]*subscription, len(subs))
	copy(snapshot, subs)
	remaining := subs[:0:0]
	for _, s := range subs {
		if !s.once {
			remaining = append(remaining, s)
		}
	}
	if len(remaining) == 0 {
		delete(b.listeners, name)
	} else {
		b.listeners[name] = remaining
	}
	b.mu.Unlock()

	for _, s := range snapshot {
		b.dispatch(name, s, payload)
	}
	return true
}

func (b *Bus) dispatch(name string, s *subscription, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event listener panicked", "event", name, "panic", r)
		}
	}()
	s.fn(payload)
}

// ListenerCount returns the number of listeners currently subscribed to name.
func (b *Bus) ListenerCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[name])
}
