package channel

import (
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"

	"chatbridge/pkg/message"
)

// Registry maps channel names to adapters. Adapters are registered at
// startup and never swapped at runtime; lookups are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[message.Channel]Adapter
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[message.Channel]Adapter)}
}

// Register adds adapter under its channel name. Registering the same channel
// twice is a wiring bug and fails.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("nil adapter")
	}

	name := adapter.Name()
	if !name.Known() {
		return fmt.Errorf("register adapter: unknown channel %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("register adapter: channel %q already registered", name)
	}
	r.adapters[name] = adapter
	return nil
}

// Get returns the adapter for channel, if one is registered.
func (r *Registry) Get(channel message.Channel) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[channel]
	return adapter, ok
}

// Capabilities returns the content kinds the channel's adapter can send, or
// nil when no adapter is registered.
func (r *Registry) Capabilities(channel message.Channel) []message.ContentKind {
	adapter, ok := r.Get(channel)
	if !ok {
		return nil
	}
	return adapter.Capabilities()
}

// Channels lists registered channel names in stable order.
func (r *Registry) Channels() []message.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := lo.Keys(r.adapters)
	slices.Sort(names)
	return names
}

// Adapters returns the registered adapters in channel order.
func (r *Registry) Adapters() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ordered := lo.Keys(r.adapters)
	slices.Sort(ordered)
	return lo.Map(ordered, func(name message.Channel, _ int) Adapter {
		return r.adapters[name]
	})
}
