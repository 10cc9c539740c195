package registry

import (
	"fmt"
	"sync"
)

// StaticRegistry is an in-memory Registry for setups without a discovery
// backend: fixed fleets, local development, and tests.
type StaticRegistry struct {
	mu        sync.RWMutex
	instances map[string][]AdapterInstance
	watchers  map[string][]chan []AdapterInstance
}

// NewStaticRegistry creates an empty StaticRegistry.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		instances: make(map[string][]AdapterInstance),
		watchers:  make(map[string][]chan []AdapterInstance),
	}
}

// Register adds an instance. The ttl is ignored; static entries live until
// deregistered.
func (r *StaticRegistry) Register(adapterName string, instance AdapterInstance, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.instances[adapterName] {
		if existing.Addr == instance.Addr {
			r.instances[adapterName][i] = instance
			r.notifyLocked(adapterName)
			return nil
		}
	}
	r.instances[adapterName] = append(r.instances[adapterName], instance)
	r.notifyLocked(adapterName)
	return nil
}

// Deregister removes the instance with the given address.
func (r *StaticRegistry) Deregister(adapterName string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.instances[adapterName]
	for i, existing := range list {
		if existing.Addr == addr {
			r.instances[adapterName] = append(list[:i], list[i+1:]...)
			r.notifyLocked(adapterName)
			return nil
		}
	}
	return fmt.Errorf("no instance %q registered for adapter %q", addr, adapterName)
}

// Discover returns a copy of the instance list for an adapter name.
func (r *StaticRegistry) Discover(adapterName string) ([]AdapterInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.instances[adapterName]
	out := make([]AdapterInstance, len(list))
	copy(out, list)
	return out, nil
}

// Watch emits the updated instance list after every Register or Deregister
// for the adapter name.
func (r *StaticRegistry) Watch(adapterName string) <-chan []AdapterInstance {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan []AdapterInstance, 1)
	r.watchers[adapterName] = append(r.watchers[adapterName], ch)
	return ch
}

func (r *StaticRegistry) notifyLocked(adapterName string) {
	list := r.instances[adapterName]
	for _, ch := range r.watchers[adapterName] {
		snapshot := make([]AdapterInstance, len(list))
		copy(snapshot, list)
		select {
		case ch <- snapshot:
		default: // slow watcher, drop this update
		}
	}
}
