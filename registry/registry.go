// Package registry provides discovery of named debug adapters. Teams that run
// shared debugging infrastructure (e.g. remote adapters for embedded targets)
// register each listener under the adapter's name; clients discover an
// address to attach to instead of hardcoding one.
package registry

// AdapterInstance describes one reachable listener for a named adapter.
type AdapterInstance struct {
	Addr    string // host:port accepting framed protocol traffic
	Weight  int    // relative capacity, consumed by load balancing
	Version string
}

// Registry is the discovery interface. Implementations must be safe for
// concurrent use.
type Registry interface {
	Register(adapterName string, instance AdapterInstance, ttl int64) error
	Deregister(adapterName string, addr string) error
	Discover(adapterName string) ([]AdapterInstance, error)
	Watch(adapterName string) <-chan []AdapterInstance
}
