// Package loadbalance selects one adapter instance from a discovered set.
//
// Two strategies are implemented:
//   - RoundRobin:      equal-capacity adapter hosts
//   - WeightedRandom:  heterogeneous hosts (weight proportional to capacity)
package loadbalance

import "mini-dap/registry"

// Balancer picks the instance a new debug session should attach to.
type Balancer interface {
	// Pick selects one instance from the available list. Must be
	// goroutine-safe; clients may dial concurrently.
	Pick(instances []registry.AdapterInstance) (*registry.AdapterInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}
