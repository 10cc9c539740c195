package loadbalance

import (
	"fmt"
	"sync/atomic"

	"mini-dap/registry"
)

// RoundRobinBalancer distributes new sessions evenly across instances in
// order, using an atomic counter for lock-free selection.
type RoundRobinBalancer struct {
	counter atomic.Int64
}

// Pick selects the next instance in round-robin order.
func (b *RoundRobinBalancer) Pick(instances []registry.AdapterInstance) (*registry.AdapterInstance, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("no adapter instances available")
	}
	index := b.counter.Add(1) % int64(len(instances))
	return &instances[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
