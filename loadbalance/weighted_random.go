package loadbalance

import (
	"fmt"
	"math/rand"

	"mini-dap/registry"
)

// WeightedRandomBalancer picks instances with probability proportional to
// their registered weight. Instances with non-positive weight are never
// picked unless every weight is non-positive, in which case selection falls
// back to uniform.
type WeightedRandomBalancer struct{}

// Pick selects an instance by weighted random draw.
func (b *WeightedRandomBalancer) Pick(instances []registry.AdapterInstance) (*registry.AdapterInstance, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("no adapter instances available")
	}

	totalWeight := 0
	for _, inst := range instances {
		if inst.Weight > 0 {
			totalWeight += inst.Weight
		}
	}
	if totalWeight == 0 {
		return &instances[rand.Intn(len(instances))], nil
	}

	r := rand.Intn(totalWeight)
	for i := range instances {
		if instances[i].Weight <= 0 {
			continue
		}
		r -= instances[i].Weight
		if r < 0 {
			return &instances[i], nil
		}
	}
	return nil, fmt.Errorf("unexpected fall-through in weighted random selection")
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
