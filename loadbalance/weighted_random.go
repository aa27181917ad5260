package loadbalance

import (
	"math/rand"

	"dubbo-rpc/message"
	"dubbo-rpc/registry"
)

type WeightedRandomBalancer struct{}

// Pick 按权重随机选择；权重都不大于 0 时退化为均匀随机
func (b *WeightedRandomBalancer) Pick(instances []registry.ServiceInstance, _ *message.Request) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	totalWeight := 0
	for _, v := range instances {
		if v.Weight > 0 {
			totalWeight += v.Weight
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
	return &instances[len(instances)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
