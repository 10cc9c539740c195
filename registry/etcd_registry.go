// etcd-backed Registry. Adapter hosts register under
//
//	Key:   /mini-dap/{AdapterName}/{Addr}
//	Value: JSON-encoded AdapterInstance
//
// Registration uses TTL-based leases: if the host crashes, the lease expires
// and the entry disappears on its own, so clients never discover a dead
// listener for long.
package registry

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const keyPrefix = "/mini-dap/"

// EtcdRegistry implements Registry using etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c}, nil
}

// Register stores an adapter instance with a TTL lease and keeps the lease
// alive in the background until the client connection drops.
func (r *EtcdRegistry) Register(adapterName string, instance AdapterInstance, ttl int64) error {
	ctx := context.TODO()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, keyPrefix+adapterName+"/"+instance.Addr, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}

	// Drain keepalive acks so the channel never fills.
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister removes an adapter instance, typically during graceful shutdown
// of the adapter host.
func (r *EtcdRegistry) Deregister(adapterName string, addr string) error {
	_, err := r.client.Delete(context.TODO(), keyPrefix+adapterName+"/"+addr)
	return err
}

// Watch emits the updated instance list whenever the set of listeners for an
// adapter changes (registration, deregistration, lease expiry).
func (r *EtcdRegistry) Watch(adapterName string) <-chan []AdapterInstance {
	ctx := context.TODO()
	ch := make(chan []AdapterInstance, 1)
	prefix := keyPrefix + adapterName + "/"

	go func() {
		watchChan := r.client.Watch(ctx, prefix, clientv3.WithPrefix())
		for range watchChan {
			// Re-fetch the full list on any change rather than folding
			// individual watch events into local state.
			instances, _ := r.Discover(adapterName)
			ch <- instances
		}
	}()

	return ch
}

// Discover returns all currently registered instances for an adapter name.
func (r *EtcdRegistry) Discover(adapterName string) ([]AdapterInstance, error) {
	resp, err := r.client.Get(context.TODO(), keyPrefix+adapterName+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]AdapterInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance AdapterInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			continue // skip malformed entries
		}
		instances = append(instances, instance)
	}
	return instances, nil
}
