package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Client implements Registry over an etcd cluster.
//
// Lease renewal runs every TTL/3 in a background goroutine per registered
// worker entry. All methods are safe for concurrent use.
type Client struct {
	client    *clientv3.Client
	namespace string
	ttl       int

	mu         sync.RWMutex
	leases     map[string]clientv3.LeaseID
	cancelFns  map[string]context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
	closedChan chan struct{}
}

// NewClient connects to etcd and verifies connectivity before returning.
// Close must be called to stop keepalive goroutines.
func NewClient(cfg Config) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("registry endpoints cannot be empty")
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "flowsint"
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30
	}

	clientCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: 5 * time.Second,
	}

	if cfg.TLS != nil && cfg.TLS.Enabled {
		tlsConfig, err := clientTLSConfig(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
		clientCfg.TLS = tlsConfig
	}

	cli, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := cli.Get(ctx, "health-check"); err != nil && err != context.DeadlineExceeded {
		cli.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	return &Client{
		client:     cli,
		namespace:  namespace,
		ttl:        ttl,
		leases:     make(map[string]clientv3.LeaseID),
		cancelFns:  make(map[string]context.CancelFunc),
		closedChan: make(chan struct{}),
	}, nil
}

// NewClientFromEnv creates a client from the FLOWSINT_REGISTRY_ENDPOINTS
// environment variable (comma-separated etcd endpoints).
//
// An unset variable returns (nil, nil): the worker runs fine without being
// discoverable, which is the local-development default.
func NewClientFromEnv() (*Client, error) {
	endpoints := os.Getenv("FLOWSINT_REGISTRY_ENDPOINTS")
	if endpoints == "" {
		return nil, nil
	}

	endpointList := strings.Split(endpoints, ",")
	for i, ep := range endpointList {
		endpointList[i] = strings.TrimSpace(ep)
	}

	return NewClient(Config{
		Endpoints: endpointList,
	})
}

// entryID is the lease-tracking key for one worker entry.
func entryID(info WorkerInfo) string {
	return info.Plugin + "/" + info.WorkerID
}

// buildKey constructs the etcd key for a worker entry:
// /namespace/workers/plugin/worker-id
func (c *Client) buildKey(plugin, workerID string) string {
	return fmt.Sprintf("/%s/workers/%s/%s", c.namespace, plugin, workerID)
}

// Register adds a worker entry under a fresh lease and starts its
// keepalive goroutine. Re-registering the same entry replaces it.
func (c *Client) Register(ctx context.Context, info WorkerInfo) error {
	if info.Plugin == "" || info.WorkerID == "" {
		return fmt.Errorf("plugin and worker_id are required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("registry client is closed")
	}

	id := entryID(info)

	if cancelFn, exists := c.cancelFns[id]; exists {
		cancelFn()
		delete(c.cancelFns, id)
	}

	leaseResp, err := c.client.Grant(ctx, int64(c.ttl))
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal worker info: %w", err)
	}

	key := c.buildKey(info.Plugin, info.WorkerID)
	if _, err := c.client.Put(ctx, key, string(data), clientv3.WithLease(leaseResp.ID)); err != nil {
		return fmt.Errorf("failed to register worker: %w", err)
	}

	c.leases[id] = leaseResp.ID

	keepaliveCtx, cancel := context.WithCancel(context.Background())
	c.cancelFns[id] = cancel

	c.wg.Add(1)
	go c.keepalive(keepaliveCtx, leaseResp.ID, id)

	return nil
}

// Deregister revokes the worker entry's lease, removing it from discovery
// immediately. Unknown entries are a no-op.
func (c *Client) Deregister(ctx context.Context, info WorkerInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("registry client is closed")
	}

	id := entryID(info)

	if cancelFn, exists := c.cancelFns[id]; exists {
		cancelFn()
		delete(c.cancelFns, id)
	}

	leaseID, exists := c.leases[id]
	if !exists {
		return nil
	}

	if _, err := c.client.Revoke(ctx, leaseID); err != nil {
		return fmt.Errorf("failed to revoke lease: %w", err)
	}

	delete(c.leases, id)

	return nil
}

// Discover returns the live workers for one plugin.
func (c *Client) Discover(ctx context.Context, plugin string) ([]WorkerInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, fmt.Errorf("registry client is closed")
	}

	prefix := fmt.Sprintf("/%s/workers/%s/", c.namespace, plugin)
	return c.query(ctx, prefix)
}

// DiscoverAll returns every live worker across all plugins.
func (c *Client) DiscoverAll(ctx context.Context) ([]WorkerInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, fmt.Errorf("registry client is closed")
	}

	prefix := fmt.Sprintf("/%s/workers/", c.namespace)
	return c.query(ctx, prefix)
}

func (c *Client) query(ctx context.Context, prefix string) ([]WorkerInfo, error) {
	resp, err := c.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to discover workers: %w", err)
	}

	workers := make([]WorkerInfo, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var info WorkerInfo
		if err := json.Unmarshal(kv.Value, &info); err != nil {
			// Skip unreadable entries.
			continue
		}
		workers = append(workers, info)
	}

	return workers, nil
}

// Watch emits the current worker list for a plugin, then re-emits it on
// every change under the plugin's prefix.
func (c *Client) Watch(ctx context.Context, plugin string) (<-chan []WorkerInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, fmt.Errorf("registry client is closed")
	}

	ch := make(chan []WorkerInfo, 1)

	prefix := fmt.Sprintf("/%s/workers/%s/", c.namespace, plugin)

	workers, err := c.query(ctx, prefix)
	if err != nil {
		return nil, err
	}
	ch <- workers

	watchChan := c.client.Watch(ctx, prefix, clientv3.WithPrefix())

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.closedChan:
				return
			case watchResp, ok := <-watchChan:
				if !ok {
					return
				}
				if watchResp.Err() != nil {
					return
				}

				workers, err := c.query(context.Background(), prefix)
				if err != nil {
					continue
				}

				select {
				case ch <- workers:
				case <-ctx.Done():
					return
				case <-c.closedChan:
					return
				}
			}
		}
	}()

	return ch, nil
}

// Close stops all keepalives and watches and closes the etcd connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true

	for _, cancel := range c.cancelFns {
		cancel()
	}
	c.cancelFns = make(map[string]context.CancelFunc)

	close(c.closedChan)
	c.mu.Unlock()

	c.wg.Wait()

	return c.client.Close()
}

// keepalive renews the lease every TTL/3 until the entry is deregistered,
// the client is closed, or the lease becomes invalid.
func (c *Client) keepalive(ctx context.Context, leaseID clientv3.LeaseID, id string) {
	defer c.wg.Done()

	interval := time.Duration(c.ttl) * time.Second / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closedChan:
			return
		case <-ticker.C:
			if _, err := c.client.KeepAliveOnce(context.Background(), leaseID); err != nil {
				c.mu.Lock()
				delete(c.leases, id)
				delete(c.cancelFns, id)
				c.mu.Unlock()
				return
			}
		}
	}
}
