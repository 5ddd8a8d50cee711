package queue

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client is the interface to the Redis-backed scan queues.
type Client interface {
	// Push adds a scan item to the end of a plugin's queue (LPUSH).
	Push(ctx context.Context, item ScanItem) error

	// Pop removes and returns a scan item from the front of a plugin's
	// queue (BRPOP). Blocks until an item is available or the context is
	// cancelled.
	Pop(ctx context.Context, pluginName string) (*ScanItem, error)

	// Publish sends a scan result to the job's result channel.
	Publish(ctx context.Context, result ScanResult) error

	// Subscribe creates a subscription to a job's result channel.
	// The returned channel receives results until ctx is cancelled.
	Subscribe(ctx context.Context, jobID string) (<-chan ScanResult, error)

	// RegisterPlugin writes plugin metadata and adds it to the available
	// set for discovery.
	RegisterPlugin(ctx context.Context, meta PluginMeta) error

	// ListPlugins returns metadata for every registered plugin.
	ListPlugins(ctx context.Context) ([]PluginMeta, error)

	// Heartbeat refreshes a plugin's worker health key with a 30s TTL.
	Heartbeat(ctx context.Context, pluginName string) error

	// WorkerCount returns the current worker count for a plugin.
	WorkerCount(ctx context.Context, pluginName string) (int, error)

	// IncrementWorkers increments the worker count for a plugin.
	IncrementWorkers(ctx context.Context, pluginName string) error

	// DecrementWorkers decrements the worker count for a plugin.
	DecrementWorkers(ctx context.Context, pluginName string) error

	// Close closes the Redis connection.
	Close() error
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379").
	URL string

	// TLS configuration for secure connections.
	TLS *tls.Config

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration

	// ReadTimeout bounds read operations.
	ReadTimeout time.Duration

	// WriteTimeout bounds write operations.
	WriteTimeout time.Duration
}

// RedisClient implements Client using go-redis/v9.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a queue client and verifies connectivity with a
// ping before returning.
func NewRedisClient(opts RedisOptions) (*RedisClient, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// NewRedisClientFrom wraps an existing go-redis client. Used by tests with
// an in-process Redis.
func NewRedisClientFrom(client *redis.Client) *RedisClient {
	return &RedisClient{client: client}
}

func queueKey(pluginName string) string {
	return fmt.Sprintf("scan:%s:queue", pluginName)
}

func resultsChannel(jobID string) string {
	return fmt.Sprintf("scan:%s:results", jobID)
}

func metaKey(pluginName string) string {
	return fmt.Sprintf("plugin:%s:meta", pluginName)
}

// Push adds a scan item to the end of its plugin's queue.
func (c *RedisClient) Push(ctx context.Context, item ScanItem) error {
	if err := item.IsValid(); err != nil {
		return fmt.Errorf("invalid scan item: %w", err)
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal scan item: %w", err)
	}

	key := queueKey(item.Plugin)
	if err := c.client.LPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("failed to push to queue %s: %w", key, err)
	}

	return nil
}

// Pop removes and returns a scan item from the front of a plugin's queue.
// Blocks until an item is available or the context is cancelled.
func (c *RedisClient) Pop(ctx context.Context, pluginName string) (*ScanItem, error) {
	key := queueKey(pluginName)

	// BRPOP returns [queue_name, value] or redis.Nil on timeout.
	result, err := c.client.BRPop(ctx, 0, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop from queue %s: %w", key, err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP result length: %d", len(result))
	}

	var item ScanItem
	if err := json.Unmarshal([]byte(result[1]), &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scan item: %w", err)
	}

	return &item, nil
}

// Publish sends a scan result to the job's result channel.
func (c *RedisClient) Publish(ctx context.Context, result ScanResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal scan result: %w", err)
	}

	channel := resultsChannel(result.JobID)
	if err := c.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", channel, err)
	}

	return nil
}

// Subscribe creates a subscription to a job's result channel.
func (c *RedisClient) Subscribe(ctx context.Context, jobID string) (<-chan ScanResult, error) {
	channel := resultsChannel(jobID)
	pubsub := c.client.Subscribe(ctx, channel)

	// Wait for subscription confirmation so no result slips past.
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("failed to subscribe to channel %s: %w", channel, err)
	}

	resultChan := make(chan ScanResult)

	go func() {
		defer close(resultChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var result ScanResult
				if err := json.Unmarshal([]byte(msg.Payload), &result); err != nil {
					continue
				}

				select {
				case resultChan <- result:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return resultChan, nil
}

// RegisterPlugin writes plugin metadata and adds it to the available set.
func (c *RedisClient) RegisterPlugin(ctx context.Context, meta PluginMeta) error {
	if err := meta.IsValid(); err != nil {
		return fmt.Errorf("invalid plugin metadata: %w", err)
	}

	// Flat string map for HSET.
	metaMap := map[string]string{
		"name":         meta.Name,
		"category":     meta.Category,
		"description":  meta.Description,
		"input_kind":   meta.InputKind,
		"output_kind":  meta.OutputKind,
		"worker_count": strconv.Itoa(meta.WorkerCount),
	}

	args := make([]interface{}, 0, len(metaMap)*2)
	for k, v := range metaMap {
		args = append(args, k, v)
	}
	if err := c.client.HSet(ctx, metaKey(meta.Name), args...).Err(); err != nil {
		return fmt.Errorf("failed to set plugin metadata: %w", err)
	}

	if err := c.client.SAdd(ctx, "plugins:available", meta.Name).Err(); err != nil {
		return fmt.Errorf("failed to add plugin to available set: %w", err)
	}

	return nil
}

// ListPlugins returns metadata for every registered plugin. Plugins with
// missing or unreadable metadata are skipped rather than failing the list.
func (c *RedisClient) ListPlugins(ctx context.Context) ([]PluginMeta, error) {
	names, err := c.client.SMembers(ctx, "plugins:available").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get available plugins: %w", err)
	}

	plugins := make([]PluginMeta, 0, len(names))

	for _, name := range names {
		metaMap, err := c.client.HGetAll(ctx, metaKey(name)).Result()
		if err != nil || len(metaMap) == 0 {
			continue
		}

		meta := PluginMeta{
			Name:        metaMap["name"],
			Category:    metaMap["category"],
			Description: metaMap["description"],
			InputKind:   metaMap["input_kind"],
			OutputKind:  metaMap["output_kind"],
		}
		if countStr, ok := metaMap["worker_count"]; ok {
			if count, err := strconv.Atoi(countStr); err == nil {
				meta.WorkerCount = count
			}
		}

		plugins = append(plugins, meta)
	}

	return plugins, nil
}

// Heartbeat refreshes a plugin's worker health key with a 30s TTL.
func (c *RedisClient) Heartbeat(ctx context.Context, pluginName string) error {
	healthKey := fmt.Sprintf("plugin:%s:health", pluginName)
	if err := c.client.Set(ctx, healthKey, "ok", 30*time.Second).Err(); err != nil {
		return fmt.Errorf("failed to set heartbeat for plugin %s: %w", pluginName, err)
	}
	return nil
}

// WorkerCount returns the current worker count for a plugin.
func (c *RedisClient) WorkerCount(ctx context.Context, pluginName string) (int, error) {
	workerKey := fmt.Sprintf("plugin:%s:workers", pluginName)
	countStr, err := c.client.Get(ctx, workerKey).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get worker count for plugin %s: %w", pluginName, err)
	}

	count, err := strconv.Atoi(countStr)
	if err != nil {
		return 0, fmt.Errorf("invalid worker count value: %w", err)
	}

	return count, nil
}

// IncrementWorkers increments the worker count for a plugin.
func (c *RedisClient) IncrementWorkers(ctx context.Context, pluginName string) error {
	workerKey := fmt.Sprintf("plugin:%s:workers", pluginName)
	if err := c.client.Incr(ctx, workerKey).Err(); err != nil {
		return fmt.Errorf("failed to increment worker count for plugin %s: %w", pluginName, err)
	}
	return nil
}

// DecrementWorkers decrements the worker count for a plugin.
func (c *RedisClient) DecrementWorkers(ctx context.Context, pluginName string) error {
	workerKey := fmt.Sprintf("plugin:%s:workers", pluginName)
	if err := c.client.Decr(ctx, workerKey).Err(); err != nil {
		return fmt.Errorf("failed to decrement worker count for plugin %s: %w", pluginName, err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisClient) Close() error {
	return c.client.Close()
}
