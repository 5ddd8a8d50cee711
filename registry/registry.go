// Package registry provides etcd-backed discovery of enrichment workers.
//
// Each worker process registers itself per plugin it serves, maintains
// presence via lease keepalives, and deregisters on graceful shutdown.
// Lease expiry removes crashed workers automatically, so discovery always
// reflects live capacity. Submitters use the registry to decide which
// plugins currently have workers before queueing scans for them.
package registry

import (
	"context"
	"time"
)

// WorkerInfo describes a registered enrichment worker instance.
//
// One process serving several plugins registers one entry per plugin, all
// sharing the same WorkerID.
type WorkerInfo struct {
	// Plugin is the plugin name this worker serves.
	Plugin string `json:"plugin"`

	// WorkerID uniquely identifies the worker process (typically a UUID).
	WorkerID string `json:"worker_id"`

	// Version is the worker build version.
	Version string `json:"version"`

	// Endpoint is the address where the worker's health endpoint listens,
	// "host:port".
	Endpoint string `json:"endpoint"`

	// Metadata carries worker attributes such as the entity kinds served
	// or the hostname, as free-form key-value pairs.
	Metadata map[string]string `json:"metadata"`

	// StartedAt is when the worker instance started.
	StartedAt time.Time `json:"started_at"`
}

// Registry is the worker registration and discovery interface.
//
// Implementations must be safe for concurrent use. Entries are tied to
// leases with a TTL so that stale workers disappear without operator
// intervention.
type Registry interface {
	// Register adds a worker entry and starts renewing its lease in the
	// background. Re-registering the same (plugin, worker id) pair updates
	// the entry instead of duplicating it.
	Register(ctx context.Context, info WorkerInfo) error

	// Deregister removes a worker entry by revoking its lease. Not being
	// registered is a no-op, not an error.
	Deregister(ctx context.Context, info WorkerInfo) error

	// Discover returns the live workers for one plugin, in arbitrary order.
	Discover(ctx context.Context, plugin string) ([]WorkerInfo, error)

	// DiscoverAll returns every live worker across all plugins.
	DiscoverAll(ctx context.Context) ([]WorkerInfo, error)

	// Watch emits the current worker list for a plugin immediately, then
	// again on every registration, deregistration, or lease expiry. The
	// channel closes when ctx is cancelled or the registry is closed.
	Watch(ctx context.Context, plugin string) (<-chan []WorkerInfo, error)

	// Close stops keepalives and watches and releases the connection.
	Close() error
}

// Config holds registry connection configuration.
type Config struct {
	// Endpoints is the etcd endpoint list, e.g. ["host1:2379", "host2:2379"].
	Endpoints []string `json:"endpoints"`

	// Namespace is the etcd key prefix. Workers are stored under
	// /{namespace}/workers/{plugin}/{worker-id}. Default: "flowsint".
	Namespace string `json:"namespace"`

	// TTL is the lease time-to-live in seconds. A worker that fails to
	// renew within this interval disappears from discovery. Default: 30.
	TTL int `json:"ttl"`

	// TLS holds optional TLS configuration for the etcd connection.
	TLS *TLSConfig `json:"tls"`
}

// TLSConfig holds mutual-TLS certificate paths for the etcd connection.
type TLSConfig struct {
	// Enabled turns TLS on; when false the other fields are ignored.
	Enabled bool `json:"enabled"`

	// CertFile is the client certificate (PEM).
	CertFile string `json:"cert_file"`

	// KeyFile is the client private key (PEM).
	KeyFile string `json:"key_file"`

	// CAFile is the certificate authority used to verify the server (PEM).
	CAFile string `json:"ca_file"`
}
