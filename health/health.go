// Package health provides readiness checks for enrichment workers.
//
// Workers advertise an endpoint through the registry (registry.WorkerInfo)
// and serve Handler there. Checks verify the dependencies a worker needs
// before accepting scan items: external tool binaries, reachability of the
// queue and graph store, template definition directories.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/reconurge/flowsint/exec"
)

// State is the outcome of one check.
type State string

const (
	// StateHealthy means the dependency is fully available.
	StateHealthy State = "healthy"

	// StateDegraded means the worker can run but something is off, such
	// as an optional dependency being absent.
	StateDegraded State = "degraded"

	// StateUnhealthy means the worker must not accept scan items.
	StateUnhealthy State = "unhealthy"
)

// Status is one check result.
type Status struct {
	State   State  `json:"state"`
	Message string `json:"message,omitempty"`
}

// Healthy builds a healthy status.
func Healthy(message string) Status {
	return Status{State: StateHealthy, Message: message}
}

// Degraded builds a degraded status.
func Degraded(message string) Status {
	return Status{State: StateDegraded, Message: message}
}

// Unhealthy builds an unhealthy status.
func Unhealthy(message string) Status {
	return Status{State: StateUnhealthy, Message: message}
}

// Check is a named readiness probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) Status
}

// Binary checks that an external tool is installed and on PATH.
func Binary(name string) Check {
	return Check{
		Name: "binary:" + name,
		Probe: func(context.Context) Status {
			path, err := exec.BinaryPath(name)
			if err != nil {
				return Unhealthy(fmt.Sprintf("binary %q not found in PATH", name))
			}
			return Healthy(fmt.Sprintf("binary %q found at %s", name, path))
		},
	}
}

// Network checks TCP reachability of a dependency such as the Redis queue
// or the graph store.
func Network(host string, port int) Check {
	address := net.JoinHostPort(host, strconv.Itoa(port))
	return Check{
		Name: "tcp:" + address,
		Probe: func(ctx context.Context) Status {
			var dialer net.Dialer
			conn, err := dialer.DialContext(ctx, "tcp", address)
			if err != nil {
				return Unhealthy(fmt.Sprintf("cannot reach %s: %v", address, err))
			}
			conn.Close()
			return Healthy(fmt.Sprintf("reached %s", address))
		},
	}
}

// File checks that a path exists, typically a template definition directory.
func File(path string) Check {
	return Check{
		Name: "file:" + path,
		Probe: func(context.Context) Status {
			if _, err := os.Stat(path); err != nil {
				if os.IsNotExist(err) {
					return Unhealthy(fmt.Sprintf("path %q does not exist", path))
				}
				return Unhealthy(fmt.Sprintf("cannot stat %q: %v", path, err))
			}
			return Healthy(fmt.Sprintf("path %q exists", path))
		},
	}
}

// Report is the aggregate of all checks, as served by Handler.
type Report struct {
	State  State             `json:"state"`
	Checks map[string]Status `json:"checks,omitempty"`
}

// Evaluate runs every check and aggregates: any unhealthy check makes the
// report unhealthy, otherwise any degraded check makes it degraded.
func Evaluate(ctx context.Context, checks ...Check) Report {
	report := Report{State: StateHealthy}
	if len(checks) > 0 {
		report.Checks = make(map[string]Status, len(checks))
	}

	for _, check := range checks {
		status := check.Probe(ctx)
		report.Checks[check.Name] = status

		switch status.State {
		case StateUnhealthy:
			report.State = StateUnhealthy
		case StateDegraded:
			if report.State == StateHealthy {
				report.State = StateDegraded
			}
		}
	}

	return report
}

const probeTimeout = 5 * time.Second

// Handler serves the aggregated report as JSON. Unhealthy reports get
// status 503 so load balancers and the registry can act on the code alone.
func Handler(checks ...Check) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		defer cancel()

		report := Evaluate(ctx, checks...)

		w.Header().Set("Content-Type", "application/json")
		if report.State == StateUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	})
}
