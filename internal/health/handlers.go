package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync/atomic"
	"time"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips the readiness flag. The API clears it on shutdown so load
// balancers drain traffic before connections close.
func SetReady(v bool) { ready.Store(v) }

// Probe checks a single dependency.
type Probe func(ctx context.Context) error

// Dependency is a named readiness probe with its own timeout.
type Dependency struct {
	Name    string
	Timeout time.Duration
	Probe   Probe
}

// BreakerReporter exposes a circuit breaker state, e.g. "closed" or "open".
type BreakerReporter interface {
	Target() string
	StateName() string
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Dependencies []Dependency
	// Breakers are reported but never fail readiness: a quote can still be
	// edited while the inventory search is down.
	Breakers []BreakerReporter
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{}
	healthy := ready.Load()
	if !healthy {
		status["server"] = "shutting down"
	}
	for _, dep := range h.Dependencies {
		result := "ok"
		if err := dep.check(r.Context()); err != nil {
			result = err.Error()
			healthy = false
		}
		status[dep.Name] = result
	}
	for _, b := range h.Breakers {
		status["breaker:"+b.Target()] = b.StateName()
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

// Names lists the probed dependencies in sorted order.
func (h Handler) Names() []string {
	names := make([]string, 0, len(h.Dependencies))
	for _, dep := range h.Dependencies {
		names = append(names, dep.Name)
	}
	sort.Strings(names)
	return names
}

func (d Dependency) check(ctx context.Context) error {
	if d.Probe == nil {
		return nil
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.Probe(ctx)
}
