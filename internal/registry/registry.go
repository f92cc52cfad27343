// Package registry holds the orchestrator's view of every downstream
// module and the routing algorithm that picks, dispatches to, and scores
// one service per classified intent.
package registry

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sparesparrow/mia-sub000/internal/toolclient"
	"github.com/sparesparrow/mia-sub000/pkg/models"
)

// Entry is the registry's full record for one registered service: its
// public ServiceInfo plus the dispatch handle private to the registry.
type Entry struct {
	Info models.ServiceInfo

	// Client is set for message-oriented services; nil for HTTP services.
	Client *toolclient.Client

	// HTTPClient and CallTimeout are set for HTTP services.
	HTTPClient  *http.Client
	CallTimeout time.Duration
}

// Registry is the orchestrator's service catalog, keyed by service name.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*Entry
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{services: make(map[string]*Entry)}
}

// RegisterMessage declares a message-oriented service backed by a Tool
// Client. The client is expected to already be constructed (but not
// necessarily connected) by the caller.
func (r *Registry) RegisterMessage(name, host string, port int, capabilities []string, client *toolclient.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[name] = &Entry{
		Info: models.ServiceInfo{
			Name:         name,
			Host:         host,
			Port:         port,
			Capabilities: capabilities,
			Kind:         models.ServiceKindMessage,
			Health:       models.HealthConnecting,
		},
		Client: client,
	}
}

// RegisterHTTP declares a request/response service reachable by one-shot
// HTTP POSTs.
func (r *Registry) RegisterHTTP(name, host string, port int, capabilities []string, callTimeout time.Duration) {
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[name] = &Entry{
		Info: models.ServiceInfo{
			Name:         name,
			Host:         host,
			Port:         port,
			Capabilities: capabilities,
			Kind:         models.ServiceKindHTTP,
			Health:       models.HealthUnknown,
		},
		HTTPClient:  &http.Client{Timeout: callTimeout},
		CallTimeout: callTimeout,
	}
}

// Get returns a snapshot of one entry's public info plus its dispatch
// handle. The returned Info is a copy; mutate via RecordOutcome or
// SetHealth.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.services[name]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Snapshot returns a copy of every registered service's public info.
func (r *Registry) Snapshot() []models.ServiceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ServiceInfo, 0, len(r.services))
	for _, e := range r.services {
		out = append(out, e.Info)
	}
	return out
}

// Names returns every registered service name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.services))
	for name := range r.services {
		out = append(out, name)
	}
	return out
}

// RecordOutcome updates a service's health, response_time, last_seen, and
// error_count after a dispatch or health probe.
func (r *Registry) RecordOutcome(name string, elapsed time.Duration, succeeded bool, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.services[name]
	if !ok {
		return fmt.Errorf("registry: service %q not registered", name)
	}

	// Exponentially smoothed response time; first observation seeds it.
	if e.Info.ResponseTime == 0 {
		e.Info.ResponseTime = elapsed
	} else {
		const alpha = 0.3
		e.Info.ResponseTime = time.Duration(alpha*float64(elapsed) + (1-alpha)*float64(e.Info.ResponseTime))
	}
	e.Info.LastSeen = now
	e.Info.CallCount++

	if succeeded {
		e.Info.Health = models.HealthHealthy
	} else {
		e.Info.ErrorCount++
		e.Info.Health = models.HealthUnhealthy
	}
	return nil
}

// SetHealth sets a service's health directly, used by the health-check
// maintenance loop.
func (r *Registry) SetHealth(name string, health models.HealthStatus, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.services[name]
	if !ok {
		return fmt.Errorf("registry: service %q not registered", name)
	}
	e.Info.Health = health
	e.Info.LastSeen = now
	return nil
}
