package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sparesparrow/mia-sub000/internal/toolclient"
	"github.com/sparesparrow/mia-sub000/pkg/models"
)

// startMaintenance launches the two fixed-interval background loops named
// in spec.md: session cleanup and service health checks. Both stop when
// ctx is cancelled.
func (s *Server) startMaintenance(ctx context.Context) {
	go s.sessionCleanupLoop(ctx)
	go s.healthCheckLoop(ctx)
}

func (s *Server) sessionCleanupLoop(ctx context.Context) {
	interval := s.cfg.Maintenance.SessionCleanupInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.store.CleanupExpiredSessions()
			if err != nil {
				s.logger.Warn("session cleanup failed", "error", err)
				continue
			}
			if removed > 0 {
				s.logger.Info("cleaned up expired sessions", "removed", removed)
			}
		}
	}
}

// healthCheckLoop probes every registered service on a fixed interval. For
// HTTP services it issues GET /health with a bounded timeout: HTTP 200 is
// healthy, any other status is unhealthy, and a transport error counts as
// an error (incrementing error_count). Message-oriented services rely on
// the Tool Client's own heartbeat and are not separately probed here; the
// loop sets their health from the live connection state and refreshes
// their last_seen timestamp.
func (s *Server) healthCheckLoop(ctx context.Context) {
	interval := s.cfg.Maintenance.HealthCheckInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	client := &http.Client{Timeout: s.cfg.Maintenance.HealthCheckTimeout}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAllServices(ctx, client)
		}
	}
}

func (s *Server) checkAllServices(ctx context.Context, client *http.Client) {
	for _, info := range s.registry.Snapshot() {
		switch info.Kind {
		case models.ServiceKindHTTP:
			s.probeHTTPService(ctx, client, info)
		case models.ServiceKindMessage:
			s.refreshMessageService(info)
		}
	}
}

func (s *Server) probeHTTPService(ctx context.Context, client *http.Client, info models.ServiceInfo) {
	start := s.now()

	url := fmt.Sprintf("http://%s:%d/health", info.Host, info.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		s.logger.Warn("build health check request failed", "service", info.Name, "error", err)
		return
	}

	resp, err := client.Do(req)
	elapsed := s.now().Sub(start)

	if err != nil {
		_ = s.registry.RecordOutcome(info.Name, elapsed, false, s.now())
		_ = s.registry.SetHealth(info.Name, models.HealthError, s.now())
		return
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode == http.StatusOK
	_ = s.registry.RecordOutcome(info.Name, elapsed, healthy, s.now())
}

func (s *Server) refreshMessageService(info models.ServiceInfo) {
	client, ok := s.clients[info.Name]
	if !ok {
		return
	}
	_ = s.registry.SetHealth(info.Name, connectionHealth(client.State()), s.now())
}

// connectionHealth maps a Tool Client's live connection state onto the
// registry's health vocabulary for analytics/snapshot purposes. Dispatch
// availability for message-kind services never reads this field directly;
// see registry.isAvailable.
func connectionHealth(state toolclient.State) models.HealthStatus {
	switch state {
	case toolclient.StateConnected:
		return models.HealthHealthy
	case toolclient.StateConnecting:
		return models.HealthConnecting
	default:
		return models.HealthDisconnected
	}
}
