package orchestrator

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sparesparrow/mia-sub000/internal/contextstore"
	"github.com/sparesparrow/mia-sub000/internal/registry"
	"github.com/sparesparrow/mia-sub000/pkg/models"
)

// commandRequest is the POST /api/command request body.
type commandRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Interface string `json:"interface_type"`
}

// commandResponse is the POST /api/command response envelope. It is
// always HTTP 200: downstream failures are reported in the body, never as
// a 5xx, per the never-5xx-for-downstream-failures contract.
type commandResponse struct {
	Response    string              `json:"response"`
	Intent      models.IntentResult `json:"intent"`
	ServiceUsed string              `json:"service_used,omitempty"`
	Dispatched  bool                `json:"dispatched"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		iface := models.InterfaceKind(req.Interface)
		if iface == "" {
			iface = models.InterfaceText
		}
		id, err := s.store.CreateSession(req.UserID, iface)
		if err != nil {
			writeJSON(w, http.StatusOK, commandResponse{Response: "failed to create session: " + err.Error()})
			return
		}
		sessionID = id
	}

	session, ok := s.store.GetSession(sessionID)
	if !ok {
		writeJSON(w, http.StatusOK, commandResponse{Response: "session not found or expired"})
		return
	}

	result := s.engine.Classify(req.Text, session)
	outcome := s.router.Route(r.Context(), result, session)

	intent := outcome.Intent.Intent
	patch := contextPatchFor(outcome)
	if err := s.store.UpdateSession(sessionID, patch); err != nil {
		s.logger.Warn("update session after command failed", "session_id", sessionID, "error", err)
	}
	if err := s.store.AddToHistory(sessionID, req.Text, outcome.Response); err != nil {
		s.logger.Warn("add history failed", "session_id", sessionID, "error", err)
	}

	s.logger.Info("command routed", "session_id", sessionID, "intent", intent, "service", outcome.ServiceUsed, "dispatched", outcome.Dispatched)

	writeJSON(w, http.StatusOK, commandResponse{
		Response:    outcome.Response,
		Intent:      outcome.Intent,
		ServiceUsed: outcome.ServiceUsed,
		Dispatched:  outcome.Dispatched,
	})
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"services": s.registry.Snapshot()})
}

// serviceHealth is one entry of the GET /api/health per-service map.
type serviceHealth struct {
	Name   string              `json:"name"`
	Health models.HealthStatus `json:"health_status"`
}

// handleHealth answers GET /api/health[?service=<name>]. With no filter it
// returns the health of every registered service; with a filter it returns
// that one service's health, or 404 if the name is unknown.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	services := s.registry.Snapshot()

	if name := r.URL.Query().Get("service"); name != "" {
		for _, svc := range services {
			if svc.Name == name {
				writeJSON(w, http.StatusOK, serviceHealth{Name: svc.Name, Health: svc.Health})
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("service %q not registered", name)})
		return
	}

	health := make(map[string]models.HealthStatus, len(services))
	for _, svc := range services {
		health[svc.Name] = svc.Health
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": health})
}

// serviceAnalytics is one entry of the GET /api/analytics per-service
// object; only the field(s) matching the requested metric are populated
// when a metric is given, otherwise all of them are.
type serviceAnalytics struct {
	Name           string   `json:"name"`
	ResponseTimeMS *int64   `json:"response_time_ms,omitempty"`
	ErrorRate      *float64 `json:"error_rate,omitempty"`
	Usage          *int64   `json:"usage,omitempty"`
}

// handleAnalytics answers GET /api/analytics?service=<name>&metric=<response_time|error_rate|usage>.
// With no service filter it returns analytics for every registered
// service; with a metric filter only that metric is populated per entry.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	services := s.registry.Snapshot()
	metric := r.URL.Query().Get("metric")

	name := r.URL.Query().Get("service")
	if name != "" {
		for _, svc := range services {
			if svc.Name == name {
				writeJSON(w, http.StatusOK, analyticsFor(svc, metric))
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("service %q not registered", name)})
		return
	}

	out := make([]serviceAnalytics, 0, len(services))
	for _, svc := range services {
		out = append(out, analyticsFor(svc, metric))
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": out})
}

func analyticsFor(svc models.ServiceInfo, metric string) serviceAnalytics {
	responseTimeMS := svc.ResponseTime.Milliseconds()
	errorRate := 0.0
	if svc.CallCount > 0 {
		errorRate = float64(svc.ErrorCount) / float64(svc.CallCount)
	}

	a := serviceAnalytics{Name: svc.Name}
	switch metric {
	case "response_time":
		a.ResponseTimeMS = &responseTimeMS
	case "error_rate":
		a.ErrorRate = &errorRate
	case "usage":
		a.Usage = &svc.CallCount
	default:
		a.ResponseTimeMS = &responseTimeMS
		a.ErrorRate = &errorRate
		a.Usage = &svc.CallCount
	}
	return a
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// contextPatchFor derives the session update implied by one routed
// outcome: the intent and parameters actually acted on (post follow-up
// resolution) become the session's new last_intent/last_parameters, and a
// successful dispatch updates last_used_service.
func contextPatchFor(outcome registry.Outcome) contextstore.SessionPatch {
	intent := outcome.Intent.Intent
	params := outcome.Intent.Parameters
	patch := contextstore.SessionPatch{
		LastIntent:     &intent,
		LastParameters: params,
	}
	if outcome.Dispatched {
		service := outcome.ServiceUsed
		patch.LastUsedService = &service
	}
	return patch
}
