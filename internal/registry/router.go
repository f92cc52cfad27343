package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sparesparrow/mia-sub000/internal/toolclient"
	"github.com/sparesparrow/mia-sub000/pkg/models"
)

// confidenceThreshold is the minimum confidence required to dispatch at
// all; below it the router asks for clarification instead.
const confidenceThreshold = 0.3

// followUpConfidence is assigned to an IntentResult reconstituted from a
// session's last intent during follow-up resolution.
const followUpConfidence = 0.8

// intentServiceMap is the fixed intent -> service-name routing table.
var intentServiceMap = map[string]string{
	"play_music":       "audio",
	"control_volume":   "audio",
	"switch_audio":     "audio",
	"system_control":   "platform",
	"hardware_control": "hardware",
	"smart_home":       "home-automation",
	"communication":    "messaging",
	"navigation":       "navigation",
	"file_operation":   "file-fetch",
}

// Router implements the intent -> service -> tool dispatch algorithm over
// a Registry.
type Router struct {
	registry *Registry
	logger   *slog.Logger
	now      func() time.Time
}

// NewRouter builds a Router over registry.
func NewRouter(registry *Registry, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{registry: registry, logger: logger.With("component", "router"), now: time.Now}
}

// Outcome is what Route returns: the response text to show the user, the
// (possibly re-routed) intent that was actually acted on, and the service
// name dispatched to, if any.
type Outcome struct {
	Response    string
	Intent      models.IntentResult
	ServiceUsed string
	Dispatched  bool
}

// Route runs the full routing algorithm for one classified intent: the
// confidence gate, follow-up resolution, intent-to-service lookup, health
// gate, session parameter injection, dispatch, and outcome recording.
func (r *Router) Route(ctx context.Context, result models.IntentResult, session *models.SessionContext) Outcome {
	if result.Confidence < confidenceThreshold {
		return Outcome{Response: clarification(result), Intent: result}
	}

	if result.Intent == "follow_up" {
		if session == nil || session.LastIntent == "" {
			return Outcome{
				Response: "I don't have context for a follow-up. Please be more specific.",
				Intent:   result,
			}
		}
		merged := mergeParams(session.LastParameters, result.Parameters)
		reconstituted := models.IntentResult{
			Intent:      session.LastIntent,
			Confidence:  followUpConfidence,
			Parameters:  merged,
			Text:        result.Text,
			ContextUsed: true,
		}
		return r.Route(ctx, reconstituted, session)
	}

	serviceName, ok := intentServiceMap[result.Intent]
	if !ok {
		return Outcome{Response: fmt.Sprintf("no service for intent: %s", result.Intent), Intent: result}
	}

	entry, ok := r.registry.Get(serviceName)
	if !ok {
		return Outcome{Response: fmt.Sprintf("no such service: %s", serviceName), Intent: result}
	}
	if !isAvailable(entry) {
		_ = r.registry.RecordOutcome(serviceName, 0, false, r.now())
		return Outcome{Response: fmt.Sprintf("Service %s is not connected", serviceName), Intent: result}
	}

	params := cloneParams(result.Parameters)
	if session != nil {
		params["session_id"] = session.SessionID
		params["user_id"] = session.UserID
	}

	start := r.now()
	text, dispatchErr := r.dispatch(ctx, entry, result.Intent, params)
	elapsed := r.now().Sub(start)
	_ = r.registry.RecordOutcome(serviceName, elapsed, dispatchErr == nil, r.now())

	if dispatchErr != nil {
		response := fmt.Sprintf("Error calling service %q: %v", serviceName, dispatchErr)
		return Outcome{Response: response, Intent: result, ServiceUsed: serviceName, Dispatched: false}
	}

	return Outcome{Response: text, Intent: result, ServiceUsed: serviceName, Dispatched: true}
}

// isAvailable reports whether entry can be dispatched to right now.
// Message-oriented services are gated on their Tool Client's live
// connection state rather than the last recorded Health, since Health is
// only updated after a dispatch outcome or an HTTP health probe and would
// otherwise deadlock a freshly connected service's first call. HTTP
// services are gated on the last health-check result.
func isAvailable(entry Entry) bool {
	switch entry.Info.Kind {
	case models.ServiceKindMessage:
		return entry.Client != nil && entry.Client.State() == toolclient.StateConnected
	default:
		switch entry.Info.Health {
		case models.HealthUnhealthy, models.HealthDisconnected, models.HealthError:
			return false
		default:
			return true
		}
	}
}

func (r *Router) dispatch(ctx context.Context, entry Entry, intent string, params map[string]string) (string, error) {
	switch entry.Info.Kind {
	case models.ServiceKindMessage:
		if entry.Client == nil {
			return "", fmt.Errorf("service %q has no tool client", entry.Info.Name)
		}
		return entry.Client.CallTool(ctx, intent, params)
	case models.ServiceKindHTTP:
		return dispatchHTTP(ctx, entry, intent, params)
	default:
		return "", fmt.Errorf("service %q has unknown transport kind", entry.Info.Name)
	}
}

func dispatchHTTP(ctx context.Context, entry Entry, intent string, params map[string]string) (string, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}

	url := fmt.Sprintf("http://%s:%d/api/%s", entry.Info.Host, entry.Info.Port, intent)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := entry.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("service %q: %w", entry.Info.Name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("service %q: read response: %w", entry.Info.Name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("service %q: http %d: %s", entry.Info.Name, resp.StatusCode, string(respBody))
	}
	return string(respBody), nil
}

// mergeParams returns the union of base and overlay, with overlay values
// winning on key conflicts.
func mergeParams(base, overlay map[string]string) map[string]string {
	merged := cloneParams(base)
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

func cloneParams(src map[string]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func clarification(result models.IntentResult) string {
	if len(result.Alternatives) == 0 {
		return fmt.Sprintf("I'm not sure what you mean by %q. Could you be more specific?", result.Text)
	}
	names := make([]string, 0, 2)
	for i, alt := range result.Alternatives {
		if i == 2 {
			break
		}
		names = append(names, alt.Intent)
	}
	return fmt.Sprintf("I'm not sure what you mean by %q. Did you mean: %s?", result.Text, strings.Join(names, " or "))
}
