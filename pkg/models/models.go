// Package models holds the wire-level and domain types shared across the
// orchestrator: tools, services, and the per-user/per-session context the
// routing layer reasons about.
package models

import (
	"encoding/json"
	"time"
)

// Tool describes a named, schema-typed operation exported by a module.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`

	// Handler is the module-side implementation. It is never marshaled.
	Handler ToolHandler `json:"-"`
}

// ToolHandler implements a tool's behavior given validated arguments.
type ToolHandler func(args json.RawMessage) (any, error)

// Resource is a named, addressable content object fetched on demand.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// Prompt is a named prompt template exported by a module.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptArgument describes one parameter of a Prompt.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// ServiceKind is the transport variant a registered service speaks.
type ServiceKind string

const (
	// ServiceKindMessage is a bidirectional, message-oriented RPC service
	// (e.g. a websocket), owned by a Tool Client.
	ServiceKindMessage ServiceKind = "message"

	// ServiceKindHTTP is a request/response service reachable by one-shot
	// HTTP POSTs.
	ServiceKindHTTP ServiceKind = "http"
)

// HealthStatus is the last observed health of a registered service.
type HealthStatus string

const (
	HealthUnknown      HealthStatus = "unknown"
	HealthConnecting   HealthStatus = "connecting"
	HealthHealthy      HealthStatus = "healthy"
	HealthUnhealthy    HealthStatus = "unhealthy"
	HealthDisconnected HealthStatus = "disconnected"
	HealthError        HealthStatus = "error"
)

// ServiceInfo is the Service Registry's record for one downstream module.
type ServiceInfo struct {
	Name         string       `json:"name"`
	Host         string       `json:"host"`
	Port         int          `json:"port"`
	Capabilities []string     `json:"capabilities,omitempty"`
	Kind         ServiceKind  `json:"service_type"`
	Health       HealthStatus `json:"health_status"`
	LastSeen     time.Time    `json:"last_seen"`

	// ResponseTime is an exponentially smoothed round-trip estimate.
	ResponseTime time.Duration `json:"response_time"`
	ErrorCount   int64         `json:"error_count"`
	CallCount    int64         `json:"call_count"`

	// Metadata is free-form diagnostic data, never consulted by routing.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// UserContext is per-user state persisted across process restarts.
type UserContext struct {
	UserID       string            `json:"user_id"`
	Language     string            `json:"language,omitempty"`
	Timezone     string            `json:"timezone,omitempty"`
	Location     string            `json:"location,omitempty"`
	Preferences  map[string]string `json:"preferences,omitempty"`
	LastActivity time.Time         `json:"last_activity"`
}

// InterfaceKind is the front-end that originated a session.
type InterfaceKind string

const (
	InterfaceVoice  InterfaceKind = "voice"
	InterfaceText   InterfaceKind = "text"
	InterfaceWeb    InterfaceKind = "web"
	InterfaceMobile InterfaceKind = "mobile"
)

// HistoryEntry is one command/response pair recorded in a session's history.
type HistoryEntry struct {
	Command   string    `json:"command"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionContext is per-session conversational state.
type SessionContext struct {
	SessionID     string        `json:"session_id"`
	UserID        string        `json:"user_id"`
	Interface     InterfaceKind `json:"interface_type"`
	CreatedAt     time.Time     `json:"created_at"`
	LastAccessed  time.Time     `json:"last_accessed"`
	History       []HistoryEntry `json:"history,omitempty"`
	Variables     map[string]string `json:"variables,omitempty"`

	// ConversationType is a stored hint (dm | group | thread). It is never
	// consulted by routing and is not reported by the analytics endpoint.
	ConversationType string `json:"conversation_type,omitempty"`

	// Last-turn fields used by follow-up resolution.
	LastIntent       string            `json:"last_intent,omitempty"`
	LastParameters   map[string]string `json:"last_parameters,omitempty"`
	LastUsedService  string            `json:"last_used_service,omitempty"`
	PerServiceState  map[string]string `json:"per_service_state,omitempty"`
}

// Active reports whether the session is still within its active window as
// of now.
func (s *SessionContext) Active(now time.Time, window time.Duration) bool {
	return now.Sub(s.LastAccessed) < window
}

// IntentAlternative is a non-winning intent with its score.
type IntentAlternative struct {
	Intent string  `json:"intent"`
	Score  float64 `json:"score"`
}

// IntentResult is the NLP Engine's output for one utterance.
type IntentResult struct {
	Intent       string              `json:"intent"`
	Confidence   float64             `json:"confidence"`
	Parameters   map[string]string   `json:"parameters"`
	Text         string              `json:"text"`
	ContextUsed  bool                `json:"context_used"`
	Alternatives []IntentAlternative `json:"alternatives"`
}

// UnknownIntent is the sentinel label for an utterance that scored no
// intent positively.
const UnknownIntent = "unknown"
