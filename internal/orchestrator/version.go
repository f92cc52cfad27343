package orchestrator

// Version is the orchestrator's build version, reported to downstream
// Tool Servers during initialize. Overridden by cmd/orchestrator via
// -ldflags.
var Version = "dev"
