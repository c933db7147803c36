// Package tools builds the callable tool set offered to the model during a
// generation. A capability whose credential is missing is silently left out;
// an empty tool set is a normal configuration, not an error.
package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Capability names as stored on a chat. One capability can expose several
// tools.
const (
	CapabilityWebSearch = "web-search"
	CapabilityVideo     = "video"
)

// Config carries the credentials and endpoints the executors need.
type Config struct {
	SearchAPIKey      string
	SearchBaseURL     string
	VideoAPIKey       string
	VideoBaseURL      string
	TranscriptBaseURL string
	HTTPClient        *http.Client
	Logger            *logrus.Logger
}

// Definition describes one executable tool: its name, the JSON schema of its
// arguments, and the executor.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
	execute     func(ctx context.Context, args json.RawMessage) (any, error)
}

// NewDefinition builds a tool definition around an executor.
func NewDefinition(name, description string, parameters map[string]any,
	execute func(ctx context.Context, args json.RawMessage) (any, error)) Definition {
	return Definition{Name: name, Description: description, Parameters: parameters, execute: execute}
}

// Execute runs the tool and always returns a JSON payload plus an errored
// flag. Transport and parse failures become a {"error": "..."} result so a
// failing tool can never abort the surrounding generation.
func (d Definition) Execute(ctx context.Context, args json.RawMessage) (json.RawMessage, bool) {
	out, err := d.execute(ctx, args)
	errored := err != nil
	if errored {
		out = map[string]string{"error": err.Error()}
	}
	payload, err := json.Marshal(out)
	if err != nil {
		payload, _ = json.Marshal(map[string]string{"error": "tool produced an unencodable result"})
		errored = true
	}
	return payload, errored
}

// Registry holds every tool the deployment can offer.
type Registry struct {
	defs  map[string]Definition
	byCap map[string][]string
}

// NewRegistry wires up all tools whose credentials are present.
func NewRegistry(cfg Config) *Registry {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 20 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	r := &Registry{
		defs:  map[string]Definition{},
		byCap: map[string][]string{},
	}
	if cfg.SearchAPIKey != "" && cfg.SearchBaseURL != "" {
		r.Add(CapabilityWebSearch, newWebSearchTool(cfg))
		r.Add(CapabilityWebSearch, newNewsSearchTool(cfg))
		r.Add(CapabilityWebSearch, newReadPageTool(cfg))
	}
	if cfg.VideoAPIKey != "" && cfg.VideoBaseURL != "" {
		r.Add(CapabilityVideo, newVideoSearchTool(cfg))
		r.Add(CapabilityVideo, newVideoDetailsTool(cfg))
		if cfg.TranscriptBaseURL != "" {
			r.Add(CapabilityVideo, newVideoTranscriptTool(cfg))
		}
	}
	return r
}

// Add registers a tool under a capability. Deployments can extend the
// built-in set with their own tools before handing the registry out.
func (r *Registry) Add(capability string, def Definition) {
	r.defs[def.Name] = def
	r.byCap[capability] = append(r.byCap[capability], def.Name)
}

// Resolve maps the enabled capability names onto the concrete tool set.
// Unknown capabilities and capabilities with no configured tools resolve to
// nothing.
func (r *Registry) Resolve(enabled []string) map[string]Definition {
	out := map[string]Definition{}
	for _, capability := range enabled {
		for _, name := range r.byCap[capability] {
			out[name] = r.defs[name]
		}
	}
	return out
}
