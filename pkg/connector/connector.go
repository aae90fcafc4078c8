// Package connector defines the narrow interface every thin external-service
// wrapper (Google Drive, FHIR, and the like) reduces to once the
// provider-specific operations are excluded (spec.md Non-goals name "the
// dozens of thin connector ... wrappers" as out of scope). What survives is
// the shape every such wrapper shares: credentialed auth, a connectivity
// probe, and a generic request call — the same "external backend, narrow
// consumed shape" pattern as pkg/sandbox's Provider interface (spec §4.4).
package connector

import (
	"context"
	"time"
)

// Credentials authorizes calls through a Connector. Providers that use
// bearer tokens populate AccessToken/RefreshToken/ExpiresAt; providers that
// use a static key populate only AccessToken.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the credentials need refreshing before the next
// call.
func (c Credentials) Expired() bool {
	return !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt)
}

// Result is the outcome of one Connector call.
type Result struct {
	Success    bool
	StatusCode int
	Data       map[string]any
	Error      string
}

// Connector is the narrow shape a thin external-service wrapper exposes:
// who it authenticates as, whether it's currently reachable, and a generic
// request escape hatch, rather than one method per provider operation.
type Connector interface {
	// Provider identifies the backend this Connector talks to (e.g.
	// "google_drive").
	Provider() string

	// TestConnection verifies the current Credentials are valid and the
	// backend is reachable.
	TestConnection(ctx context.Context) (Result, error)

	// Request issues one call against the backend's API. method and path
	// are backend-specific; params and body are passed through verbatim.
	Request(ctx context.Context, method, path string, params map[string]string, body any) (Result, error)
}
