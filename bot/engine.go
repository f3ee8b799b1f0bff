// Package bot defines the response-generation engine interface and its
// implementations. The registry invokes an Engine synchronously for every
// client message; everything else in the system treats the engine as opaque.
package bot

import "context"

// Engine generates a reply for a client message. An empty reply with a nil
// error means the engine chose to stay silent; the registry then stores no
// server message.
type Engine interface {
	// Name identifies the engine implementation for logging and health.
	Name() string

	// Respond computes a reply to content sent by userID. Implementations
	// may keep per-user conversation state keyed by userID.
	Respond(ctx context.Context, userID, content string) (string, error)
}
