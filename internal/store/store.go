// Package store provides record persistence interfaces and implementations.
//
// The canonical backend is an external tabular store reached over HTTP
// (Airtable-compatible); a SQLite backend implements the same contract for
// local development and tests. Both expose two tables, sessions and
// messages, and the same duplicate-tolerant semantics: nothing enforces
// uniqueness of a (stakeholder, project) pair.
package store

import (
	"context"

	"github.com/ianibsm/Synapz/internal/domain"
)

// Repository defines the record-store operations the service depends on.
type Repository interface {
	// FindSession returns the first session matching the pair exactly,
	// or nil when no session exists. Match order is whatever the backend's
	// default query order yields.
	FindSession(ctx context.Context, stakeholderID, projectID string) (*domain.Session, error)

	// CreateSession creates a new session record and returns it with the
	// store-assigned id.
	CreateSession(ctx context.Context, stakeholderID, projectID string, status domain.SessionStatus) (*domain.Session, error)

	// CreateMessage appends one message record linked to the session.
	// The session id is not verified beyond the backend rejecting it.
	CreateMessage(ctx context.Context, sessionID, sender, text string) (*domain.Message, error)

	// MessagesBySession returns the session's messages in creation order.
	MessagesBySession(ctx context.Context, sessionID string) ([]*domain.Message, error)

	// Ping verifies backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
