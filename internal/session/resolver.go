// Package session resolves chat sessions in the record store.
package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ianibsm/Synapz/internal/domain"
	"github.com/ianibsm/Synapz/internal/store"
)

// Resolver maps a (stakeholder, project) pair to a session id, creating the
// session on first contact.
type Resolver struct {
	repo store.Repository
}

// NewResolver creates a resolver backed by the given repository.
func NewResolver(repo store.Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the id of an existing session matching the pair exactly,
// or creates one with status in_progress and returns its id.
//
// Concurrent resolutions for a pair with no existing session can both
// observe "no match" and both create a session; duplicates are tolerated
// and later lookups take the first match. On error the caller must not
// assume a session was created or reused.
func (r *Resolver) Resolve(ctx context.Context, stakeholderID, projectID string) (string, error) {
	sess, err := r.repo.FindSession(ctx, stakeholderID, projectID)
	if err != nil {
		return "", fmt.Errorf("find session: %w", err)
	}
	if sess != nil {
		return sess.ID, nil
	}

	created, err := r.repo.CreateSession(ctx, stakeholderID, projectID, domain.SessionInProgress)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	slog.Info("Session created", "session_id", created.ID, "stakeholder", stakeholderID, "project", projectID)
	return created.ID, nil
}
