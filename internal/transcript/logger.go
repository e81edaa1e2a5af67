// Package transcript appends chat messages to the record store.
package transcript

import (
	"context"
	"fmt"

	"github.com/ianibsm/Synapz/internal/store"
)

// Logger appends message records linked to a session. Each append is an
// independently-committed write; there are no transactions spanning the
// inbound and outbound messages of a turn.
type Logger struct {
	repo store.Repository
}

// NewLogger creates a transcript logger backed by the given repository.
func NewLogger(repo store.Repository) *Logger {
	return &Logger{repo: repo}
}

// Append records one message for the session. The session id is assumed
// resolvable; text length limits are whatever the store enforces. Store
// failures surface to the caller, which decides whether the parent request
// fails.
func (l *Logger) Append(ctx context.Context, sessionID, sender, text string) error {
	if _, err := l.repo.CreateMessage(ctx, sessionID, sender, text); err != nil {
		return fmt.Errorf("append %s message: %w", sender, err)
	}
	return nil
}
