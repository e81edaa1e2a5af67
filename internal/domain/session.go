// Package domain defines the entities persisted in the record store.
package domain

// SessionStatus describes the lifecycle state of a chat session.
type SessionStatus string

// SessionInProgress is the only status this system ever assigns. Sessions
// are created on first contact and never closed or deleted here.
const SessionInProgress SessionStatus = "in_progress"

// Sender labels for transcript messages.
const (
	SenderUser = "user"
	SenderAI   = "ai"
)

// Session groups the messages exchanged for one (stakeholder, project) pair.
// The id is assigned by the record store and treated as opaque.
//
// At most one session is treated as "the" session for a pair per lookup,
// but uniqueness is not enforced at the store level: two racing resolutions
// can both create one. Later lookups take the first match.
type Session struct {
	ID          string
	Stakeholder string
	Project     string
	Status      SessionStatus
}

// Message is a single transcript entry linked to exactly one session.
// Messages are immutable once created; ordering is implied by creation
// order in the store, no sequence number is kept.
type Message struct {
	ID        string
	SessionID string
	Sender    string
	Text      string
}
