package session

import (
	"time"

	"github.com/enercompare/backend/internal/domain/shared"
)

// Status represents the lifecycle state of a visitor session
type Status string

const (
	StatusInitialized Status = "initialized"
	StatusAuthorizing Status = "authorizing"
	StatusAuthorized  Status = "authorized"
	StatusExpired     Status = "expired"
)

// statusRank orders statuses so transitions can only move forward
var statusRank = map[Status]int{
	StatusInitialized: 0,
	StatusAuthorizing: 1,
	StatusAuthorized:  2,
	StatusExpired:     3,
}

// Record is the durable session state stored under session:{id}
type Record struct {
	SessionID     string            `json:"session_id"`
	Status        Status            `json:"status"`
	StateToken    string            `json:"state_token,omitempty"`
	AuthStartedAt *time.Time        `json:"auth_started_at,omitempty"`
	CustomerID    string            `json:"customer_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// NewRecord creates a session record in the initialized state
func NewRecord(sessionID string) *Record {
	now := time.Now().UTC()
	return &Record{
		SessionID: sessionID,
		Status:    StatusInitialized,
		Metadata:  make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo moves the session to a new status. Transitions only move
// forward; a regression returns ErrInvalidTransition.
func (r *Record) TransitionTo(next Status) error {
	current, ok := statusRank[r.Status]
	if !ok {
		return shared.ErrInvalidTransition
	}
	target, ok := statusRank[next]
	if !ok {
		return shared.ErrInvalidTransition
	}
	if target < current {
		return shared.ErrInvalidTransition
	}
	r.Status = next
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// StateTokenType tags the purpose of a state token
type StateTokenType string

const (
	// StateTokenTypeAuthorization marks tokens minted for the third-party
	// authorization handshake
	StateTokenTypeAuthorization StateTokenType = "authorization"
)

// StateTokenRecord correlates a third-party redirect callback back to the
// originating session. Stored under state:{token} with a short TTL and
// deleted on successful completion (single-use).
type StateTokenRecord struct {
	SessionID string         `json:"session_id"`
	CreatedAt time.Time      `json:"created_at"`
	Type      StateTokenType `json:"type"`
}

// Key builders for the shared KV namespace. The formats are part of the
// store contract and must not change.

// Key returns the KV key for a session record
func Key(sessionID string) string {
	return "session:" + sessionID
}

// StateKey returns the KV key for a state token record
func StateKey(token string) string {
	return "state:" + token
}
