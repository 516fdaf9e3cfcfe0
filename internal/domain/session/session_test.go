package session

import (
	"testing"

	"github.com/enercompare/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	r := NewRecord("sess-1")
	assert.Equal(t, "sess-1", r.SessionID)
	assert.Equal(t, StatusInitialized, r.Status)
	assert.NotNil(t, r.Metadata)
	assert.False(t, r.CreatedAt.IsZero())
}

func TestTransitionForwardOnly(t *testing.T) {
	r := NewRecord("sess-1")

	require.NoError(t, r.TransitionTo(StatusAuthorizing))
	require.NoError(t, r.TransitionTo(StatusAuthorized))
	assert.Equal(t, StatusAuthorized, r.Status)

	// Regressions are rejected and leave the record untouched.
	err := r.TransitionTo(StatusAuthorizing)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	assert.Equal(t, StatusAuthorized, r.Status)

	err = r.TransitionTo(StatusInitialized)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestTransitionSameStatusAllowed(t *testing.T) {
	r := NewRecord("sess-1")
	require.NoError(t, r.TransitionTo(StatusAuthorizing))
	assert.NoError(t, r.TransitionTo(StatusAuthorizing))
}

func TestTransitionUnknownStatus(t *testing.T) {
	r := NewRecord("sess-1")
	assert.ErrorIs(t, r.TransitionTo(Status("bogus")), shared.ErrInvalidTransition)

	r.Status = Status("corrupted")
	assert.ErrorIs(t, r.TransitionTo(StatusAuthorized), shared.ErrInvalidTransition)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "session:abc", Key("abc"))
	assert.Equal(t, "state:tok", StateKey("tok"))
}
