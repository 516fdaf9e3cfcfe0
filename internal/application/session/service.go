package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"time"

	domain "github.com/enercompare/backend/internal/domain/session"
	"github.com/enercompare/backend/internal/domain/shared"
	"github.com/enercompare/backend/internal/infrastructure/auth"
	"github.com/enercompare/backend/internal/infrastructure/config"
	"github.com/enercompare/backend/internal/infrastructure/kv"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service tracks the lifecycle of a visitor session across the third-party
// authorization handshake. Sessions are identified by a signed token; the
// live record is read from the KV store on each use.
type Service struct {
	store  kv.Store
	tokens *auth.TokenService
	cfg    config.SessionConfig
	logger *zap.Logger

	now func() time.Time
}

// NewService creates a session service
func NewService(store kv.Store, tokens *auth.TokenService, cfg config.SessionConfig, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		tokens: tokens,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// AuthorizationGrant is the result of starting a third-party handshake
type AuthorizationGrant struct {
	AuthorizationURL string `json:"authorizationUrl"`
	StateValue       string `json:"stateValue"`
	SessionID        string `json:"sessionId"`
}

// IssueSession creates a fresh session record and returns its signed token
func (s *Service) IssueSession(ctx context.Context) (string, *domain.Record, error) {
	record := domain.NewRecord(uuid.New().String())

	if err := s.store.SetJSON(ctx, domain.Key(record.SessionID), record, s.cfg.TTL); err != nil {
		return "", nil, fmt.Errorf("failed to persist session: %w", err)
	}

	token, err := s.tokens.SignSession(record.SessionID, s.cfg.TokenTTL)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return token, record, nil
}

// GetSession resolves a signed session token to its live record. Any
// verification or lookup failure is reported as ErrNoSession; callers treat
// it identically to "no session" and must not surface it as a server error.
func (s *Service) GetSession(ctx context.Context, rawToken string) (*domain.Record, error) {
	if rawToken == "" {
		return nil, shared.ErrNoSession
	}

	claims, err := s.tokens.ParseSession(rawToken)
	if err != nil {
		return nil, shared.ErrNoSession
	}

	var record domain.Record
	if err := s.store.GetJSON(ctx, domain.Key(claims.SessionID), &record); err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Error("failed to load session record",
				zap.String("session_id", claims.SessionID),
				zap.Error(err))
		}
		return nil, shared.ErrNoSession
	}

	return &record, nil
}

// BeginAuthorization starts the third-party authorization handshake for the
// session identified by rawToken. Each call mints a fresh, independent state
// token; calling it repeatedly for one session is safe.
//
// Persisting the state token is the one hard requirement: without the
// server-side record the callback could never be correlated, so a KV failure
// there fails the operation. The session status update is best-effort and
// never aborts the flow.
func (s *Service) BeginAuthorization(ctx context.Context, rawToken string) (*AuthorizationGrant, error) {
	record, err := s.GetSession(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	stateValue, err := generateStateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	stateRecord := domain.StateTokenRecord{
		SessionID: record.SessionID,
		CreatedAt: s.now().UTC(),
		Type:      domain.StateTokenTypeAuthorization,
	}
	if err := s.store.SetJSON(ctx, domain.StateKey(stateValue), stateRecord, s.cfg.StateTTL); err != nil {
		return nil, fmt.Errorf("failed to persist state token: %w", err)
	}

	// Best-effort session update. The state token above is already valid,
	// so a failure here must not stop the user from being redirected.
	s.markAuthorizing(ctx, record, stateValue)

	return &AuthorizationGrant{
		AuthorizationURL: s.buildAuthorizeURL(stateValue),
		StateValue:       stateValue,
		SessionID:        record.SessionID,
	}, nil
}

// CompleteAuthorization consumes a state token when the third party
// redirects back. State tokens are single-use: the record is deleted on
// success, so a replayed callback sees ErrNoSession.
func (s *Service) CompleteAuthorization(ctx context.Context, stateValue, customerID string) (*domain.Record, error) {
	var stateRecord domain.StateTokenRecord
	if err := s.store.GetJSON(ctx, domain.StateKey(stateValue), &stateRecord); err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Error("failed to load state token", zap.Error(err))
		}
		return nil, shared.ErrNoSession
	}

	if err := s.store.Delete(ctx, domain.StateKey(stateValue)); err != nil {
		s.logger.Warn("failed to invalidate state token",
			zap.String("session_id", stateRecord.SessionID),
			zap.Error(err))
	}

	var record domain.Record
	if err := s.store.GetJSON(ctx, domain.Key(stateRecord.SessionID), &record); err != nil {
		return nil, shared.ErrNoSession
	}

	if err := record.TransitionTo(domain.StatusAuthorized); err != nil {
		return nil, err
	}
	record.CustomerID = customerID

	if err := s.store.SetJSON(ctx, domain.Key(record.SessionID), &record, s.cfg.TTL); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	return &record, nil
}

// AuthorizationStatus returns the current status without mutating state
func (s *Service) AuthorizationStatus(ctx context.Context, rawToken string) (*domain.Record, error) {
	return s.GetSession(ctx, rawToken)
}

// markAuthorizing moves the session into the authorizing state and refreshes
// its TTL. Failures are logged, not propagated.
func (s *Service) markAuthorizing(ctx context.Context, record *domain.Record, stateValue string) {
	if err := record.TransitionTo(domain.StatusAuthorizing); err != nil {
		s.logger.Warn("session not moved to authorizing",
			zap.String("session_id", record.SessionID),
			zap.String("status", string(record.Status)),
			zap.Error(err))
		return
	}

	startedAt := s.now().UTC()
	record.AuthStartedAt = &startedAt
	record.StateToken = stateValue
	if record.Metadata == nil {
		record.Metadata = make(map[string]string)
	}
	record.Metadata["last_state_token"] = stateValue

	if err := s.store.SetJSON(ctx, domain.Key(record.SessionID), record, s.cfg.TTL); err != nil {
		s.logger.Warn("failed to update session record",
			zap.String("session_id", record.SessionID),
			zap.Error(err))
	}
}

// buildAuthorizeURL constructs the third-party authorization URL. The
// redirect URI itself carries the state token, so the callback arrives with
// ?state= regardless of what the third party echoes.
func (s *Service) buildAuthorizeURL(stateValue string) string {
	callback := s.cfg.CallbackBaseURL + "?state=" + url.QueryEscape(stateValue)

	q := url.Values{}
	q.Set("client_id", s.cfg.PartnerClientID)
	q.Set("redirect_uri", callback)
	q.Set("response_type", "code")
	q.Set("state", stateValue)

	return s.cfg.AuthorizeURL + "?" + q.Encode()
}

// generateStateToken returns a CSRF-grade random token (43 chars base64url
// over 32 bytes of entropy).
func generateStateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
