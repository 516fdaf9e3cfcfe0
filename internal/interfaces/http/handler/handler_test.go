package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	appsession "github.com/enercompare/backend/internal/application/session"
	apptracking "github.com/enercompare/backend/internal/application/tracking"
	domaintracking "github.com/enercompare/backend/internal/domain/tracking"
	"github.com/enercompare/backend/internal/infrastructure/auth"
	"github.com/enercompare/backend/internal/infrastructure/config"
	"github.com/enercompare/backend/internal/infrastructure/kv"
	"github.com/enercompare/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "partner-webhook-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	engine *gin.Engine
	store  kv.Store
	mr     *miniredis.Miniredis
	clicks *apptracking.ClickService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	store := kv.NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	logger := zap.NewNop()

	key := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	tokens, err := auth.NewTokenService(config.SigningConfig{Key: key, Issuer: "enercompare-test"})
	require.NoError(t, err)

	sessions := appsession.NewService(store, tokens, config.SessionConfig{
		TTL:             24 * time.Hour,
		TokenTTL:        24 * time.Hour,
		StateTTL:        10 * time.Minute,
		AuthorizeURL:    "https://partner.example/oauth/authorize",
		CallbackBaseURL: "https://enercompare.example/api/v1/auth/callback",
		PartnerClientID: "enercompare-web",
	}, logger)

	clicks := apptracking.NewClickService(store, 64, logger)
	t.Cleanup(clicks.Close)
	conversions := apptracking.NewConversionService(store, testSecret, logger)

	engine := gin.New()
	router.NewRouter(engine).
		Register(NewAuthHandler(sessions, logger)).
		Register(NewTrackHandler(clicks, conversions, logger)).
		Setup()
	NewHealthHandler(store).Register(engine)

	return &testEnv{engine: engine, store: store, mr: mr, clicks: clicks}
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func (e *testEnv) createSession(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/auth/session", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		SessionToken string `json:"sessionToken"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.SessionToken)
	return body.SessionToken
}

func (e *testEnv) seedClick(t *testing.T, age time.Duration) string {
	t.Helper()
	now := time.Now().UTC().Add(-age)
	record := &domaintracking.ClickRecord{
		ClickID:   domaintracking.NewClickID(now),
		PartnerID: "enpal",
		Timestamp: now,
	}
	require.NoError(t, e.store.SetJSON(context.Background(),
		domaintracking.ClickKey(record.ClickID), record, 0))
	return record.ClickID
}

func TestAuthorizeWithoutSession(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/auth/authorize", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"NO_SESSION"`)
}

func TestAuthorizeWithSession(t *testing.T) {
	env := newTestEnv(t)
	token := env.createSession(t)

	w := env.do(t, http.MethodPost, "/api/v1/auth/authorize", "", map[string]string{
		"Authorization": "Bearer " + token,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		AuthorizationURL string `json:"authorizationUrl"`
		StateValue       string `json:"stateValue"`
		SessionID        string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.AuthorizationURL)
	assert.NotEmpty(t, body.SessionID)
	assert.Contains(t, body.AuthorizationURL, body.StateValue)
}

func TestAuthorizeStatusAndCallback(t *testing.T) {
	env := newTestEnv(t)
	token := env.createSession(t)
	headers := map[string]string{"Authorization": "Bearer " + token}

	w := env.do(t, http.MethodPost, "/api/v1/auth/authorize", "", headers)
	require.Equal(t, http.StatusOK, w.Code)
	var grant struct {
		StateValue string `json:"stateValue"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &grant))

	w = env.do(t, http.MethodGet, "/api/v1/auth/callback?state="+grant.StateValue+"&customer_id=cust-1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/auth/authorize", "", headers)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"authorized"`)

	// State tokens are single-use.
	w = env.do(t, http.MethodGet, "/api/v1/auth/callback?state="+grant.StateValue+"&customer_id=cust-1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCallbackWithoutState(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/auth/callback", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClickBeaconAlwaysNoContent(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/track/click", `{"partner_id":"enpal","source":"solar-guide"}`, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, domaintracking.IsValidClickID(w.Header().Get("X-Click-ID")))

	// No body, garbage body: still 204.
	w = env.do(t, http.MethodPost, "/api/v1/track/click", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, http.MethodPost, "/api/v1/track/click", "{not json", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestConversionWebhookContract(t *testing.T) {
	env := newTestEnv(t)
	clickID := env.seedClick(t, time.Hour)

	authed := map[string]string{WebhookSecretHeader: testSecret}

	// Wrong secret.
	w := env.do(t, http.MethodPost, "/api/v1/track-conversion",
		`{"click_id":"`+clickID+`"}`, map[string]string{WebhookSecretHeader: "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Missing click_id.
	w = env.do(t, http.MethodPost, "/api/v1/track-conversion", `{}`, authed)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Wrong prefix.
	w = env.do(t, http.MethodPost, "/api/v1/track-conversion", `{"click_id":"foo_123_abc"}`, authed)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown click.
	w = env.do(t, http.MethodPost, "/api/v1/track-conversion", `{"click_id":"dep_zzz_unknown"}`, authed)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Accepted.
	w = env.do(t, http.MethodPost, "/api/v1/track-conversion",
		`{"click_id":"`+clickID+`","customer_id":"cust-1","contract_value":12500.50}`, authed)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)
	assert.Contains(t, w.Body.String(), clickID)

	// Duplicate.
	w = env.do(t, http.MethodPost, "/api/v1/track-conversion",
		`{"click_id":"`+clickID+`"}`, authed)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestConversionOutsideWindowIsGenericNotFound(t *testing.T) {
	env := newTestEnv(t)
	clickID := env.seedClick(t, domaintracking.AttributionWindow+24*time.Hour)

	w := env.do(t, http.MethodPost, "/api/v1/track-conversion",
		`{"click_id":"`+clickID+`"}`, map[string]string{WebhookSecretHeader: testSecret})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotContains(t, w.Body.String(), "window")
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
