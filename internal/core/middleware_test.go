package core

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"puretrack/internal/config"
	"puretrack/internal/db"
	"puretrack/internal/types"
)

func testTimestamp() time.Time {
	return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := NewServer(&config.Config{Environment: "local"}, logger)
	require.NoError(t, err)
	return srv
}

type mockAPIKeyVerifier struct {
	mock.Mock
}

func (m *mockAPIKeyVerifier) Verify(ctx context.Context, presented string) (*db.APIKey, error) {
	args := m.Called(ctx, presented)
	if k := args.Get(0); k != nil {
		return k.(*db.APIKey), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestRecoverer(t *testing.T) {
	srv := newTestServer(t)

	h := srv.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/test", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), string(types.ErrCodeInternalUnexpected))
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestRequestIDMiddleware_GeneratesAndPropagates(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/test", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get("X-Request-Id"))
}

func TestRequestIDMiddleware_ReusesIncomingHeader(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/v1/test", nil)
	r.Header.Set("X-Request-Id", "upstream-id")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, "upstream-id", seen)
	assert.Equal(t, "upstream-id", w.Header().Get("X-Request-Id"))
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	srv := newTestServer(t)
	h := srv.SecurityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/test", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestContextTimeoutMiddleware(t *testing.T) {
	var hasDeadline bool
	h := ContextTimeoutMiddleware(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/test", nil))
	assert.True(t, hasDeadline)
}

func TestAPIKeyAuthMiddleware_Success(t *testing.T) {
	srv := newTestServer(t)
	verifier := new(mockAPIKeyVerifier)
	srv.APIKeys = verifier

	verifier.On("Verify", mock.Anything, "ptk_valid").
		Return(&db.APIKey{ID: "key-1", Name: "gateway-east"}, nil)

	var actor types.Actor
	var found bool
	h := srv.APIKeyAuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, found = types.GetActor(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))

	r := httptest.NewRequest(http.MethodPost, "/v1/alerts/events", nil)
	r.Header.Set("Authorization", "Bearer ptk_valid")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusAccepted, w.Code)
	require.True(t, found)
	assert.Equal(t, "key-1", actor.ID)
	assert.Equal(t, types.ActorTypeAPIKey, actor.Type)
	assert.Equal(t, "gateway-east", actor.Source)
}

func TestAPIKeyAuthMiddleware_MissingHeader(t *testing.T) {
	srv := newTestServer(t)
	srv.APIKeys = new(mockAPIKeyVerifier)

	h := srv.APIKeyAuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/alerts/events", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), string(types.ErrCodeAuthTokenMissing))
}

func TestAPIKeyAuthMiddleware_InvalidKey(t *testing.T) {
	srv := newTestServer(t)
	verifier := new(mockAPIKeyVerifier)
	srv.APIKeys = verifier

	verifier.On("Verify", mock.Anything, "ptk_bad").
		Return(nil, types.NewAppError(types.ErrCodeAuthKeyInvalid, "invalid api key", nil))

	h := srv.APIKeyAuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	r := httptest.NewRequest(http.MethodPost, "/v1/alerts/events", nil)
	r.Header.Set("Authorization", "Bearer ptk_bad")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), string(types.ErrCodeAuthKeyInvalid))
}

func TestAPIKeyAuthMiddleware_NilVerifierPassesThrough(t *testing.T) {
	srv := newTestServer(t)

	h := srv.APIKeyAuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/alerts/events", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Bearer abc123", "abc123"},
		{"bearer abc123", "abc123"},
		{"BEARER abc123", "abc123"},
		{"Bearer  abc123 ", "abc123"},
		{"Basic abc123", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractBearerToken(tt.in), tt.in)
	}
}

func TestResponseCapture_DefaultsTo200OnWrite(t *testing.T) {
	w := httptest.NewRecorder()
	rc := &responseCapture{ResponseWriter: w}

	_, err := rc.Write([]byte("ok"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rc.statusCode)
}

func TestResponseCapture_FirstStatusWins(t *testing.T) {
	w := httptest.NewRecorder()
	rc := &responseCapture{ResponseWriter: w}

	rc.WriteHeader(http.StatusNotFound)
	rc.WriteHeader(http.StatusOK)
	assert.Equal(t, http.StatusNotFound, rc.statusCode)
}
