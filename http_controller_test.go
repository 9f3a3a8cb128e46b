package session_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vijanaworks/go-session"
)

type controllerFixture struct {
	app    *fiber.App
	store  *MockIdentityStore
	ledger *MockLedger
	auth   *session.Orchestrator
}

func newControllerFixture(t *testing.T, opts ...session.ControllerOption) *controllerFixture {
	t.Helper()

	store := new(MockIdentityStore)
	ledger := new(MockLedger)
	auth := session.NewOrchestrator(store, ledger, nil, newTestConfig())

	app := fiber.New()
	session.NewController(auth, opts...).RegisterRoutes(app)

	return &controllerFixture{
		app:    app,
		store:  store,
		ledger: ledger,
		auth:   auth,
	}
}

func postJSON(t *testing.T, app *fiber.App, path string, payload any, headers ...map[string]string) (*http.Response, map[string]any) {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, h := range headers {
		for k, v := range h {
			req.Header.Set(k, v)
		}
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	decoded := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	return decoded
}

func TestControllerLogin(t *testing.T) {
	t.Run("successful login returns the token pair", func(t *testing.T) {
		f := newControllerFixture(t)

		record := activeRecord(t, "password123")
		f.store.On("Lookup", mock.Anything, "amina@example.com").Return(record, nil).Once()
		f.ledger.On("Save", mock.Anything, mock.Anything).Return(nil).Once()

		resp, body := postJSON(t, f.app, "/auth/login", fiber.Map{
			"identifier": "amina@example.com",
			"password":   "password123",
		})

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, body["access_token"])
		assert.NotEmpty(t, body["refresh_token"])
		assert.Equal(t, "Bearer", body["token_type"])
		assert.Equal(t, "YOUTH", body["role"])
	})

	t.Run("bad credentials map to 401", func(t *testing.T) {
		f := newControllerFixture(t)

		record := activeRecord(t, "password123")
		f.store.On("Lookup", mock.Anything, "amina@example.com").Return(record, nil).Once()

		resp, body := postJSON(t, f.app, "/auth/login", fiber.Map{
			"identifier": "amina@example.com",
			"password":   "wrong",
		})

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, session.TextCodeInvalidCreds, body["code"])
		assert.Equal(t, false, body["success"])
	})

	t.Run("unknown user maps to 404", func(t *testing.T) {
		f := newControllerFixture(t)
		f.store.On("Lookup", mock.Anything, "ghost@example.com").
			Return(nil, session.ErrUserNotFound).Once()

		resp, body := postJSON(t, f.app, "/auth/login", fiber.Map{
			"identifier": "ghost@example.com",
			"password":   "whatever",
		})

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, session.TextCodeUserNotFound, body["code"])
	})

	t.Run("locked account maps to 429", func(t *testing.T) {
		f := newControllerFixture(t)

		record := activeRecord(t, "password123")
		lockedUntil := time.Now().Add(time.Hour)
		record.LockedUntil = &lockedUntil
		f.store.On("Lookup", mock.Anything, "amina@example.com").Return(record, nil).Once()

		resp, body := postJSON(t, f.app, "/auth/login", fiber.Map{
			"identifier": "amina@example.com",
			"password":   "password123",
		})

		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		assert.Equal(t, session.TextCodeAccountLocked, body["code"])
	})

	t.Run("store outage maps to 503", func(t *testing.T) {
		f := newControllerFixture(t)
		f.store.On("Lookup", mock.Anything, "amina@example.com").
			Return(nil, session.ErrIdentityStoreUnavailable).Once()

		resp, body := postJSON(t, f.app, "/auth/login", fiber.Map{
			"identifier": "amina@example.com",
			"password":   "password123",
		})

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, session.TextCodeDependencyDown, body["code"])
	})

	t.Run("missing fields map to 400", func(t *testing.T) {
		f := newControllerFixture(t)

		resp, body := postJSON(t, f.app, "/auth/login", fiber.Map{
			"identifier": "amina@example.com",
		})

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, false, body["success"])
	})
}

func TestControllerRefresh(t *testing.T) {
	f := newControllerFixture(t)

	value, err := session.NewRefreshValue()
	require.NoError(t, err)

	f.ledger.On("FindLiveByValue", mock.Anything, value).
		Return(nil, session.ErrUserNotFound).Once()

	resp, body := postJSON(t, f.app, "/auth/refresh", fiber.Map{
		"refresh_token": value,
	})

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, session.TextCodeInvalidRefresh, body["code"])
}

func TestControllerLogoutAlwaysSucceeds(t *testing.T) {
	f := newControllerFixture(t)

	resp, body := postJSON(t, f.app, "/auth/logout", fiber.Map{
		"refresh_token": "garbage",
	}, map[string]string{"Authorization": "Bearer garbage"})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
}

func TestControllerValidate(t *testing.T) {
	t.Run("valid token", func(t *testing.T) {
		f := newControllerFixture(t)

		record := activeRecord(t, "password123")
		f.store.On("Lookup", mock.Anything, "amina@example.com").Return(record, nil).Once()
		f.ledger.On("Save", mock.Anything, mock.Anything).Return(nil).Once()

		pair, err := f.auth.Login(context.Background(), "amina@example.com", "password123")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/auth/validate", nil)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)

		resp, err := f.app.Test(req, -1)
		require.NoError(t, err)

		body := decodeBody(t, resp)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["valid"])
		assert.Equal(t, record.SubjectID.String(), body["subject_id"])
	})

	t.Run("missing header", func(t *testing.T) {
		f := newControllerFixture(t)

		req := httptest.NewRequest(http.MethodGet, "/auth/validate", nil)

		resp, err := f.app.Test(req, -1)
		require.NoError(t, err)

		body := decodeBody(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, false, body["valid"])
	})

	t.Run("garbage token", func(t *testing.T) {
		f := newControllerFixture(t)

		req := httptest.NewRequest(http.MethodGet, "/auth/validate", nil)
		req.Header.Set("Authorization", "Bearer garbage")

		resp, err := f.app.Test(req, -1)
		require.NoError(t, err)

		// Invalid tokens always render the {"valid":false} shape, never
		// the error envelope.
		body := decodeBody(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, false, body["valid"])
		assert.NotContains(t, body, "error")
	})
}

type stubFederated struct {
	pair *session.TokenPair
	err  error
}

func (s stubFederated) LoginWithProvider(context.Context, string, string) (*session.TokenPair, error) {
	return s.pair, s.err
}

func TestControllerFederated(t *testing.T) {
	t.Run("successful federated login", func(t *testing.T) {
		pair := &session.TokenPair{
			AccessToken:  "access",
			RefreshToken: "refresh",
			TokenType:    "Bearer",
			Role:         session.RoleYouth,
		}

		f := newControllerFixture(t, session.WithFederated(stubFederated{pair: pair}))

		resp, body := postJSON(t, f.app, "/auth/federation/google", fiber.Map{
			"assertion": "provider-id-token",
		})

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "access", body["access_token"])
	})

	t.Run("unverified email maps to 401", func(t *testing.T) {
		f := newControllerFixture(t,
			session.WithFederated(stubFederated{err: session.ErrUnverifiedFederatedEmail}))

		resp, body := postJSON(t, f.app, "/auth/federation/google", fiber.Map{
			"assertion": "provider-id-token",
		})

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, session.TextCodeUnverifiedEmail, body["code"])
	})

	t.Run("routes absent without a federated authenticator", func(t *testing.T) {
		f := newControllerFixture(t)

		req := httptest.NewRequest(http.MethodPost, "/auth/federation/google", nil)

		resp, err := f.app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
