package session_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/vijanaworks/go-session"
)

// MockIdentityStore mocks the credential store lookups.
type MockIdentityStore struct {
	mock.Mock
}

func (m *MockIdentityStore) Lookup(ctx context.Context, identifier string) (*session.IdentityRecord, error) {
	args := m.Called(ctx, identifier)
	if rec := args.Get(0); rec != nil {
		return rec.(*session.IdentityRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockTrackingStore is an identity store that also owns attempt
// counters, so the orchestrator's feature detection kicks in.
type MockTrackingStore struct {
	MockIdentityStore
}

func (m *MockTrackingStore) TrackFailedAttempt(ctx context.Context, subjectID uuid.UUID) error {
	args := m.Called(ctx, subjectID)
	return args.Error(0)
}

func (m *MockTrackingStore) TrackSuccessfulLogin(ctx context.Context, subjectID uuid.UUID) error {
	args := m.Called(ctx, subjectID)
	return args.Error(0)
}

// MockLedger mocks the refresh token ledger.
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Save(ctx context.Context, token *session.RefreshToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockLedger) FindLiveByValue(ctx context.Context, value string) (*session.RefreshToken, error) {
	args := m.Called(ctx, value)
	if row := args.Get(0); row != nil {
		return row.(*session.RefreshToken), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLedger) Revoke(ctx context.Context, value string) (bool, error) {
	args := m.Called(ctx, value)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedger) TouchLastUsed(ctx context.Context, value string) error {
	args := m.Called(ctx, value)
	return args.Error(0)
}

func (m *MockLedger) RevokeAllForSubject(ctx context.Context, subjectID uuid.UUID) (int64, error) {
	args := m.Called(ctx, subjectID)
	return args.Get(0).(int64), args.Error(1)
}

// MockRegistry mocks the revocation registry.
type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) Add(ctx context.Context, tokenID string, ttl time.Duration) error {
	args := m.Called(ctx, tokenID, ttl)
	return args.Error(0)
}

func (m *MockRegistry) Contains(ctx context.Context, tokenID string) (bool, error) {
	args := m.Called(ctx, tokenID)
	return args.Bool(0), args.Error(1)
}

// MockNotifier records notification intents.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, n session.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// testConfig is a plain Config for tests.
type testConfig struct {
	signingKey  string
	issuer      string
	audience    []string
	accessTTL   time.Duration
	refreshTTL  time.Duration
	phoneRegion string
}

func newTestConfig() *testConfig {
	return &testConfig{
		signingKey:  "test-signing-key",
		issuer:      "test-issuer",
		audience:    []string{"test:audience"},
		accessTTL:   15 * time.Minute,
		refreshTTL:  7 * 24 * time.Hour,
		phoneRegion: "KE",
	}
}

func (c *testConfig) GetSigningKey() string { return c.signingKey }

func (c *testConfig) GetIssuer() string { return c.issuer }

func (c *testConfig) GetAudience() []string { return c.audience }

func (c *testConfig) GetAccessTokenTTL() time.Duration { return c.accessTTL }

func (c *testConfig) GetRefreshTokenTTL() time.Duration { return c.refreshTTL }

func (c *testConfig) GetDefaultPhoneRegion() string { return c.phoneRegion }
