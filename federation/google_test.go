package federation_test

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vijanaworks/go-session"
	"github.com/vijanaworks/go-session/federation"
)

const testClientID = "test-client-id.apps.googleusercontent.com"

type idTokenOverrides struct {
	issuer        string
	audience      string
	subject       string
	email         string
	emailVerified bool
	expiresAt     time.Time
	method        jwt.SigningMethod
}

func signIDToken(t *testing.T, key *rsa.PrivateKey, o idTokenOverrides) string {
	t.Helper()

	if o.issuer == "" {
		o.issuer = "https://accounts.google.com"
	}
	if o.audience == "" {
		o.audience = testClientID
	}
	if o.subject == "" {
		o.subject = "110169484474386276334"
	}
	if o.email == "" {
		o.email = "amina@example.com"
	}
	if o.expiresAt.IsZero() {
		o.expiresAt = time.Now().Add(time.Hour)
	}
	if o.method == nil {
		o.method = jwt.SigningMethodRS256
	}

	claims := jwt.MapClaims{
		"iss":            o.issuer,
		"aud":            o.audience,
		"sub":            o.subject,
		"email":          o.email,
		"email_verified": o.emailVerified,
		"name":           "Amina Odhiambo",
		"picture":        "https://example.com/avatar.png",
		"iat":            time.Now().Unix(),
		"exp":            o.expiresAt.Unix(),
	}

	var signingKey any = key
	if o.method == jwt.SigningMethodHS256 {
		signingKey = []byte("symmetric-key")
	}

	raw, err := jwt.NewWithClaims(o.method, claims).SignedString(signingKey)
	require.NoError(t, err)
	return raw
}

func newTestVerifier(t *testing.T, key *rsa.PrivateKey) *federation.GoogleVerifier {
	t.Helper()

	verifier, err := federation.NewGoogleVerifier(testClientID,
		federation.WithKeyFunc(func(*jwt.Token) (any, error) {
			return &key.PublicKey, nil
		}))
	require.NoError(t, err)
	return verifier
}

func TestGoogleVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	verifier := newTestVerifier(t, key)

	t.Run("valid assertion", func(t *testing.T) {
		raw := signIDToken(t, key, idTokenOverrides{emailVerified: true})

		identity, err := verifier.Verify(raw)
		require.NoError(t, err)

		assert.Equal(t, federation.ProviderGoogle, identity.Provider)
		assert.Equal(t, "110169484474386276334", identity.SubjectID)
		assert.Equal(t, "amina@example.com", identity.Email)
		assert.Equal(t, "Amina Odhiambo", identity.Name)
		assert.NotEmpty(t, identity.AvatarURL)
	})

	t.Run("bare issuer form accepted", func(t *testing.T) {
		raw := signIDToken(t, key, idTokenOverrides{
			issuer:        "accounts.google.com",
			emailVerified: true,
		})

		_, err := verifier.Verify(raw)
		assert.NoError(t, err)
	})

	failures := []struct {
		name      string
		overrides idTokenOverrides
	}{
		{
			name: "wrong audience",
			overrides: idTokenOverrides{
				audience:      "someone-elses-client-id",
				emailVerified: true,
			},
		},
		{
			name: "wrong issuer",
			overrides: idTokenOverrides{
				issuer:        "https://evil.example.com",
				emailVerified: true,
			},
		},
		{
			name: "expired assertion",
			overrides: idTokenOverrides{
				emailVerified: true,
				expiresAt:     time.Now().Add(-time.Hour),
			},
		},
		{
			name: "symmetric signature rejected",
			overrides: idTokenOverrides{
				emailVerified: true,
				method:        jwt.SigningMethodHS256,
			},
		},
	}

	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			raw := signIDToken(t, key, tt.overrides)

			identity, err := verifier.Verify(raw)
			assert.Nil(t, identity)
			assert.Error(t, err)
			assert.True(t, session.HasTextCode(err, session.TextCodeInvalidCreds),
				"verification failures collapse into invalid credentials")
		})
	}

	t.Run("unverified email is surfaced distinctly", func(t *testing.T) {
		raw := signIDToken(t, key, idTokenOverrides{emailVerified: false})

		_, err := verifier.Verify(raw)
		assert.ErrorIs(t, err, session.ErrUnverifiedFederatedEmail)
	})

	t.Run("tampered payload", func(t *testing.T) {
		raw := signIDToken(t, key, idTokenOverrides{emailVerified: true})
		tampered := raw[:len(raw)-6] + "AAAAAA"

		_, err := verifier.Verify(tampered)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := verifier.Verify("garbage")
		assert.Error(t, err)
	})
}
