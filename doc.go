// Package session implements the authentication and session-token
// subsystem for the platform: credential verification, access/refresh
// token issuance, refresh-token revocation, logout blacklisting, and
// federated identity login.
//
// Access tokens are short-lived, self-describing JWTs signed with a
// server-held key; they can be verified on every request without a
// store round trip. Refresh tokens are opaque random values persisted
// in a ledger so they can be revoked instantly, without waiting for a
// signature-based expiry.
//
// The Orchestrator composes the credential store, password verifier,
// token codec, refresh ledger and revocation registry. Calls into the
// credential store can be wrapped with a circuit breaker (see the
// breaker package) so that an unavailable identity store degrades into
// fast, explicit failures instead of piled-up timeouts. Refresh
// deliberately bypasses the breaker: it only touches the ledger, so
// sessions keep renewing while the identity store is down.
package session
