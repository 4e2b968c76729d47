// Package oauth implements the OAuth2 authorization-code strategy behind
// the auth.Manager interface.
//
// # Architecture
//
// The package is built from three cooperating pieces:
//
//   - TokenManager owns the one token set for an account: the in-memory
//     record is the source of truth during the process lifetime, with
//     encrypted write-through persistence via internal/auth/secrets. It
//     decides validity and performs refresh exchanges.
//   - CallbackServer is a short-lived loopback HTTP listener that captures
//     exactly one authorization redirect and hands it to the waiting flow
//     over a one-shot channel.
//   - Client orchestrates the state machine: reuse a valid token, refresh
//     with the stored refresh token, or drive a full browser round trip.
//     Concurrent Authenticate calls collapse into a single in-flight flow.
//
// # Token Storage
//
// Token records are serialized to JSON and sealed by the secrets package
// under a per-account blob name (default "market_data_tokens"). Token
// values are never logged; audit log lines carry only metadata such as
// expiry timestamps and whether a refresh token is present.
package oauth
