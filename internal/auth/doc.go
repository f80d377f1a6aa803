// Package auth implements the gateway's authorization core: identity
// token verification, session issuance, route classification, and the
// Guard middleware that ties them together.
//
// Three credentials flow through this package and must never be
// confused:
//
//   - the identity-provider ID token, verified once per login by an
//     IDTokenVerifier and never forwarded anywhere
//   - the self-issued session JWT, transported in the HTTP-only "token"
//     cookie and validated statelessly on every protected request
//   - the backend bearer credential carried on RequestContext, which the
//     proxy injects toward the backend-of-record
//
// The Guard guarantees the gateway's central invariant: any request that
// reaches a handler downstream of it either carries a fully populated
// RequestContext or its path is in the public route set.
package auth
