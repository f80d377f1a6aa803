// Package gateway wires the HTTP surface together: route registration,
// the Guard middleware stack, handlers, and the error boundary.
//
// Handlers return errors instead of writing them; classifyError is the
// single mapping from the error taxonomy to HTTP statuses, so a valid
// session touching someone else's resource is always 403, a missing or
// bad credential is always 401, and every backend or internal failure
// collapses to the same generic 500 body. Auth endpoints (login,
// register, verify-token) are the only places a session is minted; all
// other handlers proxy toward the backend-of-record with the bearer
// carried on the request context.
package gateway
