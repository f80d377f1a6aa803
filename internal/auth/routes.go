// ABOUTME: Route classification table deciding which paths require authentication
// ABOUTME: Fail-closed matching with segment-boundary prefix rules

package auth

import "strings"

// Classification is the result of classifying a request path.
type Classification int

const (
	// RouteProtected requires a valid session. The zero value: any path
	// the table does not recognize fails closed to protected.
	RouteProtected Classification = iota
	// RoutePublic passes the Guard with no credential.
	RoutePublic
)

// RouteTable is the static, read-only mapping from path to
// classification. Built once at startup and shared across requests.
type RouteTable struct {
	publicExact map[string]struct{}
	// public entries that also cover sub-paths; matching stops at a
	// path separator so "/auth/login" never covers "/auth/login-as-admin"
	publicPrefixes []string
}

// NewRouteTable builds a table from exact public paths and public
// prefixes. Prefix entries match the path itself and any sub-path
// terminated by a separator; trailing slashes are normalized away.
func NewRouteTable(exact, prefixes []string) *RouteTable {
	t := &RouteTable{
		publicExact: make(map[string]struct{}, len(exact)),
	}
	for _, p := range exact {
		t.publicExact[p] = struct{}{}
	}
	for _, p := range prefixes {
		t.publicPrefixes = append(t.publicPrefixes, strings.TrimSuffix(p, "/"))
	}
	return t
}

// DefaultRouteTable returns the gateway's public route set. Everything
// else, including paths nobody registered, is protected.
func DefaultRouteTable() *RouteTable {
	return NewRouteTable(
		[]string{
			"/",
			"/healthz",
		},
		[]string{
			"/auth/login",
			"/auth/register",
			"/about",
			"/pricing",
			"/api/auth/login",
			"/api/auth/register",
			"/api/auth/logout",
			"/api/auth/verify-token",
		},
	)
}

// Classify determines whether a path requires authentication.
func (t *RouteTable) Classify(path string) Classification {
	if _, ok := t.publicExact[path]; ok {
		return RoutePublic
	}

	for _, prefix := range t.publicPrefixes {
		if path == prefix {
			return RoutePublic
		}
		// Require the match to end at a separator: "/auth/login/x" is
		// public under "/auth/login", "/auth/login-as-admin" is not.
		if strings.HasPrefix(path, prefix+"/") {
			return RoutePublic
		}
	}

	return RouteProtected
}

// IsAPIPath reports whether a path belongs to the JSON API surface.
// Used by the Guard to choose 401 over a login redirect.
func IsAPIPath(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}
