package api

import "strings"

// Default path prefixes that decide which bearer token a request carries.
const (
	DefaultAdminPrefix    = "/api/admin/"
	DefaultSubAdminPrefix = "/api/sub-admin/"
)

// Tokens holds the two credentials an operator may have.
type Tokens struct {
	Auth     string
	SubAdmin string
}

// TokenSource returns the current credentials. It is consulted on every
// request so a refreshed token is picked up without rebuilding the client.
type TokenSource func() Tokens

// StaticTokens returns a TokenSource that always yields t.
func StaticTokens(t Tokens) TokenSource {
	return func() Tokens { return t }
}

// TokenRouter picks the bearer token for a request path.
//
// Admin-permission paths always use the auth token. Sub-admin paths prefer
// the sub-admin token and fall back to the auth token. Everything else
// prefers the auth token and falls back to the sub-admin token.
type TokenRouter struct {
	AdminPrefixes    []string
	SubAdminPrefixes []string
	Source           TokenSource
}

// NewTokenRouter creates a router with the default prefixes.
func NewTokenRouter(src TokenSource) TokenRouter {
	return TokenRouter{
		AdminPrefixes:    []string{DefaultAdminPrefix},
		SubAdminPrefixes: []string{DefaultSubAdminPrefix},
		Source:           src,
	}
}

// TokenFor returns the token to send for path, or "" if none is available.
func (r TokenRouter) TokenFor(path string) string {
	if r.Source == nil {
		return ""
	}
	t := r.Source()
	switch {
	case hasAnyPrefix(path, r.AdminPrefixes):
		return t.Auth
	case hasAnyPrefix(path, r.SubAdminPrefixes):
		return firstNonEmpty(t.SubAdmin, t.Auth)
	default:
		return firstNonEmpty(t.Auth, t.SubAdmin)
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
