package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

// Keys are the accepted API keys. An admin key also grants public access.
type Keys struct {
	Public []string
	Admin  []string
}

// Enabled reports whether any key is configured. With no keys every request
// is treated as admin (local dev).
func (k Keys) Enabled() bool { return len(k.Public) > 0 || len(k.Admin) > 0 }

type Role int

const (
	RoleNone Role = iota
	RolePublic
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RolePublic:
		return "public"
	case RoleAdmin:
		return "admin"
	}
	return "none"
}

func (k Keys) roleOf(given string) Role {
	if !k.Enabled() {
		return RoleAdmin
	}
	if given == "" {
		return RoleNone
	}
	if hasKey(given, k.Admin) {
		return RoleAdmin
	}
	if hasKey(given, k.Public) {
		return RolePublic
	}
	return RoleNone
}

// APIKey returns the key from "Authorization: Bearer" or X-API-Key.
func APIKey(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func hasKey(given string, set []string) bool {
	for _, k := range set {
		if subtle.ConstantTimeCompare([]byte(k), []byte(given)) == 1 {
			return true
		}
	}
	return false
}

type roleKey struct{}

// RoleFrom returns the role stored by RequireAny or RequireAdmin.
func RoleFrom(ctx context.Context) Role {
	r, _ := ctx.Value(roleKey{}).(Role)
	return r
}

// RequireAny allows requests that present either a public or admin key.
func RequireAny(keys Keys) func(http.Handler) http.Handler {
	return require(keys, RolePublic)
}

// RequireAdmin only permits requests that present an admin key. A missing or
// unknown key is 401; a public key is 403.
func RequireAdmin(keys Keys) func(http.Handler) http.Handler {
	return require(keys, RoleAdmin)
}

func require(keys Keys, need Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := keys.roleOf(APIKey(r))
			switch {
			case role >= need:
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), roleKey{}, role)))
			case role == RoleNone:
				writeError(w, http.StatusUnauthorized, "unauthorized")
			default:
				writeError(w, http.StatusForbidden, "forbidden")
			}
		})
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
