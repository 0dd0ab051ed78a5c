package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireAdmin(t *testing.T) {
	keys := Keys{Public: []string{"pub_key"}, Admin: []string{"adm_key"}}

	cases := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"admin key", "X-API-Key", "adm_key", http.StatusOK},
		{"admin bearer", "Authorization", "Bearer adm_key", http.StatusOK},
		{"public key", "X-API-Key", "pub_key", http.StatusForbidden},
		{"unknown key", "X-API-Key", "nope", http.StatusUnauthorized},
		{"missing key", "", "", http.StatusUnauthorized},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodPost, "/trigger_report", nil)
		if c.header != "" {
			req.Header.Set(c.header, c.value)
		}
		rec := httptest.NewRecorder()
		RequireAdmin(keys)(okHandler()).ServeHTTP(rec, req)
		if rec.Code != c.want {
			t.Fatalf("%s: want %d got %d", c.name, c.want, rec.Code)
		}
	}
}

func TestRequireAny_StoresRole(t *testing.T) {
	keys := Keys{Public: []string{"pub_key"}, Admin: []string{"adm_key"}}
	var got Role
	h := RequireAny(keys)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = RoleFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/get_report", nil)
	req.Header.Set("Authorization", "bearer pub_key")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || got != RolePublic {
		t.Fatalf("public key: code=%d role=%v", rec.Code, got)
	}

	req = httptest.NewRequest(http.MethodGet, "/get_report", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing key: want 401 got %d", rec.Code)
	}
}

func TestNoKeysConfigured_AllowsAll(t *testing.T) {
	var got Role
	h := RequireAdmin(Keys{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = RoleFrom(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest", nil))
	if rec.Code != http.StatusOK || got != RoleAdmin {
		t.Fatalf("dev mode: code=%d role=%v", rec.Code, got)
	}
}
