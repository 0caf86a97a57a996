package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tandogan/livetrack/internal/auth"
)

func okHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return resp.Error.Code
}

func TestRequireAuthMissingToken(t *testing.T) {
	svc := auth.NewJWTService("test-secret")
	handler := RequireAuth(svc)(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/tracking/my/day", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != "auth_failed" {
		t.Errorf("expected error code auth_failed, got %q", code)
	}
}

func TestRequireAuthInvalidToken(t *testing.T) {
	svc := auth.NewJWTService("test-secret")
	handler := RequireAuth(svc)(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/tracking/my/day", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAuthSetsIdentity(t *testing.T) {
	svc := auth.NewJWTService("test-secret")
	token, err := svc.GenerateAccessToken(42, auth.RoleUser)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	var got Identity
	var ok bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = GetIdentity(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireAuth(svc)(inner)

	req := httptest.NewRequest(http.MethodGet, "/tracking/my/day", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !ok {
		t.Fatal("expected identity in request context")
	}
	if got.UserID != 42 || got.Role != auth.RoleUser {
		t.Errorf("unexpected identity: %+v", got)
	}
}

func TestRequireRoleRejectsWrongRole(t *testing.T) {
	svc := auth.NewJWTService("test-secret")
	token, err := svc.GenerateAccessToken(7, auth.RoleUser)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	handler := RequireAuth(svc)(RequireRole(auth.RoleAdmin)(okHandler(t)))

	req := httptest.NewRequest(http.MethodGet, "/tracking/admin/last", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != "forbidden" {
		t.Errorf("expected error code forbidden, got %q", code)
	}
}

func TestRequireRoleAllowsMatchingRole(t *testing.T) {
	svc := auth.NewJWTService("test-secret")
	token, err := svc.GenerateAccessToken(7, auth.RoleAdmin)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	handler := RequireAuth(svc)(RequireRole(auth.RoleAdmin)(okHandler(t)))

	req := httptest.NewRequest(http.MethodGet, "/tracking/admin/last", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireAdminKey(t *testing.T) {
	handler := RequireAdminKey("sekrit")(okHandler(t))

	tests := []struct {
		name       string
		presented  string
		wantStatus int
	}{
		{"valid key", "sekrit", http.StatusOK},
		{"wrong key", "nope", http.StatusForbidden},
		{"missing key", "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, "/tracking/admin/9/day", nil)
			if tt.presented != "" {
				req.Header.Set(AdminKeyHeader, tt.presented)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestRequireAdminKeyUnconfigured(t *testing.T) {
	handler := RequireAdminKey("")(okHandler(t))

	req := httptest.NewRequest(http.MethodDelete, "/tracking/admin/9/day", nil)
	req.Header.Set(AdminKeyHeader, "")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 when key is not configured, got %d", rec.Code)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"well formed", "Bearer abc.def.ghi", "abc.def.ghi"},
		{"lowercase scheme", "bearer abc", "abc"},
		{"missing scheme", "abc", ""},
		{"wrong scheme", "Basic abc", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := bearerToken(req); got != tt.want {
				t.Errorf("bearerToken() = %q, want %q", got, tt.want)
			}
		})
	}
}
