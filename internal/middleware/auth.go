package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tandogan/livetrack/internal/auth"
)

// AdminKeyHeader is the header carrying the static operator key used for
// destructive and corrective operations. Deliberately separate from the
// bearer-token scheme: these paths are privileged-operator actions, not
// ordinary admin-role actions.
const AdminKeyHeader = "X-Admin-Key"

// authError mirrors the API error envelope. Defined here because the
// middleware package cannot depend on the api package.
type authError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeAuthError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	ctx := SetErrorCode(r.Context(), code)
	UpdateResponseContext(w, ctx)

	var resp authError
	resp.Error.Code = code
	resp.Error.Message = message

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(r.Context(), "failed to write auth error response", "error", err)
	}
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RequireAuth validates the bearer token and stores the decoded identity in
// the request context. Requests without a valid token are rejected with 401.
func RequireAuth(jwtSvc *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeAuthError(w, r, http.StatusUnauthorized, "auth_failed", "Missing bearer token")
				return
			}

			claims, err := jwtSvc.ValidateToken(token)
			if err != nil {
				writeAuthError(w, r, http.StatusUnauthorized, "auth_failed", "Invalid or expired token")
				return
			}
			userID, err := claims.UserID()
			if err != nil {
				writeAuthError(w, r, http.StatusUnauthorized, "auth_failed", "Invalid token subject")
				return
			}
			if claims.Role != auth.RoleUser && claims.Role != auth.RoleAdmin {
				writeAuthError(w, r, http.StatusForbidden, "forbidden", "Role not permitted")
				return
			}

			ctx := SetIdentity(r.Context(), Identity{UserID: userID, Role: claims.Role})
			UpdateResponseContext(w, ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects authenticated requests whose identity does not carry
// the given role. Must run inside RequireAuth.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident, ok := GetIdentity(r.Context())
			if !ok {
				writeAuthError(w, r, http.StatusUnauthorized, "auth_failed", "Missing bearer token")
				return
			}
			if ident.Role != role {
				writeAuthError(w, r, http.StatusForbidden, "forbidden", "Role not permitted")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdminKey gates a handler behind the static operator key.
// Comparison is constant-time. An empty configured key disables the paths
// entirely rather than leaving them open.
func RequireAdminKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				writeAuthError(w, r, http.StatusForbidden, "forbidden", "Operator key not configured")
				return
			}
			presented := r.Header.Get(AdminKeyHeader)
			if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
				writeAuthError(w, r, http.StatusForbidden, "forbidden", "Invalid operator key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
