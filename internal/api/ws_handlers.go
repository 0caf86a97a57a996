package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tandogan/livetrack/internal/auth"
	"github.com/tandogan/livetrack/internal/location"
	"github.com/tandogan/livetrack/internal/registry"
	"github.com/tandogan/livetrack/internal/stream"
)

// WSHandlers serves the live tracking WebSocket channels.
type WSHandlers struct {
	jwtSvc      *auth.JWTService
	repo        location.Repository
	registry    *registry.Registry
	broadcaster *stream.Broadcaster
	metrics     *stream.Metrics
	upgrader    websocket.Upgrader

	// allowedOrigins restricts which browser origins may open a socket.
	// Empty means any origin is accepted (non-browser clients send none).
	allowedOrigins map[string]bool
}

// NewWSHandlers creates the WebSocket handlers. metrics may be nil.
func NewWSHandlers(jwtSvc *auth.JWTService, repo location.Repository, reg *registry.Registry, bc *stream.Broadcaster, metrics *stream.Metrics, allowedOrigins []string) *WSHandlers {
	origins := make(map[string]bool)
	for _, o := range allowedOrigins {
		if o != "" {
			origins[o] = true
		}
	}
	h := &WSHandlers{
		jwtSvc:         jwtSvc,
		repo:           repo,
		registry:       reg,
		broadcaster:    bc,
		metrics:        metrics,
		allowedOrigins: origins,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(h.allowedOrigins) == 0 {
				return true
			}
			return h.allowedOrigins[origin]
		},
	}
	return h
}

// authenticate validates the token query parameter. The socket is upgraded
// first so auth failures can be reported with a proper close frame; before
// the upgrade there is no socket to close.
func (h *WSHandlers) authenticate(r *http.Request) (userID int64, role string, err error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		return 0, "", auth.ErrInvalidToken
	}
	claims, err := h.jwtSvc.ValidateToken(token)
	if err != nil {
		return 0, "", err
	}
	userID, err = claims.UserID()
	if err != nil {
		return 0, "", err
	}
	return userID, claims.Role, nil
}

// TrackWS handles GET /tracking/ws/track?token=…
// The user channel: clients stream location frames, each accepted frame is
// persisted, fanned out to admins, and acknowledged in order.
func (h *WSHandlers) TrackWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	client := stream.NewClient(conn)

	userID, role, err := h.authenticate(r)
	if err != nil {
		client.ClosePolicyViolation("authentication failed")
		return
	}
	if role != auth.RoleUser && role != auth.RoleAdmin {
		client.ClosePolicyViolation("role not permitted")
		return
	}

	go client.WritePump()
	h.registry.ConnectUser(userID, client)
	h.metrics.ConnectionOpened(stream.ClassUser)
	slog.InfoContext(r.Context(), "track channel connected", "user_id", userID)

	defer func() {
		h.registry.DisconnectUser(userID, client)
		_ = client.Close()
		h.metrics.ConnectionClosed(stream.ClassUser)
		slog.InfoContext(r.Context(), "track channel disconnected", "user_id", userID)
	}()

	for {
		data, err := client.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.WarnContext(r.Context(), "track channel read failed", "user_id", userID, "error", err)
			}
			return
		}

		frame, err := stream.ParseInbound(data)
		if err != nil {
			if errors.Is(err, stream.ErrBadCoordinates) {
				slog.WarnContext(r.Context(), "closing track channel on malformed coordinates", "user_id", userID)
			} else {
				slog.WarnContext(r.Context(), "closing track channel on malformed frame", "user_id", userID, "error", err)
			}
			return
		}
		if frame.Kind != stream.KindLocation {
			// Pings and other chatter are tolerated, not acknowledged.
			continue
		}

		if _, err := h.broadcaster.AcceptAndBroadcast(r.Context(), userID, frame.Lat, frame.Lon, time.Now().UTC()); err != nil {
			slog.ErrorContext(r.Context(), "failed to accept point", "user_id", userID, "error", err)
			return
		}
		h.metrics.IncPointsIngested("ws")

		if err := client.SendJSON(stream.NewAckEvent()); err != nil {
			slog.WarnContext(r.Context(), "failed to queue ack", "user_id", userID, "error", err)
			return
		}
	}
}

// AdminWS handles GET /tracking/ws/admin?token=…
// The monitor channel: admins receive a snapshot of every user's latest
// position, then live location events. The snapshot is queued before the
// connection is registered, so it always precedes the first live frame.
func (h *WSHandlers) AdminWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	client := stream.NewClient(conn)

	_, role, err := h.authenticate(r)
	if err != nil {
		client.ClosePolicyViolation("authentication failed")
		return
	}
	if role != auth.RoleAdmin {
		client.ClosePolicyViolation("admin role required")
		return
	}

	rows, err := h.repo.LastPointsForAllUsers(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to build snapshot", "error", err)
		_ = client.Close()
		return
	}
	if err := client.SendJSON(stream.NewSnapshotEvent(rows)); err != nil {
		slog.ErrorContext(r.Context(), "failed to queue snapshot", "error", err)
		_ = client.Close()
		return
	}

	h.registry.ConnectAdmin(client)
	go client.WritePump()
	h.metrics.ConnectionOpened(stream.ClassAdmin)
	slog.InfoContext(r.Context(), "admin channel connected")

	defer func() {
		h.registry.DisconnectAdmin(client)
		_ = client.Close()
		h.metrics.ConnectionClosed(stream.ClassAdmin)
		slog.InfoContext(r.Context(), "admin channel disconnected")
	}()

	// Inbound frames from admins carry no meaning yet; drain until close.
	for {
		if _, err := client.ReadMessage(); err != nil {
			return
		}
	}
}
