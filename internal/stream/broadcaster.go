package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tandogan/livetrack/internal/location"
	"github.com/tandogan/livetrack/internal/registry"
)

// Broadcaster accepts location events, persists them, and fans them out to
// every connected admin. Persistence always commits before any delivery is
// attempted; the store is the ground truth and an admin missing a frame is
// never an error.
type Broadcaster struct {
	repo     location.Repository
	registry *registry.Registry
	metrics  *Metrics
}

// NewBroadcaster creates a new Broadcaster. metrics may be nil.
func NewBroadcaster(repo location.Repository, reg *registry.Registry, metrics *Metrics) *Broadcaster {
	return &Broadcaster{repo: repo, registry: reg, metrics: metrics}
}

// AcceptAndBroadcast persists one point and pushes it to all connected
// admins. If persistence fails, nothing is broadcast and the error is
// returned to the originating session. A delivery failure to one admin
// removes that connection only; it never aborts the remaining deliveries or
// fails the call.
func (b *Broadcaster) AcceptAndBroadcast(ctx context.Context, userID int64, lat, lon float64, at time.Time) (*location.Point, error) {
	p, err := b.repo.SavePoint(ctx, userID, lat, lon, at)
	if err != nil {
		return nil, fmt.Errorf("failed to save point: %w", err)
	}

	// Serialize event once
	data, err := json.Marshal(NewLocationEvent(p))
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal location event", "error", err, "point_id", p.ID)
		return p, nil
	}

	for _, conn := range b.registry.AdminConnections() {
		if err := conn.Send(data); err != nil {
			slog.WarnContext(ctx, "dropping admin connection after failed delivery",
				"error", err,
				"point_id", p.ID,
			)
			b.registry.DisconnectAdmin(conn)
			_ = conn.Close()
			b.metrics.IncBroadcastDelivery(DeliveryDropped)
			continue
		}
		b.metrics.IncBroadcastDelivery(DeliveryOK)
	}

	return p, nil
}
