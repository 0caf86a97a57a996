package stream

import (
	"time"

	"github.com/tandogan/livetrack/internal/location"
)

// Outbound event discriminators.
const (
	EventLocation = "loc"
	EventAck      = "ack"
	EventSnapshot = "snapshot"
)

// LocationEvent is the live update pushed to every admin connection after a
// point has been durably stored.
type LocationEvent struct {
	Event     string    `json:"event"`
	UserID    int64     `json:"user_id"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	CreatedAt time.Time `json:"created_at"`
}

// NewLocationEvent builds the broadcast event for a stored point.
func NewLocationEvent(p *location.Point) LocationEvent {
	return LocationEvent{
		Event:     EventLocation,
		UserID:    p.UserID,
		Lat:       p.Lat,
		Lon:       p.Lon,
		CreatedAt: p.CreatedAt,
	}
}

// AckEvent acknowledges one accepted location frame to its originator.
type AckEvent struct {
	Event string `json:"event"`
	OK    bool   `json:"ok"`
}

// NewAckEvent builds a positive acknowledgement.
func NewAckEvent() AckEvent {
	return AckEvent{Event: EventAck, OK: true}
}

// SnapshotItem is one user's last known position with display enrichment.
type SnapshotItem struct {
	UserID    int64     `json:"user_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	CreatedAt time.Time `json:"created_at"`
}

// SnapshotEvent is the baseline sent to an admin right after it connects,
// before any live updates. Items is never null; an empty system yields [].
type SnapshotEvent struct {
	Event string         `json:"event"`
	Items []SnapshotItem `json:"items"`
}

// NewSnapshotEvent builds the baseline frame from last-point rows.
func NewSnapshotEvent(rows []*location.LastPoint) SnapshotEvent {
	items := make([]SnapshotItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, SnapshotItem{
			UserID:    row.User.ID,
			FirstName: row.User.FirstName,
			LastName:  row.User.LastName,
			Lat:       row.Point.Lat,
			Lon:       row.Point.Lon,
			CreatedAt: row.Point.CreatedAt,
		})
	}
	return SnapshotEvent{Event: EventSnapshot, Items: items}
}
