// Package location provides models and repositories for stored location
// points. Points are the durable ground truth for the live tracking stream:
// a point is always persisted before it is broadcast.
package location

import "time"

// Point is one recorded observation of a user's position.
// ID is assigned by the store and never changes; a point belongs to exactly
// one user for its whole lifetime.
type Point struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	CreatedAt time.Time `json:"created_at"`
}

// User carries the display fields used to enrich admin snapshots.
// User accounts themselves are owned by the identity service; this package
// only reads them.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// LastPoint pairs a user with their most recent point.
type LastPoint struct {
	User  User
	Point Point
}

// PointUpdate describes a partial correction to a point. Nil fields are left
// unchanged; id and user_id cannot be updated.
type PointUpdate struct {
	Lat       *float64   `json:"lat"`
	Lon       *float64   `json:"lon"`
	CreatedAt *time.Time `json:"created_at"`
}
