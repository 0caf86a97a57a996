package location

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrPointNotFound is returned when a point id does not exist in the store.
var ErrPointNotFound = errors.New("location point not found")

// Repository defines the interface for point storage.
type Repository interface {
	// SavePoint inserts a new point for userID. A zero `at` defaults to the
	// current UTC time.
	SavePoint(ctx context.Context, userID int64, lat, lon float64, at time.Time) (*Point, error)

	// ListPointsForDay returns the user's points whose created_at falls within
	// the UTC calendar day [00:00, 24:00), ordered by created_at ascending.
	ListPointsForDay(ctx context.Context, userID int64, day time.Time) ([]*Point, error)

	// GetByID retrieves a point by id. Returns ErrPointNotFound when absent.
	GetByID(ctx context.Context, id int64) (*Point, error)

	// UpdatePoint applies a partial correction to a point. Only non-nil fields
	// of upd are replaced. Returns ErrPointNotFound when absent.
	UpdatePoint(ctx context.Context, id int64, upd PointUpdate) (*Point, error)

	// DeletePointsForDay removes all of the user's points for the given UTC
	// calendar day and returns the number removed. Idempotent.
	DeletePointsForDay(ctx context.Context, userID int64, day time.Time) (int64, error)

	// LastPointsForAllUsers returns, for every user with at least one point,
	// the point with the maximum created_at, enriched with display fields.
	LastPointsForAllUsers(ctx context.Context) ([]*LastPoint, error)
}

// dayBounds returns the UTC [start, end) window for the calendar day of t.
func dayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development.
type InMemoryRepository struct {
	mu     sync.RWMutex
	points map[int64]*Point
	users  map[int64]User
	nextID int64
}

// NewInMemoryRepository creates a new in-memory point repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		points: make(map[int64]*Point),
		users:  make(map[int64]User),
	}
}

// PutUser registers display fields for a user so snapshots can be enriched.
func (r *InMemoryRepository) PutUser(u User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

// SavePoint inserts a new point, assigning the next id.
func (r *InMemoryRepository) SavePoint(ctx context.Context, userID int64, lat, lon float64, at time.Time) (*Point, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	p := &Point{
		ID:        r.nextID,
		UserID:    userID,
		Lat:       lat,
		Lon:       lon,
		CreatedAt: at.UTC(),
	}
	r.points[p.ID] = p

	cp := *p
	return &cp, nil
}

// ListPointsForDay returns the user's points for the UTC day, ascending.
func (r *InMemoryRepository) ListPointsForDay(ctx context.Context, userID int64, day time.Time) ([]*Point, error) {
	start, end := dayBounds(day)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Point
	for _, p := range r.points {
		if p.UserID != userID {
			continue
		}
		if p.CreatedAt.Before(start) || !p.CreatedAt.Before(end) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// GetByID retrieves a point by id.
func (r *InMemoryRepository) GetByID(ctx context.Context, id int64) (*Point, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.points[id]
	if !ok {
		return nil, ErrPointNotFound
	}
	cp := *p
	return &cp, nil
}

// UpdatePoint applies a partial correction, leaving nil fields untouched.
func (r *InMemoryRepository) UpdatePoint(ctx context.Context, id int64, upd PointUpdate) (*Point, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.points[id]
	if !ok {
		return nil, ErrPointNotFound
	}
	if upd.Lat != nil {
		p.Lat = *upd.Lat
	}
	if upd.Lon != nil {
		p.Lon = *upd.Lon
	}
	if upd.CreatedAt != nil {
		p.CreatedAt = upd.CreatedAt.UTC()
	}
	cp := *p
	return &cp, nil
}

// DeletePointsForDay removes the user's points for the UTC day.
func (r *InMemoryRepository) DeletePointsForDay(ctx context.Context, userID int64, day time.Time) (int64, error) {
	start, end := dayBounds(day)

	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, p := range r.points {
		if p.UserID != userID {
			continue
		}
		if p.CreatedAt.Before(start) || !p.CreatedAt.Before(end) {
			continue
		}
		delete(r.points, id)
		deleted++
	}
	return deleted, nil
}

// LastPointsForAllUsers returns each user's most recent point.
func (r *InMemoryRepository) LastPointsForAllUsers(ctx context.Context) ([]*LastPoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	latest := make(map[int64]*Point)
	for _, p := range r.points {
		cur, ok := latest[p.UserID]
		if !ok || p.CreatedAt.After(cur.CreatedAt) {
			latest[p.UserID] = p
		}
	}

	out := make([]*LastPoint, 0, len(latest))
	for userID, p := range latest {
		u, ok := r.users[userID]
		if !ok {
			u = User{ID: userID}
		}
		out = append(out, &LastPoint{User: u, Point: *p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User.ID < out[j].User.ID })
	return out, nil
}
