package location

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// SavePoint inserts a new point and returns it with the assigned id.
func (r *PostgresRepository) SavePoint(ctx context.Context, userID int64, lat, lon float64, at time.Time) (*Point, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	query := `
		INSERT INTO location_points (user_id, lat, lon, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	p := &Point{UserID: userID, Lat: lat, Lon: lon, CreatedAt: at.UTC()}
	if err := r.db.QueryRowContext(ctx, query, userID, lat, lon, p.CreatedAt).Scan(&p.ID); err != nil {
		return nil, fmt.Errorf("failed to save point: %w", err)
	}
	return p, nil
}

// ListPointsForDay returns the user's points for the UTC day, ascending.
func (r *PostgresRepository) ListPointsForDay(ctx context.Context, userID int64, day time.Time) ([]*Point, error) {
	start, end := dayBounds(day)

	query := `
		SELECT id, user_id, lat, lon, created_at
		FROM location_points
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list points for day: %w", err)
	}
	defer rows.Close()

	var points []*Point
	for rows.Next() {
		p := &Point{}
		if err := rows.Scan(&p.ID, &p.UserID, &p.Lat, &p.Lon, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		points = append(points, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating points: %w", err)
	}
	return points, nil
}

// GetByID retrieves a point by id.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*Point, error) {
	query := `
		SELECT id, user_id, lat, lon, created_at
		FROM location_points
		WHERE id = $1
	`

	p := &Point{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.UserID, &p.Lat, &p.Lon, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrPointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get point: %w", err)
	}
	return p, nil
}

// UpdatePoint applies a partial correction. Only non-nil fields are written;
// id and user_id are never touched.
func (r *PostgresRepository) UpdatePoint(ctx context.Context, id int64, upd PointUpdate) (*Point, error) {
	set := ""
	args := []any{id}
	next := 2
	appendSet := func(col string, val any) {
		if set != "" {
			set += ", "
		}
		set += col + " = $" + strconv.Itoa(next)
		args = append(args, val)
		next++
	}

	if upd.Lat != nil {
		appendSet("lat", *upd.Lat)
	}
	if upd.Lon != nil {
		appendSet("lon", *upd.Lon)
	}
	if upd.CreatedAt != nil {
		appendSet("created_at", upd.CreatedAt.UTC())
	}
	if set == "" {
		// Nothing to change; return the current row.
		return r.GetByID(ctx, id)
	}

	query := `
		UPDATE location_points
		SET ` + set + `
		WHERE id = $1
		RETURNING id, user_id, lat, lon, created_at
	`

	p := &Point{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&p.ID, &p.UserID, &p.Lat, &p.Lon, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrPointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update point: %w", err)
	}
	return p, nil
}

// DeletePointsForDay removes the user's points for the UTC day.
func (r *PostgresRepository) DeletePointsForDay(ctx context.Context, userID int64, day time.Time) (int64, error) {
	start, end := dayBounds(day)

	query := `
		DELETE FROM location_points
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
	`

	res, err := r.db.ExecContext(ctx, query, userID, start, end)
	if err != nil {
		return 0, fmt.Errorf("failed to delete points for day: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted points: %w", err)
	}
	return deleted, nil
}

// LastPointsForAllUsers returns each user's most recent point joined with
// display fields from the users table.
func (r *PostgresRepository) LastPointsForAllUsers(ctx context.Context) ([]*LastPoint, error) {
	query := `
		SELECT DISTINCT ON (p.user_id)
		       u.id, u.first_name, u.last_name,
		       p.id, p.user_id, p.lat, p.lon, p.created_at
		FROM location_points p
		JOIN users u ON u.id = p.user_id
		ORDER BY p.user_id, p.created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list last points: %w", err)
	}
	defer rows.Close()

	var out []*LastPoint
	for rows.Next() {
		lp := &LastPoint{}
		err := rows.Scan(
			&lp.User.ID, &lp.User.FirstName, &lp.User.LastName,
			&lp.Point.ID, &lp.Point.UserID, &lp.Point.Lat, &lp.Point.Lon, &lp.Point.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan last point: %w", err)
		}
		out = append(out, lp)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating last points: %w", err)
	}
	return out, nil
}
