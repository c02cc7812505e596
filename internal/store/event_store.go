package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Priya8975/traffic-tracker/internal/domain"
	"github.com/jackc/pgx/v5"
)

const eventColumns = `id, ip_address, user_agent, timestamp, url_accessed, referer_url,
	country, city, region, isp, latitude, longitude, channel, device_type,
	is_valid_click, invalid_reason, raw_request_data`

// CreateEvent stores e and returns the row with its assigned id and timestamp.
// A zero Timestamp is filled in by the database.
func (s *PostgresStore) CreateEvent(ctx context.Context, e *domain.Event) (*domain.Event, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var ts *time.Time
	if !e.Timestamp.IsZero() {
		t := e.Timestamp.UTC()
		ts = &t
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO event_logs (
			ip_address, user_agent, timestamp, url_accessed, referer_url,
			country, city, region, isp, latitude, longitude, channel, device_type,
			is_valid_click, invalid_reason, raw_request_data
		)
		VALUES ($1, $2, COALESCE($3, NOW()), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING `+eventColumns,
		e.IPAddress, e.UserAgent, ts, e.URLAccessed, e.RefererURL,
		e.Country, e.City, e.Region, e.ISP, e.Latitude, e.Longitude, e.Channel, e.DeviceType,
		e.IsValidClick, e.InvalidReason, e.RawRequest,
	)

	created, err := scanEvent(row)
	if err != nil {
		return nil, fmt.Errorf("inserting event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing event: %w", err)
	}
	return created, nil
}

// CountRecentByIP counts events from ip with since <= timestamp < until.
func (s *PostgresStore) CountRecentByIP(ctx context.Context, ip string, since, until time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM event_logs
		WHERE ip_address = $1 AND timestamp >= $2 AND timestamp < $3
	`, ip, since.UTC(), until.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting recent events: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM event_logs WHERE id = $1`, id)
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying event: %w", err)
	}
	return event, nil
}

// ListEvents returns one page of events matching the filter, newest first.
func (s *PostgresStore) ListEvents(ctx context.Context, f domain.EventFilter, page, perPage int) (*domain.EventPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	where := buildWhere(f)

	var total int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM event_logs`+where.sql(), where.args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("counting events: %w", err)
	}

	query := `SELECT ` + eventColumns + ` FROM event_logs` + where.sql() +
		` ORDER BY timestamp DESC, id DESC` +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", where.nextArg(), where.nextArg()+1)
	args := append(where.args, perPage, (page-1)*perPage)

	events, err := s.queryEvents(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &domain.EventPage{
		Events:  events,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	}, nil
}

// FindEvents returns every event matching the filter, newest first.
func (s *PostgresStore) FindEvents(ctx context.Context, f domain.EventFilter) ([]domain.Event, error) {
	where := buildWhere(f)
	query := `SELECT ` + eventColumns + ` FROM event_logs` + where.sql() + ` ORDER BY timestamp DESC, id DESC`
	return s.queryEvents(ctx, query, where.args...)
}

func (s *PostgresStore) queryEvents(ctx context.Context, query string, args ...interface{}) ([]domain.Event, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}

	return events, nil
}

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var e domain.Event
	err := row.Scan(
		&e.ID, &e.IPAddress, &e.UserAgent, &e.Timestamp, &e.URLAccessed, &e.RefererURL,
		&e.Country, &e.City, &e.Region, &e.ISP, &e.Latitude, &e.Longitude, &e.Channel, &e.DeviceType,
		&e.IsValidClick, &e.InvalidReason, &e.RawRequest,
	)
	if err != nil {
		return nil, err
	}
	e.Timestamp = e.Timestamp.UTC()
	return &e, nil
}
