package store

import (
	"context"
	"fmt"

	"github.com/Priya8975/traffic-tracker/internal/domain"
)

// GetTrafficMetrics returns aggregate counts over the events matching the filter.
func (s *PostgresStore) GetTrafficMetrics(ctx context.Context, f domain.EventFilter) (*domain.TrafficMetrics, error) {
	var m domain.TrafficMetrics
	where := buildWhere(f)

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE is_valid_click) AS valid,
			COUNT(*) FILTER (WHERE NOT is_valid_click) AS invalid,
			COUNT(DISTINCT ip_address) AS unique_ips
		FROM event_logs`+where.sql(), where.args...,
	).Scan(&m.TotalEvents, &m.ValidClicks, &m.InvalidClicks, &m.UniqueIPs)
	if err != nil {
		return nil, fmt.Errorf("querying traffic metrics: %w", err)
	}

	return &m, nil
}
