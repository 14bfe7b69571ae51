package postgres

import (
	"context"

	"github.com/xela07ax/agentguard-core/internal/domain"
)

// GetOverview собирает сводку для консоли оператора.
func (s *Store) GetOverview(ctx context.Context) (*domain.Overview, error) {
	o := &domain.Overview{}

	// 1. Состояние каталога политик и очереди решений
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM policies),
			(SELECT COUNT(*) FROM policies WHERE enabled),
			(SELECT COUNT(*) FROM approvals WHERE status = 'PENDING')
	`).Scan(&o.Policies.Total, &o.Policies.Enabled, &o.Approvals.Pending)
	if err != nil {
		return nil, err
	}

	// 2. Метрики следа решений за последние 60 минут.
	// PERCENTILE_CONT дает честный P95 латентности оценки
	err = s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE blocked),
			COALESCE(PERCENTILE_CONT(0.95) WITHIN GROUP (ORDER BY duration_ms), 0)
		FROM decision_events
		WHERE timestamp > NOW() - INTERVAL '60 minutes'`).Scan(
		&o.Decisions.Total,
		&o.Decisions.Blocked,
		&o.Decisions.P95LatencyMs,
	)

	return o, err
}
