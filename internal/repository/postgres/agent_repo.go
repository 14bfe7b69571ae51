package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/agentguard-core/internal/domain"
)

// GetAgentByID возвращает агента из реестра. nil без ошибки — агент
// не зарегистрирован.
func (s *Store) GetAgentByID(ctx context.Context, id string) (*domain.Agent, error) {
	query := `
		SELECT id, name, status, api_key_hash, base_url, created_at, updated_at
		FROM agents WHERE id = $1`

	a := &domain.Agent{}
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.Name, &a.Status, &a.APIKeyHash, &a.BaseURL, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: failed to get agent: %w", err)
	}
	return a, nil
}

// ListDisabledAgentIDs возвращает ID всех отключенных агентов.
// Используется для инициализации L1 (RAM) кэша Blocklist при старте ядра.
func (s *Store) ListDisabledAgentIDs(ctx context.Context) ([]string, error) {
	// Выбираем только ID, чтобы минимизировать трафик между БД и приложением
	query := `SELECT id FROM agents WHERE status = 'disabled'`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to fetch disabled agents: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan agent id error: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return ids, nil
}

// UpdateAgentStatus меняет основной статус агента (active/disabled).
func (s *Store) UpdateAgentStatus(ctx context.Context, id string, status domain.AgentStatus) error {
	query := `UPDATE agents SET status = $1, updated_at = NOW() WHERE id = $2`

	ct, err := s.pool.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to update agent status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("postgres: agent %s not found", id)
	}
	return nil
}
