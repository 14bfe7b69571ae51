package postgres

/*
Файл policy_repo.go отвечает за хранение и поставку политик доступа.
Данный слой обеспечивает отделение долговременного хранения правил в PostgreSQL
от их мгновенной проверки в оперативной памяти движка.
*/

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/agentguard-core/internal/domain"
)

const policyColumns = `id, name, description, type, scope, agent_id, priority, enabled, action, conditions, created_at, updated_at`

func scanPolicy(row pgx.Row) (*domain.Policy, error) {
	p := &domain.Policy{}
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Type, &p.Scope, &p.AgentID,
		&p.Priority, &p.Enabled, &p.Action, &p.Conditions, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) GetPolicyByID(ctx context.Context, id string) (*domain.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM policies WHERE id = $1`

	p, err := scanPolicy(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Возвращаем nil для 404 в хендлере
		}
		return nil, fmt.Errorf("postgres: failed to get policy: %w", err)
	}
	return p, nil
}

// ListEnabledPolicies выполняет "холодную загрузку" активного набора
// политик для снапшота движка.
func (s *Store) ListEnabledPolicies(ctx context.Context) ([]domain.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM policies WHERE enabled ORDER BY priority DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query policies: %w", err)
	}
	defer rows.Close()

	var results []domain.Policy
	for rows.Next() {
		var p domain.Policy
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Description, &p.Type, &p.Scope, &p.AgentID,
			&p.Priority, &p.Enabled, &p.Action, &p.Conditions, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan policy: %w", err)
		}
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// ListPolicies — полная выборка для консоли оператора, включая выключенные.
func (s *Store) ListPolicies(ctx context.Context) ([]domain.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM policies ORDER BY priority DESC, created_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query policies: %w", err)
	}
	defer rows.Close()

	results := make([]domain.Policy, 0)
	for rows.Next() {
		var p domain.Policy
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Description, &p.Type, &p.Scope, &p.AgentID,
			&p.Priority, &p.Enabled, &p.Action, &p.Conditions, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan policy: %w", err)
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// CreatePolicy создает новую запись и возвращает присвоенный ID.
func (s *Store) CreatePolicy(ctx context.Context, p *domain.Policy) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	query := `
		INSERT INTO policies (id, name, description, type, scope, agent_id, priority, enabled, action, conditions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Name, p.Description, p.Type, p.Scope, p.AgentID,
		p.Priority, p.Enabled, p.Action, p.Conditions,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to create policy: %w", err)
	}
	return nil
}

// UpdatePolicy обновляет существующую политику целиком.
func (s *Store) UpdatePolicy(ctx context.Context, p *domain.Policy) error {
	query := `
		UPDATE policies
		SET name = $1, description = $2, type = $3, scope = $4, agent_id = $5,
		    priority = $6, enabled = $7, action = $8, conditions = $9, updated_at = NOW()
		WHERE id = $10`

	ct, err := s.pool.Exec(ctx, query,
		p.Name, p.Description, p.Type, p.Scope, p.AgentID,
		p.Priority, p.Enabled, p.Action, p.Conditions, p.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to update policy: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("postgres: policy not found")
	}
	return nil
}

// SetPolicyEnabled включает/выключает политику без изменения ее тела.
func (s *Store) SetPolicyEnabled(ctx context.Context, id string, enabled bool) error {
	query := `UPDATE policies SET enabled = $1, updated_at = NOW() WHERE id = $2`

	ct, err := s.pool.Exec(ctx, query, enabled, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to toggle policy: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("postgres: policy not found")
	}
	return nil
}

// DeletePolicy удаляет политику по ID.
func (s *Store) DeletePolicy(ctx context.Context, id string) error {
	query := `DELETE FROM policies WHERE id = $1`

	ct, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete policy: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("postgres: policy not found")
	}
	return nil
}
