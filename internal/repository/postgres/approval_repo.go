package postgres

/*
Файл approval_repo.go содержит персистентность механизма Human-in-the-loop
(HITL, «человек в контуре»). Все переходы State Machine заявки выполнены
условными UPDATE-ами: гонки двух операторов разруливает база.
*/

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/agentguard-core/internal/approval"
	"github.com/xela07ax/agentguard-core/internal/domain"
)

const approvalColumns = `id, policy_id, agent_id, request_data, status, approver_id, approved_at, remark,
	execution_status, execution_result, executed_at, expires_at, created_at`

func scanApproval(row pgx.Row) (*domain.ApprovalRequest, error) {
	var app domain.ApprovalRequest
	var approverID, remark, execResult sql.NullString // Обработка NULL из БД
	var approvedAt, executedAt sql.NullTime

	err := row.Scan(
		&app.ID, &app.PolicyID, &app.AgentID, &app.RequestData, &app.Status,
		&approverID, &approvedAt, &remark,
		&app.ExecutionStatus, &execResult, &executedAt,
		&app.ExpiresAt, &app.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if approverID.Valid {
		app.ApproverID = approverID.String
	}
	if remark.Valid {
		app.Remark = remark.String
	}
	if execResult.Valid {
		app.ExecutionResult = execResult.String
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		app.ApprovedAt = &t
	}
	if executedAt.Valid {
		t := executedAt.Time
		app.ExecutedAt = &t
	}
	return &app, nil
}

func (s *Store) Insert(ctx context.Context, req *domain.ApprovalRequest) error {
	query := `
		INSERT INTO approvals (id, policy_id, agent_id, request_data, status, execution_status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		req.ID, req.PolicyID, req.AgentID, req.RequestData,
		req.Status, req.ExecutionStatus, req.ExpiresAt, req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to create approval request: %w", err)
	}
	return nil
}

// GetByID — получение деталей заявки. nil без ошибки означает 404.
func (s *Store) GetByID(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE id = $1`

	app, err := scanApproval(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: failed to get approval: %w", err)
	}
	return app, nil
}

// MarkDecided атомарно фиксирует решение оператора.
// Условие status = 'PENDING' предотвращает Double Decision, условие по
// expires_at не дает одобрить уже мертвую заявку.
func (s *Store) MarkDecided(ctx context.Context, id string, status domain.ApprovalStatus, approverID, remark string, at time.Time) (bool, error) {
	query := `
		UPDATE approvals
		SET status = $1,
		    approver_id = $2,
		    remark = $3,
		    approved_at = $4
		WHERE id = $5 AND status = 'PENDING' AND expires_at > $4`

	ct, err := s.pool.Exec(ctx, query, status, approverID, remark, at, id)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to update approval status: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// MarkExpired — точечный флип PENDING -> EXPIRED.
func (s *Store) MarkExpired(ctx context.Context, id string) error {
	query := `UPDATE approvals SET status = 'EXPIRED' WHERE id = $1 AND status = 'PENDING'`

	if _, err := s.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("postgres: failed to expire approval: %w", err)
	}
	return nil
}

// ExpireOverdue — массовый флип всех просроченных PENDING одним запросом.
func (s *Store) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE approvals SET status = 'EXPIRED' WHERE status = 'PENDING' AND expires_at < $1`

	ct, err := s.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("postgres: expire sweep failed: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (s *Store) SetExecuting(ctx context.Context, id string) error {
	query := `UPDATE approvals SET execution_status = 'EXECUTING' WHERE id = $1`

	if _, err := s.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("postgres: failed to mark executing: %w", err)
	}
	return nil
}

func (s *Store) FinishExecution(ctx context.Context, id string, status domain.ExecutionStatus, result string, at time.Time) error {
	query := `UPDATE approvals SET execution_status = $1, execution_result = $2, executed_at = $3 WHERE id = $4`

	if _, err := s.pool.Exec(ctx, query, status, result, at, id); err != nil {
		return fmt.Errorf("postgres: failed to persist execution result: %w", err)
	}
	return nil
}

// ListUnexecutedApproved — одобренные, но не исполненные заявки для
// фонового возврата в очередь исполнения.
func (s *Store) ListUnexecutedApproved(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	query := `
		SELECT id FROM approvals
		WHERE status = 'APPROVED' AND execution_status = 'NOT_EXECUTED' AND approved_at < $1
		ORDER BY approved_at
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query unexecuted approvals: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan approval id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM approvals WHERE status = 'PENDING'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to count pending approvals: %w", err)
	}
	return n, nil
}

// List — фильтрация и выборка очереди решений для консоли оператора.
func (s *Store) List(ctx context.Context, f approval.ListFilter) ([]domain.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals`

	var args []interface{}
	var where []string

	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.AgentID != "" {
		args = append(args, f.AgentID)
		where = append(where, fmt.Sprintf("agent_id = $%d", len(args)))
	}
	if f.IDLike != "" {
		args = append(args, "%"+f.IDLike+"%")
		where = append(where, fmt.Sprintf("id LIKE $%d", len(args)))
	}

	for i, cond := range where {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}

	query += " ORDER BY created_at DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query approvals: %w", err)
	}
	defer rows.Close()

	// Инициализируем пустой слайс, чтобы в JSON был [] вместо null
	results := make([]domain.ApprovalRequest, 0)
	for rows.Next() {
		var app domain.ApprovalRequest
		var approverID, remark, execResult sql.NullString
		var approvedAt, executedAt sql.NullTime

		err := rows.Scan(
			&app.ID, &app.PolicyID, &app.AgentID, &app.RequestData, &app.Status,
			&approverID, &approvedAt, &remark,
			&app.ExecutionStatus, &execResult, &executedAt,
			&app.ExpiresAt, &app.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan approval: %w", err)
		}

		if approverID.Valid {
			app.ApproverID = approverID.String
		}
		if remark.Valid {
			app.Remark = remark.String
		}
		if execResult.Valid {
			app.ExecutionResult = execResult.String
		}
		if approvedAt.Valid {
			t := approvedAt.Time
			app.ApprovedAt = &t
		}
		if executedAt.Valid {
			t := executedAt.Time
			app.ExecutedAt = &t
		}

		results = append(results, app)
	}
	return results, rows.Err()
}
