package domain

import (
	"errors"
	"time"
)

// Статусы State Machine аппрува. APPROVED, REJECTED и EXPIRED — терминальные.
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "PENDING"
	StatusApproved ApprovalStatus = "APPROVED"
	StatusRejected ApprovalStatus = "REJECTED"
	StatusExpired  ApprovalStatus = "EXPIRED"
)

// ExecutionStatus — независимый под-статус исполнения. Имеет смысл только
// после перехода заявки в APPROVED.
type ExecutionStatus string

const (
	ExecNotExecuted ExecutionStatus = "NOT_EXECUTED"
	ExecExecuting   ExecutionStatus = "EXECUTING"
	ExecSuccess     ExecutionStatus = "SUCCESS"
	ExecFailed      ExecutionStatus = "FAILED"
)

var (
	// ErrApprovalNotFound — заявка с таким ID не существует.
	ErrApprovalNotFound = errors.New("approval request not found")

	// ErrAlreadyProcessed — по заявке уже принято решение. Повторное
	// approve/reject — это конфликт, а не no-op.
	ErrAlreadyProcessed = errors.New("approval request already processed")

	// ErrApprovalExpired — срок жизни заявки истек до решения оператора.
	ErrApprovalExpired = errors.New("approval request expired")

	// ErrNotApproved — попытка исполнить заявку, не находящуюся в APPROVED.
	ErrNotApproved = errors.New("approval request is not approved")
)

// ApprovalRequest — отложенное действие агента, ожидающее решения оператора.
type ApprovalRequest struct {
	ID       string `json:"id"`
	PolicyID string `json:"policy_id"`
	AgentID  string `json:"agent_id"`

	// Сериализованный исходный запрос агента:
	// {"type":"api_call","method":...,"url":...,"headers":...,"body":...}
	RequestData string `json:"request_data"`

	Status     ApprovalStatus `json:"status"`
	ApproverID string         `json:"approver_id,omitempty"`
	ApprovedAt *time.Time     `json:"approved_at,omitempty"`
	Remark     string         `json:"remark,omitempty"`

	ExecutionStatus ExecutionStatus `json:"execution_status"`
	ExecutionResult string          `json:"execution_result,omitempty"`
	ExecutedAt      *time.Time      `json:"executed_at,omitempty"`

	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// IsOverdue сообщает, что заявка пережила свой дедлайн.
func (a *ApprovalRequest) IsOverdue(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

// DisplayStatus — статус для внешнего наблюдателя: просроченный PENDING
// показываем как EXPIRED, не трогая БД (ее обновит фоновый свип).
func (a *ApprovalRequest) DisplayStatus(now time.Time) ApprovalStatus {
	if a.Status == StatusPending && !a.ExpiresAt.IsZero() && a.IsOverdue(now) {
		return StatusExpired
	}
	return a.Status
}

// ApprovalStatusView — контракт внешнего поллинга GetStatus: пока заявка
// PENDING, внутренности исполнения наружу не утекают.
type ApprovalStatusView struct {
	Status          ApprovalStatus `json:"status"`
	ExecutionResult interface{}    `json:"execution_result,omitempty"` // Только APPROVED + SUCCESS
	Remark          string         `json:"remark,omitempty"`           // Только REJECTED
}

// ExecutionOutcome — итог исполнения одобренной заявки.
type ExecutionOutcome struct {
	ApprovalID string `json:"approval_id"`
	Success    bool   `json:"success"`
	Result     string `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
}
