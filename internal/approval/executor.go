package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xela07ax/agentguard-core/internal/domain"
	"github.com/xela07ax/agentguard-core/internal/engine"
	"github.com/xela07ax/agentguard-core/internal/notify"
	"github.com/xela07ax/agentguard-core/internal/upstream"
	"go.uber.org/zap"
)

// AgentDirectory — доступ к реестру агентов для исполнения от их имени.
type AgentDirectory interface {
	GetAgentByID(ctx context.Context, id string) (*domain.Agent, error)
}

// Executor исполняет одобренные заявки. Идемпотентен: повторный вызов
// по уже исполненной заявке возвращает сохраненный результат, не
// дергая апстрим второй раз.
type Executor struct {
	repo     Repository
	agents   AgentDirectory
	caller   upstream.Caller
	notifier notify.Sender
	metrics  *engine.Metrics
	logger   *zap.Logger

	notifyRecipient string
}

func NewExecutor(repo Repository, agents AgentDirectory, caller upstream.Caller, notifier notify.Sender, metrics *engine.Metrics, notifyRecipient string, logger *zap.Logger) *Executor {
	return &Executor{
		repo:            repo,
		agents:          agents,
		caller:          caller,
		notifier:        notifier,
		metrics:         metrics,
		notifyRecipient: notifyRecipient,
		logger:          logger.Named("executor"),
	}
}

// Execute проводит заявку через EXECUTING к SUCCESS или FAILED.
func (e *Executor) Execute(ctx context.Context, approvalID string) (domain.ExecutionOutcome, error) {
	log := e.logger.With(zap.String("approval_id", approvalID))
	log.Info("executing approved request")

	req, err := e.repo.GetByID(ctx, approvalID)
	if err != nil {
		return domain.ExecutionOutcome{ApprovalID: approvalID}, fmt.Errorf("executor: failed to load request: %w", err)
	}
	if req == nil {
		return domain.ExecutionOutcome{ApprovalID: approvalID}, domain.ErrApprovalNotFound
	}

	if req.Status != domain.StatusApproved {
		return domain.ExecutionOutcome{ApprovalID: approvalID}, domain.ErrNotApproved
	}

	// Повторное исполнение не производит побочных эффектов
	if req.ExecutionStatus == domain.ExecSuccess {
		log.Warn("request already executed, returning cached result")
		if e.metrics != nil {
			e.metrics.ExecutionsTotal.WithLabelValues("skipped").Inc()
		}
		return domain.ExecutionOutcome{ApprovalID: approvalID, Success: true, Result: req.ExecutionResult}, nil
	}

	if err := e.repo.SetExecuting(ctx, approvalID); err != nil {
		return domain.ExecutionOutcome{ApprovalID: approvalID}, fmt.Errorf("executor: failed to mark executing: %w", err)
	}

	result, execErr := e.performCall(ctx, req)
	now := time.Now()

	if execErr != nil {
		log.Error("execution failed", zap.Error(execErr))

		failurePayload, _ := json.Marshal(map[string]string{"error": execErr.Error()})
		if err := e.repo.FinishExecution(ctx, approvalID, domain.ExecFailed, string(failurePayload), now); err != nil {
			log.Error("failed to persist execution failure", zap.Error(err))
		}

		e.sendFailureNotification(ctx, req, execErr)
		if e.metrics != nil {
			e.metrics.ExecutionsTotal.WithLabelValues("failed").Inc()
		}
		return domain.ExecutionOutcome{ApprovalID: approvalID, Error: execErr.Error()}, execErr
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return domain.ExecutionOutcome{ApprovalID: approvalID}, fmt.Errorf("executor: failed to encode result: %w", err)
	}
	if err := e.repo.FinishExecution(ctx, approvalID, domain.ExecSuccess, string(resultJSON), now); err != nil {
		return domain.ExecutionOutcome{ApprovalID: approvalID}, fmt.Errorf("executor: failed to persist result: %w", err)
	}

	log.Info("execution succeeded")
	if e.metrics != nil {
		e.metrics.ExecutionsTotal.WithLabelValues("success").Inc()
	}
	return domain.ExecutionOutcome{ApprovalID: approvalID, Success: true, Result: string(resultJSON)}, nil
}

// performCall восстанавливает исходный запрос агента и отправляет его
// через надежностный стек.
func (e *Executor) performCall(ctx context.Context, req *domain.ApprovalRequest) (map[string]interface{}, error) {
	if req.RequestData == "" {
		return nil, fmt.Errorf("request data is empty")
	}

	var payload struct {
		Type string `json:"type"`
		upstream.APICall
	}
	if err := json.Unmarshal([]byte(req.RequestData), &payload); err != nil {
		return nil, fmt.Errorf("invalid request data: %w", err)
	}

	switch payload.Type {
	case "api_call":
	case "":
		return nil, fmt.Errorf("request type is empty")
	default:
		return nil, fmt.Errorf("unsupported request type: %s", payload.Type)
	}

	agent, err := e.agents.GetAgentByID(ctx, req.AgentID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve agent %s: %w", req.AgentID, err)
	}
	if agent == nil {
		return nil, fmt.Errorf("agent %s not found", req.AgentID)
	}

	return e.caller.Call(ctx, agent.BaseURL, payload.APICall)
}

func (e *Executor) sendFailureNotification(ctx context.Context, req *domain.ApprovalRequest, execErr error) {
	notice := notify.Notice{
		Title: "approved request execution failed",
		Content: fmt.Sprintf("approval %s (agent %s, policy %s) failed to execute: %s",
			req.ID, req.AgentID, req.PolicyID, execErr.Error()),
		Recipient: e.notifyRecipient,
	}
	if err := e.notifier.Send(ctx, notice); err != nil {
		e.logger.Error("failed to send execution failure notification",
			zap.String("approval_id", req.ID), zap.Error(err))
	}
}
