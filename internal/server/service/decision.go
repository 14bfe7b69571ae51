package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/agentguard-core/internal/approval"
	"github.com/xela07ax/agentguard-core/internal/audit"
	"github.com/xela07ax/agentguard-core/internal/domain"
	"github.com/xela07ax/agentguard-core/internal/engine"
	"github.com/xela07ax/agentguard-core/internal/upstream"
	"go.uber.org/zap"
)

// DecisionOutcome — ответ ядра на запрос оценки. При DEFER содержит ID
// созданной заявки, по которому вызывающий поллит статус.
type DecisionOutcome struct {
	domain.Decision
	ApprovalID string `json:"approval_id,omitempty"`
}

// DecisionService — фасад Hot Path: оценка политиками, след решений,
// создание заявки при DEFER.
type DecisionService struct {
	engine    *engine.Engine
	trail     audit.Recorder
	approvals *approval.Service
	logger    *zap.Logger
}

func NewDecisionService(eng *engine.Engine, trail audit.Recorder, approvals *approval.Service, logger *zap.Logger) *DecisionService {
	return &DecisionService{
		engine:    eng,
		trail:     trail,
		approvals: approvals,
		logger:    logger.Named("decision"),
	}
}

// Decide оценивает запрос агента и фиксирует событие в следе решений.
func (s *DecisionService) Decide(ctx context.Context, req engine.EvalRequest) (*DecisionOutcome, error) {
	start := time.Now()
	decision := s.engine.Evaluate(ctx, req)
	out := &DecisionOutcome{Decision: decision}

	// DEFER порождает заявку: исходный запрос сериализуется целиком,
	// чтобы после одобрения его можно было исполнить без участия агента
	if decision.RequireApproval {
		requestData, err := json.Marshal(struct {
			Type string `json:"type"`
			upstream.APICall
		}{
			Type: "api_call",
			APICall: upstream.APICall{
				TargetURL: req.URL,
				Method:    req.Method,
				Headers:   req.Headers,
				Body:      req.Body,
			},
		})
		if err != nil {
			return nil, err
		}

		created, err := s.approvals.Create(ctx, approval.CreateParams{
			PolicyID:    decision.PolicyID,
			AgentID:     req.AgentID,
			RequestData: string(requestData),
		})
		if err != nil {
			return nil, err
		}
		out.ApprovalID = created.ID
	}

	// Асинхронная запись, Hot Path не ждет Postgres
	s.trail.Record(audit.DecisionEvent{
		ID:         uuid.NewString(),
		AgentID:    req.AgentID,
		URL:        req.URL,
		Method:     req.Method,
		Action:     string(decision.Action),
		PolicyID:   decision.PolicyID,
		Reason:     decision.Reason,
		Blocked:    decision.Blocked,
		Timestamp:  start,
		DurationMs: time.Since(start).Milliseconds(),
	})

	return out, nil
}
