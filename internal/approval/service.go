package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xela07ax/agentguard-core/internal/domain"
	"github.com/xela07ax/agentguard-core/internal/infra"
	"github.com/xela07ax/agentguard-core/internal/notify"
	"go.uber.org/zap"
)

// Repository — персистентность заявок. Переходы состояния выполняются
// условными UPDATE-ами в БД: два конкурентных решения по одной заявке
// разруливает база, а не код.
type Repository interface {
	Insert(ctx context.Context, req *domain.ApprovalRequest) error
	GetByID(ctx context.Context, id string) (*domain.ApprovalRequest, error)

	// MarkDecided — атомарный CAS PENDING -> status при живом дедлайне.
	// false без ошибки означает проигранную гонку или просрочку.
	MarkDecided(ctx context.Context, id string, status domain.ApprovalStatus, approverID, remark string, at time.Time) (bool, error)

	// MarkExpired — точечный флип PENDING -> EXPIRED.
	MarkExpired(ctx context.Context, id string) error

	// ExpireOverdue — массовый флип всех просроченных PENDING.
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)

	SetExecuting(ctx context.Context, id string) error
	FinishExecution(ctx context.Context, id string, status domain.ExecutionStatus, result string, at time.Time) error

	// ListUnexecutedApproved — ID одобренных, но не исполненных заявок
	// с решением старше olderThan.
	ListUnexecutedApproved(ctx context.Context, olderThan time.Time, limit int) ([]string, error)

	CountPending(ctx context.Context) (int64, error)
	List(ctx context.Context, f ListFilter) ([]domain.ApprovalRequest, error)
}

// ListFilter — параметры выборки заявок для консоли оператора.
type ListFilter struct {
	Status  domain.ApprovalStatus
	AgentID string
	IDLike  string // Поиск по подстроке ID
	Limit   int
	Offset  int
}

// CreateParams — входные данные новой заявки.
type CreateParams struct {
	PolicyID    string
	AgentID     string
	RequestData string // Сериализованный исходный запрос агента
	TTLMinutes  int    // <= 0 берет дефолт из конфига
}

// Service — workflow отложенных действий: создание заявки, решение
// оператора, постановка одобренного действия в очередь исполнения.
type Service struct {
	repo     Repository
	ids      *IDGenerator
	executor *Executor
	notifier notify.Sender
	cfg      infra.ApprovalConfig
	logger   *zap.Logger

	// Очередь ID на исполнение. Approve кладет сюда ID только после
	// успешного коммита решения: исполнитель никогда не увидит заявку
	// раньше, чем ее увидит база.
	dispatch chan string
}

func NewService(repo Repository, executor *Executor, notifier notify.Sender, cfg infra.ApprovalConfig, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		ids:      NewIDGenerator(),
		executor: executor,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.Named("approval"),
		dispatch: make(chan string, cfg.DispatchBuffer),
	}
}

// Run — цикл исполнителя: читает одобренные заявки из очереди и
// исполняет их. Блокируется до отмены ctx.
func (s *Service) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.dispatch:
			if _, err := s.executor.Execute(ctx, id); err != nil {
				// Execute сам фиксирует FAILED и шлет уведомление,
				// здесь только след в логе
				s.logger.Error("approved request execution failed",
					zap.String("approval_id", id), zap.Error(err))
			}
		}
	}
}

// Create регистрирует новую заявку в статусе PENDING.
func (s *Service) Create(ctx context.Context, p CreateParams) (*domain.ApprovalRequest, error) {
	ttl := p.TTLMinutes
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTLMinutes
	}

	now := time.Now()
	req := &domain.ApprovalRequest{
		ID:              s.ids.Next(),
		PolicyID:        p.PolicyID,
		AgentID:         p.AgentID,
		RequestData:     p.RequestData,
		Status:          domain.StatusPending,
		ExecutionStatus: domain.ExecNotExecuted,
		ExpiresAt:       now.Add(time.Duration(ttl) * time.Minute),
		CreatedAt:       now,
	}

	if err := s.repo.Insert(ctx, req); err != nil {
		return nil, fmt.Errorf("approval: failed to create request: %w", err)
	}

	s.logger.Info("approval request created",
		zap.String("approval_id", req.ID),
		zap.String("agent_id", req.AgentID),
		zap.String("policy_id", req.PolicyID),
		zap.Time("expires_at", req.ExpiresAt))
	return req, nil
}

// Approve фиксирует одобрение и ставит заявку в очередь исполнения.
func (s *Service) Approve(ctx context.Context, id, approverID, remark string) (*domain.ApprovalRequest, error) {
	req, err := s.decide(ctx, id, domain.StatusApproved, approverID, remark)
	if err != nil {
		return nil, err
	}

	if s.cfg.AutoExecute {
		select {
		case s.dispatch <- id:
		default:
			// Очередь забита. Заявка останется APPROVED/NOT_EXECUTED,
			// ее можно исполнить повторным вызовом Execute
			s.logger.Warn("execution queue full, approved request left unexecuted",
				zap.String("approval_id", id))
		}
	}
	return req, nil
}

// Reject фиксирует отказ и best-effort уведомляет о нем.
func (s *Service) Reject(ctx context.Context, id, approverID, remark string) (*domain.ApprovalRequest, error) {
	req, err := s.decide(ctx, id, domain.StatusRejected, approverID, remark)
	if err != nil {
		return nil, err
	}

	reason := remark
	if reason == "" {
		reason = "not specified"
	}
	notice := notify.Notice{
		Title:     "approval request rejected",
		Content:   fmt.Sprintf("approval %s for agent %s rejected: %s", id, req.AgentID, reason),
		Recipient: s.cfg.NotifyRecipient,
	}
	if err := s.notifier.Send(ctx, notice); err != nil {
		s.logger.Error("failed to send rejection notification",
			zap.String("approval_id", id), zap.Error(err))
	}
	return req, nil
}

// decide — общая механика approve/reject: одна попытка CAS, затем
// диагностика причины отказа. Конфликты здесь fail-closed: любое
// сомнение — ошибка вызывающему, а не тихое повторное решение.
func (s *Service) decide(ctx context.Context, id string, status domain.ApprovalStatus, approverID, remark string) (*domain.ApprovalRequest, error) {
	now := time.Now()
	ok, err := s.repo.MarkDecided(ctx, id, status, approverID, remark, now)
	if err != nil {
		return nil, fmt.Errorf("approval: decision update failed: %w", err)
	}

	if !ok {
		req, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("approval: failed to load request: %w", err)
		}
		if req == nil {
			return nil, domain.ErrApprovalNotFound
		}
		if req.Status == domain.StatusExpired {
			return nil, domain.ErrApprovalExpired
		}
		if req.Status == domain.StatusPending && req.IsOverdue(now) {
			// Свип еще не добрался — фиксируем просрочку по факту обращения
			if err := s.repo.MarkExpired(ctx, id); err != nil {
				s.logger.Error("failed to mark overdue request expired",
					zap.String("approval_id", id), zap.Error(err))
			}
			return nil, domain.ErrApprovalExpired
		}
		return nil, domain.ErrAlreadyProcessed
	}

	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("approval: failed to load request: %w", err)
	}
	if req == nil {
		return nil, domain.ErrApprovalNotFound
	}

	s.logger.Info("approval request decided",
		zap.String("approval_id", id),
		zap.String("status", string(status)),
		zap.String("approver_id", approverID))
	return req, nil
}

// GetByID возвращает заявку; просроченный PENDING показывается как
// EXPIRED без записи в БД.
func (s *Service) GetByID(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("approval: failed to load request: %w", err)
	}
	if req == nil {
		return nil, domain.ErrApprovalNotFound
	}
	req.Status = req.DisplayStatus(time.Now())
	return req, nil
}

// GetStatus — контракт поллинга для ожидающего агента.
func (s *Service) GetStatus(ctx context.Context, id string) (*domain.ApprovalStatusView, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("approval: failed to load request: %w", err)
	}
	if req == nil {
		return nil, domain.ErrApprovalNotFound
	}

	view := &domain.ApprovalStatusView{Status: req.DisplayStatus(time.Now())}

	// Результат исполнения отдаем только при подтвержденном успехе
	if req.Status == domain.StatusApproved && req.ExecutionStatus == domain.ExecSuccess && req.ExecutionResult != "" {
		var parsed interface{}
		if err := json.Unmarshal([]byte(req.ExecutionResult), &parsed); err != nil {
			s.logger.Warn("stored execution result is not valid json",
				zap.String("approval_id", id), zap.Error(err))
			view.ExecutionResult = req.ExecutionResult
		} else {
			view.ExecutionResult = parsed
		}
	}

	if req.Status == domain.StatusRejected {
		view.Remark = req.Remark
	}
	return view, nil
}

// List — выборка для консоли оператора.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.ApprovalRequest, error) {
	items, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("approval: list failed: %w", err)
	}
	now := time.Now()
	for i := range items {
		items[i].Status = items[i].DisplayStatus(now)
	}
	return items, nil
}

// ExpireOverdue массово закрывает просроченные PENDING-заявки.
// Вызывается фоновым свипом по расписанию.
func (s *Service) ExpireOverdue(ctx context.Context) error {
	n, err := s.repo.ExpireOverdue(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("approval: expire sweep failed: %w", err)
	}
	if n > 0 {
		s.logger.Info("expired overdue approval requests", zap.Int64("count", n))
	}
	return nil
}

// requeueGrace отсекает только что одобренные заявки: их ID, скорее
// всего, уже лежит в очереди и ждет исполнителя.
const requeueGrace = time.Minute

// RequeueStuck возвращает в очередь исполнения заявки, застрявшие в
// APPROVED/NOT_EXECUTED: переполнение очереди в момент одобрения или
// рестарт процесса оставляет решение без исполнения. Дубликат в очереди
// безопасен — исполнитель однопоточный, повторный запуск по уже
// исполненной заявке вернет сохраненный результат.
func (s *Service) RequeueStuck(ctx context.Context) error {
	if !s.cfg.AutoExecute {
		return nil
	}

	ids, err := s.repo.ListUnexecutedApproved(ctx, time.Now().Add(-requeueGrace), cap(s.dispatch))
	if err != nil {
		return fmt.Errorf("approval: stuck requeue failed: %w", err)
	}

	for _, id := range ids {
		select {
		case s.dispatch <- id:
			s.logger.Info("requeued unexecuted approved request", zap.String("approval_id", id))
		default:
			// Очередь снова полна, остаток подберет следующий прогон
			return nil
		}
	}
	return nil
}

// PendingCount — число заявок, ожидающих решения.
func (s *Service) PendingCount(ctx context.Context) (int64, error) {
	return s.repo.CountPending(ctx)
}
