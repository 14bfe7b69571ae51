package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xela07ax/agentguard-core/internal/domain"
	"go.uber.org/zap"
)

// PolicyCatalog — источник истины, из которого кэш перечитывает политики.
type PolicyCatalog interface {
	ListEnabledPolicies(ctx context.Context) ([]domain.Policy, error)
}

// RateLimiter — контракт лимитера, который движок дергает для RATE_LIMIT политик.
type RateLimiter interface {
	CheckLimit(ctx context.Context, key string, windowSeconds, maxRequests int) domain.RateLimitOutcome
	ExtractKey(keyExtractor string, headers map[string]string, body map[string]interface{}, clientIP string) string
	MatchURL(url, pattern string) bool
}

// EvalRequest — входные данные одной оценки.
type EvalRequest struct {
	URL      string
	Method   string
	Headers  map[string]string
	Body     map[string]interface{}
	AgentID  string
	ClientIP string
}

// policySnapshot — неизменяемый срез кэша. Читатели получают указатель
// атомарно и всегда видят целостную пару global/byAgent; подмена среза
// никогда не мутирует уже отданные структуры.
type policySnapshot struct {
	global  []domain.Policy            // Отсортированы по priority desc
	byAgent map[string][]domain.Policy // Каждый список отсортирован по priority desc
}

// Engine — движок решений. Hot Path работает только с RAM-снапшотом
// политик; Postgres участвует лишь в Refresh.
type Engine struct {
	catalog   PolicyCatalog
	limiter   RateLimiter
	evaluator *Evaluator
	metrics   *Metrics
	logger    *zap.Logger

	snap atomic.Pointer[policySnapshot]

	// Ленивая первичная загрузка: double-checked, чтобы конкурентные
	// первые вызовы не перечитывали каталог каждый по отдельности
	initMu sync.Mutex
	loaded atomic.Bool
}

func NewEngine(catalog PolicyCatalog, limiter RateLimiter, metrics *Metrics, logger *zap.Logger) *Engine {
	return &Engine{
		catalog:   catalog,
		limiter:   limiter,
		evaluator: NewEvaluator(logger),
		metrics:   metrics,
		logger:    logger.Named("engine"),
	}
}

// Evaluate прогоняет запрос по кандидатам: сначала политики агента,
// затем глобальные, внутри уровня — по убыванию приоритета. Первый
// блокирующий/откладывающий/маскирующий исход завершает проход;
// пропускающие исходы продолжают сканирование. Без совпадений — allow
// (осознанное продуктовое решение, а не упущение).
func (e *Engine) Evaluate(ctx context.Context, req EvalRequest) domain.Decision {
	start := time.Now()
	snap, err := e.snapshot(ctx)
	if err != nil {
		// Каталог недоступен и кэша еще нет — пропускаем (fail-open)
		e.logger.Error("policy cache unavailable, allowing request", zap.Error(err))
		return domain.AllowDecision()
	}

	decision := domain.AllowDecision()
	for _, p := range e.candidatesFor(snap, req.AgentID) {
		doc, err := p.ParseConditions()
		if err != nil {
			// Битый документ условий не роняет цикл оценки: правило
			// просто не совпало
			e.logger.Warn("failed to parse policy conditions",
				zap.String("policy_id", p.ID), zap.Error(err))
			continue
		}
		if !e.evaluator.Matches(doc, req.URL, req.Method, req.Headers, req.Body) {
			continue
		}

		result := e.createResult(ctx, p, doc, req)
		if result.Blocked || result.RequireApproval || result.MaskConfig != nil {
			decision = result
			break
		}
		if result.RateLimit != nil {
			// Лимит не превышен: запоминаем счетчики окна для ответа,
			// но даем шанс сработать остальным политикам
			decision = result
		}
	}

	if e.metrics != nil {
		e.metrics.DecisionsTotal.WithLabelValues(string(decision.Action)).Inc()
		e.metrics.EvaluateDuration.WithLabelValues(string(decision.Action)).Observe(time.Since(start).Seconds())
	}
	return decision
}

// candidatesFor: политики агента всегда доминируют над глобальными,
// независимо от числового приоритета.
func (e *Engine) candidatesFor(snap *policySnapshot, agentID string) []domain.Policy {
	agentPolicies := snap.byAgent[agentID]
	if len(agentPolicies) == 0 {
		return snap.global
	}
	out := make([]domain.Policy, 0, len(agentPolicies)+len(snap.global))
	out = append(out, agentPolicies...)
	out = append(out, snap.global...)
	return out
}

// createResult разворачивает совпавшую политику в Decision по ее типу.
func (e *Engine) createResult(ctx context.Context, p domain.Policy, doc *domain.ConditionDoc, req EvalRequest) domain.Decision {
	switch p.Type {
	case domain.TypeAccessControl:
		return e.accessControlResult(p, doc)
	case domain.TypeContentProtection:
		return e.contentProtectionResult(p, doc, req.URL)
	case domain.TypeRateLimit:
		return e.rateLimitResult(ctx, p, doc, req)
	case domain.TypeApproval:
		return domain.DeferDecision(p.ID, buildReason(p, domain.ActionApproval))
	default:
		// Тип не задан (старые записи) — трактуем как access control
		return e.accessControlResult(p, doc)
	}
}

// accessControlResult: действие из документа условий приоритетнее
// записанного в самой политике.
func (e *Engine) accessControlResult(p domain.Policy, doc *domain.ConditionDoc) domain.Decision {
	action := p.Action
	if doc.Action != "" {
		if parsed := domain.ParseAction(doc.Action); parsed != "" {
			action = parsed
		} else {
			e.logger.Warn("invalid action in policy conditions",
				zap.String("policy_id", p.ID), zap.String("action", doc.Action))
		}
	}

	switch action {
	case domain.ActionAllow:
		return domain.AllowDecision()
	case domain.ActionApproval:
		return domain.DeferDecision(p.ID, buildReason(p, action))
	default:
		// DENY, а также MASK/RATE_LIMIT, записанные в access-control
		// политику, блокируют
		return domain.DenyDecision(p.ID, buildReason(p, action))
	}
}

func (e *Engine) contentProtectionResult(p domain.Policy, doc *domain.ConditionDoc, url string) domain.Decision {
	cfg := &domain.MaskConfig{
		SensitiveFields:   doc.SensitiveFields,
		SensitiveKeywords: doc.SensitiveKeywords,
		MaskRules:         doc.MaskRules,
		URLPattern:        doc.URLPattern,
	}
	if cfg.IsEmpty() {
		e.logger.Warn("content protection policy has no mask configuration", zap.String("policy_id", p.ID))
		return domain.AllowDecision()
	}
	return domain.MaskDecision(p.ID, cfg, buildReason(p, domain.ActionMask))
}

func (e *Engine) rateLimitResult(ctx context.Context, p domain.Policy, doc *domain.ConditionDoc, req EvalRequest) domain.Decision {
	// urlPattern здесь скоупит лимит glob-диалектом лимитера; несовпадение
	// значит "политика не про этот URL"
	if doc.URLPattern != "" && !e.limiter.MatchURL(req.URL, doc.URLPattern) {
		return domain.AllowDecision()
	}

	windowSeconds := doc.WindowSeconds
	if windowSeconds <= 0 {
		windowSeconds = 60
	}
	maxRequests := doc.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 100
	}

	key := p.ID + ":" + e.limiter.ExtractKey(doc.KeyExtractor, req.Headers, req.Body, req.ClientIP)
	outcome := e.limiter.CheckLimit(ctx, key, windowSeconds, maxRequests)

	reason := ""
	if !outcome.Allowed {
		reason = fmt.Sprintf("rate limited by policy %s: %s", policyLabel(p), outcome.Reason)
	}
	return domain.RateLimitedDecision(p.ID, &outcome, reason)
}

// Refresh перечитывает каталог и атомарно подменяет снапшот.
// Конкурентные читатели никогда не видят полусобранный кэш.
func (e *Engine) Refresh(ctx context.Context) error {
	policies, err := e.catalog.ListEnabledPolicies(ctx)
	if err != nil {
		return fmt.Errorf("engine: failed to load policies: %w", err)
	}

	snap := e.buildSnapshot(policies)
	e.snap.Store(snap)
	e.loaded.Store(true)

	if e.metrics != nil {
		e.metrics.PolicyCacheSize.Set(float64(len(policies)))
	}
	e.logger.Info("policy cache refreshed",
		zap.Int("global", len(snap.global)), zap.Int("agents", len(snap.byAgent)))
	return nil
}

func (e *Engine) buildSnapshot(policies []domain.Policy) *policySnapshot {
	sort.SliceStable(policies, func(i, j int) bool {
		return policies[i].Priority > policies[j].Priority
	})

	snap := &policySnapshot{byAgent: make(map[string][]domain.Policy)}
	for _, p := range policies {
		if p.Scope == domain.ScopeAgent {
			if p.AgentID == "" {
				// Инвариант нарушен: AGENT-скоуп без агента. Не роняем
				// загрузку — правило деградирует до глобального
				e.logger.Warn("agent-scoped policy without agent id, treating as global",
					zap.String("policy_id", p.ID))
				snap.global = append(snap.global, p)
				continue
			}
			snap.byAgent[p.AgentID] = append(snap.byAgent[p.AgentID], p)
			continue
		}
		snap.global = append(snap.global, p)
	}
	return snap
}

// snapshot отдает текущий срез, при первом обращении выполняя ленивую
// загрузку под мьютексом (double-checked).
func (e *Engine) snapshot(ctx context.Context) (*policySnapshot, error) {
	if s := e.snap.Load(); s != nil {
		return s, nil
	}

	e.initMu.Lock()
	defer e.initMu.Unlock()
	if s := e.snap.Load(); s != nil {
		return s, nil
	}
	if err := e.Refresh(ctx); err != nil {
		return nil, err
	}
	return e.snap.Load(), nil
}

func policyLabel(p domain.Policy) string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

func buildReason(p domain.Policy, action domain.PolicyAction) string {
	var desc string
	switch action {
	case domain.ActionDeny:
		desc = "request denied"
	case domain.ActionApproval:
		desc = "approval required"
	case domain.ActionMask:
		desc = "response masking required"
	case domain.ActionRateLimit:
		desc = "request rate limited"
	default:
		desc = "intercepted by policy"
	}

	if p.Description != "" {
		return desc + ": " + p.Description
	}
	return desc + ": " + policyLabel(p)
}
