package postgres

import (
	"github.com/xela07ax/agentguard-core/internal/approval"
	"github.com/xela07ax/agentguard-core/internal/audit"
	"github.com/xela07ax/agentguard-core/internal/engine"
	"github.com/xela07ax/agentguard-core/internal/server/handler"
	"github.com/xela07ax/agentguard-core/internal/server/service"
)

// Store подключается в main сразу в несколько ролей. Проверки ниже ловят
// на компиляции расхождение сигнатур между Store и контрактами
// потребителей: одноименные методы разных контрактов обязаны совпадать
// по типам (GetByID отдает заявку, GetAgentByID — агента).
var (
	_ engine.PolicyCatalog     = (*Store)(nil)
	_ approval.Repository      = (*Store)(nil)
	_ approval.AgentDirectory  = (*Store)(nil)
	_ audit.StorageInterface   = (*Store)(nil)
	_ handler.AgentDirectory   = (*Store)(nil)
	_ handler.OverviewProvider = (*Store)(nil)
	_ service.PolicyStore      = (*Store)(nil)
	_ service.AgentStore       = (*Store)(nil)
)
