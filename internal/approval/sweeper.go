package approval

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper по расписанию закрывает просроченные PENDING-заявки и
// возвращает в очередь исполнения застрявшие одобренные. Источник
// истины о просрочке — только он: чтение заявки никогда не пишет
// EXPIRED в БД само по себе.
type Sweeper struct {
	svc      *Service
	cron     *cron.Cron
	schedule string
	logger   *zap.Logger
}

func NewSweeper(svc *Service, schedule string, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		svc:      svc,
		cron:     cron.New(),
		schedule: schedule,
		logger:   logger.Named("sweeper"),
	}
}

// Start регистрирует задачу и запускает планировщик.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.svc.ExpireOverdue(ctx); err != nil {
			s.logger.Error("expire sweep failed", zap.Error(err))
		}
		if err := s.svc.RequeueStuck(ctx); err != nil {
			s.logger.Error("stuck requeue failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("approval expiry sweeper started", zap.String("schedule", s.schedule))
	return nil
}

// Stop останавливает планировщик, дожидаясь завершения текущего прогона.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
