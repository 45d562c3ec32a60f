package service

import (
	"context"
	"fmt"
	"time"

	"copytrade/internal/models"
	"copytrade/internal/websocket"
	"copytrade/pkg/utils"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
)

// UserSyncer синхронизирует одного пользователя (реализуется SyncService)
type UserSyncer interface {
	SyncUser(ctx context.Context, userID int64) ([]models.ExchangeSyncResult, error)
}

// ClientPruner освобождает давно не используемых клиентов (реализуется exchange.Registry)
type ClientPruner interface {
	Prune(idle time.Duration) int
}

// SyncReport - итог синхронизации одного пользователя
type SyncReport struct {
	UserID   int64                       `json:"user_id"`
	Results  []models.ExchangeSyncResult `json:"results"`
	Error    string                      `json:"error,omitempty"`
	Panicked bool                        `json:"panicked,omitempty"`
	Duration time.Duration               `json:"duration"`
}

// SchedulerConfig - параметры планировщика
type SchedulerConfig struct {
	// Concurrency - сколько пользователей синхронизируется одновременно
	Concurrency int
	// Statuses - фильтр пользователей для SyncAll; пусто - все
	Statuses []models.UserStatus
	// ClientIdleTTL - клиенты без обращений дольше этого срока удаляются; 0 - не удалять
	ClientIdleTTL time.Duration
}

// Scheduler запускает синхронизацию по требованию и по расписанию.
//
// Паника при синхронизации одного пользователя перехватывается и попадает
// в его SyncReport; остальные пользователи пакета не затрагиваются.
type Scheduler struct {
	syncer   UserSyncer
	users    UserRepositoryInterface
	notifier Notifier
	pruner   ClientPruner
	cfg      SchedulerConfig
	logger   *utils.Logger
}

// NewScheduler создаёт планировщик
func NewScheduler(syncer UserSyncer, users UserRepositoryInterface, cfg SchedulerConfig) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Scheduler{
		syncer: syncer,
		users:  users,
		cfg:    cfg,
		logger: utils.L().WithComponent("scheduler"),
	}
}

// SetNotifier устанавливает канал доставки результатов синхронизации
func (s *Scheduler) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetClientPruner включает очистку простаивающих клиентов после каждого цикла
func (s *Scheduler) SetClientPruner(p ClientPruner) {
	s.pruner = p
}

// SyncOne синхронизирует одного пользователя и отправляет ему syncResult
func (s *Scheduler) SyncOne(ctx context.Context, userID int64) SyncReport {
	start := time.Now()
	report := SyncReport{UserID: userID}

	var (
		catcher panics.Catcher
		results []models.ExchangeSyncResult
		err     error
	)
	catcher.Try(func() {
		results, err = s.syncer.SyncUser(ctx, userID)
	})

	if r := catcher.Recovered(); r != nil {
		SyncPanics.Inc()
		report.Panicked = true
		report.Error = fmt.Sprintf("sync panicked: %v", r.Value)
		s.logger.Error("user sync panicked",
			utils.UserID(userID),
			utils.Any("panic", r.Value),
			utils.String("stack", string(r.Stack)),
		)
	} else if err != nil {
		report.Error = err.Error()
		s.logger.Warn("user sync failed", utils.UserID(userID), utils.Err(err))
	}

	report.Results = results
	if report.Results == nil {
		report.Results = []models.ExchangeSyncResult{}
	}
	report.Duration = time.Since(start)
	SyncDuration.Observe(report.Duration.Seconds())

	s.logger.Debug("user synced",
		utils.UserID(userID),
		utils.Int("exchanges", len(report.Results)),
		utils.Elapsed(report.Duration),
	)

	if s.notifier != nil {
		s.notifier.Notify(userID, websocket.NewSyncResultMessage(userID, report.Results, report.Error))
	}
	return report
}

// SyncAll синхронизирует всех пользователей с ограниченным параллелизмом.
// Ошибка возвращается только если не удалось получить список пользователей.
func (s *Scheduler) SyncAll(ctx context.Context) ([]SyncReport, error) {
	ids, err := s.users.ListIDs(ctx, s.cfg.Statuses...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	reports := make([]SyncReport, len(ids))
	p := pool.New().WithMaxGoroutines(s.cfg.Concurrency)
	for i, id := range ids {
		p.Go(func() {
			reports[i] = s.SyncOne(ctx, id)
		})
	}
	p.Wait()

	failed := 0
	for _, r := range reports {
		if r.Error != "" {
			failed++
		}
	}
	s.logger.Info("sync cycle finished", utils.Int("users", len(ids)), utils.Int("failed", failed))
	return reports, nil
}

// Run выполняет SyncAll каждые interval до отмены ctx
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.logger.Info("periodic sync disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("periodic sync started", utils.Elapsed(interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("periodic sync stopped")
			return
		case <-ticker.C:
			if _, err := s.SyncAll(ctx); err != nil {
				s.logger.Error("sync cycle failed", utils.Err(err))
			}
			s.prune()
		}
	}
}

func (s *Scheduler) prune() {
	if s.pruner == nil || s.cfg.ClientIdleTTL <= 0 {
		return
	}
	if n := s.pruner.Prune(s.cfg.ClientIdleTTL); n > 0 {
		s.logger.Info("idle exchange clients pruned", utils.Int("count", n))
	}
}
