// internal/scheduler/scheduler.go

// Package scheduler runs the periodic catalog refresh: on every cron
// tick it starts a bulk sync for each owner with eligible products.
package scheduler

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/ozstock/reseller-backend/internal/config"
	"github.com/ozstock/reseller-backend/internal/services"
)

type Scheduler struct {
	cron        *cron.Cron
	syncService *services.SyncService
	cfg         config.SchedulerConfig
	logger      *logrus.Entry
}

func New(syncService *services.SyncService, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		cron:        cron.New(),
		syncService: syncService,
		cfg:         cfg,
		logger:      logrus.WithField("component", "scheduler"),
	}
}

// Start registers the refresh job and begins ticking. A bad cron spec is
// a configuration error and is returned rather than silently ignored.
func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("Scheduled sync disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.cfg.CronSpec, s.refreshAll); err != nil {
		return fmt.Errorf("invalid sync cron spec %q: %w", s.cfg.CronSpec, err)
	}

	s.cron.Start()
	s.logger.WithField("spec", s.cfg.CronSpec).Info("Scheduled sync enabled")
	return nil
}

// Stop halts the ticker. Bulk syncs already started keep running.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) refreshAll() {
	userIDs, err := s.syncService.EligibleUserIDs()
	if err != nil {
		s.logger.WithError(err).Error("Failed to list users for scheduled sync")
		return
	}

	for _, userID := range userIDs {
		result, err := s.syncService.StartBulkSync(userID, services.BulkSyncOptions{
			Limit: s.cfg.RefreshLimit,
		})
		if err != nil {
			if errors.Is(err, services.ErrNothingToSync) {
				continue
			}
			s.logger.WithError(err).WithField("user_id", userID).Error("Failed to start scheduled sync")
			continue
		}

		s.logger.WithFields(logrus.Fields{
			"user_id":    userID,
			"session_id": result.SessionID,
			"total":      result.TotalProducts,
		}).Info("Scheduled sync started")
	}
}
