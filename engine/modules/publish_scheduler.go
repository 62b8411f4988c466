package modules

import (
	"context"
	"time"

	"github.com/vibecheckhq/vibecheck/engine"
	"github.com/vibecheckhq/vibecheck/model"
	Logger "github.com/vibecheckhq/vibecheck/utils/log"
	"gorm.io/gorm"
)

const publishScanInterval = time.Minute

type PublishSchedulerConfig struct {
	Name string
}

// PublishScheduler periodically scans for approved content whose scheduled
// slot has arrived and enqueues a publish job for each. The publisher's
// idempotency guard makes a duplicate enqueue harmless.
type PublishScheduler struct {
	Config PublishSchedulerConfig
	DB     *gorm.DB
	Queue  *engine.JobQueue
}

func NewPublishScheduler(config PublishSchedulerConfig, db *gorm.DB, queue *engine.JobQueue) *PublishScheduler {
	return &PublishScheduler{Config: config, DB: db, Queue: queue}
}

func (s *PublishScheduler) RunModule(ctx context.Context) error {
	ticker := time.NewTicker(publishScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scanOnce(); err != nil {
				Logger.Log.Errorf("%s: scan failed: %v", s.Config.Name, err)
			}
		}
	}
}

func (s *PublishScheduler) scanOnce() error {
	var due []model.GeneratedContent
	if err := s.DB.Where("status = ? AND scheduled_for IS NOT NULL AND scheduled_for <= ?",
		model.ContentStatusApproved, time.Now()).Find(&due).Error; err != nil {
		return err
	}

	for _, c := range due {
		jobId, err := s.Queue.Enqueue(model.JobKindPublish, engine.PublishJobPayload{ContentId: c.Id})
		if err != nil {
			return err
		}
		// Clear the slot so the next scan does not enqueue it again; a failed
		// publish surfaces back to review for rescheduling.
		if err := s.DB.Model(&model.GeneratedContent{}).Where("id = ?", c.Id).
			Update("scheduled_for", nil).Error; err != nil {
			return err
		}
		Logger.Log.Infof("%s: content %s due, publish job %s", s.Config.Name, c.Id, jobId)
	}
	return nil
}

func (s *PublishScheduler) Name() string {
	return s.Config.Name
}
