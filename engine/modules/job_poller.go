package modules

import (
	"context"
	"time"

	"github.com/vibecheckhq/vibecheck/engine"
	Logger "github.com/vibecheckhq/vibecheck/utils/log"
)

const jobPollInterval = 15 * time.Second

type JobPollerConfig struct {
	Name string
}

// JobPoller bridges the durable queue and the in-process bus: jobs enqueued
// by another process (the API server) or left queued across a restart only
// exist as table rows, so the poller periodically re-publishes them as
// wake-ups. The job claim makes duplicate wake-ups harmless.
type JobPoller struct {
	Config JobPollerConfig
	Queue  *engine.JobQueue
}

func NewJobPoller(config JobPollerConfig, queue *engine.JobQueue) *JobPoller {
	return &JobPoller{Config: config, Queue: queue}
}

func (p *JobPoller) RunModule(ctx context.Context) error {
	// Recover jobs stranded by the previous process before the first tick.
	if err := p.Queue.RepublishQueued(); err != nil {
		return err
	}

	ticker := time.NewTicker(jobPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.Queue.RepublishQueued(); err != nil {
				Logger.Log.Errorf("%s: republish failed: %v", p.Config.Name, err)
			}
		}
	}
}

func (p *JobPoller) Name() string {
	return p.Config.Name
}
