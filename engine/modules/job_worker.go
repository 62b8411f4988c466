// Package modules contains the engine modules of the pipeline worker: the
// per-kind job worker pools, the publish scheduler and the budget window
// reset loop.
package modules

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vibecheckhq/vibecheck/credpool"
	"github.com/vibecheckhq/vibecheck/engine"
	"github.com/vibecheckhq/vibecheck/ingest"
	"github.com/vibecheckhq/vibecheck/model"
	Logger "github.com/vibecheckhq/vibecheck/utils/log"
)

// JobHandler executes one job. Returning a deferral error (exhausted
// identity pool, ingestion already in flight) parks the job as deferred
// instead of failing it.
type JobHandler func(ctx context.Context, job *model.Job) error

type JobWorkerConfig struct {
	Name     string
	Kind     model.JobKind
	PoolSize int
}

// JobWorker consumes one job kind from the bus with a bounded goroutine pool.
// The bus message only carries the job id; all state lives on the job row.
type JobWorker struct {
	Config  JobWorkerConfig
	Queue   *engine.JobQueue
	Handler JobHandler
}

func NewJobWorker(config JobWorkerConfig, queue *engine.JobQueue, handler JobHandler) *JobWorker {
	if config.PoolSize <= 0 {
		config.PoolSize = 1
	}
	return &JobWorker{Config: config, Queue: queue, Handler: handler}
}

func (w *JobWorker) RunModule(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	messages, err := w.Queue.Bus().Subscribe(ctx, engine.TopicForKind(w.Config.Kind))
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for i := 0; i < w.Config.PoolSize; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range messages {
				msg.Ack()
				w.process(ctx, string(msg.Payload))
			}
		}()
	}
	wg.Wait()
	return nil
}

func (w *JobWorker) process(ctx context.Context, jobId string) {
	claimed, err := w.Queue.ClaimJob(jobId)
	if err != nil {
		Logger.Log.Errorf("%s: fail to claim job %s: %v", w.Config.Name, jobId, err)
		return
	}
	// Finished jobs and duplicate wake-ups fail the claim and are dropped.
	if !claimed {
		return
	}

	job, err := w.Queue.GetJob(jobId)
	if err != nil {
		Logger.Log.Errorf("%s: fail to load job %s: %v", w.Config.Name, jobId, err)
		return
	}

	handlerErr := w.Handler(ctx, job)
	switch {
	case handlerErr == nil:
		w.mark(job.Id, model.JobStateDone, "")
	case isDeferral(handlerErr):
		Logger.Log.Infof("%s: job %s deferred: %v", w.Config.Name, job.Id, handlerErr)
		w.mark(job.Id, model.JobStateDeferred, handlerErr.Error())
	default:
		Logger.Log.Errorf("%s: job %s failed: %v", w.Config.Name, job.Id, handlerErr)
		w.mark(job.Id, model.JobStateFailed, handlerErr.Error())
	}
}

func (w *JobWorker) mark(jobId string, state model.JobState, jobErr string) {
	if err := w.Queue.MarkJob(jobId, state, jobErr); err != nil {
		Logger.Log.Errorf("%s: fail to mark job %s %s: %v", w.Config.Name, jobId, state, err)
	}
}

// isDeferral classifies resource exhaustion apart from real failures.
func isDeferral(err error) bool {
	return errors.Is(err, credpool.ErrNoAvailableIdentity) ||
		errors.Is(err, ingest.ErrIngestionInProgress) ||
		errors.Is(err, context.Canceled)
}

func (w *JobWorker) Name() string {
	return fmt.Sprintf("%s[%d]", w.Config.Name, w.Config.PoolSize)
}
