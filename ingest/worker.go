package ingest

import (
	"context"
	"errors"
	"time"

	perrors "github.com/pkg/errors"
	"github.com/vibecheckhq/vibecheck/app_config"
	"github.com/vibecheckhq/vibecheck/credpool"
	"github.com/vibecheckhq/vibecheck/model"
	"github.com/vibecheckhq/vibecheck/retry"
	"github.com/vibecheckhq/vibecheck/utils"
	Logger "github.com/vibecheckhq/vibecheck/utils/log"
)

// ErrPostTerminated means a previous run recorded a permanent ingestion
// failure for the post. Terminated posts are never retried.
var ErrPostTerminated = errors.New("ingestion previously terminated for post")

// IngestResult reports how an ingestion run ended. Completed is true only
// when the comment stream was exhausted or the cap was reached; otherwise the
// checkpoint allows a later run to resume.
type IngestResult struct {
	NewComments int
	Checkpoint  string
	Completed   bool
}

// Worker drives the page loop for one post at a time: checkout an identity,
// fetch a page, store it, checkpoint, pause, repeat.
type Worker struct {
	store    Store
	api      CommentAPI
	pool     *credpool.Pool
	registry *Registry
	policy   retry.Policy

	minDelay       time.Duration
	maxDelay       time.Duration
	longPauseEvery int
	longPause      time.Duration

	// Injectable for tests; production uses sleepCtx.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewWorker(store Store, api CommentAPI, pool *credpool.Pool, registry *Registry, cfg *app_config.PipelineAppConfig) *Worker {
	return &Worker{
		store:          store,
		api:            api,
		pool:           pool,
		registry:       registry,
		policy:         retry.NewPolicy(cfg.INGEST_RETRY),
		minDelay:       time.Duration(cfg.MIN_REQUEST_DELAY_MS) * time.Millisecond,
		maxDelay:       time.Duration(cfg.MAX_REQUEST_DELAY_MS) * time.Millisecond,
		longPauseEvery: cfg.LONG_PAUSE_EVERY_N_REQUESTS,
		longPause:      time.Duration(cfg.LONG_PAUSE_SECOND) * time.Second,
		sleep:          sleepCtx,
	}
}

// Ingest runs the page loop for a post until the stream is exhausted, the cap
// is reached, retries are exhausted or the context is canceled. maxComments
// of zero means no cap.
//
// The cursor is checkpointed after every stored page and before the next one
// is requested, so an interrupted run loses at most one page of work and a
// resumed run re-fetches at most one page; the upsert key makes re-stored
// comments a no-op.
func (w *Worker) Ingest(ctx context.Context, postId string, maxComments int) (IngestResult, error) {
	post, err := w.store.GetPost(postId)
	if err != nil {
		return IngestResult{}, perrors.Wrapf(err, "load post %s", postId)
	}

	cursor := post.CommentCursor
	switch post.IngestState {
	case model.IngestStateTerminated:
		return IngestResult{Checkpoint: cursor}, ErrPostTerminated
	case model.IngestStateComplete:
		// Re-ingestion of a complete post restarts from the beginning to pick
		// up comments left since; already stored comments dedupe on upsert.
		cursor = ""
	}

	if err := w.registry.Acquire(post.TargetID); err != nil {
		return IngestResult{Checkpoint: cursor}, err
	}
	defer w.registry.Release(post.TargetID)

	if err := w.store.SaveCheckpoint(postId, cursor, model.IngestStateInProgress, ""); err != nil {
		return IngestResult{Checkpoint: cursor}, perrors.Wrap(err, "mark in progress")
	}

	total := 0
	requests := 0
	for {
		if err := ctx.Err(); err != nil {
			return w.suspend(postId, cursor, total, err)
		}

		page, err := w.fetchPage(ctx, post.ExternalPostId, cursor)
		if err != nil {
			if errors.Is(err, ErrPostGone) {
				Logger.Log.Warnf("post %s gone, terminating ingestion: %v", postId, err)
				if saveErr := w.store.SaveCheckpoint(postId, cursor, model.IngestStateTerminated, err.Error()); saveErr != nil {
					Logger.Log.Errorf("fail to record termination for post %s: %v", postId, saveErr)
				}
				return IngestResult{NewComments: total, Checkpoint: cursor}, err
			}
			return w.suspend(postId, cursor, total, err)
		}
		requests++

		inserted, err := w.store.UpsertComments(postId, page.Comments)
		if err != nil {
			return w.suspend(postId, cursor, total, perrors.Wrap(err, "store comments"))
		}
		total += inserted
		cursor = page.NextCursor

		capped := maxComments > 0 && total >= maxComments
		if !page.HasMore || capped {
			if err := w.store.SaveCheckpoint(postId, cursor, model.IngestStateComplete, ""); err != nil {
				return IngestResult{NewComments: total, Checkpoint: cursor}, perrors.Wrap(err, "mark complete")
			}
			return IngestResult{NewComments: total, Checkpoint: cursor, Completed: true}, nil
		}

		// Checkpoint before the next page request.
		if err := w.store.SaveCheckpoint(postId, cursor, model.IngestStateInProgress, ""); err != nil {
			return IngestResult{NewComments: total, Checkpoint: cursor}, perrors.Wrap(err, "save checkpoint")
		}

		if err := w.pause(ctx, requests); err != nil {
			return w.suspend(postId, cursor, total, err)
		}
	}
}

// fetchPage is one checkpointed unit of work: each attempt checks out the
// least loaded identity, counts the request, issues it and reports the
// outcome back to the pool. Attempts after a rate limit or auth failure run
// with a different identity because the pool has cooled down or banned the
// previous one.
func (w *Worker) fetchPage(ctx context.Context, externalPostId string, cursor string) (*CommentPage, error) {
	var page *CommentPage
	err := w.policy.Do(ctx, func() error {
		identity, err := w.pool.Checkout()
		if err != nil {
			// Exhausted pool: defer the whole job rather than busy-wait.
			return err
		}

		if delay := w.pool.RecordRequest(identity.Id); delay > 0 {
			Logger.Log.Infof("global ceiling reached, waiting %s", delay)
			if err := w.sleep(ctx, delay); err != nil {
				return err
			}
		}

		p, err := w.api.FetchCommentPage(identity, externalPostId, cursor)
		switch {
		case err == nil:
			w.pool.Checkin(identity.Id, credpool.OutcomeSuccess)
			page = p
			return nil
		case errors.Is(err, ErrRateLimited):
			w.pool.Checkin(identity.Id, credpool.OutcomeRateLimited)
			return retry.Transient(err)
		case errors.Is(err, ErrAuthRejected):
			w.pool.Checkin(identity.Id, credpool.OutcomeAuthFailed)
			return retry.Transient(err)
		default:
			w.pool.Checkin(identity.Id, credpool.OutcomeError)
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// suspend records a resumable checkpoint and returns the partial result. The
// post goes back to pending so a later job can pick it up from the cursor.
func (w *Worker) suspend(postId string, cursor string, total int, cause error) (IngestResult, error) {
	if err := w.store.SaveCheckpoint(postId, cursor, model.IngestStatePending, ""); err != nil {
		Logger.Log.Errorf("fail to save suspend checkpoint for post %s: %v", postId, err)
	}
	return IngestResult{NewComments: total, Checkpoint: cursor}, cause
}

// pause applies the humanized pacing between page requests plus the
// periodic long pause.
func (w *Worker) pause(ctx context.Context, requests int) error {
	if err := w.sleep(ctx, utils.RandomDurationBetween(w.minDelay, w.maxDelay)); err != nil {
		return err
	}
	if w.longPauseEvery > 0 && requests%w.longPauseEvery == 0 {
		Logger.Log.Infof("long pause after %d requests", requests)
		return w.sleep(ctx, utils.RandomDurationBetween(w.longPause, 2*w.longPause))
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
