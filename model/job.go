package model

import (
	"time"

	"gorm.io/datatypes"
)

// JobKind selects the worker pool a job is consumed by.
type JobKind string

const (
	JobKindScrape  JobKind = "scrape"
	JobKindAnalyze JobKind = "analyze"
	JobKindPublish JobKind = "publish"
)

// JobState is the coarse lifecycle of an asynchronous job.
type JobState string

const (
	JobStateQueued  JobState = "queued"
	JobStateRunning JobState = "running"
	JobStateDone    JobState = "done"
	JobStateFailed  JobState = "failed"
	// JobStateDeferred means the job hit resource exhaustion (no identity,
	// saturated pool) and should be re-submitted later, not treated as failed.
	JobStateDeferred JobState = "deferred"
)

/*

Job is the durable record of an asynchronous pipeline job. The jobs table is
the source of truth; the event bus only wakes consumers up. A job that was
queued before a crash is re-published on startup from this table.

Payload: kind-specific JSON (target id, post id, caps, ...)
Error: last error message for failed/deferred jobs
*/
type Job struct {
	Id        string `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Kind      JobKind  `gorm:"index"`
	State     JobState `gorm:"index"`
	Payload   datatypes.JSON
	Error     string
}
