package engine

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	perrors "github.com/pkg/errors"
	"github.com/vibecheckhq/vibecheck/model"
	"github.com/vibecheckhq/vibecheck/utils"
	Logger "github.com/vibecheckhq/vibecheck/utils/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// One bus topic per job kind; each worker pool subscribes to its own.
func TopicForKind(kind model.JobKind) string {
	return "job." + string(kind)
}

// ScrapeJobPayload, AnalyzeJobPayload and PublishJobPayload are the
// kind-specific job payloads, stored as JSON on the job row and carried on
// the bus only by job id.
type ScrapeJobPayload struct {
	TargetId    string `json:"target_id"`
	PostId      string `json:"post_id"`
	MaxComments int    `json:"max_comments"`
}

type AnalyzeJobPayload struct {
	PostId string `json:"post_id"`
}

type PublishJobPayload struct {
	ContentId string `json:"content_id"`
}

// JobQueue persists jobs and wakes consumers up through the event bus. The
// jobs table is the source of truth: a message lost to a crash is recovered
// by RepublishQueued on startup.
type JobQueue struct {
	db       *gorm.DB
	bus      *gochannel.GoChannel
	statuses *utils.JobStatusStore
}

func NewJobQueue(db *gorm.DB, bus *gochannel.GoChannel, statuses *utils.JobStatusStore) *JobQueue {
	return &JobQueue{db: db, bus: bus, statuses: statuses}
}

// Bus exposes the wake-up bus for consumers.
func (q *JobQueue) Bus() *gochannel.GoChannel {
	return q.bus
}

// Enqueue writes the durable job row first, then publishes the wake-up. The
// returned id is what callers poll.
func (q *JobQueue) Enqueue(kind model.JobKind, payload interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", perrors.Wrap(err, "marshal job payload")
	}

	job := &model.Job{
		Id:      uuid.New().String(),
		Kind:    kind,
		State:   model.JobStateQueued,
		Payload: datatypes.JSON(body),
	}
	if err := q.db.Create(job).Error; err != nil {
		return "", perrors.Wrap(err, "create job")
	}
	q.SetStatus(job.Id, model.JobStateQueued)

	if err := q.publish(job); err != nil {
		return "", err
	}
	return job.Id, nil
}

// RepublishQueued re-publishes every job still queued in the table, picking
// up work that was enqueued before a crash or left deferred.
func (q *JobQueue) RepublishQueued() error {
	var jobs []model.Job
	if err := q.db.Where("state IN ?", []model.JobState{model.JobStateQueued, model.JobStateDeferred}).
		Find(&jobs).Error; err != nil {
		return perrors.Wrap(err, "load queued jobs")
	}

	for i := range jobs {
		job := jobs[i]
		if job.State == model.JobStateDeferred {
			if err := q.db.Model(&model.Job{}).Where("id = ?", job.Id).
				Updates(map[string]interface{}{"state": model.JobStateQueued, "error": ""}).Error; err != nil {
				return err
			}
			q.SetStatus(job.Id, model.JobStateQueued)
		}
		if err := q.publish(&job); err != nil {
			return err
		}
	}
	if len(jobs) > 0 {
		Logger.Log.Infof("republished %d pending jobs", len(jobs))
	}
	return nil
}

// GetJob reads the durable job row.
func (q *JobQueue) GetJob(jobId string) (*model.Job, error) {
	var job model.Job
	if err := q.db.First(&job, "id = ?", jobId).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// ClaimJob atomically takes a queued or deferred job for execution. Returns
// false when another consumer already claimed it; the wake-up bus delivers
// duplicates by design and the claim is what deduplicates.
func (q *JobQueue) ClaimJob(jobId string) (bool, error) {
	res := q.db.Model(&model.Job{}).
		Where("id = ? AND state IN ?", jobId, []model.JobState{model.JobStateQueued, model.JobStateDeferred}).
		Updates(map[string]interface{}{"state": model.JobStateRunning, "error": ""})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	q.SetStatus(jobId, model.JobStateRunning)
	return true, nil
}

// MarkJob transitions the durable state and mirrors it into the status store.
func (q *JobQueue) MarkJob(jobId string, state model.JobState, jobErr string) error {
	if err := q.db.Model(&model.Job{}).Where("id = ?", jobId).
		Updates(map[string]interface{}{"state": state, "error": jobErr}).Error; err != nil {
		return err
	}
	q.SetStatus(jobId, state)
	return nil
}

// SetStatus mirrors a state into Redis. Best effort: the table is the source
// of truth and status reads fall back to it.
func (q *JobQueue) SetStatus(jobId string, state model.JobState) {
	if q.statuses == nil {
		return
	}
	if err := q.statuses.SetJobStatus(jobId, string(state)); err != nil {
		Logger.Log.Warnf("fail to mirror status of job %s: %v", jobId, err)
	}
}

func (q *JobQueue) publish(job *model.Job) error {
	msg := message.NewMessage(job.Id, []byte(job.Id))
	if err := q.bus.Publish(TopicForKind(job.Kind), msg); err != nil {
		return perrors.Wrapf(err, "publish job %s", job.Id)
	}
	return nil
}
