// Package content owns the GeneratedContent lifecycle. Every status change in
// the system goes through Transition; the directed graph below is the single
// definition of which changes are legal.
package content

import (
	"fmt"
	"time"

	"github.com/vibecheckhq/vibecheck/app_config"
	"github.com/vibecheckhq/vibecheck/model"
	Logger "github.com/vibecheckhq/vibecheck/utils/log"
	"gorm.io/gorm"
)

// ErrInvalidTransition is returned for any status change outside the graph.
// The content row is left untouched.
type ErrInvalidTransition struct {
	From model.ContentStatus
	To   model.ContentStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid content transition: %s -> %s", e.From, e.To)
}

// transitions is the full lifecycle graph. published and rejected are
// terminal: no edges leave them.
var transitions = map[model.ContentStatus][]model.ContentStatus{
	model.ContentStatusDraft:         {model.ContentStatusPendingReview},
	model.ContentStatusPendingReview: {model.ContentStatusApproved, model.ContentStatusRejected},
	model.ContentStatusApproved:      {model.ContentStatusPublished, model.ContentStatusRejected, model.ContentStatusPendingReview},
	model.ContentStatusPublished:     {},
	model.ContentStatusRejected:      {},
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to model.ContentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StateMachine applies lifecycle transitions to content rows. A nil db keeps
// mutations in memory, for tests.
type StateMachine struct {
	db               *gorm.DB
	autoApproveScore float64
	now              func() time.Time
}

func NewStateMachine(db *gorm.DB, cfg *app_config.PipelineAppConfig) *StateMachine {
	return &StateMachine{
		db:               db,
		autoApproveScore: cfg.AUTO_APPROVE_VIRAL_SCORE,
		now:              time.Now,
	}
}

// Transition moves a content to the requested status. An edge outside the
// graph returns ErrInvalidTransition and leaves the row unchanged, in memory
// and in the database.
func (m *StateMachine) Transition(content *model.GeneratedContent, to model.ContentStatus, note string) error {
	if !CanTransition(content.Status, to) {
		return &ErrInvalidTransition{From: content.Status, To: to}
	}

	from := content.Status
	content.Status = to
	if note != "" {
		content.ReviewNote = note
	}
	if to == model.ContentStatusPublished {
		t := m.now()
		content.PublishedAt = &t
	}

	if err := m.persist(content); err != nil {
		content.Status = from
		return err
	}
	Logger.Log.Infof("content %s: %s -> %s", content.Id, from, to)
	return nil
}

// SubmitForReview moves a finished draft into the review queue, approving it
// outright when the source post's viral score clears the auto-approve
// threshold.
func (m *StateMachine) SubmitForReview(content *model.GeneratedContent, viralScore float64) error {
	if err := m.Transition(content, model.ContentStatusPendingReview, ""); err != nil {
		return err
	}
	if viralScore >= m.autoApproveScore {
		return m.Transition(content, model.ContentStatusApproved,
			fmt.Sprintf("auto-approved at viral score %.1f", viralScore))
	}
	return nil
}

// Approve and Reject are the human review actions.
func (m *StateMachine) Approve(content *model.GeneratedContent, note string) error {
	return m.Transition(content, model.ContentStatusApproved, note)
}

func (m *StateMachine) Reject(content *model.GeneratedContent, note string) error {
	return m.Transition(content, model.ContentStatusRejected, note)
}

// Schedule attaches a publish slot to an approved content. Scheduling is not
// a lifecycle transition; it only makes sense while approved.
func (m *StateMachine) Schedule(content *model.GeneratedContent, at time.Time) error {
	if content.Status != model.ContentStatusApproved {
		return &ErrInvalidTransition{From: content.Status, To: content.Status}
	}
	content.ScheduledFor = &at
	return m.persist(content)
}

func (m *StateMachine) persist(content *model.GeneratedContent) error {
	if m.db == nil {
		return nil
	}
	return m.db.Save(content).Error
}
