package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	perrors "github.com/pkg/errors"
	"github.com/vibecheckhq/vibecheck/app_config"
	"github.com/vibecheckhq/vibecheck/content"
	"github.com/vibecheckhq/vibecheck/model"
	"github.com/vibecheckhq/vibecheck/retry"
	Logger "github.com/vibecheckhq/vibecheck/utils/log"
	"gorm.io/gorm"
)

const (
	OutcomeInFlight = "in_flight"
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
	OutcomeRefused  = "refused"
)

var (
	// ErrNotApproved: only approved content may be published.
	ErrNotApproved = errors.New("content is not approved for publishing")
	// ErrRetriesExhausted: the attempt log already holds the maximum number
	// of attempts for this content.
	ErrRetriesExhausted = errors.New("publish retries exhausted")
)

// Store is the persistence surface of the publisher.
type Store interface {
	GetContent(contentId string) (*model.GeneratedContent, error)
	// RecordAttempt appends an attempt row. Called before the outbound call.
	RecordAttempt(attempt *model.PublishAttempt) error
	// FinishAttempt stamps the outcome onto an attempt row, exactly once.
	FinishAttempt(attemptId string, outcome string, errorKind string) error
	CountAttempts(contentId string) (int, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetContent(contentId string) (*model.GeneratedContent, error) {
	var c model.GeneratedContent
	if err := s.db.First(&c, "id = ?", contentId).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *GormStore) RecordAttempt(attempt *model.PublishAttempt) error {
	return s.db.Create(attempt).Error
}

func (s *GormStore) FinishAttempt(attemptId string, outcome string, errorKind string) error {
	return s.db.Model(&model.PublishAttempt{}).Where("id = ?", attemptId).
		Updates(map[string]interface{}{"outcome": outcome, "error_kind": errorKind}).Error
}

func (s *GormStore) CountAttempts(contentId string) (int, error) {
	var count int64
	err := s.db.Model(&model.PublishAttempt{}).Where("content_id = ?", contentId).Count(&count).Error
	return int(count), err
}

// Publisher drives the outbound publish call for one content at a time.
type Publisher struct {
	store   Store
	client  ExternalClient
	machine *content.StateMachine
	policy  retry.Policy

	now func() time.Time
}

func NewPublisher(store Store, client ExternalClient, machine *content.StateMachine, cfg *app_config.PipelineAppConfig) *Publisher {
	return &Publisher{
		store:   store,
		client:  client,
		machine: machine,
		policy:  retry.NewPolicy(cfg.PUBLISH_RETRY),
		now:     time.Now,
	}
}

// Publish posts an approved content to the publish target.
//
// Already published content is a no-op returning the existing external id,
// never a second outbound call. Transient failures retry under the publish
// policy; when the attempt log reaches the ceiling the content surfaces back
// to pending_review with the failure as its review note. A definitive refusal
// rejects the content.
func (p *Publisher) Publish(ctx context.Context, contentId string) (string, error) {
	c, err := p.store.GetContent(contentId)
	if err != nil {
		return "", perrors.Wrapf(err, "load content %s", contentId)
	}

	if c.Status == model.ContentStatusPublished {
		Logger.Log.Infof("content %s already published as %s", c.Id, c.ExternalPostId)
		return c.ExternalPostId, nil
	}
	if c.Status != model.ContentStatusApproved {
		return "", ErrNotApproved
	}

	prior, err := p.store.CountAttempts(c.Id)
	if err != nil {
		return "", perrors.Wrap(err, "count attempts")
	}
	if prior >= p.policy.MaxAttempts {
		if err := p.machine.Transition(c, model.ContentStatusPendingReview,
			fmt.Sprintf("publish retries exhausted after %d attempts", prior)); err != nil {
			return "", err
		}
		return "", ErrRetriesExhausted
	}

	attempt := prior
	var externalId string
	callErr := p.policy.Do(ctx, func() error {
		if attempt >= p.policy.MaxAttempts {
			return ErrRetriesExhausted
		}
		attempt++

		row := &model.PublishAttempt{
			Id:            uuid.New().String(),
			ContentID:     c.Id,
			AttemptNumber: attempt,
			Outcome:       OutcomeInFlight,
			AttemptedAt:   p.now(),
		}
		// The attempt must be durable before the outbound call; a crash
		// mid-call still counts against the ceiling.
		if err := p.store.RecordAttempt(row); err != nil {
			return perrors.Wrap(err, "record attempt")
		}

		id, err := p.client.CreatePost(ctx, c)
		switch {
		case err == nil:
			externalId = id
			p.finishAttempt(row.Id, OutcomeSuccess, "")
			return nil
		case errors.Is(err, ErrContentRefused):
			p.finishAttempt(row.Id, OutcomeRefused, err.Error())
			return err
		default:
			p.finishAttempt(row.Id, OutcomeFailed, err.Error())
			return err
		}
	})

	switch {
	case callErr == nil:
		c.ExternalPostId = externalId
		if err := p.machine.Transition(c, model.ContentStatusPublished, ""); err != nil {
			return "", err
		}
		Logger.Log.Infof("content %s published as %s on attempt %d", c.Id, externalId, attempt)
		return externalId, nil

	case errors.Is(callErr, ErrContentRefused):
		if err := p.machine.Reject(c, callErr.Error()); err != nil {
			return "", err
		}
		return "", callErr

	default:
		if err := p.machine.Transition(c, model.ContentStatusPendingReview,
			fmt.Sprintf("publish failed after %d attempts: %v", attempt, callErr)); err != nil {
			return "", err
		}
		return "", callErr
	}
}

func (p *Publisher) finishAttempt(attemptId string, outcome string, errorKind string) {
	if err := p.store.FinishAttempt(attemptId, outcome, errorKind); err != nil {
		Logger.Log.Errorf("fail to finish attempt %s: %v", attemptId, err)
	}
}
