package publish

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vibecheckhq/vibecheck/app_config"
	"github.com/vibecheckhq/vibecheck/content"
	"github.com/vibecheckhq/vibecheck/model"
	"github.com/vibecheckhq/vibecheck/retry"
)

type fakeStore struct {
	contents map[string]*model.GeneratedContent
	attempts []*model.PublishAttempt
}

func newPublishFakeStore(contents ...*model.GeneratedContent) *fakeStore {
	s := &fakeStore{contents: map[string]*model.GeneratedContent{}}
	for _, c := range contents {
		s.contents[c.Id] = c
	}
	return s
}

func (s *fakeStore) GetContent(contentId string) (*model.GeneratedContent, error) {
	c, ok := s.contents[contentId]
	if !ok {
		return nil, fmt.Errorf("content not found: %s", contentId)
	}
	return c, nil
}

func (s *fakeStore) RecordAttempt(attempt *model.PublishAttempt) error {
	s.attempts = append(s.attempts, attempt)
	return nil
}

func (s *fakeStore) FinishAttempt(attemptId string, outcome string, errorKind string) error {
	for _, a := range s.attempts {
		if a.Id == attemptId {
			a.Outcome = outcome
			a.ErrorKind = errorKind
		}
	}
	return nil
}

func (s *fakeStore) CountAttempts(contentId string) (int, error) {
	n := 0
	for _, a := range s.attempts {
		if a.ContentID == contentId {
			n++
		}
	}
	return n, nil
}

type fakeClient struct {
	// Errors returned call by call; nil means success. The last entry
	// repeats.
	errs       []error
	externalId string
	calls      int
	// Attempt rows visible in the store at each call, to verify the row is
	// written before the outbound call.
	attemptsAtCall []int
	store          *fakeStore
}

func (c *fakeClient) CreatePost(ctx context.Context, content *model.GeneratedContent) (string, error) {
	c.calls++
	if c.store != nil {
		c.attemptsAtCall = append(c.attemptsAtCall, len(c.store.attempts))
	}
	var err error
	if len(c.errs) > 0 {
		err = c.errs[0]
		if len(c.errs) > 1 {
			c.errs = c.errs[1:]
		}
	}
	if err != nil {
		return "", err
	}
	return c.externalId, nil
}

func approvedContent() *model.GeneratedContent {
	return &model.GeneratedContent{Id: "c1", Status: model.ContentStatusApproved, Title: "t", Caption: "cap"}
}

func newTestPublisher(store Store, client ExternalClient, maxAttempts int) *Publisher {
	cfg := app_config.DefaultPipelineAppConfig()
	cfg.PUBLISH_RETRY = app_config.RetryConfig{MaxAttempts: maxAttempts, BaseDelayMs: 0, Multiplier: 1}
	machine := content.NewStateMachine(nil, &cfg)
	return NewPublisher(store, client, machine, &cfg)
}

func TestPublishSuccess(t *testing.T) {
	c := approvedContent()
	store := newPublishFakeStore(c)
	client := &fakeClient{externalId: "ext-99", store: store}
	p := newTestPublisher(store, client, 4)

	id, err := p.Publish(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "ext-99", id)
	assert.Equal(t, model.ContentStatusPublished, c.Status)
	assert.Equal(t, "ext-99", c.ExternalPostId)
	assert.NotNil(t, c.PublishedAt)

	require.Len(t, store.attempts, 1)
	assert.Equal(t, OutcomeSuccess, store.attempts[0].Outcome)
	assert.Equal(t, 1, store.attempts[0].AttemptNumber)
	// The attempt row existed before the outbound call was made.
	assert.Equal(t, []int{1}, client.attemptsAtCall)
}

func TestPublishAlreadyPublishedIsNoop(t *testing.T) {
	c := approvedContent()
	c.Status = model.ContentStatusPublished
	c.ExternalPostId = "ext-old"
	store := newPublishFakeStore(c)
	client := &fakeClient{externalId: "ext-new"}
	p := newTestPublisher(store, client, 4)

	id, err := p.Publish(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "ext-old", id)
	// Never a second outbound call.
	assert.Equal(t, 0, client.calls)
	assert.Empty(t, store.attempts)
}

func TestPublishRequiresApproval(t *testing.T) {
	for _, status := range []model.ContentStatus{
		model.ContentStatusDraft,
		model.ContentStatusPendingReview,
		model.ContentStatusRejected,
	} {
		c := approvedContent()
		c.Status = status
		store := newPublishFakeStore(c)
		client := &fakeClient{}
		p := newTestPublisher(store, client, 4)

		_, err := p.Publish(context.Background(), "c1")
		assert.ErrorIs(t, err, ErrNotApproved, "status: %s", status)
		assert.Equal(t, 0, client.calls)
		assert.Equal(t, status, c.Status)
	}
}

func TestPublishRetriesTransientThenSucceeds(t *testing.T) {
	c := approvedContent()
	store := newPublishFakeStore(c)
	client := &fakeClient{
		errs:       []error{retry.Transient(fmt.Errorf("503")), retry.Transient(fmt.Errorf("503")), nil},
		externalId: "ext-1",
		store:      store,
	}
	p := newTestPublisher(store, client, 4)

	id, err := p.Publish(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "ext-1", id)
	assert.Equal(t, 3, client.calls)

	require.Len(t, store.attempts, 3)
	assert.Equal(t, OutcomeFailed, store.attempts[0].Outcome)
	assert.Equal(t, OutcomeFailed, store.attempts[1].Outcome)
	assert.Equal(t, OutcomeSuccess, store.attempts[2].Outcome)
	assert.Equal(t, []int{1, 2, 3}, client.attemptsAtCall)
}

func TestPublishExhaustionSurfacesToReview(t *testing.T) {
	c := approvedContent()
	store := newPublishFakeStore(c)
	client := &fakeClient{errs: []error{retry.Transient(fmt.Errorf("503"))}}
	p := newTestPublisher(store, client, 3)

	_, err := p.Publish(context.Background(), "c1")
	require.Error(t, err)
	assert.Equal(t, model.ContentStatusPendingReview, c.Status)
	assert.Contains(t, c.ReviewNote, "publish failed after 3 attempts")
	assert.Equal(t, 3, client.calls)
	assert.Len(t, store.attempts, 3)
}

func TestPublishCeilingSpansRuns(t *testing.T) {
	c := approvedContent()
	store := newPublishFakeStore(c)
	// Two attempts already on record from an earlier run.
	store.attempts = []*model.PublishAttempt{
		{Id: "a1", ContentID: "c1", AttemptNumber: 1, Outcome: OutcomeFailed},
		{Id: "a2", ContentID: "c1", AttemptNumber: 2, Outcome: OutcomeFailed},
	}
	client := &fakeClient{errs: []error{retry.Transient(fmt.Errorf("503"))}}
	p := newTestPublisher(store, client, 3)

	_, err := p.Publish(context.Background(), "c1")
	require.Error(t, err)
	// Only one more attempt fits under the ceiling.
	assert.Equal(t, 1, client.calls)
	assert.Len(t, store.attempts, 3)
	assert.Equal(t, 3, store.attempts[2].AttemptNumber)
	assert.Equal(t, model.ContentStatusPendingReview, c.Status)
}

func TestPublishCeilingAlreadyReached(t *testing.T) {
	c := approvedContent()
	store := newPublishFakeStore(c)
	store.attempts = []*model.PublishAttempt{
		{Id: "a1", ContentID: "c1", AttemptNumber: 1, Outcome: OutcomeFailed},
		{Id: "a2", ContentID: "c1", AttemptNumber: 2, Outcome: OutcomeFailed},
		{Id: "a3", ContentID: "c1", AttemptNumber: 3, Outcome: OutcomeFailed},
	}
	client := &fakeClient{}
	p := newTestPublisher(store, client, 3)

	_, err := p.Publish(context.Background(), "c1")
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 0, client.calls)
	assert.Equal(t, model.ContentStatusPendingReview, c.Status)
}

func TestPublishDefinitiveRefusalRejects(t *testing.T) {
	c := approvedContent()
	store := newPublishFakeStore(c)
	client := &fakeClient{errs: []error{ErrContentRefused}}
	p := newTestPublisher(store, client, 4)

	_, err := p.Publish(context.Background(), "c1")
	assert.ErrorIs(t, err, ErrContentRefused)
	// A refusal is not retried.
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, model.ContentStatusRejected, c.Status)
	require.Len(t, store.attempts, 1)
	assert.Equal(t, OutcomeRefused, store.attempts[0].Outcome)
}
