package modules

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vibecheckhq/vibecheck/analyzer"
	"github.com/vibecheckhq/vibecheck/app_config"
	"github.com/vibecheckhq/vibecheck/content"
	"github.com/vibecheckhq/vibecheck/credpool"
	"github.com/vibecheckhq/vibecheck/engine"
	"github.com/vibecheckhq/vibecheck/ingest"
	"github.com/vibecheckhq/vibecheck/model"
	"github.com/vibecheckhq/vibecheck/sentiment"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// failingSummarizer forces the batch tier to degrade; the local aggregates
// must still be produced and persisted.
type failingSummarizer struct{}

func (s *failingSummarizer) Summarize(ctx context.Context, post *model.Post, sample []sentiment.SampleComment) (*sentiment.PostSummary, error) {
	return nil, sentiment.ErrSummaryUnavailable
}

// fakeScrapeAPI answers both the recent-post listing and the comment pages
// with canned data.
type fakeScrapeAPI struct {
	posts []ingest.ScrapedPost
	pages map[string]*ingest.CommentPage
}

func (a *fakeScrapeAPI) FetchRecentPosts(identity model.Identity, externalHandle string) ([]ingest.ScrapedPost, error) {
	return a.posts, nil
}

func (a *fakeScrapeAPI) FetchCommentPage(identity model.Identity, externalPostId string, cursor string) (*ingest.CommentPage, error) {
	page, ok := a.pages[cursor]
	if !ok {
		return &ingest.CommentPage{}, nil
	}
	return page, nil
}

func jobOf(t *testing.T, kind model.JobKind, payload interface{}) *model.Job {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return &model.Job{Id: uuid.New().String(), Kind: kind, State: model.JobStateRunning, Payload: datatypes.JSON(body)}
}

func newScrapePipeline(t *testing.T, db *gorm.DB, api *fakeScrapeAPI) *Pipeline {
	t.Helper()
	cfg := app_config.DefaultPipelineAppConfig()
	cfg.MIN_REQUEST_DELAY_MS = 0
	cfg.MAX_REQUEST_DELAY_MS = 0

	pool, err := credpool.NewPool(nil, &cfg)
	require.NoError(t, err)
	pool.AddIdentity(&model.Identity{Id: "id-1", Handle: "scout_one", State: model.IdentityStateActive})

	store := ingest.NewGormStore(db)
	return &Pipeline{
		DB:         db,
		Discoverer: ingest.NewDiscoverer(store, api, pool, &cfg),
		Ingestor:   ingest.NewWorker(store, api, pool, ingest.NewRegistry(), &cfg),
		Viral:      analyzer.NewScorer(&cfg),
	}
}

func newAnalyzePipeline(t *testing.T, db *gorm.DB) *Pipeline {
	t.Helper()
	cfg := app_config.DefaultPipelineAppConfig()
	return &Pipeline{
		DB:         db,
		Scorer:     sentiment.NewLocalScorer(&cfg),
		Viral:      analyzer.NewScorer(&cfg),
		Aggregator: analyzer.NewAggregator(&failingSummarizer{}, &cfg),
		Machine:    content.NewStateMachine(db, &cfg),
	}
}

func TestScrapeJobDiscoversPostsAndStampsTarget(t *testing.T) {
	_, db := newTestQueue(t)
	target := &model.Target{Id: uuid.New().String(), ExternalHandle: "burnaboygram", Active: true}
	require.NoError(t, db.Create(target).Error)

	api := &fakeScrapeAPI{
		posts: []ingest.ScrapedPost{
			{ExternalId: "ext1", Caption: "new single out", LikeCount: 1200, CommentCount: 40},
			{ExternalId: "ext2", Caption: "tour dates", LikeCount: 800, CommentCount: 25},
		},
		pages: map[string]*ingest.CommentPage{
			"": {Comments: []ingest.ScrapedComment{
				{ExternalId: "m1", Author: "a***z", Text: "omo"},
				{ExternalId: "m2", Author: "b***y", Text: "fire"},
			}},
		},
	}
	p := newScrapePipeline(t, db, api)

	job := jobOf(t, model.JobKindScrape, engine.ScrapeJobPayload{TargetId: target.Id})
	require.NoError(t, p.HandleScrapeJob(context.Background(), job))

	// Discovery stored both posts and the ingestion loop drained them.
	var posts []model.Post
	require.NoError(t, db.Where("target_id = ?", target.Id).Order("external_post_id").Find(&posts).Error)
	require.Len(t, posts, 2)
	for _, post := range posts {
		assert.Equal(t, model.IngestStateComplete, post.IngestState)
		assert.NotEmpty(t, post.ViralTier)
	}

	var commentCount int64
	require.NoError(t, db.Model(&model.Comment{}).Count(&commentCount).Error)
	assert.Equal(t, int64(4), commentCount)

	var stamped model.Target
	require.NoError(t, db.First(&stamped, "id = ?", target.Id).Error)
	assert.NotNil(t, stamped.LastScrapedAt)
}

func seedAnalyzedPost(t *testing.T, db *gorm.DB) *model.Post {
	t.Helper()
	target := &model.Target{Id: uuid.New().String(), ExternalHandle: "wizkidayo", Active: true}
	require.NoError(t, db.Create(target).Error)

	post := &model.Post{
		Id:             uuid.New().String(),
		TargetID:       target.Id,
		ExternalPostId: "ext1",
		Caption:        "new album",
		LikeCount:      600000,
		CommentCount:   60000,
		IsViral:        true,
		ViralScore:     85,
		IngestState:    model.IngestStateComplete,
	}
	require.NoError(t, db.Create(post).Error)

	for _, text := range []string{"omo this is fire 🔥", "werey rubbish", "regular update"} {
		require.NoError(t, db.Create(&model.Comment{
			Id:                uuid.New().String(),
			PostID:            post.Id,
			ExternalCommentId: uuid.New().String(),
			AnonymizedAuthor:  "a***z",
			Text:              text,
		}).Error)
	}
	return post
}

func TestAnalyzeJobReusesAnalysisRowAcrossRuns(t *testing.T) {
	_, db := newTestQueue(t)
	post := seedAnalyzedPost(t, db)
	p := newAnalyzePipeline(t, db)

	require.NoError(t, p.HandleAnalyzeJob(context.Background(),
		jobOf(t, model.JobKindAnalyze, engine.AnalyzeJobPayload{PostId: post.Id})))

	var first model.PostAnalysis
	require.NoError(t, db.First(&first, "post_id = ?", post.Id).Error)
	assert.Equal(t, 3, first.TotalComments)

	// Re-analysis must reuse the stored row, not fork a second identity for
	// the same post.
	require.NoError(t, p.HandleAnalyzeJob(context.Background(),
		jobOf(t, model.JobKindAnalyze, engine.AnalyzeJobPayload{PostId: post.Id})))

	var analysisCount int64
	require.NoError(t, db.Model(&model.PostAnalysis{}).Where("post_id = ?", post.Id).Count(&analysisCount).Error)
	assert.Equal(t, int64(1), analysisCount)

	var second model.PostAnalysis
	require.NoError(t, db.First(&second, "post_id = ?", post.Id).Error)
	assert.Equal(t, first.Id, second.Id)

	// Exactly one content draft, linked to the persisted analysis row.
	var contents []model.GeneratedContent
	require.NoError(t, db.Find(&contents).Error)
	require.Len(t, contents, 1)
	assert.Equal(t, first.Id, contents[0].PostAnalysisID)

	// The first run's comment scores are superseded, not duplicated.
	var live int64
	require.NoError(t, db.Model(&model.CommentAnalysis{}).Where("superseded_at IS NULL").Count(&live).Error)
	assert.Equal(t, int64(3), live)
}
