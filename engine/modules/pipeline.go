package modules

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	perrors "github.com/pkg/errors"
	"github.com/vibecheckhq/vibecheck/analyzer"
	"github.com/vibecheckhq/vibecheck/content"
	"github.com/vibecheckhq/vibecheck/engine"
	"github.com/vibecheckhq/vibecheck/ingest"
	"github.com/vibecheckhq/vibecheck/model"
	"github.com/vibecheckhq/vibecheck/publish"
	"github.com/vibecheckhq/vibecheck/sentiment"
	Logger "github.com/vibecheckhq/vibecheck/utils/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Pipeline bundles the domain components the job handlers dispatch into.
type Pipeline struct {
	DB         *gorm.DB
	Discoverer *ingest.Discoverer
	Ingestor   *ingest.Worker
	Scorer     *sentiment.LocalScorer
	Viral      *analyzer.Scorer
	Aggregator *analyzer.Aggregator
	Machine    *content.StateMachine
	Publisher  *publish.Publisher
}

// HandleScrapeJob refreshes the target's recent posts, then ingests the
// comment stream of the post named by the payload, or of every pending post
// of the target when no post is given, and restamps the virality fields
// afterwards. Discovery is skipped for single-post jobs.
func (p *Pipeline) HandleScrapeJob(ctx context.Context, job *model.Job) error {
	var payload engine.ScrapeJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return perrors.Wrap(err, "unmarshal scrape payload")
	}

	postIds := []string{}
	if payload.PostId != "" {
		postIds = append(postIds, payload.PostId)
	} else {
		found, err := p.Discoverer.Discover(ctx, payload.TargetId)
		if err != nil {
			return err
		}
		Logger.Log.Infof("discovery stored %d posts for target %s", found, payload.TargetId)

		var posts []model.Post
		if err := p.DB.Where("target_id = ? AND ingest_state IN ?", payload.TargetId,
			[]model.IngestState{model.IngestStatePending, model.IngestStateInProgress}).
			Find(&posts).Error; err != nil {
			return perrors.Wrap(err, "load pending posts")
		}
		for _, post := range posts {
			postIds = append(postIds, post.Id)
		}
	}

	for _, postId := range postIds {
		res, err := p.Ingestor.Ingest(ctx, postId, payload.MaxComments)
		if err != nil {
			return err
		}
		Logger.Log.Infof("ingested %d new comments for post %s", res.NewComments, postId)

		var post model.Post
		if err := p.DB.First(&post, "id = ?", postId).Error; err != nil {
			return err
		}
		p.Viral.Apply(&post)
		if err := p.DB.Save(&post).Error; err != nil {
			return perrors.Wrap(err, "save viral fields")
		}
	}

	if err := p.DB.Model(&model.Target{}).Where("id = ?", payload.TargetId).
		Update("last_scraped_at", time.Now()).Error; err != nil {
		return perrors.Wrap(err, "stamp target scrape time")
	}
	return nil
}

// HandleAnalyzeJob scores every comment of a post with the local tier,
// aggregates the distribution into the PostAnalysis and drafts content for
// viral posts.
func (p *Pipeline) HandleAnalyzeJob(ctx context.Context, job *model.Job) error {
	var payload engine.AnalyzeJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return perrors.Wrap(err, "unmarshal analyze payload")
	}

	var post model.Post
	if err := p.DB.First(&post, "id = ?", payload.PostId).Error; err != nil {
		return perrors.Wrapf(err, "load post %s", payload.PostId)
	}

	var comments []model.Comment
	if err := p.DB.Where("post_id = ?", post.Id).Order("created_at").Find(&comments).Error; err != nil {
		return perrors.Wrap(err, "load comments")
	}

	scored, err := p.scoreComments(comments)
	if err != nil {
		return err
	}

	analysis, err := p.Aggregator.Aggregate(ctx, &post, scored)
	if err != nil {
		return err
	}
	if err := p.saveAnalysis(analysis); err != nil {
		return err
	}
	Logger.Log.Infof("post %s analyzed: %d comments, %.1f%% positive, controversy %s",
		post.Id, analysis.TotalComments, analysis.PositivePct, analysis.ControversyLevel)

	if post.IsViral {
		return p.draftContent(&post, analysis)
	}
	return nil
}

// scoreComments runs the local tier over every comment and records the
// scores, superseding any live analysis rows from a previous run.
func (p *Pipeline) scoreComments(comments []model.Comment) ([]analyzer.ScoredComment, error) {
	now := time.Now()
	scored := make([]analyzer.ScoredComment, 0, len(comments))
	rows := make([]model.CommentAnalysis, 0, len(comments))
	for _, c := range comments {
		score := p.Scorer.Score(c.Text)
		tags, err := json.Marshal(score.Tags)
		if err != nil {
			return nil, err
		}
		rows = append(rows, model.CommentAnalysis{
			Id:             uuid.New().String(),
			CommentID:      c.Id,
			Sentiment:      score.Sentiment,
			SentimentScore: score.SentimentScore,
			ToxicityScore:  score.ToxicityScore,
			Tags:           tags,
		})
		scored = append(scored, analyzer.ScoredComment{
			CommentId:        c.Id,
			AnonymizedAuthor: c.AnonymizedAuthor,
			Text:             c.Text,
			LikeCount:        c.LikeCount,
			Score:            score,
		})
	}

	if len(rows) == 0 {
		return scored, nil
	}
	commentIds := make([]string, 0, len(comments))
	for _, c := range comments {
		commentIds = append(commentIds, c.Id)
	}
	return scored, p.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.CommentAnalysis{}).
			Where("comment_id IN ? AND superseded_at IS NULL", commentIds).
			Update("superseded_at", now).Error; err != nil {
			return err
		}
		return tx.Create(&rows).Error
	})
}

// saveAnalysis replaces the PostAnalysis wholesale; the aggregation is a pure
// function of its inputs, so there is nothing to merge.
func (p *Pipeline) saveAnalysis(analysis *model.PostAnalysis) error {
	if err := p.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "post_id"}},
		UpdateAll: true,
	}).Create(analysis).Error; err != nil {
		return perrors.Wrap(err, "save analysis")
	}

	// The conflict path keeps the stored row's primary key. Reload it so
	// content drafts reference the persisted row, not the fresh uuid.
	var persisted model.PostAnalysis
	if err := p.DB.Select("id").First(&persisted, "post_id = ?", analysis.PostID).Error; err != nil {
		return perrors.Wrap(err, "reload analysis id")
	}
	analysis.Id = persisted.Id
	return nil
}

// draftContent creates the outbound artifact for a viral post and moves it
// into review, auto-approving past the viral threshold. At most one content
// row is generated per analysis.
func (p *Pipeline) draftContent(post *model.Post, analysis *model.PostAnalysis) error {
	var existing int64
	if err := p.DB.Model(&model.GeneratedContent{}).
		Where("post_analysis_id = ?", analysis.Id).Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}

	title := analysis.Headline
	if title == "" {
		title = "Vibe check: " + post.ExternalPostId
	}
	c := &model.GeneratedContent{
		Id:             uuid.New().String(),
		PostAnalysisID: analysis.Id,
		Title:          title,
		Caption:        analysis.VibeSummary,
		Status:         model.ContentStatusDraft,
	}
	if err := p.DB.Create(c).Error; err != nil {
		return perrors.Wrap(err, "create content draft")
	}
	return p.Machine.SubmitForReview(c, post.ViralScore)
}

// HandlePublishJob hands one approved content to the publisher.
func (p *Pipeline) HandlePublishJob(ctx context.Context, job *model.Job) error {
	var payload engine.PublishJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return perrors.Wrap(err, "unmarshal publish payload")
	}
	_, err := p.Publisher.Publish(ctx, payload.ContentId)
	return err
}
