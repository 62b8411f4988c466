package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/vibecheckhq/vibecheck/app_config"
	"github.com/vibecheckhq/vibecheck/model"
	"github.com/vibecheckhq/vibecheck/sentiment"
	Logger "github.com/vibecheckhq/vibecheck/utils/log"
	"gorm.io/datatypes"
)

// ErrIngestIncomplete is returned when aggregation is requested for a post
// whose comment ingestion has not finished. Aggregating a partial comment set
// would bake a truncated distribution into the analysis.
var ErrIngestIncomplete = errors.New("comment ingestion not complete for post")

// Number of exemplar comments kept per polarity.
const topCommentCount = 3

// ScoredComment is one comment together with its live local-tier score, the
// input unit of aggregation.
type ScoredComment struct {
	CommentId        string
	AnonymizedAuthor string
	Text             string
	LikeCount        int64
	Score            sentiment.CommentScore
}

// Aggregator folds scored comments into a PostAnalysis and enriches it with
// the one batch-tier summary call. The aggregation itself is a pure function
// of its inputs; only the enrichment talks to the network, and its failure
// degrades the analysis instead of aborting it.
type Aggregator struct {
	summarizer sentiment.Summarizer
	sampleCap  int
	now        func() time.Time
}

func NewAggregator(summarizer sentiment.Summarizer, cfg *app_config.PipelineAppConfig) *Aggregator {
	return &Aggregator{
		summarizer: summarizer,
		sampleCap:  cfg.BATCH_SAMPLE_CAP,
		now:        time.Now,
	}
}

// Aggregate builds the PostAnalysis for a post whose ingestion is complete.
// The sentiment percentages always sum to 100 within rounding; the summary
// fields stay empty with SummaryAvailable false when the batch tier fails.
func (a *Aggregator) Aggregate(ctx context.Context, post *model.Post, comments []ScoredComment) (*model.PostAnalysis, error) {
	if post.IngestState != model.IngestStateComplete {
		return nil, ErrIngestIncomplete
	}

	analysis := &model.PostAnalysis{
		Id:            uuid.New().String(),
		PostID:        post.Id,
		TotalComments: len(comments),
		AnalyzedAt:    a.now(),
	}

	sum := 0.0
	toxSum := 0.0
	for _, c := range comments {
		sum += c.Score.SentimentScore
		toxSum += c.Score.ToxicityScore
		switch c.Score.Sentiment {
		case sentiment.SentimentPositive:
			analysis.PositiveCount++
		case sentiment.SentimentNegative:
			analysis.NegativeCount++
		default:
			analysis.NeutralCount++
		}
	}

	if len(comments) > 0 {
		total := float64(len(comments))
		analysis.PositivePct = round1(float64(analysis.PositiveCount) / total * 100)
		analysis.NegativePct = round1(float64(analysis.NegativeCount) / total * 100)
		analysis.NeutralPct = round1(float64(analysis.NeutralCount) / total * 100)
		analysis.AverageSentiment = math.Round(sum/total*1000) / 1000

		analysis.ControversyScore = controversyScore(
			analysis.PositivePct, analysis.NegativePct, toxSum/total)
		analysis.ControversyLevel = controversyLevel(analysis.ControversyScore)
	} else {
		analysis.ControversyLevel = "chill"
	}

	analysis.TopPositiveIds = mustJson(topPositive(comments))
	analysis.TopNegativeIds = mustJson(topNegative(comments))

	a.enrich(ctx, post, comments, analysis)
	return analysis, nil
}

// enrich runs the single batch-tier call and copies the summary onto the
// analysis. Any failure leaves the local-tier aggregates untouched.
func (a *Aggregator) enrich(ctx context.Context, post *model.Post, comments []ScoredComment, analysis *model.PostAnalysis) {
	if a.summarizer == nil || len(comments) == 0 {
		return
	}

	sample := make([]sentiment.SampleComment, 0, len(comments))
	for _, c := range comments {
		sample = append(sample, sentiment.SampleComment{
			Author:         c.AnonymizedAuthor,
			Text:           c.Text,
			Sentiment:      c.Score.Sentiment,
			SentimentScore: c.Score.SentimentScore,
			LikeCount:      c.LikeCount,
		})
	}

	summary, err := a.summarizer.Summarize(ctx, post, sentiment.SelectSample(sample, a.sampleCap))
	if err != nil {
		Logger.Log.Warnf("post %s analyzed without summary: %v", post.Id, err)
		return
	}

	analysis.Headline = summary.Headline
	analysis.VibeSummary = summary.VibeSummary
	analysis.SpicyTake = summary.SpicyTake
	analysis.Themes = mustJson(summary.Themes)
	analysis.Hashtags = mustJson(summary.Hashtags)
	if summary.ControversyLevel != "" {
		analysis.ControversyLevel = summary.ControversyLevel
	}
	analysis.SummaryAvailable = true
}

// topPositive picks the strongest clean positive comments: highest sentiment
// score, toxicity below 0.3, likes as tie breaker.
func topPositive(comments []ScoredComment) []string {
	candidates := []ScoredComment{}
	for _, c := range comments {
		if c.Score.Sentiment == sentiment.SentimentPositive && c.Score.ToxicityScore < 0.3 {
			candidates = append(candidates, c)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score.SentimentScore != candidates[j].Score.SentimentScore {
			return candidates[i].Score.SentimentScore > candidates[j].Score.SentimentScore
		}
		return candidates[i].LikeCount > candidates[j].LikeCount
	})
	return commentIds(candidates, topCommentCount)
}

// topNegative picks the sharpest negative comments: lowest sentiment score,
// toxicity as tie breaker.
func topNegative(comments []ScoredComment) []string {
	candidates := []ScoredComment{}
	for _, c := range comments {
		if c.Score.Sentiment == sentiment.SentimentNegative {
			candidates = append(candidates, c)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score.SentimentScore != candidates[j].Score.SentimentScore {
			return candidates[i].Score.SentimentScore < candidates[j].Score.SentimentScore
		}
		return candidates[i].Score.ToxicityScore > candidates[j].Score.ToxicityScore
	})
	return commentIds(candidates, topCommentCount)
}

func commentIds(comments []ScoredComment, n int) []string {
	ids := []string{}
	for i, c := range comments {
		if i >= n {
			break
		}
		ids = append(ids, c.CommentId)
	}
	return ids
}

// controversyScore measures how divisive a comment section is on a 0-100
// scale: an even positive/negative split scores highest, lifted further by
// average toxicity. The coefficients are tuning parameters.
func controversyScore(positivePct, negativePct, avgToxicity float64) float64 {
	split := 2 * math.Min(positivePct, negativePct)
	score := split + avgToxicity*30
	if score > 100 {
		score = 100
	}
	return round1(score)
}

func controversyLevel(score float64) string {
	switch {
	case score >= 60:
		return "wahala"
	case score >= 30:
		return "mid"
	default:
		return "chill"
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func mustJson(v interface{}) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(b)
}
