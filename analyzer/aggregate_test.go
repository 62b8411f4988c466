package analyzer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vibecheckhq/vibecheck/app_config"
	"github.com/vibecheckhq/vibecheck/model"
	"github.com/vibecheckhq/vibecheck/sentiment"
)

type fakeSummarizer struct {
	summary *sentiment.PostSummary
	err     error
	calls   int
	sampled int
}

func (f *fakeSummarizer) Summarize(ctx context.Context, post *model.Post, sample []sentiment.SampleComment) (*sentiment.PostSummary, error) {
	f.calls++
	f.sampled = len(sample)
	if f.err != nil {
		return nil, f.err
	}
	return f.summary, nil
}

func newTestAggregator(s sentiment.Summarizer) *Aggregator {
	cfg := app_config.DefaultPipelineAppConfig()
	return NewAggregator(s, &cfg)
}

func scored(id string, sent string, score, toxicity float64, likes int64) ScoredComment {
	return ScoredComment{
		CommentId:        id,
		AnonymizedAuthor: "a***z",
		Text:             "text for " + id,
		LikeCount:        likes,
		Score: sentiment.CommentScore{
			Sentiment:      sent,
			SentimentScore: score,
			ToxicityScore:  toxicity,
		},
	}
}

func completePost() *model.Post {
	return &model.Post{Id: "p1", IngestState: model.IngestStateComplete}
}

func bulkComments(positive, negative, neutral int) []ScoredComment {
	comments := []ScoredComment{}
	add := func(n int, sent string, score float64) {
		for i := 0; i < n; i++ {
			comments = append(comments, scored("", sent, score, 0, 0))
		}
	}
	add(positive, sentiment.SentimentPositive, 0.6)
	add(negative, sentiment.SentimentNegative, -0.6)
	add(neutral, sentiment.SentimentNeutral, 0)
	return comments
}

func TestAggregatePercentages(t *testing.T) {
	a := newTestAggregator(nil)

	analysis, err := a.Aggregate(context.Background(), completePost(), bulkComments(750, 10, 240))
	require.NoError(t, err)

	assert.Equal(t, 1000, analysis.TotalComments)
	assert.Equal(t, 750, analysis.PositiveCount)
	assert.Equal(t, 10, analysis.NegativeCount)
	assert.Equal(t, 240, analysis.NeutralCount)
	assert.InDelta(t, 75.0, analysis.PositivePct, 0.05)
	assert.InDelta(t, 1.0, analysis.NegativePct, 0.05)
	assert.InDelta(t, 24.0, analysis.NeutralPct, 0.05)
	assert.InDelta(t, 100.0, analysis.PositivePct+analysis.NegativePct+analysis.NeutralPct, 0.2)
}

func TestAggregatePercentagesSumUnderRounding(t *testing.T) {
	a := newTestAggregator(nil)

	// 3-way split that cannot divide evenly.
	analysis, err := a.Aggregate(context.Background(), completePost(), bulkComments(1, 1, 1))
	require.NoError(t, err)
	assert.InDelta(t, 100.0, analysis.PositivePct+analysis.NegativePct+analysis.NeutralPct, 0.2)
}

func TestAggregateRequiresCompleteIngestion(t *testing.T) {
	a := newTestAggregator(nil)

	for _, state := range []model.IngestState{
		model.IngestStatePending,
		model.IngestStateInProgress,
		model.IngestStateTerminated,
	} {
		post := &model.Post{Id: "p1", IngestState: state}
		_, err := a.Aggregate(context.Background(), post, bulkComments(1, 0, 0))
		assert.ErrorIs(t, err, ErrIngestIncomplete, "state: %s", state)
	}
}

func TestAggregateTopComments(t *testing.T) {
	a := newTestAggregator(nil)
	comments := []ScoredComment{
		scored("pos-strong", sentiment.SentimentPositive, 0.9, 0.1, 10),
		scored("pos-toxic", sentiment.SentimentPositive, 0.95, 0.6, 500),
		scored("pos-mild", sentiment.SentimentPositive, 0.4, 0.0, 50),
		scored("neg-harsh", sentiment.SentimentNegative, -0.9, 0.8, 5),
		scored("neg-mild", sentiment.SentimentNegative, -0.3, 0.1, 2),
		scored("neutral", sentiment.SentimentNeutral, 0, 0, 1000),
	}

	analysis, err := a.Aggregate(context.Background(), completePost(), comments)
	require.NoError(t, err)

	var topPos, topNeg []string
	require.NoError(t, json.Unmarshal(analysis.TopPositiveIds, &topPos))
	require.NoError(t, json.Unmarshal(analysis.TopNegativeIds, &topNeg))

	// The toxic positive comment is excluded despite the highest score.
	assert.Equal(t, []string{"pos-strong", "pos-mild"}, topPos)
	assert.Equal(t, []string{"neg-harsh", "neg-mild"}, topNeg)
}

func TestAggregateWithSummary(t *testing.T) {
	summarizer := &fakeSummarizer{summary: &sentiment.PostSummary{
		Headline:         "Omo See Gbas Gbos",
		VibeSummary:      "The comment section is split down the middle.",
		SpicyTake:        "The quote replies are doing the heavy lifting.",
		ControversyLevel: "wahala",
		Themes:           []string{"beef", "music"},
		Hashtags:         []string{"Naija"},
	}}
	a := newTestAggregator(summarizer)

	analysis, err := a.Aggregate(context.Background(), completePost(), bulkComments(40, 40, 20))
	require.NoError(t, err)

	assert.True(t, analysis.SummaryAvailable)
	assert.Equal(t, "Omo See Gbas Gbos", analysis.Headline)
	assert.Equal(t, "wahala", analysis.ControversyLevel)
	assert.Equal(t, 1, summarizer.calls)
}

func TestAggregateDegradesWithoutSummary(t *testing.T) {
	summarizer := &fakeSummarizer{err: sentiment.ErrSummaryUnavailable}
	a := newTestAggregator(summarizer)

	analysis, err := a.Aggregate(context.Background(), completePost(), bulkComments(750, 10, 240))
	require.NoError(t, err)

	assert.False(t, analysis.SummaryAvailable)
	assert.Empty(t, analysis.Headline)
	assert.Empty(t, analysis.VibeSummary)
	// Local-tier aggregates are fully populated regardless.
	assert.InDelta(t, 75.0, analysis.PositivePct, 0.05)
	assert.Equal(t, 1000, analysis.TotalComments)
	assert.Equal(t, 1, summarizer.calls)
}

func TestAggregateSampleIsCapped(t *testing.T) {
	summarizer := &fakeSummarizer{summary: &sentiment.PostSummary{Headline: "h"}}
	cfg := app_config.DefaultPipelineAppConfig()
	cfg.BATCH_SAMPLE_CAP = 10
	a := NewAggregator(summarizer, &cfg)

	_, err := a.Aggregate(context.Background(), completePost(), bulkComments(100, 100, 100))
	require.NoError(t, err)
	assert.Equal(t, 10, summarizer.sampled)
}

func TestAggregateControversy(t *testing.T) {
	a := newTestAggregator(nil)

	split, err := a.Aggregate(context.Background(), completePost(), bulkComments(50, 50, 0))
	require.NoError(t, err)
	lopsided, err := a.Aggregate(context.Background(), completePost(), bulkComments(98, 2, 0))
	require.NoError(t, err)

	assert.Greater(t, split.ControversyScore, lopsided.ControversyScore)
	assert.Equal(t, "wahala", split.ControversyLevel)
	assert.Equal(t, "chill", lopsided.ControversyLevel)
}

func TestAggregateEmptyCommentSet(t *testing.T) {
	a := newTestAggregator(&fakeSummarizer{})

	analysis, err := a.Aggregate(context.Background(), completePost(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, analysis.TotalComments)
	assert.Equal(t, 0.0, analysis.PositivePct)
	assert.Equal(t, "chill", analysis.ControversyLevel)
}
