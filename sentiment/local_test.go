package sentiment

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/vibecheckhq/vibecheck/app_config"
)

func newTestScorer() *LocalScorer {
	cfg := app_config.DefaultPipelineAppConfig()
	return NewLocalScorer(&cfg)
}

func TestScoreClassification(t *testing.T) {
	scorer := newTestScorer()

	tests := []struct {
		name      string
		text      string
		sentiment string
	}{
		{"pidgin praise with emoji", "omo this is fire 🔥🔥💯", SentimentPositive},
		{"plain praise", "greatest of all time, congrats my king 👑", SentimentPositive},
		{"pidgin insults", "werey mumu rubbish", SentimentNegative},
		{"plain negativity", "this is trash, worst thing I have seen 👎", SentimentNegative},
		{"neutral text", "this is a regular update", SentimentNeutral},
		{"empty text", "", SentimentNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scorer.Score(tt.text)
			assert.Equal(t, tt.sentiment, got.Sentiment, "text: %q score: %v", tt.text, got.SentimentScore)
		})
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	scorer := newTestScorer()
	text := "omo see as e sweet 🔥 but some people still dey talk rubbish 🤡"

	first := scorer.Score(text)
	for i := 0; i < 50; i++ {
		if diff := cmp.Diff(first, scorer.Score(text)); diff != "" {
			t.Fatalf("score changed between runs, diff: %s", diff)
		}
	}
}

func TestScoreBounds(t *testing.T) {
	scorer := newTestScorer()

	texts := []string{
		"🔥🔥🔥🔥🔥🔥🔥🔥🔥🔥💯💯💯💯💯 goat legend king winner best greatest",
		"werey werey werey mumu mumu trash trash hate hate 🤮🤮🤮🖕🖕🖕",
		"ok",
		"",
		"na wa o, e no easy at all but we move",
	}

	for _, text := range texts {
		got := scorer.Score(text)
		assert.GreaterOrEqual(t, got.SentimentScore, -1.0, "text: %q", text)
		assert.LessOrEqual(t, got.SentimentScore, 1.0, "text: %q", text)
		assert.GreaterOrEqual(t, got.ToxicityScore, 0.0, "text: %q", text)
		assert.LessOrEqual(t, got.ToxicityScore, 1.0, "text: %q", text)
	}
}

func TestNegationFlipsHeuristic(t *testing.T) {
	scorer := newTestScorer()

	plain := scorer.Score("this is good")
	negated := scorer.Score("this is not good")
	assert.Greater(t, plain.SentimentScore, negated.SentimentScore)
}

func TestInsultsDriveToxicity(t *testing.T) {
	scorer := newTestScorer()

	toxic := scorer.Score("you are a useless idiot, total disgrace")
	mild := scorer.Score("I do not agree with this take")
	assert.Greater(t, toxic.ToxicityScore, mild.ToxicityScore)
	assert.GreaterOrEqual(t, toxic.ToxicityScore, 0.5)
	assert.Contains(t, toxic.Tags, "toxic")
}

func TestThresholdsComeFromConfig(t *testing.T) {
	cfg := app_config.DefaultPipelineAppConfig()
	// With an extreme threshold nothing classifies as positive.
	cfg.POSITIVE_THRESHOLD = 0.99
	scorer := NewLocalScorer(&cfg)

	got := scorer.Score("omo this is fire 🔥🔥💯")
	assert.Equal(t, SentimentNeutral, got.Sentiment)
}
