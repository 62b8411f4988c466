// Package sentiment implements the two-tier scoring engine. The local tier
// in this file is pure and deterministic: no I/O, no state, the same text
// always yields the same score. It runs on every comment. The batch tier
// (batch.go) is the cost-bounded enrichment that runs once per analyzed post.
package sentiment

import (
	"math"
	"strings"
	"unicode"

	"github.com/vibecheckhq/vibecheck/app_config"
)

const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// CommentScore is the local-tier result for one comment.
type CommentScore struct {
	Sentiment      string
	SentimentScore float64
	ToxicityScore  float64
	Tags           []string
}

// LocalScorer combines three deterministic signals by weighted sum: regional
// lexicon matches, emoji polarity, and a lightweight general heuristic over
// the residual text. Weights and classification thresholds come from config.
type LocalScorer struct {
	lexiconWeight   float64
	emojiWeight     float64
	heuristicWeight float64

	positiveThreshold float64
	negativeThreshold float64
}

func NewLocalScorer(cfg *app_config.PipelineAppConfig) *LocalScorer {
	return &LocalScorer{
		lexiconWeight:     cfg.LEXICON_WEIGHT,
		emojiWeight:       cfg.EMOJI_WEIGHT,
		heuristicWeight:   cfg.HEURISTIC_WEIGHT,
		positiveThreshold: cfg.POSITIVE_THRESHOLD,
		negativeThreshold: cfg.NEGATIVE_THRESHOLD,
	}
}

// Score scores a single comment text. Pure function: no network, no shared
// state, bounded cost in the text length.
func (s *LocalScorer) Score(text string) CommentScore {
	lower := strings.ToLower(text)

	lexPos, lexNeg := countLexiconMatches(lower)
	emojiPos, emojiNeg := countEmoji(text)
	heuristic := generalHeuristic(lower)

	lexSignal := clamp(float64(lexPos-lexNeg)*0.25, -1, 1)
	emojiSignal := clamp(float64(emojiPos-emojiNeg)*0.25, -1, 1)

	combined := clamp(
		s.lexiconWeight*lexSignal+s.emojiWeight*emojiSignal+s.heuristicWeight*heuristic,
		-1, 1)

	insultCount := countInsults(lower)
	toxicity := clamp(float64(lexNeg)*0.1+float64(emojiNeg)*0.1+float64(insultCount)*0.25, 0, 1)

	sentiment := SentimentNeutral
	if combined > s.positiveThreshold {
		sentiment = SentimentPositive
	} else if combined < s.negativeThreshold {
		sentiment = SentimentNegative
	}

	return CommentScore{
		Sentiment:      sentiment,
		SentimentScore: round2(combined),
		ToxicityScore:  round2(toxicity),
		Tags:           deriveTags(sentiment, toxicity, emojiPos),
	}
}

func countLexiconMatches(lower string) (pos, neg int) {
	for _, w := range regionalPositive {
		pos += strings.Count(lower, w)
	}
	for _, w := range regionalNegative {
		neg += strings.Count(lower, w)
	}
	return pos, neg
}

func countEmoji(text string) (pos, neg int) {
	for _, r := range text {
		if positiveEmoji[r] {
			pos++
		}
		if negativeEmoji[r] {
			neg++
		}
	}
	return pos, neg
}

func countInsults(lower string) int {
	n := 0
	for _, w := range insults {
		n += strings.Count(lower, w)
	}
	return n
}

// generalHeuristic walks the tokens, summing polarity from the general map
// and flipping the sign of a polarity word directly preceded by a negation.
func generalHeuristic(lower string) float64 {
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	sum := 0.0
	negated := false
	for _, tok := range tokens {
		if negations[tok] {
			negated = true
			continue
		}
		if polarity, ok := generalPolarity[tok]; ok {
			if negated {
				polarity = -polarity
			}
			sum += polarity
		}
		negated = false
	}
	return clamp(sum*0.2, -1, 1)
}

func deriveTags(sentiment string, toxicity float64, emojiPos int) []string {
	tags := []string{}
	if sentiment == SentimentPositive {
		tags = append(tags, "supportive")
	}
	if sentiment == SentimentNegative {
		tags = append(tags, "critical")
	}
	if toxicity >= 0.5 {
		tags = append(tags, "toxic")
	}
	if emojiPos >= 3 {
		tags = append(tags, "hype")
	}
	return tags
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
