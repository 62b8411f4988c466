package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	perrors "github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
	"github.com/vibecheckhq/vibecheck/app_config"
	"github.com/vibecheckhq/vibecheck/model"
	"github.com/vibecheckhq/vibecheck/retry"
	Logger "github.com/vibecheckhq/vibecheck/utils/log"
)

// ErrSummaryUnavailable means the batch tier could not produce a summary
// (service error or malformed response). The analysis pipeline proceeds with
// local-tier aggregates only; this error must never abort a PostAnalysis.
var ErrSummaryUnavailable = fmt.Errorf("summary unavailable")

// PostSummary is the strict JSON shape expected from the reasoning service.
type PostSummary struct {
	Headline         string   `json:"headline"`
	VibeSummary      string   `json:"vibe_summary"`
	SpicyTake        string   `json:"spicy_take"`
	ControversyLevel string   `json:"controversy_level"`
	Themes           []string `json:"themes"`
	Hashtags         []string `json:"recommended_hashtags"`
}

// SampleComment is one comment handed to the batch tier, already scored by
// the local tier.
type SampleComment struct {
	Author         string
	Text           string
	Sentiment      string
	SentimentScore float64
	LikeCount      int64
}

// Summarizer produces the qualitative post summary. Exactly one external call
// per analyzed post, over a bounded sample.
type Summarizer interface {
	Summarize(ctx context.Context, post *model.Post, sample []SampleComment) (*PostSummary, error)
}

// OpenAISummarizer talks to the reasoning service through the OpenAI chat
// completion API in JSON mode.
type OpenAISummarizer struct {
	client *openai.Client
	model  string
	policy retry.Policy
}

func NewOpenAISummarizer(cfg *app_config.PipelineAppConfig) *OpenAISummarizer {
	return &OpenAISummarizer{
		client: openai.NewClient(os.Getenv("OPENAI_API_KEY")),
		model:  cfg.BATCH_MODEL,
		policy: retry.NewPolicy(cfg.SUMMARY_RETRY),
	}
}

// Summarize issues the one summary call for a post. Transport failures are
// retried under the summary policy; a malformed response is never retried
// blindly against cost and surfaces as ErrSummaryUnavailable directly.
func (s *OpenAISummarizer) Summarize(ctx context.Context, post *model.Post, sample []SampleComment) (*PostSummary, error) {
	prompt := buildSummaryPrompt(post, sample)

	var raw string
	err := s.policy.Do(ctx, func() error {
		resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:     s.model,
			MaxTokens: 1500,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		if err != nil {
			// The service client does not distinguish transient transport
			// errors for us; treat every call failure as retriable within the
			// small attempt budget.
			return retry.Transient(err)
		}
		if len(resp.Choices) == 0 {
			return perrors.New("empty completion response")
		}
		raw = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		Logger.Log.Errorf("batch summary call failed for post %s: %v", post.Id, err)
		return nil, ErrSummaryUnavailable
	}

	summary, err := ParsePostSummary(raw)
	if err != nil {
		Logger.Log.Errorf("batch summary response malformed for post %s: %v", post.Id, err)
		return nil, ErrSummaryUnavailable
	}
	return summary, nil
}

// ParsePostSummary parses the service response, tolerating markdown fences
// and surrounding prose but requiring a well-formed JSON object with a
// headline inside.
func ParsePostSummary(raw string) (*PostSummary, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx != -1 {
			text = text[idx+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, perrors.New("no JSON object in response")
	}

	var summary PostSummary
	if err := json.Unmarshal([]byte(text[start:end+1]), &summary); err != nil {
		return nil, perrors.Wrap(err, "unmarshal summary")
	}
	if summary.Headline == "" {
		return nil, perrors.New("summary missing headline")
	}
	return &summary, nil
}

func buildSummaryPrompt(post *model.Post, sample []SampleComment) string {
	var b strings.Builder
	b.WriteString("You are a witty Nigerian social media analyst writing for a Gen Z audience.\n\n")
	fmt.Fprintf(&b, "POST CAPTION: %s\n\n", truncate(post.Caption, 300))
	b.WriteString("SAMPLE COMMENTS (already machine-scored):\n")
	for i, c := range sample {
		fmt.Fprintf(&b, "[%d] @%s (%s %.2f, %d likes): %s\n",
			i+1, c.Author, c.Sentiment, c.SentimentScore, c.LikeCount, truncate(c.Text, 150))
	}
	b.WriteString(`
Respond with a single JSON object with exactly these fields:
"headline": catchy headline, max 10 words, Nigerian slang welcome
"vibe_summary": 2-3 sentence summary of the overall vibe
"spicy_take": one witty observation
"controversy_level": "chill", "mid" or "wahala"
"themes": top 5 themes in the comments
"recommended_hashtags": 5 hashtags without the # sign
Return ONLY valid JSON.`)
	return b.String()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// SelectSample picks the bounded batch-tier sample: a 60/20/20 stratified mix
// of positive, negative and neutral comments, each bucket ranked by
// notability (highest |sentiment score|, then like count). Selection is
// deterministic so re-analysis of the same data samples the same comments.
func SelectSample(comments []SampleComment, cap int) []SampleComment {
	if cap <= 0 || len(comments) <= cap {
		return comments
	}

	buckets := map[string][]int{}
	for i, c := range comments {
		buckets[c.Sentiment] = append(buckets[c.Sentiment], i)
	}
	for _, bucket := range buckets {
		sortIndicesByNotability(comments, bucket)
	}

	quotas := []struct {
		sentiment string
		share     float64
	}{
		{SentimentPositive, 0.6},
		{SentimentNegative, 0.2},
		{SentimentNeutral, 0.2},
	}

	taken := map[int]bool{}
	picked := []int{}
	for _, q := range quotas {
		n := int(float64(cap) * q.share)
		for _, idx := range buckets[q.sentiment] {
			if n <= 0 {
				break
			}
			picked = append(picked, idx)
			taken[idx] = true
			n--
		}
	}

	// Backfill from the global notability order when a bucket came up short.
	if len(picked) < cap {
		all := make([]int, len(comments))
		for i := range all {
			all[i] = i
		}
		sortIndicesByNotability(comments, all)
		for _, idx := range all {
			if len(picked) >= cap {
				break
			}
			if !taken[idx] {
				picked = append(picked, idx)
				taken[idx] = true
			}
		}
	}

	if len(picked) > cap {
		picked = picked[:cap]
	}
	sample := make([]SampleComment, 0, len(picked))
	for _, idx := range picked {
		sample = append(sample, comments[idx])
	}
	return sample
}

func sortIndicesByNotability(cs []SampleComment, idx []int) {
	sort.SliceStable(idx, func(i, j int) bool {
		a, b := cs[idx[i]], cs[idx[j]]
		aa, ab := absFloat(a.SentimentScore), absFloat(b.SentimentScore)
		if aa != ab {
			return aa > ab
		}
		return a.LikeCount > b.LikeCount
	})
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
