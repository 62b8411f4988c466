// Package analyzer derives the post-level signals: the viral score over
// engagement counters and the PostAnalysis aggregation over scored comments.
package analyzer

import (
	"math"
	"time"

	"github.com/vibecheckhq/vibecheck/app_config"
	"github.com/vibecheckhq/vibecheck/model"
)

const (
	TierNormal    = "normal"
	TierPopular   = "popular"
	TierTrending  = "trending"
	TierViral     = "viral"
	TierMegaViral = "mega_viral"
)

// Scorer computes the 0-100 viral score. The scale coefficients are product
// tuning parameters from config; the score is monotone non-decreasing in
// like and comment counts regardless of their values.
type Scorer struct {
	likesScale    float64
	commentsScale float64
	velocityScale float64

	minLikes    int64
	minComments int64
	maxAgeDays  int

	now func() time.Time
}

func NewScorer(cfg *app_config.PipelineAppConfig) *Scorer {
	return &Scorer{
		likesScale:    cfg.VIRAL_LIKES_SCALE,
		commentsScale: cfg.VIRAL_COMMENTS_SCALE,
		velocityScale: cfg.VIRAL_VELOCITY_SCALE,
		minLikes:      cfg.MIN_POST_LIKES,
		minComments:   cfg.MIN_POST_COMMENTS,
		maxAgeDays:    cfg.MAX_POST_AGE_DAYS,
		now:           time.Now,
	}
}

// Score blends three saturating components: raw likes (up to 40 points), raw
// comments (up to 30) and like velocity since publication (up to 30).
func (s *Scorer) Score(post *model.Post) float64 {
	likes := saturate(float64(post.LikeCount)/s.likesScale) * 40
	comments := saturate(float64(post.CommentCount)/s.commentsScale) * 30

	velocity := 0.0
	if post.PostedAt != nil {
		hours := s.now().Sub(*post.PostedAt).Hours()
		if hours >= 1 {
			velocity = saturate(float64(post.LikeCount)/hours/s.velocityScale) * 30
		} else if hours >= 0 {
			velocity = saturate(float64(post.LikeCount)/s.velocityScale) * 30
		}
	}

	return math.Round((likes+comments+velocity)*10) / 10
}

// Tier maps a viral score to its editorial tier.
func Tier(score float64) string {
	switch {
	case score >= 90:
		return TierMegaViral
	case score >= 75:
		return TierViral
	case score >= 60:
		return TierTrending
	case score >= 40:
		return TierPopular
	default:
		return TierNormal
	}
}

// Qualifies reports whether a post clears the engagement and freshness floor
// for the pipeline. Stale or low-engagement posts are not worth an analysis
// run no matter their score.
func (s *Scorer) Qualifies(post *model.Post) bool {
	if post.LikeCount < s.minLikes || post.CommentCount < s.minComments {
		return false
	}
	if post.PostedAt != nil {
		age := s.now().Sub(*post.PostedAt)
		if age > time.Duration(s.maxAgeDays)*24*time.Hour {
			return false
		}
	}
	return true
}

// Apply stamps the derived virality fields onto the post.
func (s *Scorer) Apply(post *model.Post) {
	post.ViralScore = s.Score(post)
	post.ViralTier = Tier(post.ViralScore)
	post.IsViral = s.Qualifies(post) && post.ViralScore >= 60
}

func saturate(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
