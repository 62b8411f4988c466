// Package schedule picks publish slots for approved content. Suggestions come
// from observed engagement of past publishes, bucketed by weekday and hour in
// the audience timezone and weighted toward recent observations; hours with no
// history fall back to a default table.
package schedule

import (
	"math"
	"sort"
	"time"

	perrors "github.com/pkg/errors"
	"github.com/vibecheckhq/vibecheck/app_config"
	"github.com/vibecheckhq/vibecheck/model"
	"gonum.org/v1/gonum/stat"
)

// TimeSlot is one suggested publish slot with the model's confidence in it.
type TimeSlot struct {
	Time       time.Time
	Confidence float64
}

// Hours that historically perform for the audience, used when a bucket has no
// observations yet.
var defaultHours = map[int]bool{12: true, 15: true, 18: true, 20: true}

const (
	defaultHourScore      = 0.5
	defaultHourConfidence = 0.25
	coldHourScore         = 0.1
	coldHourConfidence    = 0.05
	// Days of future slots considered per suggestion run.
	horizonDays = 7
)

// Suggester ranks future publish slots.
type Suggester struct {
	loc         *time.Location
	decayPerDay float64

	now func() time.Time
}

func NewSuggester(cfg *app_config.PipelineAppConfig) (*Suggester, error) {
	loc, err := time.LoadLocation(cfg.AUDIENCE_TIMEZONE)
	if err != nil {
		return nil, perrors.Wrapf(err, "load audience timezone %s", cfg.AUDIENCE_TIMEZONE)
	}
	return &Suggester{
		loc:         loc,
		decayPerDay: cfg.ENGAGEMENT_DECAY_PER_DAY,
		now:         time.Now,
	}, nil
}

type bucketKey struct {
	dow  int
	hour int
}

type bucket struct {
	scores  []float64
	weights []float64
}

// Suggest returns the n best future slots within the horizon, ranked by
// expected engagement. Confidence grows with the weighted amount of evidence
// behind a bucket and is low for default-table and cold slots.
func (s *Suggester) Suggest(n int, observations []model.ContentPerformance) []TimeSlot {
	if n <= 0 {
		return nil
	}

	now := s.now().In(s.loc)
	buckets := s.fold(observations, now)

	start := now.Truncate(time.Hour).Add(time.Hour)
	candidates := make([]TimeSlot, 0, horizonDays*24)
	scores := make(map[time.Time]float64, horizonDays*24)
	for i := 0; i < horizonDays*24; i++ {
		slot := start.Add(time.Duration(i) * time.Hour)
		score, confidence := s.rate(buckets, slot)
		candidates = append(candidates, TimeSlot{Time: slot, Confidence: round2(confidence)})
		scores[slot] = score
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := scores[candidates[i].Time], scores[candidates[j].Time]
		if si != sj {
			return si > sj
		}
		return candidates[i].Time.Before(candidates[j].Time)
	})

	if n > len(candidates) {
		n = len(candidates)
	}
	return candidates[:n]
}

// fold groups observations into (weekday, hour) buckets with exponential
// recency weights, so last week's numbers count more than last month's.
func (s *Suggester) fold(observations []model.ContentPerformance, now time.Time) map[bucketKey]*bucket {
	buckets := map[bucketKey]*bucket{}
	for _, o := range observations {
		ageDays := now.Sub(o.CreatedAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		weight := math.Pow(s.decayPerDay, ageDays)

		key := bucketKey{dow: o.PostDayOfWeek, hour: o.PostHour}
		b := buckets[key]
		if b == nil {
			b = &bucket{}
			buckets[key] = b
		}
		b.scores = append(b.scores, o.EngagementScore)
		b.weights = append(b.weights, weight)
	}
	return buckets
}

func (s *Suggester) rate(buckets map[bucketKey]*bucket, slot time.Time) (score, confidence float64) {
	key := bucketKey{dow: int(slot.Weekday()), hour: slot.Hour()}
	if b, ok := buckets[key]; ok {
		evidence := 0.0
		for _, w := range b.weights {
			evidence += w
		}
		return stat.Mean(b.scores, b.weights), evidence / (evidence + 2)
	}
	if defaultHours[slot.Hour()] {
		return defaultHourScore, defaultHourConfidence
	}
	return coldHourScore, coldHourConfidence
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
