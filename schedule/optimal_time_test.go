package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vibecheckhq/vibecheck/app_config"
	"github.com/vibecheckhq/vibecheck/model"
)

func newTestSuggester(t *testing.T) *Suggester {
	cfg := app_config.DefaultPipelineAppConfig()
	s, err := NewSuggester(&cfg)
	require.NoError(t, err)
	// Monday noon UTC, 13:00 in Lagos.
	s.now = func() time.Time { return time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC) }
	return s
}

func observed(daysAgo int, dow, hour int, score float64, base time.Time) model.ContentPerformance {
	return model.ContentPerformance{
		CreatedAt:       base.AddDate(0, 0, -daysAgo),
		PostDayOfWeek:   dow,
		PostHour:        hour,
		EngagementScore: score,
	}
}

func TestSuggestReturnsFutureRankedSlots(t *testing.T) {
	s := newTestSuggester(t)
	base := s.now()

	// Tuesday 19:00 performed far better than Tuesday 09:00.
	obs := []model.ContentPerformance{
		observed(7, int(time.Tuesday), 19, 0.9, base),
		observed(7, int(time.Tuesday), 19, 0.8, base),
		observed(7, int(time.Tuesday), 9, 0.1, base),
	}

	slots := s.Suggest(3, obs)
	require.Len(t, slots, 3)

	now := base.In(s.loc)
	for _, slot := range slots {
		assert.True(t, slot.Time.After(now), "slot in the past: %v", slot.Time)
		assert.GreaterOrEqual(t, slot.Confidence, 0.0)
		assert.LessOrEqual(t, slot.Confidence, 1.0)
	}

	best := slots[0].Time
	assert.Equal(t, time.Tuesday, best.Weekday())
	assert.Equal(t, 19, best.Hour())
}

func TestSuggestRecencyWeighting(t *testing.T) {
	s := newTestSuggester(t)
	base := s.now()

	// The same bucket scored high recently and low long ago; the weighted mean
	// must lean toward the recent observation.
	obs := []model.ContentPerformance{
		observed(2, int(time.Friday), 20, 0.9, base),
		observed(90, int(time.Friday), 20, 0.1, base),
	}

	buckets := s.fold(obs, base.In(s.loc))
	score, _ := s.rate(buckets, time.Date(2024, 6, 7, 20, 0, 0, 0, s.loc))
	assert.Greater(t, score, 0.6)
}

func TestSuggestConfidenceGrowsWithEvidence(t *testing.T) {
	s := newTestSuggester(t)
	base := s.now()

	one := s.fold([]model.ContentPerformance{
		observed(1, int(time.Wednesday), 18, 0.5, base),
	}, base.In(s.loc))
	many := s.fold([]model.ContentPerformance{
		observed(1, int(time.Wednesday), 18, 0.5, base),
		observed(2, int(time.Wednesday), 18, 0.6, base),
		observed(3, int(time.Wednesday), 18, 0.4, base),
		observed(4, int(time.Wednesday), 18, 0.5, base),
	}, base.In(s.loc))

	slot := time.Date(2024, 6, 5, 18, 0, 0, 0, s.loc)
	_, confOne := s.rate(one, slot)
	_, confMany := s.rate(many, slot)
	assert.Greater(t, confMany, confOne)
}

func TestSuggestFallsBackToDefaultHours(t *testing.T) {
	s := newTestSuggester(t)

	slots := s.Suggest(4, nil)
	require.Len(t, slots, 4)
	for _, slot := range slots {
		assert.True(t, defaultHours[slot.Time.Hour()], "hour: %d", slot.Time.Hour())
		assert.Equal(t, defaultHourConfidence, slot.Confidence)
	}
}

func TestSuggestSlotsAreInAudienceTimezone(t *testing.T) {
	s := newTestSuggester(t)

	slots := s.Suggest(1, nil)
	require.Len(t, slots, 1)
	zone, _ := slots[0].Time.Zone()
	assert.Equal(t, "WAT", zone)
}

func TestSuggestZeroAndOversizedN(t *testing.T) {
	s := newTestSuggester(t)

	assert.Nil(t, s.Suggest(0, nil))
	slots := s.Suggest(10000, nil)
	assert.Len(t, slots, horizonDays*24)
}
