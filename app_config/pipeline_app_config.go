package app_config

import (
	"io/ioutil"
	"log"

	"gopkg.in/yaml.v2"
)

// RetryConfig is a bounded retry policy. The same shape is reused by the
// ingestion worker, the batch summarizer and the publisher.
type RetryConfig struct {
	MaxAttempts   int     `yaml:"MAX_ATTEMPTS"`
	BaseDelayMs   int64   `yaml:"BASE_DELAY_MS"`
	Multiplier    float64 `yaml:"MULTIPLIER"`
	JitterFrac    float64 `yaml:"JITTER_FRAC"`
	MaxDelayMs    int64   `yaml:"MAX_DELAY_MS"`
}

// This is the application config for the vibecheck pipeline. Every product
// tuning parameter lives here with a documented default; nothing below is
// looked up ad hoc at runtime.
type PipelineAppConfig struct {
	// Per identity request budgets.
	IDENTITY_HOURLY_BUDGET int `yaml:"IDENTITY_HOURLY_BUDGET"`
	IDENTITY_DAILY_BUDGET  int `yaml:"IDENTITY_DAILY_BUDGET"`
	// Aggregate ceiling across all identities, requests per hour.
	GLOBAL_HOURLY_CEILING int `yaml:"GLOBAL_HOURLY_CEILING"`
	// Initial identity cool-down on a transient rate limit signal. Doubles on
	// each consecutive failure, capped.
	COOLDOWN_BASE_SECOND int64 `yaml:"COOLDOWN_BASE_SECOND"`
	COOLDOWN_MAX_SECOND  int64 `yaml:"COOLDOWN_MAX_SECOND"`

	// Ingestion pacing: random pause bounds between page requests, and an
	// extra randomized long pause every LONG_PAUSE_EVERY_N_REQUESTS requests.
	MIN_REQUEST_DELAY_MS        int64 `yaml:"MIN_REQUEST_DELAY_MS"`
	MAX_REQUEST_DELAY_MS        int64 `yaml:"MAX_REQUEST_DELAY_MS"`
	LONG_PAUSE_EVERY_N_REQUESTS int   `yaml:"LONG_PAUSE_EVERY_N_REQUESTS"`
	LONG_PAUSE_SECOND           int64 `yaml:"LONG_PAUSE_SECOND"`

	// Sentiment signal weights and classification thresholds.
	LEXICON_WEIGHT      float64 `yaml:"LEXICON_WEIGHT"`
	EMOJI_WEIGHT        float64 `yaml:"EMOJI_WEIGHT"`
	HEURISTIC_WEIGHT    float64 `yaml:"HEURISTIC_WEIGHT"`
	POSITIVE_THRESHOLD  float64 `yaml:"POSITIVE_THRESHOLD"`
	NEGATIVE_THRESHOLD  float64 `yaml:"NEGATIVE_THRESHOLD"`

	// Batch tier: sample size cap and model name for the one summary call per
	// analyzed post.
	BATCH_SAMPLE_CAP int    `yaml:"BATCH_SAMPLE_CAP"`
	BATCH_MODEL      string `yaml:"BATCH_MODEL"`

	// Viral score coefficients. These are product tuning parameters; only the
	// bounds and monotonicity of the score are load bearing.
	VIRAL_LIKES_SCALE       float64 `yaml:"VIRAL_LIKES_SCALE"`
	VIRAL_COMMENTS_SCALE    float64 `yaml:"VIRAL_COMMENTS_SCALE"`
	VIRAL_VELOCITY_SCALE    float64 `yaml:"VIRAL_VELOCITY_SCALE"`
	MIN_POST_LIKES          int64   `yaml:"MIN_POST_LIKES"`
	MIN_POST_COMMENTS       int64   `yaml:"MIN_POST_COMMENTS"`
	MAX_POST_AGE_DAYS       int     `yaml:"MAX_POST_AGE_DAYS"`
	AUTO_APPROVE_VIRAL_SCORE float64 `yaml:"AUTO_APPROVE_VIRAL_SCORE"`

	// Audience timezone for the optimal-time model, IANA name.
	AUDIENCE_TIMEZONE string `yaml:"AUDIENCE_TIMEZONE"`
	// Exponential recency decay applied to engagement observations, per day.
	ENGAGEMENT_DECAY_PER_DAY float64 `yaml:"ENGAGEMENT_DECAY_PER_DAY"`

	// Worker pool sizes per job kind.
	SCRAPE_POOL_SIZE  int `yaml:"SCRAPE_POOL_SIZE"`
	ANALYZE_POOL_SIZE int `yaml:"ANALYZE_POOL_SIZE"`
	PUBLISH_POOL_SIZE int `yaml:"PUBLISH_POOL_SIZE"`

	// Retry policies per external surface.
	INGEST_RETRY  RetryConfig `yaml:"INGEST_RETRY"`
	SUMMARY_RETRY RetryConfig `yaml:"SUMMARY_RETRY"`
	PUBLISH_RETRY RetryConfig `yaml:"PUBLISH_RETRY"`
}

// DefaultPipelineAppConfig returns the documented defaults. Config files only
// need to override what they change.
func DefaultPipelineAppConfig() PipelineAppConfig {
	return PipelineAppConfig{
		IDENTITY_HOURLY_BUDGET:      100,
		IDENTITY_DAILY_BUDGET:       500,
		GLOBAL_HOURLY_CEILING:       200,
		COOLDOWN_BASE_SECOND:        60,
		COOLDOWN_MAX_SECOND:         3600,
		MIN_REQUEST_DELAY_MS:        2000,
		MAX_REQUEST_DELAY_MS:        5000,
		LONG_PAUSE_EVERY_N_REQUESTS: 100,
		LONG_PAUSE_SECOND:           30,
		LEXICON_WEIGHT:              0.5,
		EMOJI_WEIGHT:                0.3,
		HEURISTIC_WEIGHT:            0.2,
		POSITIVE_THRESHOLD:          0.15,
		NEGATIVE_THRESHOLD:          -0.15,
		BATCH_SAMPLE_CAP:            100,
		BATCH_MODEL:                 "gpt-4o-mini",
		VIRAL_LIKES_SCALE:           500000,
		VIRAL_COMMENTS_SCALE:        50000,
		VIRAL_VELOCITY_SCALE:        10000,
		MIN_POST_LIKES:              10000,
		MIN_POST_COMMENTS:           500,
		MAX_POST_AGE_DAYS:           3,
		AUTO_APPROVE_VIRAL_SCORE:    80,
		AUDIENCE_TIMEZONE:           "Africa/Lagos",
		ENGAGEMENT_DECAY_PER_DAY:    0.97,
		SCRAPE_POOL_SIZE:            1,
		ANALYZE_POOL_SIZE:           4,
		PUBLISH_POOL_SIZE:           2,
		INGEST_RETRY:                RetryConfig{MaxAttempts: 5, BaseDelayMs: 1000, Multiplier: 2, JitterFrac: 0.2, MaxDelayMs: 60000},
		SUMMARY_RETRY:               RetryConfig{MaxAttempts: 2, BaseDelayMs: 2000, Multiplier: 2, JitterFrac: 0.2, MaxDelayMs: 30000},
		PUBLISH_RETRY:               RetryConfig{MaxAttempts: 4, BaseDelayMs: 5000, Multiplier: 2, JitterFrac: 0.2, MaxDelayMs: 300000},
	}
}

func ParsePipelineAppConfig(path string) PipelineAppConfig {
	c := DefaultPipelineAppConfig()
	yamlFile, err := ioutil.ReadFile(path)
	if err != nil {
		log.Fatal("yamlFile. get err: ", err.Error())
	}
	err = yaml.Unmarshal(yamlFile, &c)
	if err != nil {
		log.Fatal("Unmarshal: ", err)
	}
	return c
}
