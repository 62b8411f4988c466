package utils

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
)

// JobStatusStore mirrors job states into Redis so that status polling from
// the dashboard never touches the jobs table on the hot path. The jobs table
// stays the source of truth; a Redis miss falls back to a DB read.
type JobStatusStore struct {
	inner *redis.Client
}

const (
	jobStatusKeyPrefix = "job_status__"
	// Status entries are advisory, let them expire instead of cleaning up.
	jobStatusTTL = 24 * time.Hour
)

var ctx = context.Background()

func GetJobStatusStore() (*JobStatusStore, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT")),
		Password: os.Getenv("REDIS_PASSWD"),
		DB:       0, // use default DB
	})
	_, err := redisClient.Ping(ctx).Result()
	if err != nil {
		return nil, err
	}
	return &JobStatusStore{inner: redisClient}, nil
}

func jobStatusKey(jobId string) string {
	return jobStatusKeyPrefix + jobId
}

func (s *JobStatusStore) SetJobStatus(jobId string, state string) error {
	return s.inner.Set(ctx, jobStatusKey(jobId), state, jobStatusTTL).Err()
}

// GetJobStatus returns the cached state, or empty string on a miss.
func (s *JobStatusStore) GetJobStatus(jobId string) (string, error) {
	res, err := s.inner.Get(ctx, jobStatusKey(jobId)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return res, nil
}

func (s *JobStatusStore) GetJobStatuses(jobIds []string) ([]string, error) {
	if len(jobIds) == 0 {
		return []string{}, nil
	}

	keys := []string{}
	for _, id := range jobIds {
		keys = append(keys, jobStatusKey(id))
	}

	res, err := s.inner.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	states := []string{}
	for _, v := range res {
		if v == nil {
			states = append(states, "")
			continue
		}
		if str, ok := v.(string); ok {
			states = append(states, str)
			continue
		}
		states = append(states, "")
	}
	return states, nil
}
