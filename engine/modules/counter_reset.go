package modules

import (
	"context"
	"time"

	"github.com/vibecheckhq/vibecheck/credpool"
	Logger "github.com/vibecheckhq/vibecheck/utils/log"
)

type CounterResetConfig struct {
	Name string
}

// CounterReset rolls the identity budget windows over: hourly counters at the
// top of each hour, daily counters at midnight UTC.
type CounterReset struct {
	Config CounterResetConfig
	Pool   *credpool.Pool
}

func NewCounterReset(config CounterResetConfig, pool *credpool.Pool) *CounterReset {
	return &CounterReset{Config: config, Pool: pool}
}

func (c *CounterReset) RunModule(ctx context.Context) error {
	for {
		now := time.Now().UTC()
		nextHour := now.Truncate(time.Hour).Add(time.Hour)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(nextHour.Sub(now)):
		}

		c.Pool.ResetHourlyCounters()
		Logger.Log.Infof("%s: hourly budgets reset", c.Config.Name)

		if nextHour.Hour() == 0 {
			c.Pool.ResetDailyCounters()
			Logger.Log.Infof("%s: daily budgets reset", c.Config.Name)
		}
	}
}

func (c *CounterReset) Name() string {
	return c.Config.Name
}
