// Package credpool owns the scraping identities (account + proxy pairs) and
// the request budgets attached to them. The pool is the only globally shared
// mutable resource on the scrape hot path; every mutation goes through
// Checkout/Checkin/RecordRequest under one lock, and callers only ever see
// value copies of an identity.
package credpool

import (
	"errors"
	"sync"
	"time"

	"github.com/vibecheckhq/vibecheck/app_config"
	"github.com/vibecheckhq/vibecheck/model"
	Logger "github.com/vibecheckhq/vibecheck/utils/log"
	"gorm.io/gorm"
)

// ErrNoAvailableIdentity signals resource exhaustion: every identity is
// banned, cooling down or over budget. Callers should defer and re-submit,
// not busy-retry.
var ErrNoAvailableIdentity = errors.New("no available identity")

// Outcome describes how the requests made with a checked out identity went.
type Outcome int

const (
	// OutcomeSuccess: requests went through fine.
	OutcomeSuccess Outcome = iota
	// OutcomeRateLimited: the target throttled us. The identity cools down
	// for an exponentially increasing interval.
	OutcomeRateLimited
	// OutcomeAuthFailed: repeated authentication failure or an explicit ban
	// signal. The identity is banned until manual reinstatement.
	OutcomeAuthFailed
	// OutcomeError: the request failed for reasons unrelated to the identity
	// (malformed response, unexpected status). Leaves the failure streak and
	// state untouched.
	OutcomeError
)

type Pool struct {
	m sync.Mutex

	db         *gorm.DB
	identities map[string]*model.Identity

	hourlyBudget int
	dailyBudget  int
	cooldownBase time.Duration
	cooldownMax  time.Duration

	limiter *RateLimiter

	// Injectable clock for tests.
	now func() time.Time
}

// NewPool loads all identities from the DB and wires the global limiter. A
// nil db is allowed in tests; mutations then stay in memory.
func NewPool(db *gorm.DB, cfg *app_config.PipelineAppConfig) (*Pool, error) {
	p := &Pool{
		db:           db,
		identities:   make(map[string]*model.Identity),
		hourlyBudget: cfg.IDENTITY_HOURLY_BUDGET,
		dailyBudget:  cfg.IDENTITY_DAILY_BUDGET,
		cooldownBase: time.Duration(cfg.COOLDOWN_BASE_SECOND) * time.Second,
		cooldownMax:  time.Duration(cfg.COOLDOWN_MAX_SECOND) * time.Second,
		limiter:      NewRateLimiter(cfg.GLOBAL_HOURLY_CEILING),
		now:          time.Now,
	}

	if db != nil {
		var identities []model.Identity
		if err := db.Find(&identities).Error; err != nil {
			return nil, err
		}
		for i := range identities {
			identity := identities[i]
			p.identities[identity.Id] = &identity
		}
	}

	return p, nil
}

// AddIdentity registers an identity with the pool. Used at seed time and in
// tests.
func (p *Pool) AddIdentity(identity *model.Identity) {
	p.m.Lock()
	defer p.m.Unlock()
	p.identities[identity.Id] = identity
}

// Checkout selects the identity with the lowest recent-usage fraction among
// active identities under both budgets; ties broken by longest idle time.
// Identities whose cool-down elapsed become active again here.
func (p *Pool) Checkout() (model.Identity, error) {
	p.m.Lock()
	defer p.m.Unlock()

	now := p.now()

	var best *model.Identity
	var bestFraction float64
	for _, identity := range p.identities {
		p.maybeLiftCooldown(identity, now)
		if identity.State != model.IdentityStateActive {
			continue
		}
		if identity.HourlyCount >= p.hourlyBudget || identity.DailyCount >= p.dailyBudget {
			continue
		}

		fraction := p.usageFraction(identity)
		if best == nil || fraction < bestFraction ||
			(fraction == bestFraction && olderLastUse(identity, best)) {
			best = identity
			bestFraction = fraction
		}
	}

	if best == nil {
		return model.Identity{}, ErrNoAvailableIdentity
	}

	t := now
	best.LastUsedAt = &t
	p.persist(best)

	return *best, nil
}

// RecordRequest counts one outbound request against the identity and the
// global ceiling. The returned delay is how long the caller must block before
// issuing the request; zero when under the ceiling.
func (p *Pool) RecordRequest(identityId string) time.Duration {
	p.m.Lock()
	defer p.m.Unlock()

	if identity, ok := p.identities[identityId]; ok {
		identity.HourlyCount++
		identity.DailyCount++
		p.persist(identity)
	}

	return p.limiter.Record(p.now())
}

// Checkin reports the outcome of a checkout. State transitions:
// success resets the failure streak, a rate limit signal cools the identity
// down for base * 2^(consecutive-1) capped at the max, an auth failure bans
// it until manual reinstatement. An identity-unrelated error changes nothing.
func (p *Pool) Checkin(identityId string, outcome Outcome) {
	p.m.Lock()
	defer p.m.Unlock()

	identity, ok := p.identities[identityId]
	if !ok || outcome == OutcomeError {
		return
	}

	now := p.now()
	switch outcome {
	case OutcomeSuccess:
		identity.ConsecutiveFailures = 0
	case OutcomeRateLimited:
		identity.ConsecutiveFailures++
		cooldown := p.cooldownBase
		for i := 1; i < identity.ConsecutiveFailures; i++ {
			cooldown *= 2
			if cooldown >= p.cooldownMax {
				cooldown = p.cooldownMax
				break
			}
		}
		until := now.Add(cooldown)
		identity.CooldownUntil = &until
		identity.State = model.IdentityStateCoolingDown
		Logger.Log.Warnf("identity %s cooling down for %s", identity.Handle, cooldown)
	case OutcomeAuthFailed:
		identity.State = model.IdentityStateBanned
		identity.BannedAt = &now
		Logger.Log.Warnf("identity %s banned", identity.Handle)
	}
	p.persist(identity)
}

// Reinstate manually brings a banned identity back into rotation.
func (p *Pool) Reinstate(identityId string) {
	p.m.Lock()
	defer p.m.Unlock()

	identity, ok := p.identities[identityId]
	if !ok {
		return
	}
	identity.State = model.IdentityStateActive
	identity.BannedAt = nil
	identity.CooldownUntil = nil
	identity.ConsecutiveFailures = 0
	identity.HourlyCount = 0
	identity.DailyCount = 0
	p.persist(identity)
}

// ResetHourlyCounters and ResetDailyCounters are invoked by the engine on
// window rollover.
func (p *Pool) ResetHourlyCounters() {
	p.m.Lock()
	defer p.m.Unlock()
	for _, identity := range p.identities {
		identity.HourlyCount = 0
		p.persist(identity)
	}
}

func (p *Pool) ResetDailyCounters() {
	p.m.Lock()
	defer p.m.Unlock()
	for _, identity := range p.identities {
		identity.DailyCount = 0
		p.persist(identity)
	}
}

func (p *Pool) maybeLiftCooldown(identity *model.Identity, now time.Time) {
	if identity.State != model.IdentityStateCoolingDown {
		return
	}
	if identity.CooldownUntil == nil || !now.Before(*identity.CooldownUntil) {
		identity.State = model.IdentityStateActive
		identity.CooldownUntil = nil
		p.persist(identity)
	}
}

// usageFraction is the higher of the hourly and daily budget fractions, so an
// identity close to either limit is deprioritized.
func (p *Pool) usageFraction(identity *model.Identity) float64 {
	hourly := float64(identity.HourlyCount) / float64(p.hourlyBudget)
	daily := float64(identity.DailyCount) / float64(p.dailyBudget)
	if hourly > daily {
		return hourly
	}
	return daily
}

func olderLastUse(a, b *model.Identity) bool {
	if a.LastUsedAt == nil {
		return true
	}
	if b.LastUsedAt == nil {
		return false
	}
	return a.LastUsedAt.Before(*b.LastUsedAt)
}

func (p *Pool) persist(identity *model.Identity) {
	if p.db == nil {
		return
	}
	if err := p.db.Save(identity).Error; err != nil {
		Logger.Log.Errorf("fail to persist identity %s: %v", identity.Id, err)
	}
}
