package model

import "time"

// IdentityState is the rotation state of a scraping identity.
type IdentityState string

const (
	IdentityStateActive      IdentityState = "active"
	IdentityStateCoolingDown IdentityState = "cooling_down"
	// IdentityStateBanned identities stay out of rotation until manual
	// reinstatement.
	IdentityStateBanned IdentityState = "banned"
)

/*

Identity is one scraping account together with its pinned proxy and request
budget counters. All mutation goes through the credential pool under its lock.

Id: primary key
Handle: account handle, for logs and the ops surface only
SecretRef: reference to the session credential in the secret store, never the
		credential itself
ProxyURL: proxy pinned to this identity, empty for a direct connection
State: active, cooling_down or banned
HourlyCount/DailyCount: requests made in the current windows, reset on
		window rollover
CooldownUntil: end of the current cool-down, only set while cooling down
ConsecutiveFailures: rate limit signals since the last success, drives the
		exponential cool-down
LastUsedAt: last checkout time, used as the tie breaker when picking the
		least loaded identity
BannedAt: when the ban was recorded
*/
type Identity struct {
	Id                  string `gorm:"primaryKey"`
	CreatedAt           time.Time
	Handle              string `gorm:"uniqueIndex"`
	SecretRef           string
	ProxyURL            string
	State               IdentityState `gorm:"default:active"`
	HourlyCount         int
	DailyCount          int
	CooldownUntil       *time.Time
	ConsecutiveFailures int
	LastUsedAt          *time.Time
	BannedAt            *time.Time
}
