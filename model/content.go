package model

import (
	"time"

	"gorm.io/gorm"
)

// ContentStatus is a GeneratedContent lifecycle state. Transitions between
// statuses form a directed graph owned by the content state machine; nothing
// else may change this column.
type ContentStatus string

const (
	ContentStatusDraft         ContentStatus = "draft"
	ContentStatusPendingReview ContentStatus = "pending_review"
	ContentStatusApproved      ContentStatus = "approved"
	ContentStatusRejected      ContentStatus = "rejected"
	ContentStatusPublished     ContentStatus = "published"
)

/*

GeneratedContent is an outbound artifact generated from a PostAnalysis. It is
the only entity with observable side effects on the outside world, at the
published transition.

Id: primary key
PostAnalysisID/PostAnalysis: source analysis, "belongs-to" relation
Title/Caption: generated copy
Status: lifecycle state, see ContentStatus
ReviewNote: optional human reason attached on approve/reject, or the publish
		error that surfaced the content back to review
ScheduledFor: chosen publish slot
PublishedAt: set exactly once, on the published transition
ExternalPostId: id assigned by the publish target, set with PublishedAt

A rejected row is never resurrected; a corrected version is a new row.
*/
type GeneratedContent struct {
	Id             string `gorm:"primaryKey"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt
	PostAnalysisID string
	PostAnalysis   PostAnalysis `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Title          string
	Caption        string
	Status         ContentStatus `gorm:"default:draft"`
	ReviewNote     string
	ScheduledFor   *time.Time
	PublishedAt    *time.Time
	ExternalPostId string
}

/*

PublishAttempt is one row per outbound publish attempt for a content. The log
is append-only and written before the outbound call is made, so an attempt is
never lost even if the process crashes mid-call. Attempt numbers are used to
enforce the retry ceiling and, together with the content status, the publish
idempotency guarantee.
*/
type PublishAttempt struct {
	Id            string `gorm:"primaryKey"`
	ContentID     string `gorm:"index"`
	AttemptNumber int
	Outcome       string
	ErrorKind     string
	AttemptedAt   time.Time
}

/*

ContentPerformance records how a published content performed, bucketed by the
publish slot (hour and weekday in the audience timezone). The optimal-time
model consumes these rows with exponential recency weighting.
*/
type ContentPerformance struct {
	Id              string `gorm:"primaryKey"`
	CreatedAt       time.Time
	ContentID       string `gorm:"index"`
	PostHour        int
	PostDayOfWeek   int
	EngagementScore float64
}
