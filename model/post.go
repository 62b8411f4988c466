package model

import (
	"time"

	"gorm.io/gorm"
)

// IngestState tracks how far comment ingestion for a post has progressed.
type IngestState string

const (
	IngestStatePending    IngestState = "pending"
	IngestStateInProgress IngestState = "in_progress"
	IngestStateComplete   IngestState = "complete"
	// IngestStateTerminated means a permanent failure ended ingestion (post
	// deleted, access denied). Never retried.
	IngestStateTerminated IngestState = "terminated"
)

/*

Post is a single post on a Target's account together with its engagement
counters at scrape time.

Id: primary key
TargetID/Target: owning target, "belongs-to" relation
ExternalPostId: id on the scrape target, unique per target
Caption: post caption in plain text
LikeCount/CommentCount/ShareCount: engagement counters
PostedAt: publication time on the scrape target
IsViral/ViralScore/ViralTier: derived by the viral scorer
CommentCursor: last durably persisted pagination cursor. Written before the
		next page is requested, so a crash loses at most one page.
IngestState: pending, in_progress, complete or terminated
IngestError: terminal ingestion error, set only with IngestStateTerminated
*/
type Post struct {
	Id             string `gorm:"primaryKey"`
	CreatedAt      time.Time
	DeletedAt      gorm.DeletedAt
	TargetID       string `gorm:"index:idx_target_external,unique"`
	Target         Target `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	ExternalPostId string `gorm:"index:idx_target_external,unique"`
	Caption        string
	LikeCount      int64
	CommentCount   int64
	ShareCount     int64
	PostedAt       *time.Time
	IsViral        bool
	ViralScore     float64
	ViralTier      string
	CommentCursor  string
	IngestState    IngestState `gorm:"default:pending"`
	IngestError    string
}
