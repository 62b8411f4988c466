package model

import (
	"time"

	"gorm.io/datatypes"
)

/*

Comment is a single comment scraped from a Post. Comments are immutable once
stored; analysis is linked through append-only CommentAnalysis rows.

Id: primary key
PostID/Post: owning post, "belongs-to" relation
ExternalCommentId: comment id on the scrape target, unique per post. The
		(post_id, external_comment_id) pair is the upsert key: re-ingestion of an
		already stored comment is a no-op, never a duplicate insert.
AnonymizedAuthor: author handle with the middle masked, we never store the
		raw handle
Text: comment text in plain text
LikeCount: like counter at scrape time
CommentedAt: time the comment was left
*/
type Comment struct {
	Id                string `gorm:"primaryKey"`
	CreatedAt         time.Time
	PostID            string `gorm:"index:idx_post_external_comment,unique"`
	Post              Post   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	ExternalCommentId string `gorm:"index:idx_post_external_comment,unique"`
	AnonymizedAuthor  string
	Text              string
	LikeCount         int64
	CommentedAt       *time.Time
}

/*

CommentAnalysis is the local-tier scoring result for one comment. Rows are
created once and never edited in place: re-analysis inserts a fresh row and
stamps SupersededAt on the previous one, preserving the audit trail.

CommentID: analyzed comment, at most one live (non superseded) row per comment
Sentiment: positive, negative or neutral
SentimentScore: combined score in [-1, 1]
ToxicityScore: [0, 1]
Tags: emotion/style tags, JSON array of strings
SupersededAt: set when a newer analysis row replaced this one
*/
type CommentAnalysis struct {
	Id             string `gorm:"primaryKey"`
	CreatedAt      time.Time
	CommentID      string  `gorm:"index"`
	Comment        Comment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Sentiment      string
	SentimentScore float64
	ToxicityScore  float64
	Tags           datatypes.JSON
	SupersededAt   *time.Time
}
