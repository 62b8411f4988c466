package model

import (
	"time"

	"gorm.io/gorm"
)

/*

Target is a monitored account on the scrape target whose posts we watch for
virality.

Id: primary key
ExternalHandle: account handle on the scrape target, unique
DisplayName: human readable name for the review surface
Category: editorial grouping (music, politics, comedy, ...)
Priority: scrape ordering weight, higher first
LastScrapedAt: when a scrape job for this target last finished
Active: inactive targets are skipped by discovery
*/
type Target struct {
	Id             string `gorm:"primaryKey"`
	CreatedAt      time.Time
	DeletedAt      gorm.DeletedAt
	ExternalHandle string `gorm:"uniqueIndex"`
	DisplayName    string
	Category       string
	Priority       int `gorm:"index"`
	LastScrapedAt  *time.Time
	Active         bool `gorm:"default:true"`
}
