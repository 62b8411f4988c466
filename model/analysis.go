package model

import (
	"time"

	"gorm.io/datatypes"
)

/*

PostAnalysis is the post-level aggregation over all live CommentAnalysis rows
of a Post. It is a pure function of its inputs and therefore recomputable:
re-analysis overwrites the row wholesale instead of patching fields.

PostID: analyzed post, 1:1
TotalComments: number of comments covered by this aggregation
PositiveCount/NegativeCount/NeutralCount: sentiment buckets
PositivePct/NegativePct/NeutralPct: percentages, sum to 100 within rounding
AverageSentiment: mean combined sentiment score
ControversyScore: how divisive the comment section is, [0, 100]
ControversyLevel: chill, mid or wahala
TopPositiveIds/TopNegativeIds: exemplar comment ids, JSON arrays
Headline/VibeSummary/SpicyTake/Themes/Hashtags: batch-tier enrichment, all
		empty when the summary call failed (the analysis is still valid)
SummaryAvailable: false when the batch tier degraded
AnalyzedAt: aggregation time
*/
type PostAnalysis struct {
	Id               string `gorm:"primaryKey"`
	CreatedAt        time.Time
	PostID           string `gorm:"uniqueIndex"`
	Post             Post   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	TotalComments    int
	PositiveCount    int
	NegativeCount    int
	NeutralCount     int
	PositivePct      float64
	NegativePct      float64
	NeutralPct       float64
	AverageSentiment float64
	ControversyScore float64
	ControversyLevel string
	TopPositiveIds   datatypes.JSON
	TopNegativeIds   datatypes.JSON
	Headline         string
	VibeSummary      string
	SpicyTake        string
	Themes           datatypes.JSON
	Hashtags         datatypes.JSON
	SummaryAvailable bool
	AnalyzedAt       time.Time
}
