// Package server exposes the REST surface of the pipeline: job submission
// and polling, the content review queue and the scheduling endpoints.
package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/vibecheckhq/vibecheck/app_config"
	"github.com/vibecheckhq/vibecheck/content"
	"github.com/vibecheckhq/vibecheck/engine"
	"github.com/vibecheckhq/vibecheck/model"
	"github.com/vibecheckhq/vibecheck/schedule"
	"github.com/vibecheckhq/vibecheck/utils"
	Logger "github.com/vibecheckhq/vibecheck/utils/log"
	"gorm.io/gorm"
)

type Server struct {
	db        *gorm.DB
	queue     *engine.JobQueue
	statuses  *utils.JobStatusStore
	machine   *content.StateMachine
	suggester *schedule.Suggester
	loc       *time.Location
}

func NewServer(db *gorm.DB, queue *engine.JobQueue, statuses *utils.JobStatusStore,
	machine *content.StateMachine, suggester *schedule.Suggester, cfg *app_config.PipelineAppConfig) (*Server, error) {
	loc, err := time.LoadLocation(cfg.AUDIENCE_TIMEZONE)
	if err != nil {
		return nil, err
	}
	return &Server{
		db:        db,
		queue:     queue,
		statuses:  statuses,
		machine:   machine,
		suggester: suggester,
		loc:       loc,
	}, nil
}

// Register attaches every route to the router.
func (s *Server) Register(router *gin.Engine) {
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	router.GET("/targets", s.listTargets)
	router.POST("/targets/:id/scrape", s.submitScrape)
	router.POST("/posts/:id/analyze", s.submitAnalyze)
	router.GET("/jobs/:id", s.getJob)

	router.GET("/contents", s.listContents)
	router.POST("/contents/:id/approve", s.approveContent)
	router.POST("/contents/:id/reject", s.rejectContent)
	router.POST("/contents/:id/schedule", s.scheduleContent)
	router.POST("/contents/:id/engagement", s.recordEngagement)

	router.GET("/schedule/suggestions", s.suggestSlots)
}

// targetView is the outward shape of a Target row.
type targetView struct {
	Id             string     `json:"id"`
	ExternalHandle string     `json:"external_handle"`
	DisplayName    string     `json:"display_name"`
	Category       string     `json:"category"`
	Priority       int        `json:"priority"`
	LastScrapedAt  *time.Time `json:"last_scraped_at,omitempty"`
	Active         bool       `json:"active"`
}

// listTargets lists the monitored accounts, highest scrape priority first.
func (s *Server) listTargets(c *gin.Context) {
	var rows []model.Target
	if err := s.db.Order("priority DESC, external_handle").Find(&rows).Error; err != nil {
		s.internalError(c, err)
		return
	}

	views := make([]targetView, 0, len(rows))
	for i := range rows {
		var view targetView
		if err := copier.Copy(&view, &rows[i]); err != nil {
			s.internalError(c, err)
			return
		}
		views = append(views, view)
	}
	c.JSON(http.StatusOK, gin.H{"targets": views})
}

type scrapeRequest struct {
	PostId      string `json:"post_id"`
	MaxComments int    `json:"max_comments"`
}

func (s *Server) submitScrape(c *gin.Context) {
	var req scrapeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	targetId := c.Param("id")
	var target model.Target
	if err := s.db.First(&target, "id = ?", targetId).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "target not found"})
		return
	}

	jobId, err := s.queue.Enqueue(model.JobKindScrape, engine.ScrapeJobPayload{
		TargetId:    targetId,
		PostId:      req.PostId,
		MaxComments: req.MaxComments,
	})
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobId})
}

func (s *Server) submitAnalyze(c *gin.Context) {
	postId := c.Param("id")
	var post model.Post
	if err := s.db.First(&post, "id = ?", postId).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	if post.IngestState != model.IngestStateComplete {
		c.JSON(http.StatusConflict, gin.H{"error": "comment ingestion not complete"})
		return
	}

	jobId, err := s.queue.Enqueue(model.JobKindAnalyze, engine.AnalyzeJobPayload{PostId: postId})
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobId})
}

// getJob answers job polling from the Redis mirror, falling back to the jobs
// table on a miss.
func (s *Server) getJob(c *gin.Context) {
	jobId := c.Param("id")

	if s.statuses != nil {
		state, err := s.statuses.GetJobStatus(jobId)
		if err != nil {
			Logger.Log.Warnf("status store read failed for job %s: %v", jobId, err)
		}
		if state != "" && state != string(model.JobStateFailed) && state != string(model.JobStateDeferred) {
			c.JSON(http.StatusOK, gin.H{"id": jobId, "state": state})
			return
		}
	}

	job, err := s.queue.GetJob(jobId)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": job.Id, "state": job.State, "error": job.Error})
}

// contentView is the outward shape of a GeneratedContent row.
type contentView struct {
	Id             string     `json:"id"`
	PostAnalysisID string     `json:"post_analysis_id"`
	Title          string     `json:"title"`
	Caption        string     `json:"caption"`
	Status         string     `json:"status"`
	ReviewNote     string     `json:"review_note,omitempty"`
	ScheduledFor   *time.Time `json:"scheduled_for,omitempty"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	ExternalPostId string     `json:"external_post_id,omitempty"`
}

func (s *Server) listContents(c *gin.Context) {
	query := s.db.Order("created_at DESC").Limit(200)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var rows []model.GeneratedContent
	if err := query.Find(&rows).Error; err != nil {
		s.internalError(c, err)
		return
	}

	views := make([]contentView, 0, len(rows))
	for i := range rows {
		var view contentView
		if err := copier.Copy(&view, &rows[i]); err != nil {
			s.internalError(c, err)
			return
		}
		views = append(views, view)
	}
	c.JSON(http.StatusOK, gin.H{"contents": views})
}

type reviewRequest struct {
	Note string `json:"note"`
}

func (s *Server) approveContent(c *gin.Context) {
	s.review(c, func(row *model.GeneratedContent, note string) error {
		return s.machine.Approve(row, note)
	})
}

func (s *Server) rejectContent(c *gin.Context) {
	s.review(c, func(row *model.GeneratedContent, note string) error {
		return s.machine.Reject(row, note)
	})
}

func (s *Server) review(c *gin.Context, action func(*model.GeneratedContent, string) error) {
	var req reviewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	row, ok := s.loadContent(c)
	if !ok {
		return
	}
	if err := action(row, req.Note); err != nil {
		s.transitionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": row.Id, "status": row.Status})
}

type scheduleRequest struct {
	ScheduledFor time.Time `json:"scheduled_for" binding:"required"`
}

func (s *Server) scheduleContent(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ScheduledFor.Before(time.Now()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scheduled_for is in the past"})
		return
	}

	row, ok := s.loadContent(c)
	if !ok {
		return
	}
	if err := s.machine.Schedule(row, req.ScheduledFor); err != nil {
		s.transitionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": row.Id, "scheduled_for": row.ScheduledFor})
}

type engagementRequest struct {
	EngagementScore float64 `json:"engagement_score" binding:"required"`
}

// recordEngagement stores performance feedback for a published content,
// bucketed by its publish slot in the audience timezone. These rows feed the
// optimal-time model.
func (s *Server) recordEngagement(c *gin.Context) {
	var req engagementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	row, ok := s.loadContent(c)
	if !ok {
		return
	}
	if row.Status != model.ContentStatusPublished || row.PublishedAt == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "content is not published"})
		return
	}

	publishedAt := row.PublishedAt.In(s.loc)
	perf := &model.ContentPerformance{
		Id:              uuid.New().String(),
		ContentID:       row.Id,
		PostHour:        publishedAt.Hour(),
		PostDayOfWeek:   int(publishedAt.Weekday()),
		EngagementScore: req.EngagementScore,
	}
	if err := s.db.Create(perf).Error; err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": perf.Id})
}

func (s *Server) suggestSlots(c *gin.Context) {
	n := 3
	if raw := c.Query("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "n must be a positive integer"})
			return
		}
		n = parsed
	}

	var observations []model.ContentPerformance
	if err := s.db.Find(&observations).Error; err != nil {
		s.internalError(c, err)
		return
	}

	slots := s.suggester.Suggest(n, observations)
	out := make([]gin.H, 0, len(slots))
	for _, slot := range slots {
		out = append(out, gin.H{
			"time":       slot.Time.Format(time.RFC3339),
			"confidence": slot.Confidence,
		})
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": out})
}

func (s *Server) loadContent(c *gin.Context) (*model.GeneratedContent, bool) {
	var row model.GeneratedContent
	if err := s.db.First(&row, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "content not found"})
		return nil, false
	}
	return &row, true
}

func (s *Server) transitionError(c *gin.Context, err error) {
	var invalid *content.ErrInvalidTransition
	if errors.As(err, &invalid) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	s.internalError(c, err)
}

func (s *Server) internalError(c *gin.Context, err error) {
	Logger.Log.Errorf("request failed: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
