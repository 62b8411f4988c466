package ingest

import (
	"github.com/google/uuid"
	"github.com/vibecheckhq/vibecheck/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the persistence surface of the discovery and ingestion workers.
// The production implementation is GormStore; tests use an in-memory fake.
type Store interface {
	GetTarget(targetId string) (*model.Target, error)
	GetPost(postId string) (*model.Post, error)
	// UpsertPosts stores newly discovered posts on the
	// (target_id, external_post_id) key. Posts already known keep their
	// ingestion progress but get caption and engagement counters refreshed.
	// Returns the number of rows written.
	UpsertPosts(targetId string, posts []ScrapedPost) (int, error)
	// UpsertComments inserts the page's comments, skipping any
	// (post_id, external_comment_id) pair already stored. Returns the number
	// of newly inserted rows.
	UpsertComments(postId string, comments []ScrapedComment) (int, error)
	// SaveCheckpoint durably records cursor and state for a post. Called
	// after every successfully stored page and on every terminal transition.
	SaveCheckpoint(postId string, cursor string, state model.IngestState, ingestErr string) error
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetTarget(targetId string) (*model.Target, error) {
	var target model.Target
	if err := s.db.First(&target, "id = ?", targetId).Error; err != nil {
		return nil, err
	}
	return &target, nil
}

func (s *GormStore) UpsertPosts(targetId string, posts []ScrapedPost) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}

	rows := make([]model.Post, 0, len(posts))
	for _, p := range posts {
		rows = append(rows, model.Post{
			Id:             uuid.New().String(),
			TargetID:       targetId,
			ExternalPostId: p.ExternalId,
			Caption:        p.Caption,
			LikeCount:      p.LikeCount,
			CommentCount:   p.CommentCount,
			ShareCount:     p.ShareCount,
			PostedAt:       p.PostedAt,
		})
	}

	// The conflict path refreshes engagement only; cursor and ingest state
	// belong to the ingestion loop.
	res := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "target_id"}, {Name: "external_post_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"caption", "like_count", "comment_count", "share_count", "posted_at"}),
	}).Create(&rows)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (s *GormStore) GetPost(postId string) (*model.Post, error) {
	var post model.Post
	if err := s.db.First(&post, "id = ?", postId).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *GormStore) UpsertComments(postId string, comments []ScrapedComment) (int, error) {
	if len(comments) == 0 {
		return 0, nil
	}

	rows := make([]model.Comment, 0, len(comments))
	for _, c := range comments {
		rows = append(rows, model.Comment{
			Id:                uuid.New().String(),
			PostID:            postId,
			ExternalCommentId: c.ExternalId,
			AnonymizedAuthor:  c.Author,
			Text:              c.Text,
			LikeCount:         c.LikeCount,
			CommentedAt:       c.CommentedAt,
		})
	}

	res := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "post_id"}, {Name: "external_comment_id"}},
		DoNothing: true,
	}).Create(&rows)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (s *GormStore) SaveCheckpoint(postId string, cursor string, state model.IngestState, ingestErr string) error {
	return s.db.Model(&model.Post{}).Where("id = ?", postId).Updates(map[string]interface{}{
		"comment_cursor": cursor,
		"ingest_state":   state,
		"ingest_error":   ingestErr,
	}).Error
}
