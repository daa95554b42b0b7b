package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/circlefeed/models"
)

// GormPosts is the relational system of record. Comment ids come from the
// auto-increment key, so the database serializes concurrent appends and the
// id order is the arrival order.
type GormPosts struct {
	db *gorm.DB
}

func NewGormPosts(db *gorm.DB) *GormPosts {
	return &GormPosts{db: db}
}

func (s *GormPosts) CreatePost(ctx context.Context, post *models.Post, task *models.FanoutTask) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if post.ID != "" {
			var n int64
			if err := tx.Model(&models.Post{}).Where("id = ?", post.ID).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return ErrConflict
			}
		}
		if err := tx.Omit("Comments").Create(post).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrConflict
			}
			return err
		}
		task.PostID = post.ID
		task.Month = post.Month
		if task.Status == "" {
			task.Status = models.TaskPending
		}
		return tx.Create(task).Error
	})
}

func (s *GormPosts) GetPost(ctx context.Context, id string) (*models.Post, error) {
	var p models.Post
	err := s.db.WithContext(ctx).
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&p, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *GormPosts) AppendComment(ctx context.Context, comment *models.Comment, task *models.FanoutTask) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Post
		if err := tx.Select("id", "month").First(&p, "id = ?", comment.PostID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if comment.CreatedAt.IsZero() {
			comment.CreatedAt = time.Now().UTC()
		}
		if err := tx.Create(comment).Error; err != nil {
			return err
		}
		task.PostID = p.ID
		task.CommentID = comment.ID
		task.Month = p.Month
		if task.Status == "" {
			task.Status = models.TaskPending
		}
		return tx.Create(task).Error
	})
}

func (s *GormPosts) PendingTasks(ctx context.Context, cutoff time.Time, limit int) ([]models.FanoutTask, error) {
	q := s.db.WithContext(ctx).
		Where("status IN ? AND updated_at <= ?", []string{models.TaskPending, models.TaskFailed}, cutoff).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var tasks []models.FanoutTask
	if err := q.Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *GormPosts) UpdateTask(ctx context.Context, task *models.FanoutTask) error {
	task.UpdatedAt = time.Now()
	res := s.db.WithContext(ctx).Model(&models.FanoutTask{}).Where("id = ?", task.ID).Updates(map[string]interface{}{
		"status":     task.Status,
		"attempts":   task.Attempts,
		"last_error": task.LastError,
		"updated_at": task.UpdatedAt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
