package models

import "time"

const (
	TaskKindPost    = "post"
	TaskKindComment = "comment"

	TaskPending   = "pending"
	TaskDone      = "done"
	TaskFailed    = "failed"
	TaskAbandoned = "abandoned"
)

// FanoutTask is the outbox row written together with a post or comment. It
// records the cache work still owed for that write so a sweep can finish it.
type FanoutTask struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Kind        string    `gorm:"size:16;index;not null" json:"kind"`
	PostID      string    `gorm:"size:36;index;not null" json:"post_id"`
	CommentID   uint      `json:"comment_id,omitempty"`
	Month       string    `gorm:"size:7" json:"month"`
	WallOwnerID uint      `json:"wall_owner_id,omitempty"`
	Recipients  []uint    `gorm:"serializer:json;type:text" json:"recipients,omitempty"`
	Status      string    `gorm:"size:16;index;not null;default:'pending'" json:"status"`
	Attempts    int       `gorm:"not null;default:0" json:"attempts"`
	LastError   string    `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `gorm:"index" json:"updated_at"`
}
