package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// CirclesPublic targets every follower of the author.
	CirclesPublic = "*public*"
	// CirclesAll targets everyone in any of the author's circles.
	CirclesAll = "*circles*"
)

// Post is the system-of-record copy of a post. Only Comments grow after creation.
type Post struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	AuthorID   uint           `gorm:"index;not null" json:"author_id"`
	AuthorName string         `gorm:"size:64" json:"author_name"`
	Circles    []string       `gorm:"serializer:json;type:text" json:"circles"`
	Type       string         `gorm:"size:32;not null" json:"type"`
	Detail     map[string]any `gorm:"serializer:json;type:text" json:"detail"`
	Month      string         `gorm:"index;size:7;not null" json:"month"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
	Comments   []Comment      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"comments"`
}

// Comment is an entry of a post's authoritative comment sequence. IDs grow in
// arrival order.
type Comment struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	PostID     string    `gorm:"index;size:36;not null" json:"post_id"`
	AuthorID   uint      `gorm:"index;not null" json:"author_id"`
	AuthorName string    `gorm:"size:64" json:"author_name"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// Stamp assigns the identifier, creation time and month bucket when missing.
func (p *Post) Stamp(now time.Time) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.Month = MonthOf(p.CreatedAt)
}

// BeforeCreate stamps posts inserted through gorm.
func (p *Post) BeforeCreate(tx *gorm.DB) error {
	p.Stamp(time.Now())
	return nil
}

// Author returns the author snapshot.
func (p *Post) Author() AuthorRef {
	return AuthorRef{ID: p.AuthorID, Name: p.AuthorName}
}

// Copy builds the denormalized copy delivered to feed and wall buckets,
// carrying the most recent limit comments. A limit of zero or less keeps
// every comment.
func (p *Post) Copy(limit int) PostCopy {
	comments := p.Comments
	if limit > 0 && len(comments) > limit {
		comments = comments[len(comments)-limit:]
	}
	cp := PostCopy{
		PostID:    p.ID,
		Author:    p.Author(),
		Circles:   append([]string(nil), p.Circles...),
		Type:      p.Type,
		Detail:    p.Detail,
		CreatedAt: p.CreatedAt,
		Comments:  make([]CommentSnapshot, 0, len(comments)),
	}
	for _, c := range comments {
		cp.Comments = append(cp.Comments, c.Snapshot())
	}
	cp.CommentsShown = len(cp.Comments)
	return cp
}

// Snapshot converts the comment into its cached form.
func (c *Comment) Snapshot() CommentSnapshot {
	return CommentSnapshot{
		ID:        c.ID,
		Author:    AuthorRef{ID: c.AuthorID, Name: c.AuthorName},
		Text:      c.Text,
		CreatedAt: c.CreatedAt,
	}
}

// FindComment returns the comment with id, if the post carries it.
func (p *Post) FindComment(id uint) (*Comment, bool) {
	for i := range p.Comments {
		if p.Comments[i].ID == id {
			return &p.Comments[i], true
		}
	}
	return nil, false
}

// Audience returns the post's author and target circles.
func (p *Post) Audience() Audience {
	return Audience{Author: p.AuthorID, Circles: p.Circles}
}
