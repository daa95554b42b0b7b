package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BucketKind separates the two bucket collections.
type BucketKind string

const (
	KindFeed BucketKind = "feed"
	KindWall BucketKind = "wall"
)

const monthLayout = "2006-01"

// AuthorRef is the id and display name snapshot carried by posts and comments.
type AuthorRef struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// CommentSnapshot is a comment as stored inside a cached post copy.
type CommentSnapshot struct {
	ID        uint      `json:"id"`
	Author    AuthorRef `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// PostCopy is a trimmed post held in a feed or wall bucket.
type PostCopy struct {
	PostID        string            `json:"post_id"`
	Author        AuthorRef         `json:"author"`
	Circles       []string          `json:"circles"`
	Type          string            `json:"type"`
	Detail        map[string]any    `json:"detail"`
	CreatedAt     time.Time         `json:"created_at"`
	Comments      []CommentSnapshot `json:"comments"`
	CommentsShown int               `json:"comments_shown"`
}

// Bucket is one month of a user's feed or wall, oldest post first.
type Bucket struct {
	Kind  BucketKind `json:"kind"`
	Owner uint       `json:"owner"`
	Month string     `json:"month"`
	Posts []PostCopy `json:"posts"`
}

// CopyRef addresses a single cached copy of a post.
type CopyRef struct {
	Kind   BucketKind
	Owner  uint
	Month  string
	PostID string
}

// String encodes the reference as kind|owner|month|post.
func (r CopyRef) String() string {
	return fmt.Sprintf("%s|%d|%s|%s", r.Kind, r.Owner, r.Month, r.PostID)
}

// ParseCopyRef decodes a reference produced by CopyRef.String.
func ParseCopyRef(s string) (CopyRef, error) {
	parts := strings.SplitN(s, "|", 4)
	if len(parts) != 4 {
		return CopyRef{}, fmt.Errorf("copy ref %q: expected 4 parts", s)
	}
	owner, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return CopyRef{}, fmt.Errorf("copy ref %q: invalid owner: %w", s, err)
	}
	kind := BucketKind(parts[0])
	if kind != KindFeed && kind != KindWall {
		return CopyRef{}, fmt.Errorf("copy ref %q: unknown kind", s)
	}
	return CopyRef{Kind: kind, Owner: uint(owner), Month: parts[2], PostID: parts[3]}, nil
}

// MonthOf returns the UTC calendar month bucket of t, e.g. "2024-03".
func MonthOf(t time.Time) string {
	return t.UTC().Format(monthLayout)
}

// ParseMonth validates a month bucket string.
func ParseMonth(s string) (time.Time, error) {
	return time.Parse(monthLayout, s)
}

// PrevMonth returns the bucket preceding month.
func PrevMonth(month string) (string, error) {
	t, err := ParseMonth(month)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, -1, 0).Format(monthLayout), nil
}

// MonthScore maps a month onto a number that sorts the same way, 2024-03 -> 202403.
func MonthScore(month string) (float64, error) {
	t, err := ParseMonth(month)
	if err != nil {
		return 0, err
	}
	return float64(t.Year()*100 + int(t.Month())), nil
}

// HasComment reports whether the copy still retains comment id.
func (c *PostCopy) HasComment(id uint) bool {
	for _, cm := range c.Comments {
		if cm.ID == id {
			return true
		}
	}
	return false
}

// Audience is what visibility rules need to know about a post.
type Audience struct {
	Author  uint
	Circles []string
}

// Audience returns the copy's author and target circles.
func (c *PostCopy) Audience() Audience {
	return Audience{Author: c.Author.ID, Circles: c.Circles}
}
