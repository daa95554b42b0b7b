package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/cppla/circlefeed/models"
	"github.com/cppla/circlefeed/store"
)

// Entry is one post yielded by a Cursor.
type Entry struct {
	Month string
	Post  models.PostCopy
}

// Cursor walks an owner's buckets from the newest month to the oldest and,
// inside a month, from the newest post to the oldest. Buckets are fetched one
// at a time as the walk reaches them.
type Cursor struct {
	buckets store.BucketStore
	kind    models.BucketKind
	owner   uint
	before  string
	filter  func(models.Audience) bool

	months  []string
	started bool
	month   string
	posts   []models.PostCopy
	pos     int

	cur Entry
	err error
}

// Next advances to the next visible post. It returns false when the walk is
// finished or failed; check Err afterwards.
func (c *Cursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if !c.started {
		c.started = true
		months, err := c.buckets.Months(ctx, c.kind, c.owner)
		if err != nil {
			c.err = err
			return false
		}
		for _, m := range months {
			if c.before == "" || m <= c.before {
				c.months = append(c.months, m)
			}
		}
	}
	for {
		for c.pos > 0 {
			c.pos--
			p := c.posts[c.pos]
			if c.filter(p.Audience()) {
				c.cur = Entry{Month: c.month, Post: p}
				return true
			}
		}
		if len(c.months) == 0 {
			return false
		}
		month := c.months[0]
		c.months = c.months[1:]
		b, err := c.buckets.GetBucket(ctx, c.kind, c.owner, month)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			c.err = fmt.Errorf("load bucket %s: %w", month, err)
			return false
		}
		c.month = month
		c.posts = b.Posts
		c.pos = len(b.Posts)
	}
}

func (c *Cursor) Entry() Entry { return c.cur }

func (c *Cursor) Err() error { return c.err }

// GetPosts opens a cursor over owner's feed or wall as seen by viewer. before
// is an optional "YYYY-MM" bound; that month itself is included. A viewer
// always sees their own posts.
func (s *FeedService) GetPosts(ctx context.Context, kind models.BucketKind, ownerID, viewerID uint, before string) (*Cursor, error) {
	if kind != models.KindFeed && kind != models.KindWall {
		return nil, fmt.Errorf("%w: unknown bucket kind %q", ErrValidation, kind)
	}
	if err := validMonth(before); err != nil {
		return nil, err
	}
	if _, err := s.lookupUser(ctx, ownerID); err != nil {
		return nil, err
	}
	viewer, err := s.lookupUser(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	return &Cursor{
		buckets: s.buckets,
		kind:    kind,
		owner:   ownerID,
		before:  before,
		filter: func(a models.Audience) bool {
			return a.Author == viewer.ID || IsVisible(viewer, a)
		},
	}, nil
}

// Incoming opens a cursor over everything written on owner's wall, hiding
// only posts by authors the owner blocked.
func (s *FeedService) Incoming(ctx context.Context, ownerID uint, before string) (*Cursor, error) {
	if err := validMonth(before); err != nil {
		return nil, err
	}
	owner, err := s.lookupUser(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return &Cursor{
		buckets: s.buckets,
		kind:    models.KindWall,
		owner:   ownerID,
		before:  before,
		filter: func(a models.Audience) bool {
			return VisibleIncoming(owner, a)
		},
	}, nil
}

// GetPost returns the system-of-record post when viewer may see it.
func (s *FeedService) GetPost(ctx context.Context, postID string, viewerID uint) (*models.Post, error) {
	viewer, err := s.lookupUser(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPost, postID)
		}
		return nil, err
	}
	if !canView(viewer, post) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPost, postID)
	}
	return post, nil
}

// CheckVisible applies GetPost's visibility rule to a post obtained
// elsewhere, such as a cache. Hidden posts report ErrUnknownPost.
func (s *FeedService) CheckVisible(ctx context.Context, post *models.Post, viewerID uint) error {
	viewer, err := s.lookupUser(ctx, viewerID)
	if err != nil {
		return err
	}
	if !canView(viewer, post) {
		return fmt.Errorf("%w: %s", ErrUnknownPost, post.ID)
	}
	return nil
}

func canView(viewer *models.User, post *models.Post) bool {
	return post.AuthorID == viewer.ID || IsVisible(viewer, post.Audience())
}

func validMonth(month string) error {
	if month == "" {
		return nil
	}
	if _, err := models.ParseMonth(month); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidMonth, month)
	}
	return nil
}
