// Package services implements fan-out-on-write delivery of posts and comments
// into per-month feed and wall buckets, the read cursor over those buckets,
// and the sweeps that keep the cache converging on the system of record.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/circlefeed/models"
	"github.com/cppla/circlefeed/store"
)

const (
	DefaultCommentLimit = 3
	DefaultMaxAttempts  = 10
)

type Options struct {
	Graph   store.GraphStore
	Posts   store.PostStore
	Buckets store.BucketStore

	// Runner executes fan-out off the request path. Defaults to SyncRunner.
	Runner Runner
	Logger *zap.Logger

	// CommentLimit is the number of comments truncation keeps per copy.
	CommentLimit int
	// MaxAttempts bounds how often an outbox task is retried before it is
	// abandoned.
	MaxAttempts int
	// Now supplies timestamps for new posts and comments.
	Now func() time.Time
}

type FeedService struct {
	graph   store.GraphStore
	posts   store.PostStore
	buckets store.BucketStore
	runner  Runner
	log     *zap.Logger

	commentLimit int
	maxAttempts  int
	now          func() time.Time
}

func NewFeedService(opts Options) *FeedService {
	s := &FeedService{
		graph:        opts.Graph,
		posts:        opts.Posts,
		buckets:      opts.Buckets,
		runner:       opts.Runner,
		log:          opts.Logger,
		commentLimit: opts.CommentLimit,
		maxAttempts:  opts.MaxAttempts,
		now:          opts.Now,
	}
	if s.runner == nil {
		s.runner = SyncRunner{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.commentLimit <= 0 {
		s.commentLimit = DefaultCommentLimit
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = DefaultMaxAttempts
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// CommentLimit is the configured truncation limit.
func (s *FeedService) CommentLimit() int { return s.commentLimit }

func (s *FeedService) lookupUser(ctx context.Context, id uint) (*models.User, error) {
	u, err := s.graph.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownUser, id)
		}
		return nil, err
	}
	return u, nil
}
