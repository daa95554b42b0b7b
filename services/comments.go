package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/cppla/circlefeed/metrics"
	"github.com/cppla/circlefeed/models"
	"github.com/cppla/circlefeed/store"
)

// AddComment appends to the post's authoritative comment sequence and queues
// propagation to every cached copy.
func (s *FeedService) AddComment(ctx context.Context, postID string, authorID uint, text string) (*models.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyComment
	}
	author, err := s.lookupUser(ctx, authorID)
	if err != nil {
		return nil, err
	}

	comment := &models.Comment{
		PostID:     postID,
		AuthorID:   author.ID,
		AuthorName: author.Username,
		Text:       text,
		CreatedAt:  s.now().UTC(),
	}
	task := &models.FanoutTask{Kind: models.TaskKindComment}
	if err := s.posts.AppendComment(ctx, comment, task); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPost, postID)
		}
		return nil, fmt.Errorf("%w: append comment: %w", ErrDurability, err)
	}

	s.dispatch(*task)
	return comment, nil
}

// propagateComment appends the comment to every copy found through the
// post-id index. Copies that already hold it are left alone by the store.
func (s *FeedService) propagateComment(ctx context.Context, post *models.Post, commentID uint) error {
	c, ok := post.FindComment(commentID)
	if !ok {
		return fmt.Errorf("comment %d not found on post %s", commentID, post.ID)
	}
	refs, err := s.buckets.FindCopies(ctx, post.ID)
	if err != nil {
		return fmt.Errorf("%w: find copies: %w", ErrPropagation, err)
	}

	snap := c.Snapshot()
	var result *multierror.Error
	for _, ref := range refs {
		if err := s.buckets.AppendComment(ctx, ref, snap); err != nil {
			metrics.CommentPropagations.WithLabelValues("failed").Inc()
			result = multierror.Append(result, fmt.Errorf("copy %s: %w", ref, err))
			continue
		}
		metrics.CommentPropagations.WithLabelValues("ok").Inc()
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", ErrPropagation, err)
	}
	return nil
}

// TruncateOverflow pops the oldest retained comment from every copy holding
// more than limit comments. A single call removes at most one comment per
// copy, so repeated runs converge on the limit. It returns the number of
// comments removed.
func (s *FeedService) TruncateOverflow(ctx context.Context, limit int) (int, error) {
	if limit < 0 {
		return 0, fmt.Errorf("%w: negative comment limit %d", ErrValidation, limit)
	}
	refs, err := s.buckets.FindOverflow(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("%w: find overflow: %w", ErrPropagation, err)
	}

	popped := 0
	var result *multierror.Error
	for _, ref := range refs {
		if err := s.buckets.PopOldestComment(ctx, ref); err != nil {
			s.log.Warn("truncate copy failed", zap.Stringer("copy", ref), zap.Error(err))
			result = multierror.Append(result, fmt.Errorf("copy %s: %w", ref, err))
			continue
		}
		popped++
	}
	metrics.TruncatedComments.Add(float64(popped))
	if err := result.ErrorOrNil(); err != nil {
		return popped, fmt.Errorf("%w: %w", ErrPropagation, err)
	}
	return popped, nil
}
