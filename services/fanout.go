package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/cppla/circlefeed/metrics"
	"github.com/cppla/circlefeed/models"
	"github.com/cppla/circlefeed/store"
)

type PublishRequest struct {
	AuthorID uint
	// WallOwnerID is the wall the post is written on. Zero means the author's
	// own wall.
	WallOwnerID uint
	// Circles lists target circle names, or holds a single sentinel.
	Circles []string
	Type    string
	Detail  map[string]any
}

// Publish persists the post together with its outbox task and hands the
// delivery to the runner. The returned id is valid as soon as the durable
// write succeeded; bucket delivery may still be in flight.
func (s *FeedService) Publish(ctx context.Context, req PublishRequest) (string, error) {
	if strings.TrimSpace(req.Type) == "" {
		return "", fmt.Errorf("%w: post type is required", ErrValidation)
	}
	author, err := s.lookupUser(ctx, req.AuthorID)
	if err != nil {
		return "", err
	}
	circles, recipients, err := resolveRecipients(author, req.Circles)
	if err != nil {
		return "", err
	}

	wallOwner := author.ID
	if req.WallOwnerID != 0 && req.WallOwnerID != author.ID {
		owner, err := s.lookupUser(ctx, req.WallOwnerID)
		if err != nil {
			return "", err
		}
		wallOwner = owner.ID
		if owner.HasBlocked(author.ID) {
			s.log.Info("wall owner blocked author, skipping wall delivery",
				zap.Uint("author", author.ID), zap.Uint("wall_owner", owner.ID))
			wallOwner = 0
		}
	}

	post := &models.Post{
		AuthorID:   author.ID,
		AuthorName: author.Username,
		Circles:    circles,
		Type:       req.Type,
		Detail:     req.Detail,
		CreatedAt:  s.now(),
	}
	task := &models.FanoutTask{
		Kind:        models.TaskKindPost,
		WallOwnerID: wallOwner,
		Recipients:  recipients,
	}
	if err := s.posts.CreatePost(ctx, post, task); err != nil {
		return "", fmt.Errorf("%w: create post: %w", ErrDurability, err)
	}
	s.log.Debug("post stored", zap.String("post", post.ID), zap.Uint("author", author.ID),
		zap.Int("recipients", len(recipients)))

	s.dispatch(*task)
	return post.ID, nil
}

// resolveRecipients validates the circle list and expands it into the set of
// feed owners. The author is never a recipient of their own post.
func resolveRecipients(author *models.User, circles []string) ([]string, []uint, error) {
	if len(circles) == 0 {
		return nil, nil, fmt.Errorf("%w: no circles given", ErrInvalidCircles)
	}
	set := map[uint]struct{}{}
	switch {
	case isSentinel(circles, models.CirclesPublic):
		for id := range author.Followers {
			set[id] = struct{}{}
		}
	case isSentinel(circles, models.CirclesAll):
		for _, members := range author.Circles {
			for id := range members {
				set[id] = struct{}{}
			}
		}
	default:
		names := make([]string, 0, len(circles))
		seen := map[string]struct{}{}
		for _, name := range circles {
			name = strings.TrimSpace(name)
			if name == "" || name == models.CirclesPublic || name == models.CirclesAll {
				return nil, nil, fmt.Errorf("%w: %q", ErrInvalidCircles, name)
			}
			members, ok := author.Circles[name]
			if !ok {
				return nil, nil, fmt.Errorf("%w: %q", ErrUnknownCircle, name)
			}
			for id := range members {
				set[id] = struct{}{}
			}
			if _, dup := seen[name]; !dup {
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
		circles = names
	}
	delete(set, author.ID)

	recipients := make([]uint, 0, len(set))
	for id := range set {
		recipients = append(recipients, id)
	}
	sort.Slice(recipients, func(i, j int) bool { return recipients[i] < recipients[j] })
	return circles, recipients, nil
}

// deliverPost writes the copy into the wall bucket and every recipient feed.
// Owners are written independently; one failure does not stop the others.
func (s *FeedService) deliverPost(ctx context.Context, post *models.Post, task *models.FanoutTask) error {
	// redelivery carries every authoritative comment; truncation trims it
	cp := post.Copy(0)
	var result *multierror.Error

	if task.WallOwnerID != 0 {
		if err := s.buckets.AppendPost(ctx, models.KindWall, task.WallOwnerID, post.Month, cp); err != nil {
			metrics.BucketDeliveries.WithLabelValues(string(models.KindWall), "failed").Inc()
			result = multierror.Append(result, &store.DeliveryError{Owner: task.WallOwnerID, Err: err})
		} else {
			metrics.BucketDeliveries.WithLabelValues(string(models.KindWall), "ok").Inc()
		}
	}

	if len(task.Recipients) > 0 {
		failed := 0
		if err := s.buckets.AppendPosts(ctx, models.KindFeed, task.Recipients, post.Month, cp); err != nil {
			var merr *multierror.Error
			if errors.As(err, &merr) {
				failed = len(merr.Errors)
			} else {
				failed = len(task.Recipients)
			}
			result = multierror.Append(result, err)
		}
		metrics.BucketDeliveries.WithLabelValues(string(models.KindFeed), "ok").Add(float64(len(task.Recipients) - failed))
		metrics.BucketDeliveries.WithLabelValues(string(models.KindFeed), "failed").Add(float64(failed))
	}

	if err := s.catchUpComments(ctx, post); err != nil {
		result = multierror.Append(result, err)
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", ErrPropagation, err)
	}
	return nil
}

// catchUpComments appends comments that reached the post after snapshot was
// loaded. Their own propagation may have run before these copies existed and
// found nothing to update.
func (s *FeedService) catchUpComments(ctx context.Context, snapshot *models.Post) error {
	var last uint
	for _, c := range snapshot.Comments {
		if c.ID > last {
			last = c.ID
		}
	}
	latest, err := s.posts.GetPost(ctx, snapshot.ID)
	if err != nil {
		return fmt.Errorf("reload post: %w", err)
	}
	var fresh []models.CommentSnapshot
	for i := range latest.Comments {
		if latest.Comments[i].ID > last {
			fresh = append(fresh, latest.Comments[i].Snapshot())
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	refs, err := s.buckets.FindCopies(ctx, latest.ID)
	if err != nil {
		return fmt.Errorf("find copies: %w", err)
	}
	var result *multierror.Error
	for _, ref := range refs {
		for _, c := range fresh {
			err := s.buckets.AppendComment(ctx, ref, c)
			switch {
			case err == nil:
				metrics.CommentPropagations.WithLabelValues("caught_up").Inc()
			case errors.Is(err, store.ErrNotFound):
			default:
				metrics.CommentPropagations.WithLabelValues("failed").Inc()
				result = multierror.Append(result, fmt.Errorf("copy %s: %w", ref, err))
			}
		}
	}
	s.log.Debug("late comments caught up", zap.String("post", latest.ID),
		zap.Int("comments", len(fresh)), zap.Int("copies", len(refs)))
	return result.ErrorOrNil()
}
