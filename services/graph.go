package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/cppla/circlefeed/models"
	"github.com/cppla/circlefeed/store"
)

const graphWriteRetries = 3

// AddToCircle places other in self's circle and records the reverse edge in
// other's followers map. Only future posts are affected.
func (s *FeedService) AddToCircle(ctx context.Context, selfID, otherID uint, circle string) error {
	self, other, circle, err := s.circlePair(ctx, selfID, otherID, circle)
	if err != nil {
		return err
	}
	if err := s.retryGraph(ctx, func() error {
		return s.graph.AddCircleMember(ctx, self.ID, circle, other.ID, other.Username)
	}); err != nil {
		return fmt.Errorf("%w: add circle member: %w", ErrDurability, err)
	}
	if err := s.retryGraph(ctx, func() error {
		return s.graph.AddFollowerCircle(ctx, other.ID, self.ID, self.Username, circle)
	}); err != nil {
		s.log.Error("reverse edge write failed, graph inconsistent",
			zap.Uint("self", self.ID), zap.Uint("other", other.ID), zap.String("circle", circle), zap.Error(err))
		return fmt.Errorf("%w: add follower circle: %w", ErrDurability, err)
	}
	return nil
}

// RemoveFromCircle reverses AddToCircle. A follower entry left without
// circles is deleted.
func (s *FeedService) RemoveFromCircle(ctx context.Context, selfID, otherID uint, circle string) error {
	self, other, circle, err := s.circlePair(ctx, selfID, otherID, circle)
	if err != nil {
		return err
	}
	if err := s.retryGraph(ctx, func() error {
		return s.graph.RemoveCircleMember(ctx, self.ID, circle, other.ID)
	}); err != nil {
		return fmt.Errorf("%w: remove circle member: %w", ErrDurability, err)
	}
	if err := s.retryGraph(ctx, func() error {
		return s.graph.RemoveFollowerCircle(ctx, other.ID, self.ID, circle)
	}); err != nil {
		s.log.Error("reverse edge removal failed, graph inconsistent",
			zap.Uint("self", self.ID), zap.Uint("other", other.ID), zap.String("circle", circle), zap.Error(err))
		return fmt.Errorf("%w: remove follower circle: %w", ErrDurability, err)
	}
	return nil
}

func (s *FeedService) Block(ctx context.Context, ownerID, otherID uint) error {
	if err := s.blockPair(ctx, ownerID, otherID); err != nil {
		return err
	}
	if err := s.graph.Block(ctx, ownerID, otherID); err != nil {
		return fmt.Errorf("%w: block: %w", ErrDurability, err)
	}
	return nil
}

func (s *FeedService) Unblock(ctx context.Context, ownerID, otherID uint) error {
	if err := s.blockPair(ctx, ownerID, otherID); err != nil {
		return err
	}
	if err := s.graph.Unblock(ctx, ownerID, otherID); err != nil {
		return fmt.Errorf("%w: unblock: %w", ErrDurability, err)
	}
	return nil
}

// EnsureUser provisions a graph record for an authenticated account.
func (s *FeedService) EnsureUser(ctx context.Context, id uint, name string) (*models.User, error) {
	if id == 0 {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	u, err := s.graph.EnsureUser(ctx, id, name)
	if err != nil {
		return nil, fmt.Errorf("%w: ensure user: %w", ErrDurability, err)
	}
	return u, nil
}

func (s *FeedService) circlePair(ctx context.Context, selfID, otherID uint, circle string) (*models.User, *models.User, string, error) {
	circle = strings.TrimSpace(circle)
	if circle == "" || circle == models.CirclesPublic || circle == models.CirclesAll {
		return nil, nil, "", fmt.Errorf("%w: %q", ErrInvalidCircles, circle)
	}
	if selfID == otherID {
		return nil, nil, "", ErrSelfRelation
	}
	self, err := s.lookupUser(ctx, selfID)
	if err != nil {
		return nil, nil, "", err
	}
	other, err := s.lookupUser(ctx, otherID)
	if err != nil {
		return nil, nil, "", err
	}
	return self, other, circle, nil
}

func (s *FeedService) blockPair(ctx context.Context, ownerID, otherID uint) error {
	if ownerID == otherID {
		return ErrSelfRelation
	}
	if _, err := s.lookupUser(ctx, ownerID); err != nil {
		return err
	}
	_, err := s.lookupUser(ctx, otherID)
	return err
}

// retryGraph retries transient graph store failures so the second half of a
// two-sided edit lands after the first.
func (s *FeedService) retryGraph(ctx context.Context, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), graphWriteRetries), ctx)
	return backoff.Retry(func() error {
		err := op()
		if errors.Is(err, store.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
