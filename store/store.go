// Package store defines the storage primitives the feed services run on and
// their Redis, GORM and in-memory implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cppla/circlefeed/models"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

// GraphStore holds users with their follower, circle and block maps.
type GraphStore interface {
	// GetUser loads a user with all graph maps populated.
	GetUser(ctx context.Context, id uint) (*models.User, error)
	// EnsureUser creates the user record when it does not exist yet.
	EnsureUser(ctx context.Context, id uint, name string) (*models.User, error)

	AddCircleMember(ctx context.Context, owner uint, circle string, member uint, memberName string) error
	RemoveCircleMember(ctx context.Context, owner uint, circle string, member uint) error

	// AddFollowerCircle records in owner's followers map that follower placed
	// owner in circle, creating the entry when absent.
	AddFollowerCircle(ctx context.Context, owner, follower uint, followerName, circle string) error
	// RemoveFollowerCircle removes circle from the entry and deletes the
	// entry once no circles remain.
	RemoveFollowerCircle(ctx context.Context, owner, follower uint, circle string) error

	Block(ctx context.Context, owner, blocked uint) error
	Unblock(ctx context.Context, owner, blocked uint) error
}

// PostStore is the system of record for posts, comments and their outbox tasks.
type PostStore interface {
	// CreatePost persists post and task together. The post is stamped and the
	// task receives the post id and month.
	CreatePost(ctx context.Context, post *models.Post, task *models.FanoutTask) error
	// GetPost loads a post with its comments in arrival order.
	GetPost(ctx context.Context, id string) (*models.Post, error)
	// AppendComment appends to the post's comment sequence and persists task
	// in the same write. Returns ErrNotFound when the post does not exist.
	AppendComment(ctx context.Context, comment *models.Comment, task *models.FanoutTask) error

	// PendingTasks returns pending or failed tasks last touched before cutoff.
	PendingTasks(ctx context.Context, cutoff time.Time, limit int) ([]models.FanoutTask, error)
	UpdateTask(ctx context.Context, task *models.FanoutTask) error
}

// BucketStore holds the per-owner, per-month feed and wall buckets.
type BucketStore interface {
	// AppendPost adds cp to the bucket, creating it when needed. Delivering a
	// post that is already in the bucket is a no-op.
	AppendPost(ctx context.Context, kind models.BucketKind, owner uint, month string, cp models.PostCopy) error
	// AppendPosts delivers cp to many owners as one batch. Failures are
	// reported per owner as *DeliveryError values inside a multierror; the
	// other owners are still written.
	AppendPosts(ctx context.Context, kind models.BucketKind, owners []uint, month string, cp models.PostCopy) error

	// Months lists the owner's bucket months, newest first.
	Months(ctx context.Context, kind models.BucketKind, owner uint) ([]string, error)
	// GetBucket returns ErrNotFound when no post was ever delivered there.
	GetBucket(ctx context.Context, kind models.BucketKind, owner uint, month string) (*models.Bucket, error)

	// FindCopies locates every cached copy of a post.
	FindCopies(ctx context.Context, postID string) ([]models.CopyRef, error)
	// AppendComment appends c to the copy and increments its shown counter.
	// A comment the copy already received is skipped.
	AppendComment(ctx context.Context, ref models.CopyRef, c models.CommentSnapshot) error

	// FindOverflow lists copies whose shown counter exceeds limit.
	FindOverflow(ctx context.Context, limit int) ([]models.CopyRef, error)
	// PopOldestComment removes the oldest retained comment of the copy and
	// decrements its counter.
	PopOldestComment(ctx context.Context, ref models.CopyRef) error
}

// DeliveryError is the failure of a single owner inside a batched delivery.
type DeliveryError struct {
	Owner uint
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to owner %d: %v", e.Owner, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
