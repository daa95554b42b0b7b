package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/circlefeed/models"
)

func newRedisBuckets(t *testing.T) *RedisBuckets {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return NewRedisBuckets(rc, "test")
}

func bucketStores(t *testing.T) map[string]BucketStore {
	return map[string]BucketStore{
		"memory": NewMemoryBuckets(),
		"redis":  newRedisBuckets(t),
	}
}

func testCopy(id string, comments ...models.CommentSnapshot) models.PostCopy {
	return models.PostCopy{
		PostID:    id,
		Author:    models.AuthorRef{ID: 1, Name: "alice"},
		Circles:   []string{"team"},
		Type:      "status",
		Detail:    map[string]any{"text": "hi " + id},
		CreatedAt: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
		Comments:  comments,
	}
}

func snap(id uint, text string) models.CommentSnapshot {
	return models.CommentSnapshot{
		ID:        id,
		Author:    models.AuthorRef{ID: 2, Name: "bob"},
		Text:      text,
		CreatedAt: time.Date(2024, 3, 10, 13, 0, int(id), 0, time.UTC),
	}
}

func TestBucketStoreAppendAndRead(t *testing.T) {
	ctx := context.Background()
	for name, s := range bucketStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.AppendPost(ctx, models.KindFeed, 7, "2024-03", testCopy("p1")))
			require.NoError(t, s.AppendPost(ctx, models.KindFeed, 7, "2024-03", testCopy("p2")))
			require.NoError(t, s.AppendPost(ctx, models.KindFeed, 7, "2024-01", testCopy("p0")))
			// redelivery is a no-op
			require.NoError(t, s.AppendPost(ctx, models.KindFeed, 7, "2024-03", testCopy("p1")))

			months, err := s.Months(ctx, models.KindFeed, 7)
			require.NoError(t, err)
			assert.Equal(t, []string{"2024-03", "2024-01"}, months)

			b, err := s.GetBucket(ctx, models.KindFeed, 7, "2024-03")
			require.NoError(t, err)
			require.Len(t, b.Posts, 2)
			assert.Equal(t, "p1", b.Posts[0].PostID)
			assert.Equal(t, "p2", b.Posts[1].PostID)
			assert.Equal(t, "hi p1", b.Posts[0].Detail["text"])
			assert.Equal(t, models.AuthorRef{ID: 1, Name: "alice"}, b.Posts[0].Author)

			_, err = s.GetBucket(ctx, models.KindWall, 7, "2024-03")
			assert.ErrorIs(t, err, ErrNotFound)

			empty, err := s.Months(ctx, models.KindWall, 7)
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestBucketStoreInvalidMonth(t *testing.T) {
	ctx := context.Background()
	for name, s := range bucketStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, s.AppendPost(ctx, models.KindFeed, 1, "March", testCopy("p1")))
		})
	}
}

func TestBucketStoreAppendPostsBatch(t *testing.T) {
	ctx := context.Background()
	for name, s := range bucketStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.AppendPosts(ctx, models.KindFeed, []uint{2, 3, 4}, "2024-03", testCopy("p1")))
			for _, owner := range []uint{2, 3, 4} {
				b, err := s.GetBucket(ctx, models.KindFeed, owner, "2024-03")
				require.NoError(t, err)
				require.Len(t, b.Posts, 1)
			}
			refs, err := s.FindCopies(ctx, "p1")
			require.NoError(t, err)
			assert.Len(t, refs, 3)

			err = s.AppendPosts(ctx, models.KindFeed, []uint{5, 6}, "bad", testCopy("p2"))
			require.Error(t, err)
			var merr *multierror.Error
			require.True(t, errors.As(err, &merr))
			var derr *DeliveryError
			require.True(t, errors.As(merr.Errors[0], &derr))
		})
	}
}

func TestBucketStoreCommentsAndTruncation(t *testing.T) {
	ctx := context.Background()
	for name, s := range bucketStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.AppendPost(ctx, models.KindFeed, 2, "2024-03", testCopy("p1")))
			require.NoError(t, s.AppendPost(ctx, models.KindWall, 1, "2024-03", testCopy("p1")))
			refs, err := s.FindCopies(ctx, "p1")
			require.NoError(t, err)
			require.Len(t, refs, 2)

			for i := uint(1); i <= 5; i++ {
				for _, ref := range refs {
					require.NoError(t, s.AppendComment(ctx, ref, snap(i, "c")))
				}
			}
			// duplicate delivery is skipped
			require.NoError(t, s.AppendComment(ctx, refs[0], snap(5, "c")))

			b, err := s.GetBucket(ctx, models.KindFeed, 2, "2024-03")
			require.NoError(t, err)
			assert.Equal(t, 5, b.Posts[0].CommentsShown)
			assert.Len(t, b.Posts[0].Comments, 5)

			over, err := s.FindOverflow(ctx, 3)
			require.NoError(t, err)
			assert.ElementsMatch(t, refs, over)

			require.NoError(t, s.PopOldestComment(ctx, over[0]))
			b, err = s.GetBucket(ctx, over[0].Kind, over[0].Owner, over[0].Month)
			require.NoError(t, err)
			assert.Equal(t, 4, b.Posts[0].CommentsShown)
			require.Len(t, b.Posts[0].Comments, 4)
			assert.Equal(t, uint(2), b.Posts[0].Comments[0].ID)

			over, err = s.FindOverflow(ctx, 4)
			require.NoError(t, err)
			assert.Len(t, over, 1)

			missing := models.CopyRef{Kind: models.KindFeed, Owner: 9, Month: "2024-03", PostID: "p1"}
			assert.ErrorIs(t, s.AppendComment(ctx, missing, snap(6, "c")), ErrNotFound)
		})
	}
}

func TestBucketStoreInitialComments(t *testing.T) {
	ctx := context.Background()
	for name, s := range bucketStores(t) {
		t.Run(name, func(t *testing.T) {
			cp := testCopy("p1", snap(1, "a"), snap(2, "b"))
			require.NoError(t, s.AppendPost(ctx, models.KindFeed, 2, "2024-03", cp))
			ref := models.CopyRef{Kind: models.KindFeed, Owner: 2, Month: "2024-03", PostID: "p1"}

			// already carried by the delivered copy
			require.NoError(t, s.AppendComment(ctx, ref, snap(2, "b")))

			b, err := s.GetBucket(ctx, models.KindFeed, 2, "2024-03")
			require.NoError(t, err)
			assert.Equal(t, 2, b.Posts[0].CommentsShown)
			assert.Equal(t, "a", b.Posts[0].Comments[0].Text)
			assert.Equal(t, "b", b.Posts[0].Comments[1].Text)
		})
	}
}

func TestRedisBatchLoadsScriptOnce(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	s := NewRedisBuckets(rc, "test")

	// empty script cache: every owner gets NOSCRIPT and is resent with the source
	require.NoError(t, s.AppendPosts(ctx, models.KindFeed, []uint{1, 2, 3}, "2024-03", testCopy("p1")))
	loaded, err := rc.ScriptExists(ctx, appendPostScript.Hash()).Result()
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, loaded)

	require.NoError(t, s.AppendPosts(ctx, models.KindFeed, []uint{1, 2, 3}, "2024-03", testCopy("p2")))
	require.NoError(t, rc.ScriptFlush(ctx).Err())
	require.NoError(t, s.AppendPosts(ctx, models.KindFeed, []uint{3, 4}, "2024-03", testCopy("p3")))

	for owner, want := range map[uint]int{1: 2, 2: 2, 3: 3, 4: 1} {
		b, err := s.GetBucket(ctx, models.KindFeed, owner, "2024-03")
		require.NoError(t, err)
		assert.Len(t, b.Posts, want, "owner %d", owner)
	}
	refs, err := s.FindCopies(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, refs, 3)
}
