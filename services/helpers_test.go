package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cppla/circlefeed/models"
	"github.com/cppla/circlefeed/store"
)

const (
	alice uint = iota + 1
	bob
	carol
	dave
)

var errInjected = errors.New("injected failure")

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fixture struct {
	svc     *FeedService
	graph   *store.MemoryGraph
	posts   *store.MemoryPosts
	buckets *flakyBuckets
	clock   *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		graph:   store.NewMemoryGraph(),
		posts:   store.NewMemoryPosts(),
		buckets: newFlakyBuckets(),
		clock:   &testClock{t: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)},
	}
	f.svc = NewFeedService(Options{
		Graph:        f.graph,
		Posts:        f.posts,
		Buckets:      f.buckets,
		Logger:       zaptest.NewLogger(t),
		CommentLimit: 3,
		MaxAttempts:  3,
		Now:          f.clock.Now,
	})
	ctx := context.Background()
	for id, name := range map[uint]string{alice: "alice", bob: "bob", carol: "carol", dave: "dave"} {
		_, err := f.svc.EnsureUser(ctx, id, name)
		require.NoError(t, err)
	}
	return f
}

// team puts bob and carol into alice's "team" circle.
func (f *fixture) team(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.svc.AddToCircle(ctx, alice, bob, "team"))
	require.NoError(t, f.svc.AddToCircle(ctx, alice, carol, "team"))
}

func (f *fixture) publish(t *testing.T, author uint, circles ...string) string {
	t.Helper()
	id, err := f.svc.Publish(context.Background(), PublishRequest{
		AuthorID: author,
		Circles:  circles,
		Type:     "status",
		Detail:   map[string]any{"text": "hi"},
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) copyOf(t *testing.T, kind models.BucketKind, owner uint, postID string) (models.PostCopy, bool) {
	t.Helper()
	months, err := f.buckets.Months(context.Background(), kind, owner)
	require.NoError(t, err)
	for _, m := range months {
		b, err := f.buckets.GetBucket(context.Background(), kind, owner, m)
		require.NoError(t, err)
		for _, p := range b.Posts {
			if p.PostID == postID {
				return p, true
			}
		}
	}
	return models.PostCopy{}, false
}

func drain(t *testing.T, c *Cursor) []Entry {
	t.Helper()
	var out []Entry
	for c.Next(context.Background()) {
		out = append(out, c.Entry())
	}
	require.NoError(t, c.Err())
	return out
}

// flakyBuckets fails writes for selected owners until healed.
type flakyBuckets struct {
	*store.MemoryBuckets

	mu       sync.Mutex
	failFeed map[uint]bool
	failAll  bool
	appends  int

	// beforeFeeds runs once at the start of the next batched feed delivery.
	beforeFeeds func()
}

func newFlakyBuckets() *flakyBuckets {
	return &flakyBuckets{MemoryBuckets: store.NewMemoryBuckets(), failFeed: map[uint]bool{}}
}

func (b *flakyBuckets) failOwner(owner uint) {
	b.mu.Lock()
	b.failFeed[owner] = true
	b.mu.Unlock()
}

func (b *flakyBuckets) setFailAll(v bool) {
	b.mu.Lock()
	b.failAll = v
	b.mu.Unlock()
}

func (b *flakyBuckets) heal() {
	b.mu.Lock()
	b.failFeed = map[uint]bool{}
	b.failAll = false
	b.mu.Unlock()
}

func (b *flakyBuckets) shouldFail(owner uint) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failAll || b.failFeed[owner]
}

func (b *flakyBuckets) AppendPost(ctx context.Context, kind models.BucketKind, owner uint, month string, cp models.PostCopy) error {
	if b.shouldFail(owner) {
		return errInjected
	}
	b.mu.Lock()
	b.appends++
	b.mu.Unlock()
	return b.MemoryBuckets.AppendPost(ctx, kind, owner, month, cp)
}

func (b *flakyBuckets) AppendPosts(ctx context.Context, kind models.BucketKind, owners []uint, month string, cp models.PostCopy) error {
	b.mu.Lock()
	hook := b.beforeFeeds
	b.beforeFeeds = nil
	b.mu.Unlock()
	if hook != nil {
		hook()
	}

	var result *multierror.Error
	for _, owner := range owners {
		if err := b.AppendPost(ctx, kind, owner, month, cp); err != nil {
			result = multierror.Append(result, &store.DeliveryError{Owner: owner, Err: err})
		}
	}
	return result.ErrorOrNil()
}

func (b *flakyBuckets) AppendComment(ctx context.Context, ref models.CopyRef, c models.CommentSnapshot) error {
	if b.shouldFail(ref.Owner) {
		return errInjected
	}
	return b.MemoryBuckets.AppendComment(ctx, ref, c)
}

func (b *flakyBuckets) appendCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appends
}

// failingPosts rejects every durable write.
type failingPosts struct {
	*store.MemoryPosts
}

func (failingPosts) CreatePost(context.Context, *models.Post, *models.FanoutTask) error {
	return errInjected
}

func (failingPosts) AppendComment(context.Context, *models.Comment, *models.FanoutTask) error {
	return errInjected
}
