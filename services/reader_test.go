package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/circlefeed/models"
)

func entryIDs(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Post.PostID)
	}
	return out
}

func TestGetPostsOrder(t *testing.T) {
	f := newFixture(t)
	f.team(t)
	ctx := context.Background()

	var published []string
	for _, ts := range []time.Time{
		time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
	} {
		f.clock.Set(ts)
		published = append(published, f.publish(t, alice, "team"))
	}

	cur, err := f.svc.GetPosts(ctx, models.KindFeed, bob, bob, "")
	require.NoError(t, err)
	entries := drain(t, cur)

	want := []string{published[4], published[3], published[2], published[1], published[0]}
	assert.Equal(t, want, entryIDs(entries))
	assert.Equal(t, []string{"2024-03", "2024-03", "2024-02", "2024-01", "2024-01"},
		[]string{entries[0].Month, entries[1].Month, entries[2].Month, entries[3].Month, entries[4].Month})

	// restart from an inclusive month bound
	cur, err = f.svc.GetPosts(ctx, models.KindFeed, bob, bob, "2024-02")
	require.NoError(t, err)
	assert.Equal(t, want[2:], entryIDs(drain(t, cur)))

	cur, err = f.svc.GetPosts(ctx, models.KindFeed, bob, bob, "2023-12")
	require.NoError(t, err)
	assert.Empty(t, drain(t, cur))
}

func TestGetPostsFiltersByViewer(t *testing.T) {
	f := newFixture(t)
	f.team(t)
	ctx := context.Background()
	require.NoError(t, f.svc.AddToCircle(ctx, alice, bob, "close"))

	teamPost := f.publish(t, alice, "team")
	closePost := f.publish(t, alice, "close")
	publicPost := f.publish(t, alice, models.CirclesPublic)

	// alice reading her own wall sees everything
	cur, err := f.svc.GetPosts(ctx, models.KindWall, alice, alice, "")
	require.NoError(t, err)
	assert.Equal(t, []string{publicPost, closePost, teamPost}, entryIDs(drain(t, cur)))

	cur, err = f.svc.GetPosts(ctx, models.KindWall, alice, carol, "")
	require.NoError(t, err)
	assert.Equal(t, []string{publicPost, teamPost}, entryIDs(drain(t, cur)))

	cur, err = f.svc.GetPosts(ctx, models.KindWall, alice, dave, "")
	require.NoError(t, err)
	assert.Equal(t, []string{publicPost}, entryIDs(drain(t, cur)))
}

// An author is never in their own circles, so only the self-view rule lets
// them read back what they wrote on someone else's wall.
func TestGetPostsShowsAuthorTheirOwnWallPost(t *testing.T) {
	f := newFixture(t)
	f.team(t)
	ctx := context.Background()

	onDave, err := f.svc.Publish(ctx, PublishRequest{AuthorID: alice, WallOwnerID: dave, Circles: []string{"team"}, Type: "status"})
	require.NoError(t, err)

	author, err := f.graph.GetUser(ctx, alice)
	require.NoError(t, err)
	assert.False(t, IsVisible(author, models.Audience{Author: alice, Circles: []string{"team"}}))

	cur, err := f.svc.GetPosts(ctx, models.KindWall, dave, alice, "")
	require.NoError(t, err)
	assert.Equal(t, []string{onDave}, entryIDs(drain(t, cur)))

	cur, err = f.svc.GetPosts(ctx, models.KindWall, dave, bob, "")
	require.NoError(t, err)
	assert.Equal(t, []string{onDave}, entryIDs(drain(t, cur)))

	// dave owns the wall but is outside the target circle
	cur, err = f.svc.GetPosts(ctx, models.KindWall, dave, dave, "")
	require.NoError(t, err)
	assert.Empty(t, drain(t, cur))
}

func TestGetPostsValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetPosts(ctx, models.KindFeed, bob, bob, "2024-13")
	assert.ErrorIs(t, err, ErrInvalidMonth)
	_, err = f.svc.GetPosts(ctx, models.KindFeed, 42, bob, "")
	assert.ErrorIs(t, err, ErrUnknownUser)
	_, err = f.svc.GetPosts(ctx, models.KindFeed, bob, 42, "")
	assert.ErrorIs(t, err, ErrUnknownUser)
	_, err = f.svc.GetPosts(ctx, "inbox", bob, bob, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestIncomingHidesBlockedAuthors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.AddToCircle(ctx, alice, bob, "team"))
	require.NoError(t, f.svc.AddToCircle(ctx, carol, bob, "team"))

	fromAlice, err := f.svc.Publish(ctx, PublishRequest{AuthorID: alice, WallOwnerID: dave, Circles: []string{"team"}, Type: "status"})
	require.NoError(t, err)
	fromCarol, err := f.svc.Publish(ctx, PublishRequest{AuthorID: carol, WallOwnerID: dave, Circles: []string{"team"}, Type: "status"})
	require.NoError(t, err)

	cur, err := f.svc.Incoming(ctx, dave, "")
	require.NoError(t, err)
	assert.Equal(t, []string{fromCarol, fromAlice}, entryIDs(drain(t, cur)))

	require.NoError(t, f.svc.Block(ctx, dave, carol))
	cur, err = f.svc.Incoming(ctx, dave, "")
	require.NoError(t, err)
	assert.Equal(t, []string{fromAlice}, entryIDs(drain(t, cur)))
}

func TestGetPostChecksVisibility(t *testing.T) {
	f := newFixture(t)
	f.team(t)
	ctx := context.Background()
	id := f.publish(t, alice, "team")

	post, err := f.svc.GetPost(ctx, id, bob)
	require.NoError(t, err)
	assert.Equal(t, id, post.ID)

	_, err = f.svc.GetPost(ctx, id, alice)
	require.NoError(t, err)

	_, err = f.svc.GetPost(ctx, id, dave)
	assert.ErrorIs(t, err, ErrUnknownPost)
}
