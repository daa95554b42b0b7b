package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircleRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.AddToCircle(ctx, bob, alice, "friends"))

	aliceBefore, err := f.graph.GetUser(ctx, alice)
	require.NoError(t, err)
	bobBefore, err := f.graph.GetUser(ctx, bob)
	require.NoError(t, err)

	require.NoError(t, f.svc.AddToCircle(ctx, alice, bob, "x"))

	a, err := f.graph.GetUser(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, map[uint]string{bob: "bob"}, a.Circles["x"])
	b, err := f.graph.GetUser(ctx, bob)
	require.NoError(t, err)
	require.Contains(t, b.Followers, alice)
	assert.Equal(t, "alice", b.Followers[alice].Name)
	assert.Equal(t, []string{"x"}, b.Followers[alice].Circles)

	require.NoError(t, f.svc.RemoveFromCircle(ctx, alice, bob, "x"))

	a, err = f.graph.GetUser(ctx, alice)
	require.NoError(t, err)
	b, err = f.graph.GetUser(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, aliceBefore.Circles, a.Circles)
	assert.Equal(t, aliceBefore.Followers, a.Followers)
	assert.Equal(t, bobBefore.Circles, b.Circles)
	assert.Equal(t, bobBefore.Followers, b.Followers)
	assert.NotContains(t, b.Followers, alice)
}

func TestRemoveOneOfSeveralCircles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.AddToCircle(ctx, alice, bob, "x"))
	require.NoError(t, f.svc.AddToCircle(ctx, alice, bob, "y"))
	require.NoError(t, f.svc.RemoveFromCircle(ctx, alice, bob, "x"))

	b, err := f.graph.GetUser(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, b.CirclesOf(alice))
}

func TestGraphValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.AddToCircle(ctx, alice, 42, "x"), ErrUnknownUser)
	assert.ErrorIs(t, f.svc.AddToCircle(ctx, 42, alice, "x"), ErrUnknownUser)
	assert.ErrorIs(t, f.svc.AddToCircle(ctx, alice, bob, ""), ErrInvalidCircles)
	assert.ErrorIs(t, f.svc.AddToCircle(ctx, alice, bob, "*public*"), ErrValidation)
	assert.ErrorIs(t, f.svc.AddToCircle(ctx, alice, alice, "x"), ErrSelfRelation)
	assert.ErrorIs(t, f.svc.Block(ctx, alice, alice), ErrValidation)
	assert.ErrorIs(t, f.svc.Block(ctx, alice, 42), ErrUnknownUser)
	_, err := f.svc.EnsureUser(ctx, 0, "nobody")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBlockUnblock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Block(ctx, alice, bob))
	u, err := f.graph.GetUser(ctx, alice)
	require.NoError(t, err)
	assert.True(t, u.HasBlocked(bob))

	require.NoError(t, f.svc.Unblock(ctx, alice, bob))
	u, err = f.graph.GetUser(ctx, alice)
	require.NoError(t, err)
	assert.False(t, u.HasBlocked(bob))
}
