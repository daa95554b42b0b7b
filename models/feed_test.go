package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMonthHelpers(t *testing.T) {
	ts := time.Date(2024, time.January, 31, 23, 30, 0, 0, time.FixedZone("x", -2*3600))
	require.Equal(t, "2024-02", MonthOf(ts))

	prev, err := PrevMonth("2024-01")
	require.NoError(t, err)
	require.Equal(t, "2023-12", prev)

	score, err := MonthScore("2024-03")
	require.NoError(t, err)
	require.Equal(t, float64(202403), score)

	_, err = PrevMonth("March")
	require.Error(t, err)
}

func TestCopyRefRoundTrip(t *testing.T) {
	ref := CopyRef{Kind: KindWall, Owner: 42, Month: "2024-05", PostID: "abc-def"}
	got, err := ParseCopyRef(ref.String())
	require.NoError(t, err)
	require.Equal(t, ref, got)

	_, err = ParseCopyRef("feed|x|2024-05|p")
	require.Error(t, err)
	_, err = ParseCopyRef("inbox|1|2024-05|p")
	require.Error(t, err)
	_, err = ParseCopyRef("feed|1")
	require.Error(t, err)
}

func TestPostCopyKeepsMostRecentComments(t *testing.T) {
	p := &Post{ID: "p1", AuthorID: 1, AuthorName: "ann", Circles: []string{"team"}, Type: "status"}
	for i := uint(1); i <= 5; i++ {
		p.Comments = append(p.Comments, Comment{ID: i, PostID: "p1", AuthorID: 2, Text: "c"})
	}

	cp := p.Copy(3)
	require.Equal(t, 3, cp.CommentsShown)
	require.Len(t, cp.Comments, 3)
	require.Equal(t, uint(3), cp.Comments[0].ID)
	require.Equal(t, uint(5), cp.Comments[2].ID)
	require.True(t, cp.HasComment(4))
	require.False(t, cp.HasComment(1))

	all := p.Copy(0)
	require.Equal(t, 5, all.CommentsShown)
}

func TestPostStamp(t *testing.T) {
	p := &Post{}
	now := time.Date(2023, time.November, 5, 8, 0, 0, 0, time.UTC)
	p.Stamp(now)
	require.NotEmpty(t, p.ID)
	require.Equal(t, "2023-11", p.Month)

	id := p.ID
	p.Stamp(now.AddDate(0, 2, 0))
	require.Equal(t, id, p.ID)
	require.Equal(t, "2023-11", p.Month)
}

func TestFollowerCircles(t *testing.T) {
	f := &Follower{Name: "bob"}
	f.AddCircle("work")
	f.AddCircle("family")
	f.AddCircle("work")
	require.Equal(t, []string{"family", "work"}, f.Circles)

	f.RemoveCircle("family")
	require.Equal(t, []string{"work"}, f.Circles)
	require.True(t, f.HasCircle("work"))
}
