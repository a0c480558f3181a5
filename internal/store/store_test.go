package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"versefinder/internal/domain"
	"versefinder/internal/oracle"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "Usko")
	require.NoError(t, err)
	assert.Len(t, created.ID, 36)
	assert.Equal(t, StagePlanned, created.Stage)

	got, err := s.Get(ctx, created.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = s.Get(ctx, "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPlanAndCollectionSnapshots(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	sess, err := s.Create(ctx, "Usko")
	require.NoError(t, err)

	_, err = s.LoadPlan(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	plan := domain.Plan{Topic: "Usko", Outline: "1. Usko\n1.1. Alku", Sections: []domain.Section{
		{Number: "1.", Terms: []string{"usko"}},
		{Number: "1.1.", Terms: []string{}},
	}}
	require.NoError(t, s.SavePlan(ctx, sess.ID, plan))
	plan.Outline = "1. Usko ja toivo"
	require.NoError(t, s.SavePlan(ctx, sess.ID, plan))

	loaded, err := s.LoadPlan(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "1. Usko ja toivo", loaded.Outline)
	assert.Equal(t, "1.", loaded.Sections[0].Number)
	assert.Equal(t, []string{"usko"}, loaded.Sections[0].Terms)

	coll := []domain.SectionVerses{{Number: "1.", Verses: []string{"Testi 1:2 - usko on luottamusta"}}}
	require.NoError(t, s.SaveCollection(ctx, sess.ID, coll))
	gotColl, err := s.LoadCollection(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, coll, gotColl)

	assert.ErrorIs(t, s.SavePlan(ctx, "missing", plan), ErrNotFound)
}

func TestUsageAndStage(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	sess, err := s.Create(ctx, "Toivo")
	require.NoError(t, err)

	require.NoError(t, s.AddUsage(ctx, sess.ID, oracle.Usage{PromptTokens: 10, CompletionTokens: 4}, 1))
	require.NoError(t, s.AddUsage(ctx, sess.ID, oracle.Usage{PromptTokens: 5}, 2))
	require.NoError(t, s.SetStage(ctx, sess.ID, StageCollected))

	got, err := s.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, oracle.Usage{PromptTokens: 15, CompletionTokens: 4}, got.Usage)
	assert.Equal(t, 3, got.Calls)
	assert.Equal(t, StageCollected, got.Stage)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))

	assert.ErrorIs(t, s.SetStage(ctx, "missing", StageReported), ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	a, err := s.Create(ctx, "A")
	require.NoError(t, err)
	b, err := s.Create(ctx, "B")
	require.NoError(t, err)
	require.NoError(t, s.SetStage(ctx, a.ID, StageRefined))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, b.ID, list[1].ID)
}
