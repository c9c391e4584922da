package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framefish/subsift/internal/pipeline"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "subsift.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testCue(start, end time.Duration, lines ...string) pipeline.MergedSubtitle {
	return pipeline.MergedSubtitle{
		TimedSubtitle: pipeline.TimedSubtitle{Start: start, End: end, Lines: lines},
		Regions:       []pipeline.RegionID{"region_1"},
		Confidence:    0.9,
	}
}

func TestRunLifecycleRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testDB(t)

	id, err := db.CreateRun(ctx, "/videos/episode1.gray")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	runs, err := db.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, "/videos/episode1.gray", runs[0].Source)
	assert.False(t, runs[0].FinishedAt.Valid)

	require.NoError(t, db.FinishRun(ctx, id, 1000, 200, 12, nil))
	runs, err = db.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].FinishedAt.Valid)
	assert.Equal(t, uint64(1000), runs[0].Frames)
	assert.Equal(t, uint64(200), runs[0].Samples)
	assert.Equal(t, 12, runs[0].CueCount)
	assert.Empty(t, runs[0].Error)
}

func TestFinishRunRecordsError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testDB(t)

	id, err := db.CreateRun(ctx, "clip.gray")
	require.NoError(t, err)
	require.NoError(t, db.FinishRun(ctx, id, 10, 2, 0, errors.New("decoder died")))

	runs, err := db.Runs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "decoder died", runs[0].Error)
}

func TestCuePersistence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testDB(t)

	id, err := db.CreateRun(ctx, "clip.gray")
	require.NoError(t, err)

	t.Run("insert and read back in index order", func(t *testing.T) {
		require.NoError(t, db.UpsertCue(ctx, id, 1, testCue(2*time.Second, 3*time.Second, "second")))
		require.NoError(t, db.UpsertCue(ctx, id, 0, testCue(0, time.Second, "first", "line two")))

		cues, err := db.Cues(ctx, id)
		require.NoError(t, err)
		require.Len(t, cues, 2)
		assert.Equal(t, []string{"first", "line two"}, cues[0].Lines)
		assert.Equal(t, []string{"second"}, cues[1].Lines)
		assert.Equal(t, time.Second, cues[0].End)
		assert.Equal(t, []pipeline.RegionID{"region_1"}, cues[0].Regions)
		assert.InDelta(t, 0.9, float64(cues[0].Confidence), 1e-6)
	})

	t.Run("upsert replaces in place", func(t *testing.T) {
		extended := testCue(2*time.Second, 5*time.Second, "second, extended")
		extended.Regions = []pipeline.RegionID{"region_1", "region_2"}
		require.NoError(t, db.UpsertCue(ctx, id, 1, extended))

		cues, err := db.Cues(ctx, id)
		require.NoError(t, err)
		require.Len(t, cues, 2)
		if diff := cmp.Diff(extended, cues[1]); diff != "" {
			t.Errorf("cue roundtrip mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("runs are isolated", func(t *testing.T) {
		other, err := db.CreateRun(ctx, "other.gray")
		require.NoError(t, err)
		cues, err := db.Cues(ctx, other)
		require.NoError(t, err)
		assert.Empty(t, cues)
	})
}

func TestRunsLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testDB(t)

	for i := 0; i < 5; i++ {
		_, err := db.CreateRun(ctx, "clip.gray")
		require.NoError(t, err)
	}
	runs, err := db.Runs(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}
