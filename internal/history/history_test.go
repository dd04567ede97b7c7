package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordRunAndFrames(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	start := time.Date(2026, 3, 14, 21, 30, 0, 0, time.UTC)
	id, err := s.RecordRun(ctx, Run{
		StartedAt:  start,
		FinishedAt: start.Add(4 * time.Second),
		FrameCount: 3,
		Reference:  1,
		Aligned:    1,
		Rejected:   1,
		WeightSum:  412.5,
		OutputPath: "m42.png",
		ParamsJSON: `{"star_threshold":50}`,
		Status:     StatusCompleted,
		Frames: []Frame{
			{Index: 2, Path: "c.png", Stars: 0, Status: "rejected", Reason: "insufficient triangle matches"},
			{Index: 0, Path: "a.png", Stars: 42, Quality: 120.5, Status: "aligned", Model: "affine", Correspondences: 30, AlignmentQuality: 0.93},
			{Index: 1, Path: "b.png", Stars: 45, Quality: 130.25, Status: "reference"},
		},
	})
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err, "generated run id must be a UUID")

	runs, err := s.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	run := runs[0]
	assert.Equal(t, id, run.ID)
	assert.True(t, start.Equal(run.StartedAt))
	assert.Equal(t, 4*time.Second, run.FinishedAt.Sub(run.StartedAt))
	assert.Equal(t, 3, run.FrameCount)
	assert.Equal(t, 1, run.Reference)
	assert.InDelta(t, 412.5, run.WeightSum, 1e-9)
	assert.Equal(t, "m42.png", run.OutputPath)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Empty(t, run.Error)

	frames, err := s.Frames(ctx, id)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	for i, f := range frames {
		assert.Equal(t, i, f.Index)
	}
	assert.Equal(t, "affine", frames[0].Model)
	assert.Equal(t, 30, frames[0].Correspondences)
	assert.Equal(t, "reference", frames[1].Status)
	assert.Equal(t, "insufficient triangle matches", frames[2].Reason)
}

func TestRecentRunsOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := s.RecordRun(ctx, Run{
			ID:         []string{"first", "second", "third"}[i],
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i) * time.Hour),
			FrameCount: 2,
			Status:     StatusFailed,
			Stage:      "load",
			Error:      "decode failed",
		})
		require.NoError(t, err)
	}

	runs, err := s.RecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "third", runs[0].ID)
	assert.Equal(t, "second", runs[1].ID)
	assert.Equal(t, "load", runs[0].Stage)
	assert.Equal(t, "decode failed", runs[0].Error)
}

func TestRecordRunDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	run := Run{ID: "dup", StartedAt: time.Now(), FinishedAt: time.Now(), Status: StatusCompleted,
		Frames: []Frame{{Index: 0}}}
	_, err := s.RecordRun(ctx, run)
	require.NoError(t, err)
	_, err = s.RecordRun(ctx, run)
	require.Error(t, err)

	frames, err := s.Frames(ctx, "dup")
	require.NoError(t, err)
	assert.Len(t, frames, 1, "failed insert must roll back")
}

func TestNilStore(t *testing.T) {
	var s *Store
	_, err := s.RecordRun(context.Background(), Run{})
	assert.Error(t, err)
	assert.NoError(t, s.Close())
}
