package transcribe

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "voxflow/internal/app/errors"
	"voxflow/internal/app/testutil"
)

func smallSegmentConfig(t *testing.T) SegmentConfig {
	return SegmentConfig{
		MaxPayloadBytes:       100,
		TargetSegmentBytes:    80,
		MinSegmentSeconds:     30,
		DefaultSegmentSeconds: 600,
		TempDir:               t.TempDir(),
	}
}

func TestNeedsSegmentationBoundary(t *testing.T) {
	c := DefaultSegmentConfig()
	assert.False(t, c.NeedsSegmentation(c.MaxPayloadBytes))
	assert.True(t, c.NeedsSegmentation(c.MaxPayloadBytes+1))
	assert.False(t, c.NeedsSegmentation(0))
}

func TestPlanSegments(t *testing.T) {
	c := DefaultSegmentConfig()
	mb := int64(1 << 20)

	tests := []struct {
		name        string
		size        int64
		duration    float64
		wantCount   int
		wantSeconds float64
	}{
		{"just over limit needs two", 26 * mb, 100, 2, 50},
		{"ceil of size over target", 61 * mb, 400, 4, 100},
		{"floor at minimum seconds", 26 * mb, 40, 2, 30},
		{"unknown duration uses default", 26 * mb, 0, 2, 600},
		{"tiny file still two", 1, 10, 2, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := c.PlanSegments(tt.size, tt.duration)
			assert.Equal(t, tt.wantCount, plan.Count)
			assert.InDelta(t, tt.wantSeconds, plan.SegmentSeconds, 1e-9)
		})
	}
}

func TestWithSegmentsRemovesScratchDir(t *testing.T) {
	fake := &testutil.FakeAudio{SegmentCount: 3, SegmentSize: 50}
	s := NewSegmenter(fake, smallSegmentConfig(t), nil)

	var seen []SegmentFile
	err := s.WithSegments(context.Background(), "in.ogg", 150, 90, func(segs []SegmentFile, plan SegmentPlan) error {
		seen = segs
		assert.Equal(t, 2, plan.Count)
		assert.InDelta(t, 45.0, plan.SegmentSeconds, 1e-9)
		for _, seg := range segs {
			_, err := os.Stat(seg.Path)
			assert.NoError(t, err)
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 3)
	assert.Equal(t, 2, seen[2].Index)
	assert.Equal(t, int64(50), seen[0].Size)

	_, statErr := os.Stat(fake.LastOutDir)
	assert.True(t, os.IsNotExist(statErr), "scratch dir should be removed")
}

func TestWithSegmentsRemovesScratchDirOnError(t *testing.T) {
	fake := &testutil.FakeAudio{SegmentCount: 2, SegmentSize: 10}
	s := NewSegmenter(fake, smallSegmentConfig(t), nil)

	boom := errors.New("boom")
	err := s.WithSegments(context.Background(), "in.ogg", 150, 0, func([]SegmentFile, SegmentPlan) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, statErr := os.Stat(fake.LastOutDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWithSegmentsOversizedSegment(t *testing.T) {
	fake := &testutil.FakeAudio{SegmentCount: 2, SegmentSize: 101}
	s := NewSegmenter(fake, smallSegmentConfig(t), nil)

	called := false
	err := s.WithSegments(context.Background(), "in.ogg", 202, 60, func([]SegmentFile, SegmentPlan) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeAudioTooLarge, apperrors.CodeOf(err))
	assert.False(t, called)
}

func TestWithSegmentsSplitFailure(t *testing.T) {
	fake := &testutil.FakeAudio{SplitErr: errors.New("ffmpeg exploded")}
	s := NewSegmenter(fake, smallSegmentConfig(t), nil)

	err := s.WithSegments(context.Background(), "in.ogg", 202, 60, func([]SegmentFile, SegmentPlan) error { return nil })
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeTranscriptionFailed, apperrors.CodeOf(err))
	assert.Contains(t, err.Error(), "ffmpeg exploded")
}

func TestTotalDuration(t *testing.T) {
	ctx := context.Background()

	s := NewSegmenter(&testutil.FakeAudio{Duration: 42}, smallSegmentConfig(t), nil)
	assert.Equal(t, 12.0, s.TotalDuration(ctx, "x", 12))
	assert.Equal(t, 42.0, s.TotalDuration(ctx, "x", 0))

	failing := NewSegmenter(&testutil.FakeAudio{ProbeErr: errors.New("no ffprobe")}, smallSegmentConfig(t), nil)
	assert.Zero(t, failing.TotalDuration(ctx, "x", 0))
}
