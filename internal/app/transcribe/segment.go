package transcribe

import (
	"context"
	"math"
	"os"

	"go.uber.org/zap"

	"voxflow/internal/app/audio"
	apperrors "voxflow/internal/app/errors"
)

// SegmentConfig sizes segments against the provider's payload limit.
type SegmentConfig struct {
	MaxPayloadBytes       int64
	TargetSegmentBytes    int64
	MinSegmentSeconds     float64
	DefaultSegmentSeconds float64
	// TempDir is where per-job scratch directories are created; empty means os.TempDir.
	TempDir string
}

// DefaultSegmentConfig matches the OpenAI 25MB upload limit.
func DefaultSegmentConfig() SegmentConfig {
	return SegmentConfig{
		MaxPayloadBytes:       25 << 20,
		TargetSegmentBytes:    20 << 20,
		MinSegmentSeconds:     30,
		DefaultSegmentSeconds: 600,
	}
}

// NeedsSegmentation reports whether a file of size bytes exceeds the provider limit.
func (c SegmentConfig) NeedsSegmentation(size int64) bool {
	return size > c.MaxPayloadBytes
}

// SegmentPlan is the split computed for one file.
type SegmentPlan struct {
	Count          int
	SegmentSeconds float64
}

// PlanSegments computes count = max(2, ceil(size/target)) and the per
// segment duration. totalDuration <= 0 means unknown.
func (c SegmentConfig) PlanSegments(size int64, totalDuration float64) SegmentPlan {
	target := c.TargetSegmentBytes
	if target <= 0 {
		target = c.MaxPayloadBytes
	}
	count := 2
	if target > 0 {
		if n := int(math.Ceil(float64(size) / float64(target))); n > count {
			count = n
		}
	}

	seconds := c.DefaultSegmentSeconds
	if totalDuration > 0 {
		seconds = totalDuration / float64(count)
		if seconds < c.MinSegmentSeconds {
			seconds = c.MinSegmentSeconds
		}
	}
	return SegmentPlan{Count: count, SegmentSeconds: seconds}
}

// SegmentFile is one split output.
type SegmentFile struct {
	Index int
	Path  string
	Size  int64
}

// Segmenter splits oversized audio into provider-sized pieces.
type Segmenter struct {
	audio  audio.Utility
	config SegmentConfig
	logger *zap.Logger
}

// NewSegmenter creates a Segmenter.
func NewSegmenter(utility audio.Utility, config SegmentConfig, logger *zap.Logger) *Segmenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Segmenter{audio: utility, config: config, logger: logger}
}

// Config returns the sizing configuration.
func (s *Segmenter) Config() SegmentConfig {
	return s.config
}

// TotalDuration returns declared when positive, else the probed duration,
// else 0.
func (s *Segmenter) TotalDuration(ctx context.Context, path string, declared float64) float64 {
	if declared > 0 {
		return declared
	}
	d, err := s.audio.ProbeDuration(ctx, path)
	if err != nil {
		s.logger.Warn("Failed to probe audio duration", zap.String("path", path), zap.Error(err))
		return 0
	}
	return d
}

// WithSegments splits path into a fresh scratch directory, hands the
// segments to fn and removes the directory on every exit path. A segment
// still over the payload limit fails with audio_too_large before fn runs.
func (s *Segmenter) WithSegments(ctx context.Context, path string, size int64, totalDuration float64, fn func([]SegmentFile, SegmentPlan) error) error {
	plan := s.config.PlanSegments(size, totalDuration)

	dir, err := os.MkdirTemp(s.config.TempDir, "voxflow-segments-")
	if err != nil {
		return apperrors.WrapCoded(err, apperrors.CodeTranscriptionFailed, "create segment directory")
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("Failed to remove segment directory", zap.String("dir", dir), zap.Error(err))
		}
	}()

	paths, err := s.audio.SplitByDuration(ctx, path, plan.SegmentSeconds, dir)
	if err != nil {
		return apperrors.WrapCoded(err, apperrors.CodeTranscriptionFailed, "split audio")
	}

	segments := make([]SegmentFile, 0, len(paths))
	for i, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return apperrors.WrapCoded(err, apperrors.CodeTranscriptionFailed, "stat segment")
		}
		if info.Size() > s.config.MaxPayloadBytes {
			return apperrors.Codedf(apperrors.CodeAudioTooLarge,
				"segment %d is %d bytes, provider limit is %d", i, info.Size(), s.config.MaxPayloadBytes)
		}
		segments = append(segments, SegmentFile{Index: i, Path: p, Size: info.Size()})
	}

	s.logger.Debug("Split audio",
		zap.String("path", path),
		zap.Int("planned", plan.Count),
		zap.Int("produced", len(segments)),
		zap.Float64("segment_seconds", plan.SegmentSeconds))

	return fn(segments, plan)
}
