package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"voxflow/internal/app/model"
)

// Utility is the audio tooling the pipeline needs: duration probing and
// time-based splitting.
type Utility interface {
	ProbeDuration(ctx context.Context, filePath string) (float64, error)
	SplitByDuration(ctx context.Context, filePath string, segmentSeconds float64, outDir string) ([]string, error)
}

// FFmpeg implements Utility with the ffmpeg/ffprobe binaries.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
}

// NewFFmpeg returns an FFmpeg utility, defaulting binary names to PATH lookup.
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}
}

// ProbeDuration returns the container duration in seconds.
func (f *FFmpeg) ProbeDuration(ctx context.Context, filePath string) (float64, error) {
	cmd := exec.CommandContext(ctx, f.FFprobePath, "-v", "quiet", "-print_format", "json", "-show_format", filePath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe error: %v, stderr: %s", err, stderr.String())
	}
	return ParseProbeDuration(output)
}

// ParseProbeDuration reads format.duration from ffprobe JSON output.
func ParseProbeDuration(output []byte) (float64, error) {
	var probe model.FFProbeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	raw := strings.TrimSpace(probe.Format.Duration)
	if raw == "" || raw == "N/A" {
		return 0, fmt.Errorf("ffprobe reported no duration")
	}
	duration, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", raw, err)
	}
	return duration, nil
}

// SplitByDuration cuts filePath into consecutive segments of segmentSeconds
// using stream copy, writing them into outDir. Returned paths are ordered.
func (f *FFmpeg) SplitByDuration(ctx context.Context, filePath string, segmentSeconds float64, outDir string) ([]string, error) {
	if segmentSeconds <= 0 {
		return nil, fmt.Errorf("segment duration must be positive, got %v", segmentSeconds)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create segment dir: %w", err)
	}

	pattern := filepath.Join(outDir, "segment_%03d"+segmentExt(filePath))
	cmd := exec.CommandContext(ctx, f.FFmpegPath, SplitArgs(filePath, segmentSeconds, pattern)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("FFmpeg error: %v, stderr: %s", err, stderr.String())
	}

	return ListSegments(outDir)
}

// SplitArgs builds the ffmpeg argument list for a segment split.
func SplitArgs(inputPath string, segmentSeconds float64, outputPattern string) []string {
	return []string{
		"-y", "-i", inputPath,
		"-vn",
		"-f", "segment",
		"-segment_time", strconv.FormatFloat(segmentSeconds, 'f', 3, 64),
		"-reset_timestamps", "1",
		"-c", "copy",
		outputPattern,
	}
}

// ListSegments returns the segment files in dir, sorted by name.
func ListSegments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read segment dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "segment_") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no segments in %s", dir)
	}
	return paths, nil
}

func segmentExt(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return ".ogg"
	}
	return ext
}
