package audio

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProbeDuration(t *testing.T) {
	tests := []struct {
		name          string
		output        string
		expected      float64
		expectedError bool
	}{
		{
			name:     "decimal duration",
			output:   `{"format":{"duration":"45.678000","size":"1024"}}`,
			expected: 45.678,
		},
		{
			name:     "integer duration",
			output:   `{"format":{"duration":"30"}}`,
			expected: 30,
		},
		{
			name:          "missing duration",
			output:        `{"format":{}}`,
			expectedError: true,
		},
		{
			name:          "not applicable",
			output:        `{"format":{"duration":"N/A"}}`,
			expectedError: true,
		},
		{
			name:          "invalid json",
			output:        `{"format":`,
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseProbeDuration([]byte(tt.output))
			if tt.expectedError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, d, 0.0001)
		})
	}
}

func TestSplitArgs(t *testing.T) {
	args := SplitArgs("/in/voice.ogg", 120, "/tmp/x/segment_%03d.ogg")
	assert.Equal(t, []string{
		"-y", "-i", "/in/voice.ogg",
		"-vn",
		"-f", "segment",
		"-segment_time", "120.000",
		"-reset_timestamps", "1",
		"-c", "copy",
		"/tmp/x/segment_%03d.ogg",
	}, args)
}

func TestListSegments(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"segment_002.ogg", "segment_000.ogg", "segment_001.ogg", "other.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	paths, err := ListSegments(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "segment_000.ogg"),
		filepath.Join(dir, "segment_001.ogg"),
		filepath.Join(dir, "segment_002.ogg"),
	}, paths)

	_, err = ListSegments(t.TempDir())
	assert.Error(t, err)
}

func TestSplitByDuration_RejectsNonPositive(t *testing.T) {
	_, err := NewFFmpeg("", "").SplitByDuration(context.Background(), "a.ogg", 0, t.TempDir())
	assert.Error(t, err)
}

func TestFFmpegIntegration(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH")
	}

	dir := t.TempDir()
	input := filepath.Join(dir, "tone.mp3")
	gen := exec.Command("ffmpeg", "-y", "-f", "lavfi", "-i", "sine=frequency=440:duration=6", "-acodec", "libmp3lame", input)
	if err := gen.Run(); err != nil {
		t.Skipf("could not generate test audio: %v", err)
	}

	f := NewFFmpeg("", "")
	ctx := context.Background()

	d, err := f.ProbeDuration(ctx, input)
	require.NoError(t, err)
	assert.InDelta(t, 6, d, 0.5)

	segments, err := f.SplitByDuration(ctx, input, 2, filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(segments), 2)
}
