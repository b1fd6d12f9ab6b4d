package transcribe

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"voxflow/internal/app/model"
)

// chunkNamespace seeds deterministic chunk ids.
var chunkNamespace = uuid.MustParse("6f1c2a4e-6d5b-4a7e-9a53-3c0b7f6d2e10")

// ChunkID derives a stable id for chunk index of a message.
func ChunkID(messageID string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s:%d", messageID, index))).String()
}

// BuildTimeline orders chunks by index and lays them end to end. Chunks
// without a measured duration (<= 0) split whatever remains of
// totalDuration after the measured ones, equally. The returned chunks carry
// the resolved Timestamp and Duration.
//
// Output depends only on the input.
func BuildTimeline(chunks []model.Chunk, totalDuration float64) (*model.StructuredTranscript, []model.Chunk) {
	ordered := append([]model.Chunk(nil), chunks...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	var known float64
	unknown := 0
	for _, c := range ordered {
		if c.Duration > 0 {
			known += c.Duration
		} else {
			unknown++
		}
	}

	var share float64
	if unknown > 0 && totalDuration > known {
		share = (totalDuration - known) / float64(unknown)
	}

	segments := make([]model.Segment, 0, len(ordered))
	var cursor float64
	for i := range ordered {
		d := ordered[i].Duration
		if d <= 0 {
			d = share
		}
		ordered[i].Timestamp = cursor
		ordered[i].Duration = d
		segments = append(segments, model.Segment{
			ID:    ordered[i].ID,
			Start: cursor,
			End:   cursor + d,
			Text:  strings.TrimSpace(ordered[i].Text),
		})
		cursor += d
	}

	duration := cursor
	if totalDuration > duration {
		duration = totalDuration
	}
	return &model.StructuredTranscript{Segments: segments, Duration: duration}, ordered
}

// JoinText concatenates chunk texts in order, skipping blanks.
func JoinText(chunks []model.Chunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if t := strings.TrimSpace(c.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
