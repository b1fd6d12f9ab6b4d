package transcribe

import (
	"strings"

	"voxflow/internal/app/model"
)

// ContentHash returns the first non-empty content identity of msg: file
// hash, then provider unique id, then sha256. Empty means no identity.
func ContentHash(msg *model.Message) string {
	for _, v := range []string{msg.FileHash, msg.FileUniqueID, msg.SHA256} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// HasUsableTranscript reports whether msg carries something worth reusing.
func HasUsableTranscript(msg *model.Message) bool {
	if msg == nil {
		return false
	}
	return strings.TrimSpace(msg.TranscriptionText) != "" ||
		len(msg.TranscriptionChunks) > 0 ||
		msg.Transcription != nil
}

// copyTranscript moves the transcript fields of src onto dst.
func copyTranscript(dst, src *model.Message) {
	dst.TranscriptionText = src.TranscriptionText
	dst.Transcription = src.Transcription
	dst.TranscriptionChunks = append([]model.Chunk(nil), src.TranscriptionChunks...)
	dst.TranscriptionRaw = append([]byte(nil), src.TranscriptionRaw...)
}
