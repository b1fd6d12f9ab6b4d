package transcribe

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "voxflow/internal/app/errors"
	"voxflow/internal/app/model"
	"voxflow/internal/app/transport"
	"voxflow/internal/app/utils"
)

// Resolution kinds.
const (
	ResolvedLocal = iota + 1
	ResolvedDownloaded
	ResolvedTextFallback
)

// Resolution is a successful transport decision.
type Resolution struct {
	Kind int
	Path string
}

// TransportResolver makes sure a message has a readable local audio file.
type TransportResolver struct {
	transports *transport.Registry
	audioDir   string
	logger     *zap.Logger
	now        func() time.Time
}

// NewTransportResolver creates a resolver storing downloads under audioDir.
func NewTransportResolver(transports *transport.Registry, audioDir string, logger *zap.Logger) *TransportResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if transports == nil {
		transports = transport.NewRegistry()
	}
	return &TransportResolver{transports: transports, audioDir: audioDir, logger: logger, now: time.Now}
}

// Resolve applies, in order: recorded local path, plain-text fallback, one
// remote download. It mutates msg's file and transport fields but never
// persists. Fatal outcomes are *errors.CodedError values.
func (r *TransportResolver) Resolve(ctx context.Context, msg *model.Message) (Resolution, error) {
	if msg.FilePath != "" {
		if _, err := os.Stat(msg.FilePath); err != nil {
			return Resolution{}, apperrors.Codedf(apperrors.CodeFileNotFound, "audio file %s is not readable: %v", msg.FilePath, err)
		}
		return Resolution{Kind: ResolvedLocal, Path: msg.FilePath}, nil
	}

	if strings.TrimSpace(msg.Text) != "" {
		return Resolution{Kind: ResolvedTextFallback}, nil
	}

	if msg.FileID == "" {
		return Resolution{}, apperrors.Coded(apperrors.CodeMissingFilePath, "message has no audio file, remote handle or text")
	}

	terr := r.download(ctx, msg)
	if terr == nil {
		return Resolution{Kind: ResolvedDownloaded, Path: msg.FilePath}, nil
	}

	msg.Transport.ErrorCode = terr.Code
	msg.Transport.ErrorMessage = terr.Message
	r.logger.Warn("Audio transport failed",
		zap.String("message_id", msg.ID),
		zap.String("source_type", msg.SourceType),
		zap.String("code", terr.Code),
		zap.String("error", terr.Message))

	return Resolution{}, apperrors.Codedf(apperrors.CodeMissingTransport, "%s: %s", terr.Code, terr.Message)
}

// download fetches the remote file once and records it on msg.
func (r *TransportResolver) download(ctx context.Context, msg *model.Message) *transport.Error {
	t, ok := r.transports.Get(msg.SourceType)
	if !ok {
		return transport.Errorf("transport_unsupported", "no transport registered for source type %q", msg.SourceType)
	}

	fileURL, err := t.Resolve(ctx, msg.FileID)
	if err != nil {
		return asTransportError(err, "transport_resolve_failed")
	}

	data, contentType, err := t.Download(ctx, fileURL)
	if err != nil {
		return asTransportError(err, "transport_download_failed")
	}
	if len(data) == 0 {
		return transport.Errorf("transport_empty_file", "downloaded payload is empty")
	}

	mimeType := normalizeMime(contentType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		if msg.MimeType != "" {
			mimeType = msg.MimeType
		}
	}

	dest := r.localPath(msg, fileURL, mimeType)
	if err := writeFileAtomic(dest, data); err != nil {
		return transport.Errorf("transport_write_failed", "%v", err)
	}

	now := r.now().UTC()
	msg.FilePath = dest
	msg.FileSize = int64(len(data))
	if msg.MimeType == "" {
		msg.MimeType = mimeType
	}
	if ContentHash(msg) == "" {
		msg.SHA256 = utils.SHA256Bytes(data)
	}
	msg.Transport = model.TransportInfo{
		Size:         int64(len(data)),
		MimeType:     mimeType,
		DownloadedAt: &now,
	}

	r.logger.Info("Downloaded audio",
		zap.String("message_id", msg.ID),
		zap.String("source_type", msg.SourceType),
		zap.String("path", dest),
		zap.Int("bytes", len(data)))
	return nil
}

// localPath is <audio_dir>/<source_type>/<session_id>/<message_id><ext>.
func (r *TransportResolver) localPath(msg *model.Message, fileURL, mimeType string) string {
	return filepath.Join(r.audioDir, sanitize(msg.SourceType), sanitize(msg.SessionID), sanitize(msg.ID)+extensionFor(fileURL, mimeType))
}

func extensionFor(fileURL, mimeType string) string {
	if u, err := url.Parse(fileURL); err == nil {
		if ext := path.Ext(u.Path); ext != "" && len(ext) <= 6 {
			return strings.ToLower(ext)
		}
	}
	switch mimeType {
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/mpeg":
		return ".mp3"
	case "audio/mp4", "audio/x-m4a":
		return ".m4a"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/webm":
		return ".webm"
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

func normalizeMime(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.TrimSpace(contentType)
	}
	return mt
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == 0 {
			return '_'
		}
		return r
	}, filepath.Base(s))
}

func writeFileAtomic(dest string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create audio directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close audio: %w", err)
	}
	return os.Rename(tmp.Name(), dest)
}

func asTransportError(err error, fallbackCode string) *transport.Error {
	var terr *transport.Error
	if errors.As(err, &terr) {
		return terr
	}
	return transport.Errorf(fallbackCode, "%v", err)
}
