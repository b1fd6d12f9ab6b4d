package temporal

import (
	"fmt"

	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
)

// zapLogger adapts zap to the Temporal SDK logger.
type zapLogger struct {
	logger *zap.SugaredLogger
}

var _ log.Logger = (*zapLogger)(nil)

// NewLogger wraps logger for the Temporal client and worker.
func NewLogger(logger *zap.Logger) log.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &zapLogger{logger: logger.Named("temporal").Sugar()}
}

func (l *zapLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debugw(msg, normalize(keyvals)...)
}

func (l *zapLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Infow(msg, normalize(keyvals)...)
}

func (l *zapLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warnw(msg, normalize(keyvals)...)
}

func (l *zapLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Errorw(msg, normalize(keyvals)...)
}

// normalize turns non-string keys into strings; zap drops them otherwise.
func normalize(keyvals []interface{}) []interface{} {
	out := make([]interface{}, len(keyvals))
	for i, kv := range keyvals {
		if i%2 == 0 {
			if _, ok := kv.(string); !ok {
				kv = fmt.Sprint(kv)
			}
		}
		out[i] = kv
	}
	return out
}
