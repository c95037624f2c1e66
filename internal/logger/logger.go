package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// New creates a zerolog logger with the specified level.
// Unknown levels fall back to info. pretty switches to the console writer.
func New(level string, pretty bool) zerolog.Logger {
	var out io.Writer = os.Stdout
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: consoleTimeFormat}
	}
	return NewWithWriter(out, level)
}

// NewWithWriter is New with an explicit sink.
func NewWithWriter(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Component derives a logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// GormWriter adapts zerolog to gorm's logger.Writer.
type GormWriter struct {
	Log zerolog.Logger
}

func (w GormWriter) Printf(format string, args ...interface{}) {
	w.Log.Warn().Msgf(format, args...)
}

// CronLogger adapts zerolog to cron.Logger. Cron's info chatter goes to debug.
type CronLogger struct {
	Log zerolog.Logger
}

func (c CronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.Log.Debug().Fields(normalize(keysAndValues)).Msg(msg)
}

func (c CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.Log.Error().Err(err).Fields(normalize(keysAndValues)).Msg(msg)
}

// normalize renders time values the same way regardless of the sink.
func normalize(kv []interface{}) []interface{} {
	out := make([]interface{}, len(kv))
	for i, v := range kv {
		if t, ok := v.(time.Time); ok {
			out[i] = t.UTC().Format(time.RFC3339)
			continue
		}
		out[i] = v
	}
	return out
}
