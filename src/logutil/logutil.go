package logutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	AppTag         = "select2speak"
	ComponentField = "component"

	// Minute resolution: one file per setup, re-opened in append mode when
	// setup runs twice within the same minute.
	fileStampLayout = "2006.01.02_15.04"
	lineStampLayout = "2006.01.02 15:04"
)

type Options struct {
	Dir         string
	Level       string
	FileLogging bool
	Console     bool
}

// Setup configures the global zerolog logger. The returned closer releases the
// log file; it is never nil.
func Setup(opts Options) (io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var writers []io.Writer
	var closer io.Closer = nopCloser{}

	if opts.FileLogging {
		path := FileName(opts.Dir, time.Now())
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return closer, fmt.Errorf("open log file %s: %w", path, err)
		}
		writers = append(writers, NewLineWriter(f))
		closer = f
	}
	if opts.Console {
		writers = append(writers, NewLineWriter(os.Stderr))
	}

	var out io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		out = writers[0]
	default:
		out = zerolog.MultiLevelWriter(writers...)
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return closer, nil
}

// FileName returns the per-setup log file path for t.
func FileName(dir string, t time.Time) string {
	return filepath.Join(dir, t.Format(fileStampLayout)+"_"+AppTag+".log")
}

// NewLineWriter renders events as "<yyyy.MM.dd HH:mm> <L>/[select2speak.<component>]: <message> k=v".
func NewLineWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:           out,
		NoColor:       true,
		TimeFormat:    lineStampLayout,
		PartsOrder:    []string{zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName},
		FormatPrepare: prepareLine,
		FormatLevel:   func(i interface{}) string { return fmt.Sprint(i) },
	}
}

func prepareLine(evt map[string]interface{}) error {
	lvl, _ := evt[zerolog.LevelFieldName].(string)
	tag := AppTag
	if c, ok := evt[ComponentField].(string); ok && c != "" {
		tag = AppTag + "." + c
	}
	delete(evt, ComponentField)
	evt[zerolog.LevelFieldName] = fmt.Sprintf("%s/[%s]:", levelLetter(lvl), tag)
	return nil
}

func levelLetter(level string) string {
	switch level {
	case zerolog.LevelTraceValue:
		return "V"
	case zerolog.LevelDebugValue:
		return "D"
	case zerolog.LevelWarnValue:
		return "W"
	case zerolog.LevelErrorValue, zerolog.LevelFatalValue, zerolog.LevelPanicValue:
		return "E"
	default:
		return "I"
	}
}

// Component returns a child of the global logger tagged with name.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str(ComponentField, name).Logger()
}

// RedactKey masks an API key, leaving first/last 4 chars: xxxx...yyyy
func RedactKey(k string) string {
	if len(k) <= 8 {
		return "********"
	}
	return fmt.Sprintf("%s...%s", k[:4], k[len(k)-4:])
}

// Preview shortens spoken or recognized text for log lines.
func Preview(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
