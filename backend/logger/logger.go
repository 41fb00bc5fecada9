package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

var levelVar slog.LevelVar

func init() {
	levelVar.Set(slog.LevelInfo)
	SetOutput(os.Stdout)
}

// SetOutput installs a text handler writing to w as the default slog logger.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: &levelVar})))
}

func SetLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn", "warning":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

// Err wraps an error as a slog attribute under the "error" key.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

func Debugf(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...))
}

func Infof(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...any) {
	slog.Error(fmt.Sprintf(format, v...))
}
