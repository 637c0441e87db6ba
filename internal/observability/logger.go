package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"marketplace/internal/config"

	"github.com/rs/zerolog"
)

// アプリ全体のロガー。devは見やすいコンソール出力
func NewLogger(cfg config.Config) zerolog.Logger {
	var w io.Writer = os.Stdout
	if cfg.IsDev() {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return newLogger(w, cfg.LogLevel, cfg.ServiceName)
}

func newLogger(w io.Writer, level string, service string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}
