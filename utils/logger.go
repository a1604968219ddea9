package utils

import (
	"io"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
)

var logLevels = map[string]slog.Level{
	"trace": log.LevelTrace,
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
	"crit":  log.LevelCrit,
}

// NewLogger builds a go-ethereum logger writing to w in the given format ("terminal" or "json").
func NewLogger(w io.Writer, level, format string) (log.Logger, error) {
	lvl, ok := logLevels[strings.ToLower(level)]
	if !ok {
		return nil, errors.Errorf("unknown log level %q", level)
	}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "terminal":
		h = log.NewTerminalHandlerWithLevel(w, lvl, false)
	case "json":
		h = log.JSONHandlerWithLevel(w, lvl)
	default:
		return nil, errors.Errorf("unknown log format %q", format)
	}
	return log.NewLogger(h), nil
}
