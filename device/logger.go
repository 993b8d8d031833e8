package device

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/vkngwrapper/armory/vkerr"
)

const (
	FormatPretty = "pretty"
	FormatJSON   = "json"
	FormatText   = "text"
)

func parseLevel(level string) (slog.Level, error) {
	if level == "" {
		return slog.LevelInfo, nil
	}

	var parsed slog.Level
	err := parsed.UnmarshalText([]byte(strings.ToUpper(level)))
	if err != nil {
		return 0, vkerr.Wrap(vkerr.ValidationError, err, "unknown log level %q", level)
	}
	return parsed, nil
}

// NewLogger builds the logger a Device uses when none is passed to New. The pretty format writes
// colored, human-readable lines; json and text use slog's own handlers.
func NewLogger(config LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(config.Level)
	if err != nil {
		return nil, err
	}

	var handler slog.Handler
	switch config.Format {
	case "", FormatPretty:
		handler = log.NewWithOptions(w, log.Options{
			Level:           log.Level(level),
			Prefix:          config.Prefix,
			ReportCaller:    config.ReportCaller,
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
		})
	case FormatJSON:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level, AddSource: config.ReportCaller})
	case FormatText:
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level, AddSource: config.ReportCaller})
	default:
		return nil, vkerr.New(vkerr.ValidationError, "unknown log format %q", config.Format)
	}

	logger := slog.New(handler)
	if config.Prefix != "" && config.Format != "" && config.Format != FormatPretty {
		logger = logger.With(slog.String("prefix", config.Prefix))
	}
	return logger, nil
}
