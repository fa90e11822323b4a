package telemetry

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Borislavv/go-subbox/config"
	"github.com/rs/zerolog"
)

// NewLogger builds the process logger. The returned LevelVar lets a config
// reload change the level of the running logger.
func NewLogger(cfg config.LogCfg, w io.Writer) (*slog.Logger, *slog.LevelVar, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	lv := new(slog.LevelVar)
	lv.Set(level)

	opts := &slog.HandlerOptions{Level: lv}
	if cfg.Format != config.LogFormatConsole {
		return slog.New(slog.NewJSONHandler(w, opts)), lv, nil
	}

	// zerolog renders each JSON record as a colored console line
	zerolog.MessageFieldName = slog.MessageKey
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) == 0 && a.Key == slog.LevelKey {
			a.Value = slog.StringValue(strings.ToLower(a.Value.String()))
		}
		return a
	}
	return slog.New(slog.NewJSONHandler(console, opts)), lv, nil
}
