package generator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crimson-sun/waflog/internal/model"
)

// Appender is the write side of the log store.
type Appender interface {
	Append(e model.Entry) error
}

// hoursPerDay bounds the backdating cycle so entries spread over the last day.
const hoursPerDay = 24

// Emit generates one entry backdated by hourOffset and appends it.
func Emit(g *Generator, app Appender, hourOffset int) (model.Entry, error) {
	e, err := g.Generate(hourOffset)
	if err != nil {
		return model.Entry{}, err
	}
	if err := app.Append(e); err != nil {
		return model.Entry{}, fmt.Errorf("append generated entry: %w", err)
	}
	slog.Info("log entry added",
		"timestamp", e.Request.Timestamp.Format(time.RFC3339Nano),
		"http_status", e.Request.HTTPStatus,
		"attack_class", e.Detection.AttackClass,
	)
	return e, nil
}

// Run appends a generated entry immediately and then once per interval until
// ctx is cancelled. The hour offset advances by one each tick and wraps at
// 24, starting at 1. Failed appends are logged and the loop continues.
func Run(ctx context.Context, g *Generator, app Appender, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("generator: interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	offset := 0
	for ctx.Err() == nil {
		offset = (offset + 1) % hoursPerDay
		if _, err := Emit(g, app, offset); err != nil {
			slog.Warn("generator append failed", "hour_offset", offset, "error", err)
		}

		select {
		case <-ctx.Done():
			slog.Info("generator stopped")
			return nil
		case <-ticker.C:
		}
	}
	return nil
}
