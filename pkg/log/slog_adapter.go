package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes discovery events to an slog.Logger.
// Useful for development when you want to see scan traffic in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("session_id", event.SessionID),
		slog.String("direction", event.Direction.String()),
		slog.String("category", event.Category.String()),
	}

	// Add optional identifiers
	if event.ServiceType != "" {
		attrs = append(attrs, slog.String("service_type", event.ServiceType))
	}
	if event.Instance != "" {
		attrs = append(attrs, slog.String("instance", event.Instance))
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote_addr", event.RemoteAddr))
	}
	if event.Interface != "" {
		attrs = append(attrs, slog.String("interface", event.Interface))
	}

	// Add type-specific attributes
	switch {
	case event.Query != nil:
		attrs = append(attrs,
			slog.String("query_name", event.Query.Name),
			slog.Uint64("record_type", uint64(event.Query.RecordType)),
		)
		if event.Query.Attempt > 0 {
			attrs = append(attrs, slog.Int("attempt", event.Query.Attempt))
		}
	case event.Answer != nil:
		attrs = append(attrs, slog.Int("answers", event.Answer.Answers))
		if event.Answer.Goodbye {
			attrs = append(attrs, slog.Bool("goodbye", true))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_code", event.Error.Code),
			slog.String("error_msg", event.Error.Message),
		)
		if event.Error.Context != "" {
			attrs = append(attrs, slog.String("error_context", event.Error.Context))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "discovery", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
