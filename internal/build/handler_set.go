package build

import (
	"context"
	"log/slog"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
)

// HandlerSet fans every log record out to multiple btclog handlers,
// enabling dual-stream logging where records land on both the console
// and the rotating log file.
type HandlerSet struct {
	level    btclog.Level
	handlers []btclogv2.Handler
}

// NewHandlerSet constructs a HandlerSet over the given handlers, all
// initialized to the Info level.
func NewHandlerSet(handlers ...btclogv2.Handler) *HandlerSet {
	h := &HandlerSet{
		handlers: handlers,
	}
	h.SetLevel(btclog.LevelInfo)

	return h
}

// Enabled reports whether every underlying handler accepts records at
// the given level.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, level) {
			return false
		}
	}

	return true
}

// Handle dispatches the record to all underlying handlers, stopping at
// the first error.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range h.handlers {
		if err := handler.Handle(ctx, record); err != nil {
			return err
		}
	}

	return nil
}

// WithAttrs returns a handler fanning out to per-handler WithAttrs
// derivatives.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		derived[i] = handler.WithAttrs(attrs)
	}

	return &slogFanout{handlers: derived}
}

// WithGroup returns a handler fanning out to per-handler WithGroup
// derivatives.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) WithGroup(name string) slog.Handler {
	derived := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		derived[i] = handler.WithGroup(name)
	}

	return &slogFanout{handlers: derived}
}

// SubSystem creates a new HandlerSet tagged with the given sub-system.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) SubSystem(tag string) btclogv2.Handler {
	derived := make([]btclogv2.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		derived[i] = handler.SubSystem(tag)
	}

	return &HandlerSet{level: h.level, handlers: derived}
}

// SetLevel changes the logging level on all underlying handlers.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) SetLevel(level btclog.Level) {
	for _, handler := range h.handlers {
		handler.SetLevel(level)
	}
	h.level = level
}

// Level returns the current logging level.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) Level() btclog.Level {
	return h.level
}

// WithPrefix returns a copy of the HandlerSet with the given string
// prefixed to each log message.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) WithPrefix(prefix string) btclogv2.Handler {
	derived := make([]btclogv2.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		derived[i] = handler.WithPrefix(prefix)
	}

	return &HandlerSet{level: h.level, handlers: derived}
}

// Ensure HandlerSet implements btclog.Handler at compile time.
var _ btclogv2.Handler = (*HandlerSet)(nil)

// slogFanout fans records out to plain slog handlers. It backs the
// WithAttrs and WithGroup derivations, which escape the btclog handler
// type.
type slogFanout struct {
	handlers []slog.Handler
}

// Enabled reports whether every underlying handler accepts records at
// the given level.
//
// NOTE: this is part of the slog.Handler interface.
func (s *slogFanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range s.handlers {
		if !handler.Enabled(ctx, level) {
			return false
		}
	}

	return true
}

// Handle dispatches the record to all underlying handlers.
//
// NOTE: this is part of the slog.Handler interface.
func (s *slogFanout) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range s.handlers {
		if err := handler.Handle(ctx, record); err != nil {
			return err
		}
	}

	return nil
}

// WithAttrs returns a fanout over per-handler WithAttrs derivatives.
//
// NOTE: this is part of the slog.Handler interface.
func (s *slogFanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := make([]slog.Handler, len(s.handlers))
	for i, handler := range s.handlers {
		derived[i] = handler.WithAttrs(attrs)
	}

	return &slogFanout{handlers: derived}
}

// WithGroup returns a fanout over per-handler WithGroup derivatives.
//
// NOTE: this is part of the slog.Handler interface.
func (s *slogFanout) WithGroup(name string) slog.Handler {
	derived := make([]slog.Handler, len(s.handlers))
	for i, handler := range s.handlers {
		derived[i] = handler.WithGroup(name)
	}

	return &slogFanout{handlers: derived}
}

// Ensure slogFanout implements slog.Handler at compile time.
var _ slog.Handler = (*slogFanout)(nil)
