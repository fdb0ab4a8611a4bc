// SPDX-License-Identifier: MIT
// Package report builds the structured loggers used across labmirror.
// Engine packages receive a *slog.Logger and fall back to slog.Default()
// when given nil, so callers inject verbosity policy in one place.
package report

import (
	"context"
	"io"
	"log/slog"
)

// NewLogger returns a text logger writing to w. Quiet drops everything
// below error and wins over verbose; verbose >= 1 enables debug.
func NewLogger(w io.Writer, verbose int, quiet bool) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case quiet:
		level = slog.LevelError
	case verbose >= 1:
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(discardHandler{})
}

// discardHandler replicates slog.DiscardHandler, which is unavailable
// before Go 1.24; go.mod targets 1.21.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
