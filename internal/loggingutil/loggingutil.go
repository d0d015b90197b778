// Package loggingutil holds small helpers shared by every pslog consumer in
// the module.
package loggingutil

import (
	"io"
	"strings"
	"sync"

	"pkt.systems/pslog"
)

// SubsystemKey tags log entries with the emitting component.
const SubsystemKey = pslog.TrustedString("sys")

var (
	noOnce   sync.Once
	noLogger pslog.Logger
)

// NoopLogger returns a disabled pslog.Logger that discards all entries.
func NoopLogger() pslog.Logger {
	noOnce.Do(func() {
		noLogger = pslog.NewWithOptions(io.Discard, pslog.Options{
			Mode:     pslog.ModeStructured,
			MinLevel: pslog.Disabled,
		})
	})
	return noLogger
}

// EnsureLogger returns l when non-nil, otherwise a disabled logger.
func EnsureLogger(l pslog.Logger) pslog.Logger {
	if l != nil {
		return l
	}
	return NoopLogger()
}

// Subsystem joins non-empty parts with dots.
func Subsystem(parts ...string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, ". ")
		if part != "" {
			filtered = append(filtered, part)
		}
	}
	return strings.Join(filtered, ".")
}

// WithSubsystem attaches a subsystem tag to every entry logged through the
// returned logger.
func WithSubsystem(logger pslog.Logger, subsystem string) pslog.Logger {
	logger = EnsureLogger(logger)
	subsystem = strings.Trim(subsystem, ". ")
	if subsystem == "" {
		return logger
	}
	return logger.With(SubsystemKey, subsystem)
}
