// Package stdlogger adapts the global zerolog logger to the leveled
// printf-style interface some third-party libraries expect.
package stdlogger

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger forwards leveled printf-style calls to zerolog.
type Logger struct {
	logger zerolog.Logger
}

// New creates a new adapter around the global zerolog logger.
func New() *Logger {
	return &Logger{logger: log.Logger}
}

// Debugf logs a debug message.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

// Infof logs an info message.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logger.Info().Msgf(format, args...)
}

// Warningf logs a warning message.
func (l *Logger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

// Errorf logs an error message.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}
