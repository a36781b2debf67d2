package rtc

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LoggerFactory routes pion's internal logging into the global zerolog logger.
type LoggerFactory struct {
	// Level caps pion verbosity independently of the global level.
	Level zerolog.Level
}

func NewLoggerFactory(level zerolog.Level) LoggerFactory {
	return LoggerFactory{Level: level}
}

func (f LoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	l := log.With().Str("module", "pion").Str("scope", scope).Logger().Level(f.Level)
	return &scopedLogger{l: l}
}

type scopedLogger struct {
	l zerolog.Logger
}

func (s *scopedLogger) Trace(msg string) { s.l.Trace().Msg(msg) }
func (s *scopedLogger) Tracef(format string, args ...interface{}) {
	s.l.Trace().Msg(fmt.Sprintf(format, args...))
}
func (s *scopedLogger) Debug(msg string) { s.l.Debug().Msg(msg) }
func (s *scopedLogger) Debugf(format string, args ...interface{}) {
	s.l.Debug().Msg(fmt.Sprintf(format, args...))
}
func (s *scopedLogger) Info(msg string) { s.l.Info().Msg(msg) }
func (s *scopedLogger) Infof(format string, args ...interface{}) {
	s.l.Info().Msg(fmt.Sprintf(format, args...))
}
func (s *scopedLogger) Warn(msg string) { s.l.Warn().Msg(msg) }
func (s *scopedLogger) Warnf(format string, args ...interface{}) {
	s.l.Warn().Msg(fmt.Sprintf(format, args...))
}
func (s *scopedLogger) Error(msg string) { s.l.Error().Msg(msg) }
func (s *scopedLogger) Errorf(format string, args ...interface{}) {
	s.l.Error().Msg(fmt.Sprintf(format, args...))
}

var _ logging.LoggerFactory = LoggerFactory{}
