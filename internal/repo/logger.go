package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// slowQueryThreshold marks statements worth a warning.
const slowQueryThreshold = 200 * time.Millisecond

// gormLogger sends GORM's statement log to zerolog. It prefers the logger
// carried by the query's context, so lines keep their dispatch_id, and falls
// back to the global logger.
//
// Missing rows and unique violations are how the repo detects "not found"
// and lost insert races; they are logged at debug, never as errors.
type gormLogger struct {
	level logger.LogLevel
	slow  time.Duration
}

func newGormLogger() logger.Interface {
	return &gormLogger{level: logger.Warn, slow: slowQueryThreshold}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *gormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Info {
		l.from(ctx).Info().Msg(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Warn {
		l.from(ctx).Warn().Msg(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Error {
		l.from(ctx).Error().Msg(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	lg := l.from(ctx)

	var ev *zerolog.Event
	switch {
	case err != nil && (errors.Is(err, gorm.ErrRecordNotFound) || isUniqueViolation(err)):
		ev = lg.Debug().Err(err)
	case err != nil && l.level >= logger.Error:
		ev = lg.Error().Err(err)
	case l.slow > 0 && elapsed > l.slow && l.level >= logger.Warn:
		ev = lg.Warn().Dur("threshold", l.slow)
	case l.level >= logger.Info:
		ev = lg.Debug()
	default:
		return
	}
	if !ev.Enabled() {
		return
	}
	sql, rows := fc()
	ev.Str("sql", sql).Int64("rows", rows).Dur("elapsed", elapsed).Msg("gorm")
}

func (l *gormLogger) from(ctx context.Context) *zerolog.Logger {
	if lg := zerolog.Ctx(ctx); lg.GetLevel() != zerolog.Disabled {
		return lg
	}
	return &log.Logger
}
