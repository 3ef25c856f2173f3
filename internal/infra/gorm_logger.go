package infra

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	gormLogger "gorm.io/gorm/logger"
)

// zapGormLogger 把 GORM 的 SQL 日志桥接到 Zap
// RecordNotFound 不算错误（业务层靠它做存在性判断），慢查询单独告警
type zapGormLogger struct {
	zl            *zap.Logger
	level         gormLogger.LogLevel
	slowThreshold time.Duration
}

func newGormLogger(zl *zap.Logger, slowThreshold time.Duration) gormLogger.Interface {
	return &zapGormLogger{
		zl:            zl,
		level:         gormLogger.Warn,
		slowThreshold: slowThreshold,
	}
}

func (l *zapGormLogger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *zapGormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormLogger.Info {
		l.zl.Sugar().Infof(msg, args...)
	}
}

func (l *zapGormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormLogger.Warn {
		l.zl.Sugar().Warnf(msg, args...)
	}
}

func (l *zapGormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormLogger.Error {
		l.zl.Sugar().Errorf(msg, args...)
	}
}

func (l *zapGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormLogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	switch {
	case err != nil && !errors.Is(err, gormLogger.ErrRecordNotFound):
		l.zl.Error("SQL 执行错误", append(fields, zap.Error(err))...)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold:
		l.zl.Warn("SQL 慢查询", fields...)
	case l.level >= gormLogger.Info:
		l.zl.Debug("SQL 执行", fields...)
	}
}
