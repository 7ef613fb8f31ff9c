package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type contextKey string

const queryStartTimeKey contextKey = "otel_query_start_time"

// DBTracingConfig controls the otelgorm plugin
type DBTracingConfig struct {
	Enabled         bool
	SlowQueryThresh time.Duration
	DBName          string
	// IncludeVariables puts bound values (amounts, card digits) into spans. Development only.
	IncludeVariables bool
}

// RegisterDBTracing attaches otelgorm to db, plus callbacks that tag each statement's span
// with the table, the affected rows and a slow-query marker.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		logger.Debug("Database tracing disabled")
		return nil
	}
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBName)}
	if !cfg.IncludeVariables {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	cb := &slowQueryCallback{threshold: cfg.SlowQueryThresh}
	if err := cb.register(db); err != nil {
		return err
	}

	logger.Info("Database tracing enabled",
		zap.Duration("slow_query_threshold", cfg.SlowQueryThresh),
		zap.String("db_name", cfg.DBName),
	)
	return nil
}

type slowQueryCallback struct {
	threshold time.Duration
}

func (c *slowQueryCallback) register(db *gorm.DB) error {
	cb := db.Callback()
	steps := []func() error{
		func() error { return cb.Create().Before("gorm:create").Register("otel_timing:before_create", c.before) },
		func() error { return cb.Query().Before("gorm:query").Register("otel_timing:before_query", c.before) },
		func() error { return cb.Update().Before("gorm:update").Register("otel_timing:before_update", c.before) },
		func() error { return cb.Delete().Before("gorm:delete").Register("otel_timing:before_delete", c.before) },
		func() error { return cb.Row().Before("gorm:row").Register("otel_timing:before_row", c.before) },
		func() error { return cb.Raw().Before("gorm:raw").Register("otel_timing:before_raw", c.before) },
		func() error { return cb.Create().After("gorm:create").Register("otel_slow_query:create", c.after) },
		func() error { return cb.Query().After("gorm:query").Register("otel_slow_query:query", c.after) },
		func() error { return cb.Update().After("gorm:update").Register("otel_slow_query:update", c.after) },
		func() error { return cb.Delete().After("gorm:delete").Register("otel_slow_query:delete", c.after) },
		func() error { return cb.Row().After("gorm:row").Register("otel_slow_query:row", c.after) },
		func() error { return cb.Raw().After("gorm:raw").Register("otel_slow_query:raw", c.after) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (c *slowQueryCallback) before(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartTimeKey, time.Now())
	}
}

func (c *slowQueryCallback) after(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	if start, ok := ctx.Value(queryStartTimeKey).(time.Time); ok {
		if elapsed := time.Since(start); elapsed > c.threshold {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
		}
	}
}
