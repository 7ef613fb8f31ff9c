package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type tracedRow struct {
	ID   uint `gorm:"primaryKey"`
	Note string
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tracedRow{}))
	return db
}

func setupRecorder(t *testing.T) (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, recorder
}

func attrsOf(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := map[attribute.Key]attribute.Value{}
	for _, kv := range s.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestRegisterDBTracing_Disabled(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, RegisterDBTracing(db, DBTracingConfig{}, zaptest.NewLogger(t)))
	assert.Nil(t, db.Callback().Query().Get("otel_slow_query:query"))
}

func TestRegisterDBTracing_Enabled(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, RegisterDBTracing(db, DBTracingConfig{Enabled: true, DBName: "inmobiliaria"}, zaptest.NewLogger(t)))

	assert.NotNil(t, db.Callback().Query().Get("otel_slow_query:query"))
	assert.NotNil(t, db.Callback().Create().Get("otel_timing:before_create"))
	require.NoError(t, db.Create(&tracedRow{Note: "still works"}).Error)
}

func TestSlowQueryCallback_TagsSpan(t *testing.T) {
	db := setupTestDB(t)
	tp, recorder := setupRecorder(t)
	ctx, span := tp.Tracer("test").Start(context.Background(), "insert")

	tx := db.WithContext(ctx).Create(&tracedRow{Note: "a"})
	require.NoError(t, tx.Error)
	tx.Statement.Context = context.WithValue(ctx, queryStartTimeKey, time.Now().Add(-time.Second))

	cb := &slowQueryCallback{threshold: 100 * time.Millisecond}
	cb.after(tx)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	attrs := attrsOf(spans[0])
	assert.Equal(t, int64(1), attrs["db.rows_affected"].AsInt64())
	assert.Equal(t, "traced_rows", attrs["db.sql.table"].AsString())
	assert.True(t, attrs["db.slow_query"].AsBool())
}

func TestSlowQueryCallback_ErrorsAndNotFound(t *testing.T) {
	db := setupTestDB(t)
	tp, recorder := setupRecorder(t)
	cb := &slowQueryCallback{threshold: time.Hour}

	ctx, notFound := tp.Tracer("test").Start(context.Background(), "lookup")
	var row tracedRow
	tx := db.WithContext(ctx).First(&row, 999)
	require.ErrorIs(t, tx.Error, gorm.ErrRecordNotFound)
	cb.after(tx)
	notFound.End()

	ctx, failed := tp.Tracer("test").Start(context.Background(), "broken")
	tx = db.WithContext(ctx).Session(&gorm.Session{})
	tx.Error = errors.New("deadlock detected")
	cb.after(tx)
	failed.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.NotEqual(t, codes.Error, spans[0].Status().Code)
	_, slow := attrsOf(spans[0])["db.slow_query"]
	assert.False(t, slow)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestSlowQueryCallback_NonRecordingSpan(t *testing.T) {
	db := setupTestDB(t)
	cb := &slowQueryCallback{threshold: time.Nanosecond}

	assert.NotPanics(t, func() {
		cb.after(db.WithContext(context.Background()).Session(&gorm.Session{}))
	})
}
