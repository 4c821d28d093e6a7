package database

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	instanceKeySpan  = "otel:span"
	instanceKeyStart = "otel:start_time"
)

// 内联字面量中的凭据字段，参数化查询不会命中
var secretLiteral = regexp.MustCompile(`(?i)((?:notion_token|code_hash|password|secret)\s*=\s*)'[^']*'`)

// OTELPlugin GORM OpenTelemetry 插件
type OTELPlugin struct {
	tracer        trace.Tracer
	config        PluginConfig
	queriesTotal  metric.Int64Counter
	queryDuration metric.Float64Histogram
}

type PluginConfig struct {
	ServiceName   string
	System        attribute.KeyValue
	EnableMetrics bool
	MaxSQLLength  int
}

func DefaultPluginConfig() PluginConfig {
	return PluginConfig{
		ServiceName:   "dailyprompt",
		System:        semconv.DBSystemPostgreSQL,
		EnableMetrics: true,
		MaxSQLLength:  500,
	}
}

func NewOTELPlugin(config PluginConfig) (*OTELPlugin, error) {
	if config.ServiceName == "" {
		config.ServiceName = "dailyprompt"
	}
	if config.System.Key == "" {
		config.System = semconv.DBSystemPostgreSQL
	}

	p := &OTELPlugin{
		tracer: otel.Tracer(config.ServiceName + ".gorm"),
		config: config,
	}

	if config.EnableMetrics {
		meter := otel.Meter(config.ServiceName + ".gorm")
		var err error
		if p.queriesTotal, err = meter.Int64Counter(
			"db.queries.total",
			metric.WithDescription("Total number of database queries"),
			metric.WithUnit("{query}"),
		); err != nil {
			return nil, err
		}
		if p.queryDuration, err = meter.Float64Histogram(
			"db.query.duration",
			metric.WithDescription("Database query duration"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
		); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func (p *OTELPlugin) Name() string {
	return "otel_plugin"
}

// Initialize 为每类操作注册前后回调，operation 来自回调类型而不是 SQL 文本
func (p *OTELPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	steps := []struct {
		op       string
		register func(before, after func(*gorm.DB)) error
	}{
		{"db.select", func(b, a func(*gorm.DB)) error {
			if err := cb.Query().Before("gorm:query").Register("otel:before_query", b); err != nil {
				return err
			}
			return cb.Query().After("gorm:query").Register("otel:after_query", a)
		}},
		{"db.insert", func(b, a func(*gorm.DB)) error {
			if err := cb.Create().Before("gorm:create").Register("otel:before_create", b); err != nil {
				return err
			}
			return cb.Create().After("gorm:create").Register("otel:after_create", a)
		}},
		{"db.update", func(b, a func(*gorm.DB)) error {
			if err := cb.Update().Before("gorm:update").Register("otel:before_update", b); err != nil {
				return err
			}
			return cb.Update().After("gorm:update").Register("otel:after_update", a)
		}},
		{"db.delete", func(b, a func(*gorm.DB)) error {
			if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", b); err != nil {
				return err
			}
			return cb.Delete().After("gorm:delete").Register("otel:after_delete", a)
		}},
		{"db.row", func(b, a func(*gorm.DB)) error {
			if err := cb.Row().Before("gorm:row").Register("otel:before_row", b); err != nil {
				return err
			}
			return cb.Row().After("gorm:row").Register("otel:after_row", a)
		}},
		{"db.raw", func(b, a func(*gorm.DB)) error {
			if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", b); err != nil {
				return err
			}
			return cb.Raw().After("gorm:raw").Register("otel:after_raw", a)
		}},
	}

	for _, s := range steps {
		if err := s.register(p.before(s.op), p.after(s.op)); err != nil {
			return err
		}
	}
	return nil
}

func (p *OTELPlugin) before(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		if db.Statement == nil || db.Statement.Context == nil {
			return
		}
		ctx, span := p.tracer.Start(db.Statement.Context, op,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(p.config.System, attribute.String("db.table", db.Statement.Table)),
		)
		db.InstanceSet(instanceKeyStart, time.Now())
		db.InstanceSet(instanceKeySpan, span)
		db.Statement.Context = ctx
	}
}

func (p *OTELPlugin) after(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		v, ok := db.InstanceGet(instanceKeySpan)
		if !ok {
			return
		}
		span, ok := v.(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		sql := db.Statement.SQL.String()
		if p.config.MaxSQLLength > 0 && len(sql) > p.config.MaxSQLLength {
			sql = sql[:p.config.MaxSQLLength] + "..."
		}
		span.SetAttributes(
			semconv.DBStatement(sanitizeSQL(sql)),
			attribute.Int64("db.rows_affected", db.Statement.RowsAffected),
		)

		status := "success"
		switch {
		case db.Error == nil:
			span.SetStatus(codes.Ok, "")
		case errors.Is(db.Error, gorm.ErrRecordNotFound):
			span.SetStatus(codes.Ok, "record not found")
		default:
			status = "error"
			span.RecordError(db.Error)
			span.SetStatus(codes.Error, db.Error.Error())
		}

		if p.queriesTotal == nil {
			return
		}
		var duration float64
		if start, ok := db.InstanceGet(instanceKeyStart); ok {
			if t, ok := start.(time.Time); ok {
				duration = time.Since(t).Seconds()
			}
		}
		p.recordMetrics(db.Statement.Context, op, status, duration)
	}
}

func (p *OTELPlugin) recordMetrics(ctx context.Context, op, status string, duration float64) {
	attrs := metric.WithAttributes(
		attribute.String("db.operation", op),
		attribute.String("db.status", status),
	)
	p.queriesTotal.Add(ctx, 1, attrs)
	p.queryDuration.Record(ctx, duration, attrs)
}

func sanitizeSQL(sql string) string {
	return secretLiteral.ReplaceAllString(sql, "$1'***'")
}

// WithOTELPlugin 为 GORM 添加 OpenTelemetry 插件
func WithOTELPlugin(db *gorm.DB, config PluginConfig) error {
	plugin, err := NewOTELPlugin(config)
	if err != nil {
		return err
	}
	return db.Use(plugin)
}

func WithDefaultOTELPlugin(db *gorm.DB, serviceName string) error {
	config := DefaultPluginConfig()
	config.ServiceName = serviceName
	return WithOTELPlugin(db, config)
}
