// Package tracing 封装 OpenTelemetry 的 TracerProvider 初始化与常用 span 辅助函数.
//
// 未启用时全局 provider 为 noop，StartSpan 仍可安全调用.
//
//	if err := tracing.InitTracer(cfg.Tracing); err != nil {
//		return err
//	}
//	defer tracing.ShutdownTracer(ctx)
//
//	ctx, span := tracing.StartSpan(ctx, "FileService.Create")
//	defer func() { tracing.EndSpan(span, err) }()
package tracing

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/docvault/pkg/configs"
)

// instrumentationName 本项目 span 的 tracer 名称.
const instrumentationName = "github.com/yeisme/docvault"

var tracerProvider *sdktrace.TracerProvider

// InitTracer 按配置创建导出器并设置全局 TracerProvider.
func InitTracer(cfg configs.TracingConfig) error {
	if !cfg.Enabled {
		return nil
	}

	exporter, err := newExporter(cfg)
	if err != nil {
		return err
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(attributes(cfg)...))
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	var batchOpts []sdktrace.BatchSpanProcessorOption
	if cfg.BatchTimeout > 0 {
		batchOpts = append(batchOpts, sdktrace.WithBatchTimeout(cfg.BatchTimeout))
	}

	if cfg.BatchSize > 0 {
		batchOpts = append(batchOpts, sdktrace.WithMaxExportBatchSize(cfg.BatchSize))
	}

	if cfg.QueueSize > 0 {
		batchOpts = append(batchOpts, sdktrace.WithMaxQueueSize(cfg.QueueSize))
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, batchOpts...),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)

	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return nil
}

func newExporter(cfg configs.TracingConfig) (sdktrace.SpanExporter, error) {
	ctx := context.Background()

	switch cfg.Exporter {
	case configs.TracingOTLPHTTP, "":
		exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP HTTP exporter: %w", err)
		}

		return exp, nil
	case configs.TracingOTLPGRPC:
		exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP gRPC exporter: %w", err)
		}

		return exp, nil
	case configs.TracingZipkin:
		exp, err := zipkin.New(cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to create zipkin exporter: %w", err)
		}

		return exp, nil
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.Exporter)
	}
}

// attributes 服务名与版本，加上按键排序的自定义属性.
func attributes(cfg configs.TracingConfig) []attribute.KeyValue {
	name := cfg.ServiceName
	if name == "" {
		name = configs.AppName
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(name),
		semconv.ServiceVersionKey.String(configs.AppVersion),
	}

	keys := make([]string, 0, len(cfg.Attributes))
	for k := range cfg.Attributes {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		attrs = append(attrs, attribute.String(k, cfg.Attributes[k]))
	}

	return attrs
}

// ShutdownTracer 关闭Tracer.
func ShutdownTracer(ctx context.Context) error {
	if tracerProvider != nil {
		return tracerProvider.Shutdown(ctx)
	}

	return nil
}

// StartSpan 开始一个新的 span，结束时调用 span.End 或 EndSpan.
func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, spanName, opts...)
}

// TraceID 返回 ctx 中的 trace id，没有有效 span 时返回空串.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}

	return sc.TraceID().String()
}

// EndSpan 记录错误（如有）并结束 span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()
}
