// Package metrics 提供监控指标功能.
// 支持Prometheus标准，收集文件存储、配额、事件与 OCR 的指标.
//
// Example:
//
//	import "github.com/yeisme/docvault/pkg/metrics"
//
//	err := metrics.InitMetrics(config.Metrics)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// 记录指标
//	metrics.FileOperations.WithLabelValues("create", "ok").Inc()
//	metrics.OCRDuration.Observe(1.5)
package metrics

import (
	"net/http"
	_ "net/http/pprof" // 自动注册pprof端点
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yeisme/docvault/pkg/configs"
)

const namespace = "docvault"

// 全局指标变量.
var (
	// FileOperations 文件操作计数，按操作与结果区分.
	FileOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_operations_total",
			Help:      "Total number of file lifecycle operations",
		},
		[]string{"operation", "result"},
	)

	// StoredBytes 成功写入的明文字节数.
	StoredBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stored_bytes_total",
			Help:      "Total plaintext bytes written to the blob store",
		},
	)

	// QuotaRejections 配额拒绝次数，scope 为 user 或 global.
	QuotaRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_rejections_total",
			Help:      "Uploads rejected by the quota ledger",
		},
		[]string{"scope"},
	)

	// EventsPublished 已投递的事件数.
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "File events handed to the transport",
		},
		[]string{"type"},
	)

	// OCRRuns OCR 执行次数，按结果区分.
	OCRRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ocr_runs_total",
			Help:      "Content extraction runs",
		},
		[]string{"result"},
	)

	// OCRDuration OCR 耗时.
	OCRDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ocr_duration_seconds",
			Help:      "Content extraction duration in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// OpsRequests 运维端口的请求数.
	OpsRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ops_requests_total",
			Help:      "Requests served by the ops HTTP server",
		},
		[]string{"path", "code"},
	)

	// registry Prometheus注册表.
	registry = prometheus.NewRegistry()

	registerOnce sync.Once
)

// InitMetrics 初始化Metrics.
func InitMetrics(config configs.MetricsConfig) error {
	if !config.Enabled {
		return nil
	}

	registerOnce.Do(func() {
		// 注册标准收集器
		if config.RuntimeMetrics {
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
		}

		registry.MustRegister(
			FileOperations, StoredBytes, QuotaRejections,
			EventsPublished, OCRRuns, OCRDuration, OpsRequests,
		)
	})

	return nil
}

// StartMetricsServer 在运维引擎上挂载 /metrics.
func StartMetricsServer(config configs.MetricsConfig, opsEngine *gin.Engine) error {
	if !config.Enabled {
		return nil
	}

	opsEngine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// 如果启用pprof，注册pprof端点
	if config.Pprof {
		opsEngine.GET("/debug/pprof/*any", gin.WrapH(http.DefaultServeMux))
	}

	return nil
}

// GetRegistry 获取Prometheus注册表.
func GetRegistry() *prometheus.Registry {
	return registry
}

// Result 将错误转换为结果标签.
func Result(err error) string {
	if err != nil {
		return "error"
	}

	return "ok"
}
