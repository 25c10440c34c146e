package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// 当前活跃的 WebSocket 订阅连接数
	SubscriberGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "discussion_subscribers",
			Help: "Number of connected realtime subscribers",
		},
	)

	// 正在生成中的 AI 回复数量
	GenerationGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "discussion_generations_inflight",
			Help: "Number of AI turns currently generating",
		},
	)

	StreamChunkCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "discussion_stream_chunks_total",
			Help: "Total number of streamed AI reply chunks",
		},
	)

	ChangeEventCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discussion_change_events_total",
			Help: "Change events fanned out, by table and direction",
		},
		[]string{"table", "direction"},
	)

	QuotaDeniedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_denied_total",
			Help: "Quota checks that denied an action, by limit type",
		},
		[]string{"limit_type"},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(SubscriberGauge)
	prometheus.MustRegister(GenerationGauge)
	prometheus.MustRegister(StreamChunkCounter)
	prometheus.MustRegister(ChangeEventCounter)
	prometheus.MustRegister(QuotaDeniedCounter)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
