package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"docent-tagalong/internal/transport/http/ez"
	resp "docent-tagalong/internal/transport/http/response"
)

// 未命中任何路由的请求归到一个标签下，避免按原始路径打爆基数
const unmatchedRoute = "unmatched"

var (
	httpReqTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tagalong",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route template, method, envelope code and caller role.",
		},
		[]string{"route", "method", "code", "role"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tagalong",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route template.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"route", "method"},
	)
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tagalong",
		Subsystem: "http",
		Name:      "in_flight_requests",
		Help:      "Requests currently being served.",
	})
)

func init() { prometheus.MustRegister(httpReqTotal, httpLatency, httpInFlight) }

// Metrics 放在鉴权之前；角色在 c.Next() 之后读，由 AuthJWT 写入
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		role := c.GetString(ez.KeyRole)
		if role == "" {
			role = "anonymous"
		}
		httpReqTotal.WithLabelValues(route, c.Request.Method, envelopeCode(c), role).Inc()
		httpLatency.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// envelopeCode HTTP 状态恒为 200，结果看信封 code；没有信封时退回 HTTP 状态
func envelopeCode(c *gin.Context) string {
	if code, ok := resp.CodeOf(c); ok {
		return strconv.Itoa(code)
	}
	return strconv.Itoa(c.Writer.Status())
}
