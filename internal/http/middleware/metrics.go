package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTP collectors. The path label is the route pattern (see routeLabel), so
// complaint IDs never become label values.
var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// Status is left out to keep the histogram small.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Duration of non-streaming HTTP requests in seconds.",
			// Submissions wait on the classifier, so the tail runs long.
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20, 40},
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight non-streaming HTTP requests.",
		},
	)

	httpStreams = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_streams_open",
			Help: "Current number of open websocket and SSE connections.",
		},
		[]string{"path"},
	)

	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Size of HTTP responses in bytes.",
			Buckets: prometheus.ExponentialBuckets(128, 4, 8), // 128B..2MiB
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpStreams, httpRespSize)
}

// Metrics records Prometheus HTTP metrics. Serve them with
//
//	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
//
// Streams (see IsStreaming) are tracked by the open-streams gauge instead of
// the in-flight gauge, and stay out of the latency and size histograms: their
// duration is how long a dashboard stayed connected.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := routeLabel(c)
		streaming := IsStreaming(c)

		if streaming {
			g := httpStreams.WithLabelValues(path)
			g.Inc()
			defer g.Dec()
		} else {
			httpInflight.Inc()
			defer httpInflight.Dec()
		}

		c.Next()

		method := c.Request.Method
		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		if streaming {
			return
		}
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		// -1 means nothing was written.
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}

// IsStreaming reports whether the request asks for a long-lived stream:
// a websocket upgrade or a Server-Sent Events subscription.
func IsStreaming(c *gin.Context) bool {
	r := c.Request
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}
