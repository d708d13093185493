package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wechatmp_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wechatmp_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Protocol metrics
	EchoRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wechatmp_echo_requests_total",
			Help: "Total echo verification requests",
		},
	)

	CallbacksProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wechatmp_callbacks_processed_total",
			Help: "Total callback messages decoded and dispatched",
		},
	)

	CallbackRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wechatmp_callback_rejections_total",
			Help: "Total callbacks rejected before dispatch",
		},
		[]string{"reason"}, // "signature", "cipher", "decode", "config"
	)

	// Credential metrics
	TokenRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wechatmp_token_refreshes_total",
			Help: "Total access token issuance calls",
		},
	)

	TokenLockTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wechatmp_token_lock_timeouts_total",
			Help: "Total refresh lock acquisition timeouts",
		},
	)
)
