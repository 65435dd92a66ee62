package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// metricRequests counts the probe requests served.
	metricRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speedtest_requests_total",
		Help: "Total number of probe requests served",
	}, []string{"endpoint", "code"})

	// metricBytes counts the payload bytes sent or received.
	metricBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speedtest_bytes_total",
		Help: "Total number of probe payload bytes",
	}, []string{"direction"})

	// metricSessions counts the archived sessions.
	metricSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speedtest_sessions_archived_total",
		Help: "Total number of sessions archived on expiration",
	}, []string{"outcome"})
)
