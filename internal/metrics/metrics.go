// Package metrics defines Prometheus metrics for lifecycle notifications.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	NotificationsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "runnotify_notifications_sent_total",
		Help: "Total number of notification messages delivered, by kind and provider",
	}, []string{"kind", "provider"})
	NotificationsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "runnotify_notifications_failed_total",
		Help: "Total number of notification messages that could not be delivered",
	}, []string{"kind", "provider"})
	// Invocations counts wrapped calls by terminal state (succeeded, crashed).
	Invocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "runnotify_invocations_total",
		Help: "Total number of wrapped calls by outcome",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(NotificationsSent)
	prometheus.MustRegister(NotificationsFailed)
	prometheus.MustRegister(Invocations)
}
