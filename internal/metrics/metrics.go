package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// User Activity Metrics
	NewUsersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "app_new_users_total",
		Help: "Total number of new user registrations.",
	})
	TotalUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "app_total_users",
		Help: "Total number of registered users in the application.",
	})
	LoginAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "app_login_attempts_total",
		Help: "Total number of login attempts (successful and failed).",
	}, []string{"status"}) // status: "success" or "failed"

	// Password Reset Metrics
	ResetCodesIssuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "app_reset_codes_issued_total",
		Help: "Total number of password reset codes issued.",
	}, []string{"channel"})
	ResetCodeRequestsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "app_reset_code_requests_rejected_total",
		Help: "Total number of rejected reset code requests.",
	}, []string{"reason"}) // reason: "rate_limited", "unknown_identifier", "queue_unavailable"
	OTPVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "app_otp_verifications_total",
		Help: "Total number of reset code verification attempts.",
	}, []string{"result"}) // result: "success", "invalid", "expired", "locked"
	PasswordResetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "app_password_resets_total",
		Help: "Total number of password commit attempts.",
	}, []string{"result"}) // result: "success", "unauthorized", "invalid", "failed"
	ResetRequestsPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "app_reset_requests_purged_total",
		Help: "Total number of dead reset requests deleted by cleanup.",
	})

	// Notification Metrics
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "app_notifications_total",
		Help: "Total number of notification deliveries by outcome.",
	}, []string{"channel", "status"}) // status: "sent" or "failed"
	NotificationQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "app_notification_queue_depth",
		Help: "Number of notifications waiting for a worker.",
	})

	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
	HTTPResponseSizeBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_response_size_bytes",
		Help:    "Size of HTTP responses in bytes.",
		Buckets: prometheus.ExponentialBuckets(64, 4, 8),
	}, []string{"method", "path", "status"})
	InFlightRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "Current number of in-flight HTTP requests.",
	})

	// Database Metrics
	DBQueryDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"query_type", "repository", "status"})
	DBQueryErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "db_query_errors_total",
		Help: "Total number of failed database queries.",
	}, []string{"query_type", "repository"})
)

// ObserveQuery starts a timer for one repository query. Call the returned
// func with the query error when it finishes.
func ObserveQuery(queryType, repository string) func(err error) {
	timer := prometheus.NewTimer(nil)
	return func(err error) {
		status := "success"
		if err != nil {
			status = "error"
			DBQueryErrorsTotal.WithLabelValues(queryType, repository).Inc()
		}
		DBQueryDurationSeconds.WithLabelValues(queryType, repository, status).Observe(timer.ObserveDuration().Seconds())
	}
}
