package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OTPIssued counts codes persisted, by purpose.
	OTPIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accounts_otp_issued_total",
			Help: "Total number of OTP codes issued",
		},
		[]string{"purpose"},
	)

	// OTPVerifications counts verify outcomes (success|invalid|expired|error).
	OTPVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accounts_otp_verifications_total",
			Help: "Total number of OTP verification attempts",
		},
		[]string{"purpose", "result"},
	)

	// NotificationFailures counts failed deliveries per email provider.
	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accounts_notification_failures_total",
			Help: "Total number of failed notification deliveries",
		},
		[]string{"provider"},
	)
)
