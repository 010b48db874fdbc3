package service

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/diagnosis/carbonmrv/pkg/events"
	"github.com/diagnosis/carbonmrv/pkg/logger"
)

var (
	otpIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carbonmrv_otp_issued_total",
			Help: "One-time codes issued, by purpose",
		},
		[]string{"purpose"},
	)

	otpVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carbonmrv_otp_verifications_total",
			Help: "One-time code verification attempts, by result",
		},
		[]string{"result"},
	)

	sessionsMintedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carbonmrv_sessions_minted_total",
			Help: "Sessions created, by user type",
		},
		[]string{"user_type"},
	)

	adminLoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carbonmrv_admin_logins_total",
			Help: "Admin login attempts, by result",
		},
		[]string{"result"},
	)
)

// publish never fails the caller; a lost event is logged and dropped.
func publish(ctx context.Context, bus events.Publisher, subject string, data interface{}) {
	if bus == nil {
		return
	}
	if err := bus.Publish(ctx, subject, data); err != nil {
		logger.WarnContext(ctx, "Failed to publish event", "subject", subject, "error", err)
	}
}
