package notification

import (
	"context"
	"strings"

	"fieldops_backend/platform/logger"
)

// LogNotifier writes messages to the log. Used when SMTP is not configured.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendEstimateConfirmation(_ context.Context, p EstimatePayload, reason string) error {
	n.log.Info("notification: visit confirmation", "appointmentId", p.AppointmentID, "to", p.Email, "reason", reason, "services", strings.Join(p.Services, ","))
	return nil
}

func (n *LogNotifier) SendReminder(_ context.Context, p EstimatePayload, window string) error {
	n.log.Info("notification: visit reminder", "appointmentId", p.AppointmentID, "to", p.Email, "window", window)
	return nil
}

func (n *LogNotifier) SendStaffAlert(_ context.Context, alert StaffAlert) error {
	n.log.Info("notification: staff alert", "subject", alert.Subject, "body", strings.Join(alert.Lines, " | "))
	return nil
}

func (n *LogNotifier) SendQuoteLink(_ context.Context, p QuoteLinkPayload) error {
	n.log.Info("notification: quote link", "quoteId", p.QuoteID, "to", p.Email, "url", p.URL)
	return nil
}

var _ Notifier = (*LogNotifier)(nil)
