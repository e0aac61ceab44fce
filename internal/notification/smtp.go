package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fieldops_backend/platform/config"

	gomail "github.com/wneessen/go-mail"
)

// ErrNoRecipient is returned when a message has nowhere to go.
var ErrNoRecipient = errors.New("notification has no recipient")

const (
	subjectVisitRequested   = "We received your estimate request"
	subjectVisitRescheduled = "Your visit has been rescheduled"
	subjectVisitConfirmed   = "Your visit is confirmed"
	subjectJobScheduled     = "Your service is scheduled"
	subjectReminder         = "Reminder: your visit is tomorrow"
	subjectQuote            = "Your quote is ready"
)

// SMTPNotifier delivers messages through an SMTP server with go-mail.
type SMTPNotifier struct {
	host       string
	port       int
	username   string
	password   string
	fromName   string
	fromEmail  string
	staffEmail string
	location   *time.Location
}

// NewSMTPNotifier creates an SMTPNotifier from cfg. Times are rendered in loc.
func NewSMTPNotifier(cfg config.EmailConfig, loc *time.Location) *SMTPNotifier {
	return &SMTPNotifier{
		host:       cfg.GetSMTPHost(),
		port:       cfg.GetSMTPPort(),
		username:   cfg.GetSMTPUsername(),
		password:   cfg.GetSMTPPassword(),
		fromName:   cfg.GetEmailFromName(),
		fromEmail:  cfg.GetEmailFromAddress(),
		staffEmail: cfg.GetStaffEmail(),
		location:   loc,
	}
}

func (s *SMTPNotifier) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	if toEmail == "" {
		return ErrNoRecipient
	}

	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	opts := []gomail.Option{
		gomail.WithPort(s.port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15 * time.Second),
	}
	if s.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.username),
			gomail.WithPassword(s.password),
		)
	}
	client, err := gomail.NewClient(s.host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTPNotifier) SendEstimateConfirmation(ctx context.Context, p EstimatePayload, reason string) error {
	subject, intro := subjectVisitRequested, "Thanks for reaching out. Here is the visit you asked for; we will confirm the exact time shortly."
	switch reason {
	case ReasonRescheduled:
		subject, intro = subjectVisitRescheduled, "Your visit has been moved. Here are the new details."
	case ReasonConfirmed:
		subject, intro = subjectVisitConfirmed, "Good news, your visit is confirmed."
	case ReasonJob:
		subject, intro = subjectJobScheduled, "Your service is on the calendar."
	}

	content, err := renderEmailTemplate("visit.html", s.visitData(p, subject, intro))
	if err != nil {
		return err
	}
	return s.send(ctx, p.Email, subject, content)
}

func (s *SMTPNotifier) SendReminder(ctx context.Context, p EstimatePayload, window string) error {
	if p.Window == "" {
		p.Window = window
	}
	content, err := renderEmailTemplate("visit.html", s.visitData(p, subjectReminder, "A quick reminder about your upcoming visit."))
	if err != nil {
		return err
	}
	return s.send(ctx, p.Email, subjectReminder, content)
}

func (s *SMTPNotifier) SendStaffAlert(ctx context.Context, alert StaffAlert) error {
	content, err := renderEmailTemplate("staff.html", staffEmailData{
		baseEmailData: baseEmailData{Title: alert.Subject, Heading: alert.Subject},
		Lines:         alert.Lines,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, s.staffEmail, alert.Subject, content)
}

func (s *SMTPNotifier) SendQuoteLink(ctx context.Context, p QuoteLinkPayload) error {
	data := quoteEmailData{
		baseEmailData: baseEmailData{Title: subjectQuote, Heading: subjectQuote, CTALabel: "Review your quote", CTAURL: p.URL},
		CustomerName:  p.CustomerName,
		Total:         formatCents(p.TotalCents),
	}
	if p.DepositDueCents > 0 {
		data.Deposit = formatCents(p.DepositDueCents)
	}
	if p.ExpiresAt != nil {
		data.ExpiresOn = p.ExpiresAt.In(s.loc()).Format("January 2, 2006")
	}
	content, err := renderEmailTemplate("quote.html", data)
	if err != nil {
		return err
	}
	return s.send(ctx, p.Email, subjectQuote, content)
}

func (s *SMTPNotifier) visitData(p EstimatePayload, subject, intro string) visitEmailData {
	data := visitEmailData{
		baseEmailData: baseEmailData{Title: subject, Heading: subject},
		CustomerName:  p.CustomerName,
		Intro:         intro,
		When:          formatStart(p.StartAt, s.loc(), p.Window),
		Address:       p.Address,
		Services:      p.Services,
	}
	if p.RescheduleURL != "" {
		data.CTALabel, data.CTAURL = "Manage your visit", p.RescheduleURL
	}
	return data
}

func (s *SMTPNotifier) loc() *time.Location {
	if s.location == nil {
		return time.UTC
	}
	return s.location
}

var _ Notifier = (*SMTPNotifier)(nil)
