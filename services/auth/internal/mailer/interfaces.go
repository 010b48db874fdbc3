package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/diagnosis/carbonmrv/pkg/config"
)

type Service interface {
	SendOTP(ctx context.Context, email, code string, ttl time.Duration) error
}

// New picks the delivery backend named by cfg.Provider.
func New(cfg config.EmailConfig) (Service, error) {
	switch cfg.Provider {
	case "", "dev":
		return NewDevMailer(), nil
	case "smtp":
		return NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.FromEmail, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPUseTLS), nil
	case "mailersend":
		return NewMailerSend(cfg.MailerSendKey, cfg.FromName, cfg.FromEmail), nil
	case "resend":
		return NewResend(cfg.ResendKey, cfg.FromName, cfg.FromEmail), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}

const otpSubject = "Your CarbonMRV verification code"

func otpText(code string, ttl time.Duration) string {
	return fmt.Sprintf("Your CarbonMRV verification code is %s.\n\nIt expires in %d minutes. If you did not request it, ignore this email.", code, int(ttl.Minutes()))
}

func otpHTML(code string, ttl time.Duration) string {
	return fmt.Sprintf(`
		<h2>Your CarbonMRV verification code</h2>
		<p>Enter this code to sign in:</p>
		<p><strong style="font-size: 24px; letter-spacing: 4px; color: #2E7D32;">%s</strong></p>
		<p>This code will expire in %d minutes.</p>
		<p>If you didn't request it, you can ignore this email.</p>
	`, code, int(ttl.Minutes()))
}
