package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/resendlabs/resend-go"
)

type ResendClient struct {
	client *resend.Client
	from   string
}

func NewResend(apiKey, fromName, fromEmail string) *ResendClient {
	r := &ResendClient{}
	if strings.TrimSpace(apiKey) == "" || strings.TrimSpace(fromEmail) == "" {
		return r
	}

	r.client = resend.NewClient(apiKey)
	r.from = fromEmail
	if fromName != "" {
		r.from = fmt.Sprintf("%s <%s>", fromName, fromEmail)
	}
	return r
}

func (r *ResendClient) SendOTP(ctx context.Context, email, code string, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("resend not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := r.client.Emails.Send(&resend.SendEmailRequest{
		From:    r.from,
		To:      []string{email},
		Subject: otpSubject,
		Html:    otpHTML(code, ttl),
		Text:    otpText(code, ttl),
	})
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}
