package mailer

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/diagnosis/carbonmrv/pkg/logger"
)

// DevMailer prints codes to the terminal instead of sending them.
type DevMailer struct {
	out io.Writer
}

func NewDevMailer() *DevMailer {
	return &DevMailer{out: os.Stdout}
}

func (d *DevMailer) SendOTP(ctx context.Context, email, code string, ttl time.Duration) error {
	logger.DebugContext(ctx, "📧 [DEV MAIL] OTP email", "to", email, "ttl", ttl.String())

	fmt.Fprintf(d.out, "\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"📧 OTP EMAIL (DEV MODE)\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"To: %s\n"+
		"Subject: %s\n"+
		"\n"+
		"Code: %s (valid for %s)\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n",
		email, otpSubject, code, ttl)

	return nil
}
