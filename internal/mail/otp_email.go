package mail

import (
	"fmt"
	"strings"
	"time"

	"dauth-service/internal/config"
	"dauth-service/internal/model"
)

const otpTemplate = `<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <p>Hi {{userName}},</p>
  <p>{{intro}}</p>
  <p style="font-size: 28px; font-weight: bold; letter-spacing: 4px;">{{OTP}}</p>
  <p>This code is valid for {{validityMinutes}} minute(s). If you did not request it, you can ignore this email.</p>
  <p>&mdash; The {{companyName}} team</p>
</body>
</html>`

var otpSubjects = map[model.OTPPurpose]string{
	model.OTPPurposePasswordReset: "Your password reset code",
	model.OTPPurposeEmailVerify:   "Verify your email address",
	model.OTPPurposePhoneVerify:   "Verify your phone number",
	model.OTPPurposeTwoFactor:     "Your sign-in code",
}

var otpIntros = map[model.OTPPurpose]string{
	model.OTPPurposePasswordReset: "Use this code to reset your password:",
	model.OTPPurposeEmailVerify:   "Use this code to verify your email address:",
	model.OTPPurposePhoneVerify:   "Use this code to verify your phone number:",
	model.OTPPurposeTwoFactor:     "Use this code to finish signing in:",
}

// OTPSender renders and delivers one-time code emails.
type OTPSender struct {
	mailer  Mailer
	company string
}

func NewOTPSender(cfg *config.Config, mailer Mailer) *OTPSender {
	return &OTPSender{
		mailer:  mailer,
		company: cfg.Company.Name,
	}
}

// SendCode delivers the code. Validity states how long the code actually
// remains usable, which shrinks on resends.
func (s *OTPSender) SendCode(to, name string, purpose model.OTPPurpose, code string, validity time.Duration) error {
	if name == "" {
		name = "there"
	}
	minutes := int(validity.Minutes())
	if minutes < 1 {
		minutes = 1
	}

	body := Render(otpTemplate, map[string]string{
		"userName":        name,
		"intro":           otpIntros[purpose],
		"OTP":             code,
		"validityMinutes": fmt.Sprintf("%d", minutes),
		"companyName":     s.company,
	})
	return s.mailer.Send(to, otpSubjects[purpose], body)
}

// Render substitutes {{key}} placeholders. Unknown placeholders are left
// alone so a template typo is visible in the output instead of silently
// vanishing.
func Render(template string, vars map[string]string) string {
	out := template
	for key, value := range vars {
		out = strings.ReplaceAll(out, "{{"+key+"}}", value)
	}
	return out
}
