package notification

import (
	"fmt"
	"html"

	"github.com/qcom/accounts/internal/models"
)

func otpSubject(purpose models.OTPPurpose) string {
	switch purpose {
	case models.PurposePasswordReset:
		return "Reset your password"
	case models.PurposePhoneVerification:
		return "Your verification code"
	default:
		return "Verify your email"
	}
}

func otpIntro(purpose models.OTPPurpose) string {
	switch purpose {
	case models.PurposePasswordReset:
		return "We received a request to reset your password. Use the code below to choose a new one."
	default:
		return "Use the code below to finish verifying your account."
	}
}

func otpMessage(address, code, displayName string, purpose models.OTPPurpose, validMinutes int) *Message {
	intro := otpIntro(purpose)

	text := fmt.Sprintf(`Hi %s,

%s

Your code: %s

The code is valid for %d minutes. Do not share it with anyone.
If you did not request it, ignore this email.
`, displayName, intro, code, validMinutes)

	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #333;">
  <p>Hi <strong>%s</strong>,</p>
  <p>%s</p>
  <p style="font-size: 28px; font-weight: bold; letter-spacing: 5px; font-family: monospace;">%s</p>
  <p>The code is valid for <strong>%d minutes</strong>. Do not share it with anyone.</p>
  <p>If you did not request it, ignore this email.</p>
</body>
</html>`, html.EscapeString(displayName), intro, code, validMinutes)

	return &Message{
		To:      address,
		ToName:  displayName,
		Subject: otpSubject(purpose),
		HTML:    body,
		Text:    text,
	}
}

func welcomeMessage(address, displayName string) *Message {
	text := fmt.Sprintf(`Hi %s,

Your email address is verified and your account is ready to use.
`, displayName)

	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #333;">
  <p>Hi <strong>%s</strong>,</p>
  <p>Your email address is verified and your account is ready to use.</p>
</body>
</html>`, html.EscapeString(displayName))

	return &Message{
		To:      address,
		ToName:  displayName,
		Subject: "Welcome!",
		HTML:    body,
		Text:    text,
	}
}
