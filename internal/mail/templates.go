package mail

import (
	"fmt"
	"time"
)

const VerificationSubject = "Confirm your email address"

// VerificationMessage builds the mail carrying an email verification key.
func VerificationMessage(to, username, key string, ttl time.Duration) Message {
	body := fmt.Sprintf(`Hello %s,

Confirm the email address of your CosRay account by submitting this key to
POST /_allauth/app/v1/auth/email/verify:

%s

The key expires in %s. If you did not sign up, ignore this message.
`, username, key, ttl.Round(time.Hour))
	return Message{
		To:      []string{to},
		Subject: VerificationSubject,
		Body:    body,
	}
}
