// Package mail builds and delivers the transactional messages the shop
// sends: registration confirmation, password reset, order confirmation.
package mail

import (
	"context"
	"fmt"
)

// Message is one outgoing email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers messages. Implemented by Client for SMTP and by test
// doubles in handler tests.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Registration builds the welcome message for a new account.
func Registration(to string) Message {
	return Message{
		To:      to,
		Subject: "Account created",
		HTML: fmt.Sprintf(`<h1>Welcome to the course shop</h1>`+
			`<p>Your account %s was created successfully.</p>`+
			`<hr/><a href="/">Course shop</a>`, to),
	}
}

// Reset builds the password-reset message. link carries the one-time
// token and must stay out of logs.
func Reset(to, link string) Message {
	return Message{
		To:      to,
		Subject: "Password recovery",
		HTML: fmt.Sprintf(`<h1>Forgot your password?</h1>`+
			`<p>If not, ignore this message.</p>`+
			`<p>Otherwise follow the link below:</p>`+
			`<p><a href="%s">Reset password</a></p>`+
			`<hr/><a href="/">Course shop</a>`, link),
	}
}

// OrderConfirmation builds the post-checkout message.
func OrderConfirmation(to, orderID string, total int64) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Order %s confirmed", orderID),
		HTML: fmt.Sprintf(`<h1>Thank you for your order</h1>`+
			`<p>Order <strong>%s</strong> for a total of %d has been placed.</p>`+
			`<hr/><a href="/orders">Your orders</a>`, orderID, total),
	}
}
