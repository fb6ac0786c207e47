package bookkeeping

import (
	"fmt"

	"github.com/hakierspejs/ksiemgowy/pkg/statement"
)

// Mail is a fully formed message payload. The engine knows nothing
// about mail protocols; delivery belongs to the collaborator behind
// MailSender.
type Mail struct {
	From    string
	To      string
	Cc      string
	Bcc     string
	Subject string
	Body    string
}

// MailSender delivers a prepared message.
type MailSender interface {
	Send(msg Mail) error
}

// buildConfirmationMail prepares the message confirming that a
// membership due arrived and was accounted for. When no address is
// known for the payer, the message goes to the bookkeeper only.
func buildConfirmationMail(fromAddr, toAddr string, t statement.Transfer) Mail {
	msg := Mail{
		From:    fromAddr,
		To:      fromAddr,
		Subject: "ksiemgowyd: your transfer has been recorded",
	}
	if toAddr != "" {
		msg.To = toAddr
		msg.Cc = fromAddr
	}
	msg.Body = fmt.Sprintf(`Thank you for supporting the organization!

Your transfer of %s PLN dated %s has been recorded. The website will
shortly be updated to reflect the current account state.

This message was generated automatically by ksiemgowy:

https://github.com/hakierspejs/ksiemgowy

If you don't want to receive these messages in the future, let the
bookkeeper know by replying to this e-mail.
`, t.Amount.StringFixed(2), t.Timestamp.Format("2006-01-02 15:04"))
	return msg
}
