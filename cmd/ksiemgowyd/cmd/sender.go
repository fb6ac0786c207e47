package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hakierspejs/ksiemgowy/pkg/bookkeeping"
)

// outboxSender hands prepared messages to the delivery collaborator by
// dropping them into an outbox directory, one file per message. Actual
// SMTP delivery happens outside this program.
type outboxSender struct {
	dir string
}

func newOutboxSender(dir string) *outboxSender {
	return &outboxSender{dir: dir}
}

// Send writes the message payload into the outbox.
func (s *outboxSender) Send(msg bookkeeping.Mail) error {
	if s.dir == "" {
		return fmt.Errorf("outbox_dir is not configured")
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create outbox directory: %w", err)
	}
	name := fmt.Sprintf("%d.eml", time.Now().UnixNano())
	payload := fmt.Sprintf(
		"From: %s\nTo: %s\nCc: %s\nBcc: %s\nSubject: %s\n\n%s",
		msg.From, msg.To, msg.Cc, msg.Bcc, msg.Subject, msg.Body,
	)
	if err := os.WriteFile(filepath.Join(s.dir, name), []byte(payload), 0600); err != nil {
		return fmt.Errorf("failed to write message to outbox: %w", err)
	}
	return nil
}
