package notify

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/mikey/clip-relay/internal/core"
	"github.com/mikey/clip-relay/internal/utils"
	"go.uber.org/zap"
)

const maxBodyBytes = 4096

// SMTPNotifier sends delivery outcome emails through a mail relay.
// Messages go out in the background and are best effort, a broken mail
// setup never holds up or fails a webhook delivery.
type SMTPNotifier struct {
	addr          string
	from          string
	to            string
	onSuccess     bool
	subjectPrefix string
	textProcessor *utils.TextProcessor
	logger        *zap.Logger
}

// NewSMTPNotifier creates a new SMTP notifier
func NewSMTPNotifier(
	addr string,
	from string,
	to string,
	onSuccess bool,
	subjectPrefix string,
	textProcessor *utils.TextProcessor,
	logger *zap.Logger,
) *SMTPNotifier {
	return &SMTPNotifier{
		addr:          addr,
		from:          from,
		to:            to,
		onSuccess:     onSuccess,
		subjectPrefix: subjectPrefix,
		textProcessor: textProcessor,
		logger:        logger,
	}
}

// DeliverySucceeded reports a record accepted by the endpoint
func (n *SMTPNotifier) DeliverySucceeded(record *core.Record) {
	if !n.onSuccess {
		return
	}
	subject := fmt.Sprintf("%s delivered: %s", n.subjectPrefix, record.Title)
	body := fmt.Sprintf("Clip %s (%s) was delivered to the webhook.\r\nAudio: %s\r\n",
		record.ID, record.Title, record.AudioURL)
	n.send(subject, body)
}

// DeliveryFailed reports a record parked after exhausting retries
func (n *SMTPNotifier) DeliveryFailed(record *core.Record, failureCode int) {
	subject := fmt.Sprintf("%s delivery failed: %s", n.subjectPrefix, record.Title)
	body := fmt.Sprintf(
		"Clip %s (%s) could not be delivered (code %d) and was parked in the failed queue.\r\nAudio: %s\r\n",
		record.ID, record.Title, failureCode, record.AudioURL)
	n.send(subject, body)
}

// ReplayCompleted reports the outcome of a failed queue replay
func (n *SMTPNotifier) ReplayCompleted(succeeded int, failed int) {
	subject := fmt.Sprintf("%s replay finished", n.subjectPrefix)
	body := fmt.Sprintf("Replay of the failed queue finished: %d succeeded, %d failed.\r\n",
		succeeded, failed)
	n.send(subject, body)
}

// send delivers the message in the background
func (n *SMTPNotifier) send(subject string, body string) {
	go func() {
		if err := n.deliver(subject, body); err != nil {
			n.logger.Warn("Failed to send notification email", zap.Error(err))
		}
	}()
}

func (n *SMTPNotifier) deliver(subject string, body string) error {
	// Get hostname for EHLO
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	// Connect to the server with a timeout
	conn, err := net.DialTimeout("tcp", n.addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to mail server: %w", err)
	}

	// Set a deadline for the connection
	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}
	if err := c.Mail(n.from, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	if err := c.Rcpt(n.to, nil); err != nil {
		return fmt.Errorf("RCPT TO failed: %w", err)
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}

	if _, err := wc.Write([]byte(n.buildMessage(subject, body))); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		n.logger.Warn("QUIT command failed", zap.Error(err))
		// Not returning an error here as the message has already been sent
	}

	return nil
}

func (n *SMTPNotifier) buildMessage(subject string, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.from)
	fmt.Fprintf(&b, "To: %s\r\n", n.to)
	fmt.Fprintf(&b, "Subject: %s\r\n", n.textProcessor.SanitizeUTF8(subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(n.textProcessor.ProcessText(body, maxBodyBytes))
	return b.String()
}
