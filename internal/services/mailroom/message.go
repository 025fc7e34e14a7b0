package mailroom

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// incomingMessage is a parsed mailbox message ready for ingestion.
type incomingMessage struct {
	From            string
	Subject         string
	Date            time.Time
	TextBody        string
	BodyContentType string // text/plain, or text/html when only an HTML part exists
	Attachments     []attachment
}

type attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// parseMessage walks a raw RFC 5322 message and collects the plain-text body
// plus any attachments. HTML-only messages fall back to the text/html part.
func parseMessage(r io.Reader) (*incomingMessage, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail reader: %w", err)
	}

	msg := &incomingMessage{BodyContentType: "text/plain"}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = from[0].Address
	}
	if subject, err := mr.Header.Subject(); err == nil {
		msg.Subject = subject
	}
	if date, err := mr.Header.Date(); err == nil {
		msg.Date = date
	}

	var htmlBody string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read message part: %w", err)
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			data, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to read message body: %w", err)
			}
			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				msg.TextBody = strings.TrimSpace(string(data))
			case strings.HasPrefix(contentType, "text/html") && htmlBody == "":
				htmlBody = string(data)
			}
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			data, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to read attachment %s: %w", filename, err)
			}
			msg.Attachments = append(msg.Attachments, attachment{
				Filename:    filename,
				ContentType: contentType,
				Data:        data,
			})
		}
	}

	if msg.TextBody == "" && htmlBody != "" {
		msg.TextBody = htmlBody
		msg.BodyContentType = "text/html"
	}
	return msg, nil
}
