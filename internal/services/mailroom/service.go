package mailroom

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
	"github.com/ternarybob/scrutor/internal/services/extract"
)

// mailroomUserID owns jobs created from ingested mail.
const mailroomUserID = "mailroom"

// Service polls an IMAP mailbox and turns unseen messages into documents.
// Attachments become one document each; a message without attachments is
// ingested as its own body. When auto_submit is on, every ingested document
// gets an analysis job queued.
type Service struct {
	config  *common.MailConfig
	extract *extract.Service
	docs    interfaces.DocumentStorage
	queue   interfaces.JobQueueManager
	logger  arbor.ILogger

	pollInterval time.Duration
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

func NewService(
	config *common.MailConfig,
	extractSvc *extract.Service,
	docs interfaces.DocumentStorage,
	queue interfaces.JobQueueManager,
	logger arbor.ILogger,
) (*Service, error) {
	pollInterval, err := time.ParseDuration(config.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid mail poll_interval '%s': %w", config.PollInterval, err)
	}

	return &Service{
		config:       config,
		extract:      extractSvc,
		docs:         docs,
		queue:        queue,
		logger:       logger,
		pollInterval: pollInterval,
		stopCh:       make(chan struct{}),
	}, nil
}

// Start launches the poll loop. No-op when mail intake is disabled or the
// mailbox is not configured.
func (s *Service) Start() {
	if !s.config.Enabled {
		s.logger.Debug().Msg("Mail intake disabled")
		return
	}
	if s.config.Server == "" || s.config.Username == "" {
		s.logger.Warn().Msg("Mail intake enabled but server/username not configured")
		return
	}

	s.wg.Add(1)
	common.SafeGo(s.logger, "mailroom.poll", func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		s.logger.Info().
			Str("server", s.config.Server).
			Str("mailbox", s.config.Mailbox).
			Dur("poll_interval", s.pollInterval).
			Msg("Mailroom started")

		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				if err := s.Poll(context.Background()); err != nil {
					s.logger.Warn().Err(err).Msg("Mailbox poll failed")
				}
			}
		}
	})
}

// Stop terminates the poll loop and waits for it to exit.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Poll connects to the mailbox, ingests unseen messages and marks them seen.
// Each poll uses a fresh connection; IMAP servers drop idle sessions anyway.
func (s *Service) Poll(ctx context.Context) error {
	c, err := client.DialTLS(s.config.Server, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.config.Server, err)
	}
	defer c.Logout()

	if err := c.Login(s.config.Username, s.config.Password); err != nil {
		return fmt.Errorf("IMAP login failed: %w", err)
	}

	mailbox := s.config.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	mbox, err := c.Select(mailbox, false)
	if err != nil {
		return fmt.Errorf("failed to select %s: %w", mailbox, err)
	}
	if mbox.Messages == 0 {
		return nil
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	seqNums, err := c.Search(criteria)
	if err != nil {
		return fmt.Errorf("failed to search for unseen messages: %w", err)
	}
	if len(seqNums) == 0 {
		return nil
	}
	if s.config.MaxMessages > 0 && uint32(len(seqNums)) > s.config.MaxMessages {
		seqNums = seqNums[:s.config.MaxMessages]
	}

	s.logger.Info().Int("count", len(seqNums)).Msg("Unseen messages found")

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seqNums...)

	section := &imap.BodySectionName{}
	messages := make(chan *imap.Message, len(seqNums))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, section.FetchItem()}, messages)
	}()

	processed := new(imap.SeqSet)
	for raw := range messages {
		if raw == nil {
			continue
		}
		body := raw.GetBody(section)
		if body == nil {
			s.logger.Warn().Int64("seq", int64(raw.SeqNum)).Msg("Message has no body section")
			continue
		}
		msg, err := parseMessage(body)
		if err != nil {
			s.logger.Warn().Err(err).Int64("seq", int64(raw.SeqNum)).Msg("Failed to parse message")
			continue
		}
		if _, err := s.Ingest(ctx, msg); err != nil {
			s.logger.Warn().Err(err).Int64("seq", int64(raw.SeqNum)).Msg("Failed to ingest message")
			continue
		}
		processed.AddNum(raw.SeqNum)
	}

	if err := <-done; err != nil {
		return fmt.Errorf("failed to fetch messages: %w", err)
	}

	if !processed.Empty() {
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := c.Store(processed, item, []interface{}{imap.SeenFlag}, nil); err != nil {
			return fmt.Errorf("failed to mark messages as read: %w", err)
		}
	}
	return nil
}

// Ingest converts one parsed message into documents and, when auto_submit is
// on, queues a job per document. Returns the ingested document ids.
func (s *Service) Ingest(ctx context.Context, msg *incomingMessage) ([]string, error) {
	type payload struct {
		name        string
		contentType string
		data        []byte
	}

	payloads := make([]payload, 0, len(msg.Attachments)+1)
	for _, att := range msg.Attachments {
		if len(att.Data) == 0 {
			continue
		}
		name := att.Filename
		if name == "" {
			name = fmt.Sprintf("attachment from %s", msg.From)
		}
		payloads = append(payloads, payload{name: name, contentType: att.ContentType, data: att.Data})
	}
	if len(payloads) == 0 {
		if msg.TextBody == "" {
			return nil, fmt.Errorf("message has no attachments and no body")
		}
		name := msg.Subject
		if name == "" {
			name = fmt.Sprintf("message from %s", msg.From)
		}
		payloads = append(payloads, payload{name: name, contentType: msg.BodyContentType, data: []byte(msg.TextBody)})
	}

	documentIDs := make([]string, 0, len(payloads))
	jobIDs := make([]string, 0, len(payloads))
	for _, p := range payloads {
		doc, err := s.extract.ExtractDocument(ctx, p.name, p.contentType, p.data)
		if err != nil {
			s.logger.Warn().Err(err).Str("name", p.name).Msg("Failed to extract mail payload")
			continue
		}
		doc.Source = models.SourceEmail
		doc.Metadata["from"] = msg.From
		doc.Metadata["subject"] = msg.Subject
		if !msg.Date.IsZero() {
			doc.Metadata["sent_at"] = msg.Date.Format(time.RFC3339)
		}
		if err := s.docs.SaveDocument(ctx, doc); err != nil {
			return nil, fmt.Errorf("failed to save document %s: %w", doc.ID, err)
		}
		documentIDs = append(documentIDs, doc.ID)

		jobID := ""
		if s.config.AutoSubmit && s.queue != nil {
			jobID, err = s.queue.CreateJob(ctx, doc.ID, mailroomUserID, models.PriorityNormal, map[string]interface{}{
				"source":  "email",
				"from":    msg.From,
				"subject": msg.Subject,
			})
			if err != nil {
				s.logger.Warn().Err(err).Str("document_id", doc.ID).Msg("Failed to queue analysis job")
			}
		}
		jobIDs = append(jobIDs, jobID)
	}

	if len(documentIDs) == 0 {
		return nil, fmt.Errorf("no ingestable content in message from %s", msg.From)
	}

	ackMarkdown, ackHTML, err := buildAcknowledgment(msg.Subject, documentIDs, jobIDs)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to build acknowledgment")
	} else {
		// The receipt rides on the first document; handlers serve it back to
		// the sender on request
		if doc, err := s.docs.GetDocument(ctx, documentIDs[0]); err == nil {
			doc.Metadata["ack_markdown"] = ackMarkdown
			doc.Metadata["ack_html"] = ackHTML
			if err := s.docs.SaveDocument(ctx, doc); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to store acknowledgment")
			}
		}
	}

	s.logger.Info().
		Str("from", msg.From).
		Str("subject", msg.Subject).
		Int("documents", len(documentIDs)).
		Bool("auto_submit", s.config.AutoSubmit).
		Msg("Message ingested")

	return documentIDs, nil
}
