package mailroom

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
	"github.com/ternarybob/scrutor/internal/services/extract"
)

const plainMessage = "From: Alice Sender <alice@example.com>\r\n" +
	"To: intake@scrutor.example\r\n" +
	"Subject: Please review this agreement\r\n" +
	"Date: Mon, 13 Jul 2026 10:00:00 +0000\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"The agreement body is attached inline here.\r\n"

const multipartMessage = "From: bob@example.com\r\n" +
	"To: intake@scrutor.example\r\n" +
	"Subject: Contract attached\r\n" +
	"Content-Type: multipart/mixed; boundary=BOUNDARY\r\n" +
	"\r\n" +
	"--BOUNDARY\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"See attached contract.\r\n" +
	"--BOUNDARY\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"Content-Disposition: attachment; filename=contract.html\r\n" +
	"\r\n" +
	"<html><body><main><h1>Contract</h1><p>Payment due in 30 days.</p></main></body></html>\r\n" +
	"--BOUNDARY--\r\n"

type fakeDocs struct {
	docs map[string]*models.Document
}

func (f *fakeDocs) SaveDocument(ctx context.Context, doc *models.Document) error {
	f.docs[doc.ID] = doc
	return nil
}
func (f *fakeDocs) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, fmt.Errorf("document not found: %s", id)
	}
	return doc, nil
}
func (f *fakeDocs) DeleteDocument(ctx context.Context, id string) error { return nil }
func (f *fakeDocs) ListDocuments(ctx context.Context, limit, offset int) ([]*models.Document, error) {
	return nil, nil
}
func (f *fakeDocs) GetStats(ctx context.Context) (*models.DocumentStats, error) { return nil, nil }

// fakeQueue records CreateJob calls.
type fakeQueue struct {
	created []string
}

func (f *fakeQueue) CreateJob(ctx context.Context, documentID, userID string, priority int, metadata map[string]interface{}) (string, error) {
	f.created = append(f.created, documentID)
	return fmt.Sprintf("job_%d", len(f.created)), nil
}
func (f *fakeQueue) UpdateProgress(ctx context.Context, jobID, stage string, percent float64, message string) bool {
	return true
}
func (f *fakeQueue) CompleteJob(ctx context.Context, jobID string, results map[string]interface{}, success bool, errorMessage string) bool {
	return true
}
func (f *fakeQueue) CancelJob(ctx context.Context, jobID, reason string) bool { return true }
func (f *fakeQueue) RetryFailedTask(ctx context.Context, jobID, taskID string, maxRetries int) (interface{}, error) {
	return nil, nil
}
func (f *fakeQueue) GetJob(ctx context.Context, jobID string) (*models.Job, bool) { return nil, false }
func (f *fakeQueue) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	return nil, nil
}
func (f *fakeQueue) Stats(ctx context.Context) models.QueueStats { return models.QueueStats{} }
func (f *fakeQueue) Stop()                                       {}

type mailroomFixture struct {
	service *Service
	docs    *fakeDocs
	queue   *fakeQueue
}

func newMailroomFixture(t *testing.T, autoSubmit bool) *mailroomFixture {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Mail.AutoSubmit = autoSubmit
	logger := arbor.NewLogger()

	docs := &fakeDocs{docs: make(map[string]*models.Document)}
	queue := &fakeQueue{}
	service, err := NewService(&cfg.Mail, extract.NewService(&cfg.Extraction, logger), docs, queue, logger)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return &mailroomFixture{service: service, docs: docs, queue: queue}
}

func TestParsePlainMessage(t *testing.T) {
	msg, err := parseMessage(strings.NewReader(plainMessage))
	if err != nil {
		t.Fatalf("parseMessage failed: %v", err)
	}
	if msg.From != "alice@example.com" {
		t.Errorf("unexpected from %q", msg.From)
	}
	if msg.Subject != "Please review this agreement" {
		t.Errorf("unexpected subject %q", msg.Subject)
	}
	if !strings.Contains(msg.TextBody, "attached inline") {
		t.Errorf("unexpected body %q", msg.TextBody)
	}
	if msg.BodyContentType != "text/plain" || len(msg.Attachments) != 0 {
		t.Errorf("unexpected parse result %+v", msg)
	}
}

func TestParseMultipartMessageWithAttachment(t *testing.T) {
	msg, err := parseMessage(strings.NewReader(multipartMessage))
	if err != nil {
		t.Fatalf("parseMessage failed: %v", err)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(msg.Attachments))
	}
	att := msg.Attachments[0]
	if att.Filename != "contract.html" || att.ContentType != "text/html" {
		t.Errorf("unexpected attachment %+v", att)
	}
	if !strings.Contains(string(att.Data), "Payment due") {
		t.Errorf("attachment data lost: %q", att.Data)
	}
	if !strings.Contains(msg.TextBody, "See attached") {
		t.Errorf("unexpected body %q", msg.TextBody)
	}
}

func TestIngestAttachmentCreatesDocumentAndJob(t *testing.T) {
	f := newMailroomFixture(t, true)

	msg, err := parseMessage(strings.NewReader(multipartMessage))
	if err != nil {
		t.Fatalf("parseMessage failed: %v", err)
	}
	documentIDs, err := f.service.Ingest(context.Background(), msg)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if len(documentIDs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(documentIDs))
	}

	doc := f.docs.docs[documentIDs[0]]
	if doc.Source != models.SourceEmail {
		t.Errorf("unexpected source %q", doc.Source)
	}
	if doc.Metadata["from"] != "bob@example.com" {
		t.Errorf("sender missing from metadata: %v", doc.Metadata)
	}
	if !strings.Contains(doc.Content, "Payment due") {
		t.Errorf("content not extracted: %q", doc.Content)
	}
	if ack, _ := doc.Metadata["ack_html"].(string); !strings.Contains(ack, documentIDs[0]) {
		t.Errorf("acknowledgment missing document id: %q", ack)
	}
	if len(f.queue.created) != 1 || f.queue.created[0] != documentIDs[0] {
		t.Errorf("expected one job for the document, got %v", f.queue.created)
	}
}

func TestIngestBodyOnlyMessageWithoutAutoSubmit(t *testing.T) {
	f := newMailroomFixture(t, false)

	msg, err := parseMessage(strings.NewReader(plainMessage))
	if err != nil {
		t.Fatalf("parseMessage failed: %v", err)
	}
	documentIDs, err := f.service.Ingest(context.Background(), msg)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if len(documentIDs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(documentIDs))
	}
	doc := f.docs.docs[documentIDs[0]]
	if doc.Name != "Please review this agreement" {
		t.Errorf("expected subject as name, got %q", doc.Name)
	}
	if len(f.queue.created) != 0 {
		t.Errorf("no jobs expected without auto_submit, got %v", f.queue.created)
	}
}

func TestIngestEmptyMessageFails(t *testing.T) {
	f := newMailroomFixture(t, true)

	_, err := f.service.Ingest(context.Background(), &incomingMessage{From: "x@example.com"})
	if err == nil {
		t.Fatal("expected error for empty message")
	}
}

func TestBuildAcknowledgment(t *testing.T) {
	markdown, html, err := buildAcknowledgment("Contract attached", []string{"doc_1", "doc_2"}, []string{"job_1", ""})
	if err != nil {
		t.Fatalf("buildAcknowledgment failed: %v", err)
	}
	if !strings.Contains(markdown, "doc_2") || !strings.Contains(markdown, "job_1") {
		t.Errorf("markdown incomplete:\n%s", markdown)
	}
	if !strings.Contains(html, "<table>") || !strings.Contains(html, "<strong>Contract attached</strong>") {
		t.Errorf("html incomplete:\n%s", html)
	}
}
