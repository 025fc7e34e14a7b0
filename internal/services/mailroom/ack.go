package mailroom

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var ackRenderer = goldmark.New(goldmark.WithExtensions(extension.Table))

// buildAcknowledgment produces the receipt for an ingested message: a
// markdown summary of what was accepted and its HTML rendering. The HTML is
// attached to the ingested documents so the sender-facing side can serve it.
func buildAcknowledgment(subject string, documentIDs []string, jobIDs []string) (string, string, error) {
	var b strings.Builder
	b.WriteString("## Documents received\n\n")
	if subject != "" {
		b.WriteString(fmt.Sprintf("Your message **%s** was processed.\n\n", subject))
	}
	b.WriteString("| Document | Job |\n|----------|-----|\n")
	for i, docID := range documentIDs {
		jobID := "-"
		if i < len(jobIDs) && jobIDs[i] != "" {
			jobID = jobIDs[i]
		}
		b.WriteString(fmt.Sprintf("| %s | %s |\n", docID, jobID))
	}
	markdown := b.String()

	var html bytes.Buffer
	if err := ackRenderer.Convert([]byte(markdown), &html); err != nil {
		return "", "", fmt.Errorf("failed to render acknowledgment: %w", err)
	}
	return markdown, html.String(), nil
}
