package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/models"
	"github.com/ternarybob/scrutor/internal/services/extract"
)

// Service fetches URL sources and turns them into documents. Plain HTTP is
// the default; pages that need JavaScript rendering go through headless
// Chrome when use_browser is enabled.
type Service struct {
	config         *common.FetcherConfig
	extract        *extract.Service
	logger         arbor.ILogger
	client         *http.Client
	browserTimeout time.Duration
}

func NewService(config *common.FetcherConfig, extractSvc *extract.Service, logger arbor.ILogger) (*Service, error) {
	requestTimeout, err := time.ParseDuration(config.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid fetcher request_timeout '%s': %w", config.RequestTimeout, err)
	}
	browserTimeout, err := time.ParseDuration(config.BrowserTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid fetcher browser_timeout '%s': %w", config.BrowserTimeout, err)
	}

	return &Service{
		config:         config,
		extract:        extractSvc,
		logger:         logger,
		client:         &http.Client{Timeout: requestTimeout},
		browserTimeout: browserTimeout,
	}, nil
}

// FetchDocument retrieves the target URL, extracts its content to markdown,
// and returns an unsaved document carrying the origin URL in metadata.
func (s *Service) FetchDocument(ctx context.Context, rawURL string) (*models.Document, error) {
	target, err := url.Parse(rawURL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		return nil, &models.ValidationError{Field: "url", Reason: "must be an absolute http or https URL"}
	}

	start := time.Now()
	var body []byte
	var contentType string
	if s.config.UseBrowser {
		html, err := s.renderWithBrowser(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		body = []byte(html)
		contentType = "text/html"
	} else {
		body, contentType, err = s.fetchHTTP(ctx, rawURL)
		if err != nil {
			return nil, err
		}
	}

	doc, err := s.extract.ExtractDocument(ctx, documentName(target), contentType, body)
	if err != nil {
		return nil, err
	}
	doc.Source = models.SourceURL
	doc.Metadata["url"] = rawURL

	s.logger.Info().
		Str("url", rawURL).
		Str("document_id", doc.ID).
		Int("body_size", len(body)).
		Bool("browser", s.config.UseBrowser).
		Dur("duration", time.Since(start)).
		Msg("URL fetched")

	return doc, nil
}

func (s *Service) fetchHTTP(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch failed for %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("fetch failed for %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(s.config.MaxBodySize)+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > s.config.MaxBodySize {
		return nil, "", fmt.Errorf("response body exceeds %d bytes", s.config.MaxBodySize)
	}

	contentType := resp.Header.Get("Content-Type")
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	return body, contentType, nil
}

// documentName derives a readable name from the URL: the last path segment
// when present, otherwise the host.
func documentName(target *url.URL) string {
	segments := strings.Split(strings.Trim(target.Path, "/"), "/")
	last := segments[len(segments)-1]
	if last == "" {
		return target.Host
	}
	return last
}
