package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	gogithub "github.com/google/go-github/v57/github"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/models"
)

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

// newFakeGitHub serves a minimal Contents API: a repo root with one markdown
// file, one source file, and a docs/ directory with another markdown file.
func newFakeGitHub(t *testing.T) *httptest.Server {
	t.Helper()

	fileJSON := func(name, filePath, body string) string {
		encoded := base64.StdEncoding.EncodeToString([]byte(body))
		return fmt.Sprintf(`{"type":"file","name":"%s","path":"%s","sha":"sha-%s","size":%d,"encoding":"base64","content":"%s","html_url":"https://github.com/acme/policies/blob/main/%s"}`,
			name, filePath, name, len(body), encoded, filePath)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/policies/contents/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch strings.TrimPrefix(r.URL.Path, "/repos/acme/policies/contents/") {
		case "":
			fmt.Fprint(w, `[
				{"type":"file","name":"README.md","path":"README.md","size":64},
				{"type":"file","name":"main.go","path":"main.go","size":64},
				{"type":"dir","name":"docs","path":"docs"}
			]`)
		case "docs":
			fmt.Fprint(w, `[{"type":"file","name":"retention.md","path":"docs/retention.md","size":64}]`)
		case "README.md":
			fmt.Fprint(w, fileJSON("README.md", "README.md", "# Policies\n\nTop level overview."))
		case "docs/retention.md":
			fmt.Fprint(w, fileJSON("retention.md", "docs/retention.md", "# Retention\n\nKeep records seven years."))
		default:
			http.NotFound(w, r)
		}
	})
	return httptest.NewServer(mux)
}

func newTestService(t *testing.T, serverURL string) (*Service, *fakeDocs) {
	t.Helper()
	docs := &fakeDocs{docs: make(map[string]*models.Document)}

	client := gogithub.NewClient(nil)
	baseURL, err := url.Parse(serverURL + "/")
	if err != nil {
		t.Fatal(err)
	}
	client.BaseURL = baseURL

	return &Service{
		client: client,
		docs:   docs,
		logger: arbor.NewLogger(),
	}, docs
}

func TestImportRepositoryDocs(t *testing.T) {
	server := newFakeGitHub(t)
	defer server.Close()
	s, docs := newTestService(t, server.URL)

	documentIDs, err := s.ImportRepositoryDocs(context.Background(), "acme", "policies", "main")
	if err != nil {
		t.Fatalf("ImportRepositoryDocs failed: %v", err)
	}
	if len(documentIDs) != 2 {
		t.Fatalf("expected 2 markdown documents, got %d", len(documentIDs))
	}

	byName := make(map[string]*models.Document)
	for _, doc := range docs.docs {
		byName[doc.Name] = doc
	}
	if _, ok := byName["main.go"]; ok {
		t.Error("non-markdown file was imported")
	}

	readme := byName["README.md"]
	if readme == nil {
		t.Fatal("README.md not imported")
	}
	if readme.Source != models.SourceGitHub {
		t.Errorf("unexpected source %q", readme.Source)
	}
	if !strings.Contains(readme.Content, "Top level overview") {
		t.Errorf("content not decoded: %q", readme.Content)
	}
	if readme.Metadata["repository"] != "acme/policies" || readme.Metadata["ref"] != "main" {
		t.Errorf("unexpected metadata %v", readme.Metadata)
	}

	retention := byName["retention.md"]
	if retention == nil || retention.Metadata["path"] != "docs/retention.md" {
		t.Errorf("nested markdown not imported correctly: %+v", retention)
	}
}

func TestImportFileUnknownPath(t *testing.T) {
	server := newFakeGitHub(t)
	defer server.Close()
	s, _ := newTestService(t, server.URL)

	if _, err := s.ImportFile(context.Background(), "acme", "policies", "main", "missing.md"); err == nil {
		t.Fatal("expected error for unknown path")
	}
}

func TestImportRepositoryDocsValidation(t *testing.T) {
	s, _ := newTestService(t, "http://localhost:9")

	_, err := s.ImportRepositoryDocs(context.Background(), "", "policies", "")
	var validationErr *models.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
