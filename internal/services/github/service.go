package github

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/go-github/v57/github"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
	"golang.org/x/oauth2"
)

const (
	// maxImportDocs caps one repository import
	maxImportDocs = 50
	// maxImportDepth caps directory recursion
	maxImportDepth = 5
	// maxFileBytes skips oversized markdown files
	maxFileBytes = 2 * 1024 * 1024
)

// Service imports markdown documentation from GitHub repositories through
// the Contents API. Markdown needs no conversion, so files land as documents
// directly.
type Service struct {
	client *github.Client
	docs   interfaces.DocumentStorage
	logger arbor.ILogger
}

func NewService(config *common.GitHubConfig, docs interfaces.DocumentStorage, logger arbor.ILogger) *Service {
	var client *github.Client
	if config.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: config.Token})
		client = github.NewClient(oauth2.NewClient(context.Background(), ts))
	} else {
		// Anonymous access works for public repos at a lower rate limit
		client = github.NewClient(nil)
	}

	return &Service{
		client: client,
		docs:   docs,
		logger: logger,
	}
}

// ImportRepositoryDocs walks the repository tree and saves every markdown
// file as a document. Returns the ids of the saved documents.
func (s *Service) ImportRepositoryDocs(ctx context.Context, owner, repo, ref string) ([]string, error) {
	if owner == "" || repo == "" {
		return nil, &models.ValidationError{Field: "repository", Reason: "owner and repo are required"}
	}

	var documentIDs []string
	if err := s.importDir(ctx, owner, repo, ref, "", 0, &documentIDs); err != nil {
		return documentIDs, err
	}

	s.logger.Info().
		Str("owner", owner).
		Str("repo", repo).
		Str("ref", ref).
		Int("documents", len(documentIDs)).
		Msg("Repository docs imported")

	return documentIDs, nil
}

func (s *Service) importDir(ctx context.Context, owner, repo, ref, dir string, depth int, documentIDs *[]string) error {
	if depth > maxImportDepth || len(*documentIDs) >= maxImportDocs {
		return nil
	}

	opts := &github.RepositoryContentGetOptions{Ref: ref}
	_, entries, _, err := s.client.Repositories.GetContents(ctx, owner, repo, dir, opts)
	if err != nil {
		return fmt.Errorf("failed to list %s/%s/%s: %w", owner, repo, dir, err)
	}

	for _, entry := range entries {
		if len(*documentIDs) >= maxImportDocs {
			s.logger.Warn().
				Str("repo", repo).
				Int("limit", maxImportDocs).
				Msg("Import document limit reached")
			return nil
		}
		switch entry.GetType() {
		case "dir":
			if err := s.importDir(ctx, owner, repo, ref, entry.GetPath(), depth+1, documentIDs); err != nil {
				return err
			}
		case "file":
			if !isMarkdown(entry.GetName()) || entry.GetSize() > maxFileBytes {
				continue
			}
			doc, err := s.ImportFile(ctx, owner, repo, ref, entry.GetPath())
			if err != nil {
				s.logger.Warn().Err(err).Str("path", entry.GetPath()).Msg("Failed to import file")
				continue
			}
			*documentIDs = append(*documentIDs, doc.ID)
		}
	}
	return nil
}

// ImportFile fetches one repository file and saves it as a document.
func (s *Service) ImportFile(ctx context.Context, owner, repo, ref, filePath string) (*models.Document, error) {
	opts := &github.RepositoryContentGetOptions{Ref: ref}
	content, _, _, err := s.client.Repositories.GetContents(ctx, owner, repo, filePath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", filePath, err)
	}
	if content == nil {
		return nil, fmt.Errorf("not a file: %s", filePath)
	}

	text, err := content.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filePath, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("file is empty: %s", filePath)
	}

	doc := models.NewDocument(common.NewDocumentID(), path.Base(filePath), models.SourceGitHub)
	doc.ContentType = "text/markdown"
	doc.Content = text
	doc.SizeBytes = len(text)
	doc.Metadata["repository"] = fmt.Sprintf("%s/%s", owner, repo)
	doc.Metadata["path"] = content.GetPath()
	doc.Metadata["sha"] = content.GetSHA()
	if ref != "" {
		doc.Metadata["ref"] = ref
	}
	if url := content.GetHTMLURL(); url != "" {
		doc.Metadata["url"] = url
	}

	if err := s.docs.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to save document: %w", err)
	}

	s.logger.Debug().
		Str("path", filePath).
		Str("document_id", doc.ID).
		Int("size", len(text)).
		Msg("Repository file imported")

	return doc, nil
}

func isMarkdown(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".markdown")
}
