package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mstudy/internal/model"
	appErr "github.com/xxxsen/mstudy/internal/pkg/errors"
	"github.com/xxxsen/mstudy/internal/pkg/timeutil"
)

const (
	maxDocumentChars = 1 << 20
	maxTitleChars    = 200
)

// DocumentStore is the writable document backend used when documents live in
// the database.
type DocumentStore interface {
	DocumentSource
	Create(ctx context.Context, doc *model.Document) error
	UpdateContent(ctx context.Context, doc *model.Document) error
}

type DocumentService struct {
	docs DocumentStore
}

func NewDocumentService(docs DocumentStore) *DocumentService {
	return &DocumentService{docs: docs}
}

type DocumentInput struct {
	ID      string
	Title   string
	Content string
	Format  string
}

// Save creates the document or replaces its content. An unchanged document
// keeps its mtime so the prefetch job does not summarize it again.
func (s *DocumentService) Save(ctx context.Context, userID string, input DocumentInput) (*model.Document, error) {
	input.ID = strings.TrimSpace(input.ID)
	if input.ID == "" || strings.ContainsAny(input.ID, "/\\") {
		return nil, fmt.Errorf("document id is invalid: %w", appErr.ErrInvalid)
	}
	if utf8.RuneCountInString(input.Content) > maxDocumentChars {
		return nil, fmt.Errorf("document exceeds %d characters: %w", maxDocumentChars, appErr.ErrInvalid)
	}
	format, err := documentFormat(input.ID, input.Format)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = strings.TrimSuffix(input.ID, path.Ext(input.ID))
	}
	if utf8.RuneCountInString(title) > maxTitleChars {
		title = string([]rune(title)[:maxTitleChars])
	}

	now := timeutil.NowUnix()
	existing, err := s.docs.Load(ctx, userID, input.ID)
	if err != nil && !errors.Is(err, appErr.ErrNotFound) {
		return nil, err
	}
	if existing == nil {
		doc := &model.Document{
			ID:      input.ID,
			UserID:  userID,
			Title:   title,
			Content: input.Content,
			Format:  format,
			Ctime:   now,
			Mtime:   now,
		}
		if err := s.docs.Create(ctx, doc); err != nil {
			return nil, err
		}
		logutil.GetLogger(ctx).Info("document created", zap.String("user_id", userID), zap.String("file_id", doc.ID))
		return doc, nil
	}
	if existing.Title == title && existing.Content == input.Content && existing.Format == format {
		return existing, nil
	}
	existing.Title = title
	existing.Content = input.Content
	existing.Format = format
	existing.Mtime = now
	if err := s.docs.UpdateContent(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *DocumentService) Get(ctx context.Context, userID, fileID string) (*model.Document, error) {
	if strings.TrimSpace(fileID) == "" {
		return nil, fmt.Errorf("document id is required: %w", appErr.ErrInvalid)
	}
	return s.docs.Load(ctx, userID, fileID)
}

func documentFormat(id, format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "":
		switch strings.ToLower(path.Ext(id)) {
		case ".md", ".markdown":
			return model.DocumentFormatMarkdown, nil
		}
		return model.DocumentFormatText, nil
	case model.DocumentFormatText:
		return model.DocumentFormatText, nil
	case model.DocumentFormatMarkdown, "md":
		return model.DocumentFormatMarkdown, nil
	}
	return "", fmt.Errorf("unsupported document format %q: %w", format, appErr.ErrInvalid)
}
