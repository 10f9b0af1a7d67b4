package filestore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/xxxsen/mstudy/internal/model"
	appErr "github.com/xxxsen/mstudy/internal/pkg/errors"
)

const defaultMaxBytes = 4 << 20

// Source serves documents straight from a Store. Files ending in .md or
// .markdown are treated as markdown.
type Source struct {
	store    Store
	maxBytes int64
}

func NewSource(store Store, maxBytes int64) *Source {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Source{store: store, maxBytes: maxBytes}
}

func (s *Source) Load(ctx context.Context, userID, fileID string) (*model.Document, error) {
	key, err := ObjectKey(userID, fileID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrInvalid, err)
	}
	rc, err := s.store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	raw, err := io.ReadAll(io.LimitReader(rc, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if int64(len(raw)) > s.maxBytes {
		return nil, fmt.Errorf("%w: document exceeds %d bytes", appErr.ErrInvalid, s.maxBytes)
	}
	return &model.Document{
		ID:      fileID,
		UserID:  userID,
		Title:   strings.TrimSuffix(fileID, path.Ext(fileID)),
		Content: string(raw),
		Format:  FormatOf(fileID),
	}, nil
}

func FormatOf(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".markdown":
		return model.DocumentFormatMarkdown
	}
	return model.DocumentFormatText
}
