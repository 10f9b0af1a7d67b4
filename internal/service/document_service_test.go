package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mstudy/internal/model"
	appErr "github.com/xxxsen/mstudy/internal/pkg/errors"
)

type writableSource struct {
	*memorySource
	creates int
	updates int
}

func (w *writableSource) Create(ctx context.Context, doc *model.Document) error {
	if _, ok := w.docs[docKey(doc.UserID, doc.ID)]; ok {
		return appErr.ErrConflict
	}
	w.creates++
	cp := *doc
	w.docs[docKey(doc.UserID, doc.ID)] = &cp
	return nil
}

func (w *writableSource) UpdateContent(ctx context.Context, doc *model.Document) error {
	w.updates++
	cp := *doc
	w.docs[docKey(doc.UserID, doc.ID)] = &cp
	return nil
}

func TestDocumentServiceSave(t *testing.T) {
	store := &writableSource{memorySource: newMemorySource()}
	svc := NewDocumentService(store)
	ctx := context.Background()

	doc, err := svc.Save(ctx, "u1", DocumentInput{ID: "cells.md", Content: "# Cells\nATP."})
	require.NoError(t, err)
	require.Equal(t, model.DocumentFormatMarkdown, doc.Format)
	require.Equal(t, "cells", doc.Title)
	require.Equal(t, 1, store.creates)

	same, err := svc.Save(ctx, "u1", DocumentInput{ID: "cells.md", Content: "# Cells\nATP."})
	require.NoError(t, err)
	require.Equal(t, doc.Mtime, same.Mtime)
	require.Equal(t, 0, store.updates)

	changed, err := svc.Save(ctx, "u1", DocumentInput{ID: "cells.md", Title: "Cell biology", Content: "# Cells\nATP and ADP."})
	require.NoError(t, err)
	require.Equal(t, "Cell biology", changed.Title)
	require.Equal(t, 1, store.updates)

	got, err := svc.Get(ctx, "u1", "cells.md")
	require.NoError(t, err)
	require.Equal(t, "# Cells\nATP and ADP.", got.Content)

	_, err = svc.Get(ctx, "u2", "cells.md")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestDocumentServiceSaveRejects(t *testing.T) {
	svc := NewDocumentService(&writableSource{memorySource: newMemorySource()})
	ctx := context.Background()
	cases := []DocumentInput{
		{ID: ""},
		{ID: "a/b"},
		{ID: "notes", Format: "pdf"},
		{ID: "big", Content: strings.Repeat("x", maxDocumentChars+1)},
	}
	for _, in := range cases {
		_, err := svc.Save(ctx, "u1", in)
		require.ErrorIs(t, err, appErr.ErrInvalid, in.ID)
	}
	_, err := svc.Get(ctx, "u1", " ")
	require.ErrorIs(t, err, appErr.ErrInvalid)

	doc, err := svc.Save(ctx, "u1", DocumentInput{ID: "plain", Format: "MD", Title: strings.Repeat("t", maxTitleChars+10)})
	require.NoError(t, err)
	require.Equal(t, model.DocumentFormatMarkdown, doc.Format)
	require.Len(t, doc.Title, maxTitleChars)
}
