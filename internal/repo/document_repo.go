package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/mstudy/internal/model"
	"github.com/xxxsen/mstudy/internal/pkg/dbutil"
	appErr "github.com/xxxsen/mstudy/internal/pkg/errors"
)

var documentFields = []string{"id", "user_id", "title", "content", "format", "ctime", "mtime"}

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	data := map[string]interface{}{
		"id":      doc.ID,
		"user_id": doc.UserID,
		"title":   doc.Title,
		"content": doc.Content,
		"format":  doc.Format,
		"ctime":   doc.Ctime,
		"mtime":   doc.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return dbutil.MapConflict(err)
}

func (r *DocumentRepo) UpdateContent(ctx context.Context, doc *model.Document) error {
	where := map[string]interface{}{"id": doc.ID, "user_id": doc.UserID}
	update := map[string]interface{}{
		"title":   doc.Title,
		"content": doc.Content,
		"format":  doc.Format,
		"mtime":   doc.Mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("documents", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

// Load implements the study service document source.
func (r *DocumentRepo) Load(ctx context.Context, userID, fileID string) (*model.Document, error) {
	sqlStr, args, err := builder.BuildSelect("documents", map[string]interface{}{"id": fileID, "user_id": userID}, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, appErr.ErrNotFound
	}
	return scanDocument(rows)
}

// ListPendingSummaries returns documents last modified before maxMtime that have
// no summary artifact newer than their content.
func (r *DocumentRepo) ListPendingSummaries(ctx context.Context, limit int, maxMtime int64) ([]model.Document, error) {
	sqlStr := `
		SELECT d.` + strings.Join(documentFields, ", d.") + `
		FROM documents d
		WHERE d.mtime < ?
			AND NOT EXISTS (
				SELECT 1 FROM artifacts a
				WHERE a.file_id = d.id AND a.user_id = d.user_id AND a.kind = ? AND a.ctime >= d.mtime
			)
		ORDER BY d.mtime ASC
		LIMIT ?
	`
	args := []interface{}{maxMtime, string(model.KindSummary), limit}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := make([]model.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func scanDocument(rows *sql.Rows) (*model.Document, error) {
	var doc model.Document
	if err := rows.Scan(&doc.ID, &doc.UserID, &doc.Title, &doc.Content, &doc.Format, &doc.Ctime, &doc.Mtime); err != nil {
		return nil, err
	}
	return &doc, nil
}
