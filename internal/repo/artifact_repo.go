package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/mstudy/internal/model"
	"github.com/xxxsen/mstudy/internal/pkg/dbutil"
	appErr "github.com/xxxsen/mstudy/internal/pkg/errors"
)

var artifactFields = []string{"id", "user_id", "file_id", "kind", "source", "question", "text", "ctime"}

type ArtifactRepo struct {
	db *sql.DB
}

func NewArtifactRepo(db *sql.DB) *ArtifactRepo {
	return &ArtifactRepo{db: db}
}

func (r *ArtifactRepo) CreateArtifact(ctx context.Context, art *model.Artifact) error {
	data := map[string]interface{}{
		"id":       art.ID,
		"user_id":  art.UserID,
		"file_id":  art.FileID,
		"kind":     string(art.Kind),
		"source":   art.Source,
		"question": art.Question,
		"text":     art.Text,
		"ctime":    art.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("artifacts", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return dbutil.MapConflict(err)
}

func (r *ArtifactRepo) SaveQuestions(ctx context.Context, artifactID string, questions []model.Question) error {
	if len(questions) == 0 {
		return nil
	}
	rows := make([]map[string]interface{}, 0, len(questions))
	for i, q := range questions {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return err
		}
		rows = append(rows, map[string]interface{}{
			"artifact_id":  artifactID,
			"id":           q.ID,
			"position":     i,
			"prompt":       q.Prompt,
			"options_json": string(options),
			"answer_index": q.AnswerIndex,
			"explanation":  q.Explanation,
		})
	}
	return r.insertRows(ctx, "artifact_questions", rows)
}

func (r *ArtifactRepo) SaveFlashcards(ctx context.Context, artifactID string, cards []model.Flashcard) error {
	if len(cards) == 0 {
		return nil
	}
	rows := make([]map[string]interface{}, 0, len(cards))
	for i, c := range cards {
		rows = append(rows, map[string]interface{}{
			"artifact_id": artifactID,
			"id":          c.ID,
			"position":    i,
			"prompt":      c.Prompt,
			"answer":      c.Answer,
		})
	}
	return r.insertRows(ctx, "artifact_flashcards", rows)
}

func (r *ArtifactRepo) insertRows(ctx context.Context, table string, rows []map[string]interface{}) error {
	sqlStr, args, err := builder.BuildInsert(table, rows)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return dbutil.MapConflict(err)
}

func (r *ArtifactRepo) GetByID(ctx context.Context, userID, artifactID string) (*model.Artifact, error) {
	sqlStr, args, err := builder.BuildSelect("artifacts", map[string]interface{}{"id": artifactID, "user_id": userID}, artifactFields)
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
	return scanArtifact(rows)
}

func (r *ArtifactRepo) ListByFile(ctx context.Context, userID, fileID string) ([]model.Artifact, error) {
	where := map[string]interface{}{
		"user_id":  userID,
		"file_id":  fileID,
		"_orderby": "ctime desc",
	}
	sqlStr, args, err := builder.BuildSelect("artifacts", where, artifactFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.Artifact, 0)
	for rows.Next() {
		art, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *art)
	}
	return items, rows.Err()
}

// ListQuestions returns the questions of an exam artifact owned by userID, in
// generation order.
func (r *ArtifactRepo) ListQuestions(ctx context.Context, userID, artifactID string) ([]model.Question, error) {
	sqlStr := `
		SELECT q.id, q.prompt, q.options_json, q.answer_index, q.explanation
		FROM artifact_questions q
		JOIN artifacts a ON a.id = q.artifact_id
		WHERE a.id = ? AND a.user_id = ? AND a.kind = ?
		ORDER BY q.position ASC
	`
	args := []interface{}{artifactID, userID, string(model.KindExam)}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.Question, 0)
	for rows.Next() {
		var q model.Question
		var options string
		if err := rows.Scan(&q.ID, &q.Prompt, &options, &q.AnswerIndex, &q.Explanation); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
			return nil, err
		}
		items = append(items, q)
	}
	return items, rows.Err()
}

func (r *ArtifactRepo) ListFlashcards(ctx context.Context, userID, artifactID string) ([]model.Flashcard, error) {
	sqlStr := `
		SELECT c.id, c.prompt, c.answer
		FROM artifact_flashcards c
		JOIN artifacts a ON a.id = c.artifact_id
		WHERE a.id = ? AND a.user_id = ? AND a.kind = ?
		ORDER BY c.position ASC
	`
	args := []interface{}{artifactID, userID, string(model.KindFlashcards)}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.Flashcard, 0)
	for rows.Next() {
		var c model.Flashcard
		if err := rows.Scan(&c.ID, &c.Prompt, &c.Answer); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// LatestByFiles returns the newest artifact of kind for each of the given files.
func (r *ArtifactRepo) LatestByFiles(ctx context.Context, userID string, kind model.Kind, fileIDs []string) (map[string]model.Artifact, error) {
	if len(fileIDs) == 0 {
		return map[string]model.Artifact{}, nil
	}
	where := map[string]interface{}{
		"user_id":    userID,
		"kind":       string(kind),
		"file_id in": fileIDs,
		"_orderby":   "ctime asc",
	}
	sqlStr, args, err := builder.BuildSelect("artifacts", where, artifactFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make(map[string]model.Artifact)
	for rows.Next() {
		art, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		result[art.FileID] = *art
	}
	return result, rows.Err()
}

// DeleteBefore removes artifacts created before cutoff along with their
// questions and flashcards.
func (r *ArtifactRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	for _, table := range []string{"artifact_questions", "artifact_flashcards"} {
		sqlStr, args := dbutil.Finalize(
			"DELETE FROM "+table+" WHERE artifact_id IN (SELECT id FROM artifacts WHERE ctime < ?)",
			[]interface{}{cutoff},
		)
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return 0, err
		}
	}
	sqlStr, args, err := builder.BuildDelete("artifacts", map[string]interface{}{"ctime <": cutoff})
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := tx.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return affected, nil
}

func scanArtifact(rows *sql.Rows) (*model.Artifact, error) {
	var art model.Artifact
	var kind string
	if err := rows.Scan(&art.ID, &art.UserID, &art.FileID, &kind, &art.Source, &art.Question, &art.Text, &art.Ctime); err != nil {
		return nil, err
	}
	art.Kind = model.Kind(kind)
	return &art, nil
}
