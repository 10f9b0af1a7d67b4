package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/mstudy/internal/model"
	"github.com/xxxsen/mstudy/internal/pkg/dbutil"
)

type ExamAttemptRepo struct {
	db *sql.DB
}

func NewExamAttemptRepo(db *sql.DB) *ExamAttemptRepo {
	return &ExamAttemptRepo{db: db}
}

func (r *ExamAttemptRepo) CreateAttempt(ctx context.Context, attempt *model.ExamAttempt) error {
	records, err := json.Marshal(attempt.Records)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":           attempt.ID,
		"exam_id":      attempt.ExamID,
		"user_id":      attempt.UserID,
		"records_json": string(records),
		"correct":      attempt.Correct,
		"total":        attempt.Total,
		"ctime":        attempt.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("exam_attempts", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ExamAttemptRepo) ListByExam(ctx context.Context, userID, examID string, limit uint) ([]model.ExamAttempt, error) {
	if limit == 0 {
		limit = 20
	}
	where := map[string]interface{}{
		"user_id":  userID,
		"exam_id":  examID,
		"_orderby": "ctime desc",
		"_limit":   []uint{0, limit},
	}
	sqlStr, args, err := builder.BuildSelect("exam_attempts", where, []string{"id", "exam_id", "user_id", "records_json", "correct", "total", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.ExamAttempt, 0)
	for rows.Next() {
		var a model.ExamAttempt
		var records string
		if err := rows.Scan(&a.ID, &a.ExamID, &a.UserID, &records, &a.Correct, &a.Total, &a.Ctime); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(records), &a.Records); err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *ExamAttemptRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	sqlStr, args, err := builder.BuildDelete("exam_attempts", map[string]interface{}{"ctime <": cutoff})
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
