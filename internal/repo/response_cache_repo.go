package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/mstudy/internal/model"
	"github.com/xxxsen/mstudy/internal/pkg/dbutil"
)

type ResponseCacheRepo struct {
	db *sql.DB
}

func NewResponseCacheRepo(db *sql.DB) *ResponseCacheRepo {
	return &ResponseCacheRepo{db: db}
}

func (r *ResponseCacheRepo) Get(ctx context.Context, promptHash string, minCtime int64) (*model.ProviderResponse, bool, error) {
	where := map[string]interface{}{
		"prompt_hash": promptHash,
		"ctime >=":    minCtime,
	}
	sqlStr, args, err := builder.BuildSelect("provider_responses", where, []string{"prompt_hash", "provider", "text", "ctime"})
	if err != nil {
		return nil, false, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var item model.ProviderResponse
	err = r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&item.PromptHash, &item.Provider, &item.Text, &item.Ctime)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &item, true, nil
}

func (r *ResponseCacheRepo) Save(ctx context.Context, item *model.ProviderResponse) error {
	query := `
		INSERT INTO provider_responses (prompt_hash, provider, text, ctime)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (prompt_hash) DO UPDATE SET provider = EXCLUDED.provider, text = EXCLUDED.text, ctime = EXCLUDED.ctime
	`
	sqlStr, args := dbutil.Finalize(query, []interface{}{item.PromptHash, item.Provider, item.Text, item.Ctime})
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ResponseCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	sqlStr, args, err := builder.BuildDelete("provider_responses", map[string]interface{}{"ctime <": cutoff})
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
