package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"vigil/internal/domain"
)

// QueryRepository

func (db *DB) SaveQuery(ctx context.Context, q domain.StoredQuery, records []domain.SourceRecord) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
        INSERT INTO ioc_queries (id, user_id, ioc_type, ioc_value, risk_score, status, results, queried_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, q.ID, q.UserID, q.IOCType, q.IOCValue, q.RiskScore, q.Status, q.Results, q.QueriedAt)
	if err != nil {
		return fmt.Errorf("inserting query: %w", err)
	}
	for _, r := range records {
		_, err = tx.Exec(ctx, `
            INSERT INTO source_records (id, query_id, source_name, raw, processed, risk_score)
            VALUES ($1, $2, $3, $4, $5, $6)
        `, r.ID, q.ID, r.Source, r.Raw, r.Processed, r.RiskScore)
		if err != nil {
			return fmt.Errorf("inserting source record for %s: %w", r.Source, err)
		}
	}
	return tx.Commit(ctx)
}

func (db *DB) ListQueries(ctx context.Context, userID string, f domain.QueryFilter) ([]domain.StoredQuery, int, error) {
	where := ` WHERE user_id = $1`
	args := []any{userID}
	add := func(clause string, v any) {
		args = append(args, v)
		where += fmt.Sprintf(clause, len(args))
	}
	if f.IOCType != "" {
		add(` AND ioc_type = $%d`, f.IOCType)
	}
	if f.IOCValue != "" {
		add(` AND ioc_value = $%d`, f.IOCValue)
	}
	if f.Risk != "" {
		add(` AND status = $%d`, f.Risk)
	}
	if f.Since != nil {
		add(` AND queried_at >= $%d`, *f.Since)
	}
	if f.Until != nil {
		add(` AND queried_at <= $%d`, *f.Until)
	}

	var total int
	if err := db.Pool.QueryRow(ctx, `SELECT count(*) FROM ioc_queries`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)
	query := `
        SELECT id, user_id, ioc_type, ioc_value, risk_score, status, results, queried_at, created_at
        FROM ioc_queries` + where +
		fmt.Sprintf(` ORDER BY queried_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []domain.StoredQuery
	for rows.Next() {
		var q domain.StoredQuery
		var results []byte
		err := rows.Scan(&q.ID, &q.UserID, &q.IOCType, &q.IOCValue, &q.RiskScore, &q.Status, &results, &q.QueriedAt, &q.CreatedAt)
		if err != nil {
			return nil, 0, err
		}
		q.Results = results
		out = append(out, q)
	}
	return out, total, rows.Err()
}

func (db *DB) GetQuery(ctx context.Context, id, userID string) (domain.StoredQuery, []domain.SourceRecord, error) {
	var q domain.StoredQuery
	var results []byte
	err := db.Pool.QueryRow(ctx, `
        SELECT id, user_id, ioc_type, ioc_value, risk_score, status, results, queried_at, created_at
        FROM ioc_queries WHERE id = $1 AND user_id = $2
    `, id, userID).Scan(&q.ID, &q.UserID, &q.IOCType, &q.IOCValue, &q.RiskScore, &q.Status, &results, &q.QueriedAt, &q.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return q, nil, ErrNotFound
	}
	if err != nil {
		return q, nil, err
	}
	q.Results = results

	rows, err := db.Pool.Query(ctx, `
        SELECT id, query_id, source_name, raw, processed, risk_score, created_at
        FROM source_records WHERE query_id = $1 ORDER BY source_name
    `, id)
	if err != nil {
		return q, nil, err
	}
	defer rows.Close()

	var records []domain.SourceRecord
	for rows.Next() {
		var r domain.SourceRecord
		var raw, processed []byte
		if err := rows.Scan(&r.ID, &r.QueryID, &r.Source, &raw, &processed, &r.RiskScore, &r.CreatedAt); err != nil {
			return q, nil, err
		}
		r.Raw, r.Processed = raw, processed
		records = append(records, r)
	}
	return q, records, rows.Err()
}
