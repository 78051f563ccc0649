package postgres

import (
	"context"

	"vigil/internal/domain"
)

// AlertRepository

func (db *DB) CreateAlert(ctx context.Context, a domain.Alert) error {
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO alerts (id, user_id, watchlist_id, item_id, kind, severity, title, message, is_read, metadata)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `, a.ID, a.UserID, nullableID(a.WatchlistID), nullableID(a.ItemID), a.Kind, a.Severity, a.Title, a.Message, a.Read, a.Metadata)
	return err
}

func (db *DB) ListAlerts(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Alert, error) {
	query := `
        SELECT id, user_id, watchlist_id, item_id, kind, severity, title, message, is_read, metadata, created_at
        FROM alerts WHERE user_id = $1`
	if unreadOnly {
		query += ` AND NOT is_read`
	}
	query += ` ORDER BY created_at DESC LIMIT $2`

	rows, err := db.Pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Alert
	for rows.Next() {
		var a domain.Alert
		var watchlistID, itemID *string
		var metadata []byte
		err := rows.Scan(&a.ID, &a.UserID, &watchlistID, &itemID, &a.Kind, &a.Severity, &a.Title, &a.Message, &a.Read, &metadata, &a.CreatedAt)
		if err != nil {
			return nil, err
		}
		if watchlistID != nil {
			a.WatchlistID = *watchlistID
		}
		if itemID != nil {
			a.ItemID = *itemID
		}
		a.Metadata = metadata
		out = append(out, a)
	}
	return out, rows.Err()
}

func (db *DB) MarkAlertRead(ctx context.Context, id, userID string) error {
	tag, err := db.Pool.Exec(ctx, `UPDATE alerts SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
