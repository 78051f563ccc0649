package postgres

import (
	"context"
	"encoding/json"

	"vigil/internal/domain"
)

// HistoryRepository

func (db *DB) Append(ctx context.Context, e domain.CheckHistoryEntry) error {
	sources, err := json.Marshal(e.SourcesChecked)
	if err != nil {
		return err
	}
	_, err = db.Pool.Exec(ctx, `
        INSERT INTO check_history (id, item_id, checked_at, risk, status, breakdown, sources_checked, alert_triggered)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, e.ID, e.ItemID, e.CheckedAt, e.Risk, e.Status, e.Breakdown, sources, e.AlertTriggered)
	return err
}

func (db *DB) ListByItem(ctx context.Context, itemID string, limit int) ([]domain.CheckHistoryEntry, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT id, item_id, checked_at, risk, status, breakdown, sources_checked, alert_triggered
        FROM check_history WHERE item_id = $1 ORDER BY checked_at DESC LIMIT $2
    `, itemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CheckHistoryEntry
	for rows.Next() {
		var e domain.CheckHistoryEntry
		var breakdown, sources []byte
		err := rows.Scan(&e.ID, &e.ItemID, &e.CheckedAt, &e.Risk, &e.Status, &breakdown, &sources, &e.AlertTriggered)
		if err != nil {
			return nil, err
		}
		e.Breakdown = breakdown
		if err := decodeJSONB(sources, &e.SourcesChecked); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
