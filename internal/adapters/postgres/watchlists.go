package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"vigil/internal/domain"
)

const watchlistColumns = `
    id, user_id, name, description, is_active, notifications_enabled,
    check_interval_minutes, created_at, updated_at`

func scanWatchlist(row rowScanner) (domain.Watchlist, error) {
	var w domain.Watchlist
	err := row.Scan(
		&w.ID, &w.UserID, &w.Name, &w.Description, &w.Active, &w.NotificationsEnabled,
		&w.CheckIntervalMinutes, &w.CreatedAt, &w.UpdatedAt,
	)
	return w, err
}

const itemColumns = `
    id, watchlist_id, ioc_type, ioc_value, description, risk_threshold,
    last_check_at, last_risk, last_status, is_active, created_at`

func scanItem(row rowScanner) (domain.WatchlistItem, error) {
	var it domain.WatchlistItem
	var threshold *string
	err := row.Scan(
		&it.ID, &it.WatchlistID, &it.IOCType, &it.IOCValue, &it.Description, &threshold,
		&it.LastCheckAt, &it.LastRisk, &it.LastStatus, &it.Active, &it.CreatedAt,
	)
	if threshold != nil {
		it.RiskThreshold = domain.RiskThreshold(*threshold)
	}
	return it, err
}

// WatchlistRepository

func (db *DB) Create(ctx context.Context, w domain.Watchlist, items []domain.WatchlistItem) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
        INSERT INTO watchlists (id, user_id, name, description, is_active, notifications_enabled, check_interval_minutes)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, w.ID, w.UserID, w.Name, w.Description, w.Active, w.NotificationsEnabled, w.CheckIntervalMinutes)
	if err != nil {
		return fmt.Errorf("inserting watchlist: %w", err)
	}
	for _, it := range items {
		if err := insertItem(ctx, tx, w.ID, it); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func insertItem(ctx context.Context, tx pgx.Tx, watchlistID string, it domain.WatchlistItem) error {
	var threshold *string
	if it.RiskThreshold != "" {
		s := string(it.RiskThreshold)
		threshold = &s
	}
	_, err := tx.Exec(ctx, `
        INSERT INTO watchlist_items (id, watchlist_id, ioc_type, ioc_value, description, risk_threshold, is_active)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, it.ID, watchlistID, it.IOCType, it.IOCValue, it.Description, threshold, it.Active)
	if err != nil {
		return fmt.Errorf("inserting watchlist item %s: %w", it.IOCValue, err)
	}
	return nil
}

func (db *DB) Get(ctx context.Context, id, userID string) (domain.Watchlist, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+watchlistColumns+` FROM watchlists WHERE id = $1 AND user_id = $2`, id, userID)
	w, err := scanWatchlist(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return w, ErrNotFound
	}
	return w, err
}

func (db *DB) ListByUser(ctx context.Context, userID string) ([]domain.Watchlist, error) {
	return db.listWatchlists(ctx, `SELECT `+watchlistColumns+` FROM watchlists WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (db *DB) ListActiveNotifiable(ctx context.Context) ([]domain.Watchlist, error) {
	return db.listWatchlists(ctx, `SELECT `+watchlistColumns+` FROM watchlists WHERE is_active AND notifications_enabled ORDER BY created_at`)
}

func (db *DB) listWatchlists(ctx context.Context, query string, args ...any) ([]domain.Watchlist, error) {
	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Watchlist
	for rows.Next() {
		w, err := scanWatchlist(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (db *DB) Update(ctx context.Context, w domain.Watchlist) error {
	tag, err := db.Pool.Exec(ctx, `
        UPDATE watchlists
        SET name = $3, description = $4, is_active = $5, notifications_enabled = $6,
            check_interval_minutes = $7, updated_at = now()
        WHERE id = $1 AND user_id = $2
    `, w.ID, w.UserID, w.Name, w.Description, w.Active, w.NotificationsEnabled, w.CheckIntervalMinutes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) Delete(ctx context.Context, id, userID string) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM watchlists WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) AddItems(ctx context.Context, watchlistID string, items []domain.WatchlistItem) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, it := range items {
		if err := insertItem(ctx, tx, watchlistID, it); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (db *DB) GetItem(ctx context.Context, itemID string) (domain.WatchlistItem, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM watchlist_items WHERE id = $1`, itemID)
	it, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return it, ErrNotFound
	}
	return it, err
}

func (db *DB) ListActiveItems(ctx context.Context, watchlistID string) ([]domain.WatchlistItem, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT `+itemColumns+` FROM watchlist_items
        WHERE watchlist_id = $1 AND is_active ORDER BY created_at
    `, watchlistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.WatchlistItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (db *DB) UpdateItemCheckState(ctx context.Context, itemID string, at time.Time, risk *domain.RiskLevel, status *domain.ItemStatus) error {
	tag, err := db.Pool.Exec(ctx, `
        UPDATE watchlist_items SET last_check_at = $2, last_risk = $3, last_status = $4 WHERE id = $1
    `, itemID, at, risk, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
