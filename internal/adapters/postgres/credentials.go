package postgres

import (
	"context"
	"fmt"
	"time"

	"vigil/internal/domain"
)

// CredentialRepository

func (db *DB) ListEligible(ctx context.Context, names []string, autoOnly bool) ([]domain.CredentialedSource, error) {
	query := `
        SELECT
            c.id, c.user_id, c.source_id, c.api_key, c.username, c.password,
            c.base_url_override, c.update_mode, c.is_active, c.last_used, c.created_at,
            ` + prefixed("s", descriptorColumns) + `
        FROM credentials c
        JOIN api_sources s ON s.id = c.source_id
        WHERE c.is_active AND s.is_active`
	args := []any{}
	if autoOnly {
		query += ` AND c.update_mode = 'auto'`
	}
	if len(names) > 0 {
		args = append(args, names)
		query += fmt.Sprintf(` AND lower(s.name) = ANY($%d)`, len(args))
	}
	query += ` ORDER BY s.name`

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CredentialedSource
	for rows.Next() {
		var cs domain.CredentialedSource
		c := &cs.Credential
		var types, reqCfg, respCfg, rateCfg []byte
		d := &cs.Source
		err := rows.Scan(
			&c.ID, &c.UserID, &c.SourceID, &c.APIKey, &c.Username, &c.Password,
			&c.BaseURLOverride, &c.UpdateMode, &c.Active, &c.LastUsed, &c.CreatedAt,
			&d.ID, &d.Name, &d.DisplayName, &d.Description, &d.BaseURL, &d.DocumentationURL,
			&types, &d.AuthType, &reqCfg, &respCfg,
			&rateCfg, &d.Active, &d.CreatedAt, &d.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		if err := decodeJSONB(types, &d.SupportedTypes); err != nil {
			return nil, fmt.Errorf("decoding descriptor %s: %w", d.Name, err)
		}
		if err := decodeJSONB(reqCfg, &d.Request); err != nil {
			return nil, fmt.Errorf("decoding descriptor %s: %w", d.Name, err)
		}
		if err := decodeJSONB(respCfg, &d.Response); err != nil {
			return nil, fmt.Errorf("decoding descriptor %s: %w", d.Name, err)
		}
		if err := decodeJSONB(rateCfg, &d.RateLimit); err != nil {
			return nil, fmt.Errorf("decoding descriptor %s: %w", d.Name, err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

func (db *DB) TouchLastUsed(ctx context.Context, credentialID string, at time.Time) error {
	_, err := db.Pool.Exec(ctx, `UPDATE credentials SET last_used = $2 WHERE id = $1`, credentialID, at)
	return err
}
