package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"vigil/internal/domain"
)

const descriptorColumns = `
    id, name, display_name, description, base_url, documentation_url,
    supported_ioc_types, auth_type, request_config, response_config,
    rate_limit_config, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// prefixed qualifies every column in a comma-separated list with a table
// alias, for use in joins.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func scanDescriptor(row rowScanner) (domain.SourceDescriptor, error) {
	var d domain.SourceDescriptor
	var types, reqCfg, respCfg, rateCfg []byte
	err := row.Scan(
		&d.ID, &d.Name, &d.DisplayName, &d.Description, &d.BaseURL, &d.DocumentationURL,
		&types, &d.AuthType, &reqCfg, &respCfg,
		&rateCfg, &d.Active, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return d, err
	}
	if err := decodeJSONB(types, &d.SupportedTypes); err != nil {
		return d, fmt.Errorf("decoding descriptor %s: %w", d.Name, err)
	}
	if err := decodeJSONB(reqCfg, &d.Request); err != nil {
		return d, fmt.Errorf("decoding descriptor %s: %w", d.Name, err)
	}
	if err := decodeJSONB(respCfg, &d.Response); err != nil {
		return d, fmt.Errorf("decoding descriptor %s: %w", d.Name, err)
	}
	if err := decodeJSONB(rateCfg, &d.RateLimit); err != nil {
		return d, fmt.Errorf("decoding descriptor %s: %w", d.Name, err)
	}
	return d, nil
}

func decodeJSONB(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// SourceRepository

func (db *DB) ListActiveUnauthenticated(ctx context.Context, names []string) ([]domain.SourceDescriptor, error) {
	query := `SELECT ` + descriptorColumns + ` FROM api_sources WHERE is_active AND auth_type = 'none'`
	args := []any{}
	if len(names) > 0 {
		query += ` AND lower(name) = ANY($1)`
		args = append(args, names)
	}
	query += ` ORDER BY name`

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SourceDescriptor
	for rows.Next() {
		d, err := scanDescriptor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (db *DB) GetByName(ctx context.Context, name string) (domain.SourceDescriptor, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+descriptorColumns+` FROM api_sources WHERE lower(name) = lower($1)`, name)
	d, err := scanDescriptor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return d, ErrNotFound
	}
	return d, err
}

func (db *DB) Upsert(ctx context.Context, d domain.SourceDescriptor) error {
	types, err := json.Marshal(d.SupportedTypes)
	if err != nil {
		return err
	}
	reqCfg, err := json.Marshal(d.Request)
	if err != nil {
		return err
	}
	respCfg, err := json.Marshal(d.Response)
	if err != nil {
		return err
	}
	rateCfg, err := json.Marshal(d.RateLimit)
	if err != nil {
		return err
	}
	_, err = db.Pool.Exec(ctx, `
        INSERT INTO api_sources (
            id, name, display_name, description, base_url, documentation_url,
            supported_ioc_types, auth_type, request_config, response_config,
            rate_limit_config, is_active
        )
        VALUES ($1, lower($2), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        ON CONFLICT (name) DO UPDATE SET
            display_name = EXCLUDED.display_name,
            description = EXCLUDED.description,
            base_url = EXCLUDED.base_url,
            documentation_url = EXCLUDED.documentation_url,
            supported_ioc_types = EXCLUDED.supported_ioc_types,
            auth_type = EXCLUDED.auth_type,
            request_config = EXCLUDED.request_config,
            response_config = EXCLUDED.response_config,
            rate_limit_config = EXCLUDED.rate_limit_config,
            is_active = EXCLUDED.is_active,
            updated_at = now()
    `, d.ID, d.Name, d.DisplayName, d.Description, d.BaseURL, d.DocumentationURL,
		types, d.AuthType, reqCfg, respCfg, rateCfg, d.Active)
	return err
}
