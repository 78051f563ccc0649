package ports

import (
	"context"
	"time"

	"vigil/internal/domain"
)

// SecretStore decrypts credential ciphertext. Fails closed: any failure
// returns the empty string, never an error.
type SecretStore interface {
	Decrypt(ciphertext string) string
}

// ResultCache stores aggregated query results keyed by (type, value),
// case-insensitive. Implementations must be safe for concurrent use.
type ResultCache interface {
	Get(ctx context.Context, iocType domain.IOCType, iocValue string) (domain.QueryResult, bool)
	Set(ctx context.Context, result domain.QueryResult, ttl time.Duration)
}

// SourceClient executes one templated request against one source. It never
// returns a Go error: transport and configuration failures are encoded in the
// result status. The second return is the raw extracted risk signal before
// normalization (numeric, or categorical for sources that report labels).
type SourceClient interface {
	Execute(ctx context.Context, desc domain.SourceDescriptor, material domain.CredentialMaterial, iocType domain.IOCType, iocValue string) (domain.SourceResult, any)
}

// IOCQuerier is the orchestrator surface consumed by the watchlist check
// paths and the scheduler.
type IOCQuerier interface {
	Query(ctx context.Context, userID string, req domain.QueryRequest) (domain.QueryResult, error)
}
