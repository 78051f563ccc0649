package ports

import (
	"context"
	"time"

	"vigil/internal/domain"
)

// SourceRepository reads and seeds source descriptors.
type SourceRepository interface {
	// ListActiveUnauthenticated returns active descriptors with AuthNone,
	// optionally filtered to the given names (case-insensitive).
	ListActiveUnauthenticated(ctx context.Context, names []string) ([]domain.SourceDescriptor, error)
	GetByName(ctx context.Context, name string) (domain.SourceDescriptor, error)
	Upsert(ctx context.Context, d domain.SourceDescriptor) error
}

// CredentialRepository reads credential+descriptor pairs.
type CredentialRepository interface {
	// ListEligible returns (credential, descriptor) pairs where both halves
	// are active, optionally filtered to the given source names and, when
	// autoOnly is set, to credentials in auto update mode.
	ListEligible(ctx context.Context, names []string, autoOnly bool) ([]domain.CredentialedSource, error)
	TouchLastUsed(ctx context.Context, credentialID string, at time.Time) error
}

// QueryRepository persists queries and their per-source records.
type QueryRepository interface {
	SaveQuery(ctx context.Context, q domain.StoredQuery, records []domain.SourceRecord) error
	ListQueries(ctx context.Context, userID string, f domain.QueryFilter) ([]domain.StoredQuery, int, error)
	GetQuery(ctx context.Context, id, userID string) (domain.StoredQuery, []domain.SourceRecord, error)
}

// WatchlistRepository manages watchlists and their items.
type WatchlistRepository interface {
	Create(ctx context.Context, w domain.Watchlist, items []domain.WatchlistItem) error
	Get(ctx context.Context, id, userID string) (domain.Watchlist, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Watchlist, error)
	// ListActiveNotifiable returns every active watchlist with notifications
	// enabled, across all users; used by the scheduler.
	ListActiveNotifiable(ctx context.Context) ([]domain.Watchlist, error)
	Update(ctx context.Context, w domain.Watchlist) error
	Delete(ctx context.Context, id, userID string) error

	AddItems(ctx context.Context, watchlistID string, items []domain.WatchlistItem) error
	GetItem(ctx context.Context, itemID string) (domain.WatchlistItem, error)
	ListActiveItems(ctx context.Context, watchlistID string) ([]domain.WatchlistItem, error)
	UpdateItemCheckState(ctx context.Context, itemID string, at time.Time, risk *domain.RiskLevel, status *domain.ItemStatus) error
}

// HistoryRepository is the append-only check history.
type HistoryRepository interface {
	Append(ctx context.Context, e domain.CheckHistoryEntry) error
	ListByItem(ctx context.Context, itemID string, limit int) ([]domain.CheckHistoryEntry, error)
}

// AlertRepository persists raised alerts. Method names are qualified so a
// single adapter can satisfy this alongside WatchlistRepository.
type AlertRepository interface {
	CreateAlert(ctx context.Context, a domain.Alert) error
	ListAlerts(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Alert, error)
	MarkAlertRead(ctx context.Context, id, userID string) error
}
