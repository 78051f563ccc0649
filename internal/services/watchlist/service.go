// Package watchlist owns watchlist lifecycle and the shared item-check logic
// used by both the manual check paths and the background scheduler.
package watchlist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"vigil/internal/domain"
	"vigil/internal/metrics"
	"vigil/internal/ports"
)

type Service struct {
	watchlists ports.WatchlistRepository
	history    ports.HistoryRepository
	alerts     ports.AlertRepository
	querier    ports.IOCQuerier
	log        *slog.Logger
	now        func() time.Time
}

func New(watchlists ports.WatchlistRepository, history ports.HistoryRepository, alerts ports.AlertRepository, querier ports.IOCQuerier, log *slog.Logger) *Service {
	return &Service{
		watchlists: watchlists,
		history:    history,
		alerts:     alerts,
		querier:    querier,
		log:        log,
		now:        time.Now,
	}
}

// CheckItem manually checks a single item. No interval gating, and manually
// managed credentials are eligible.
func (s *Service) CheckItem(ctx context.Context, itemID, userID string) (domain.CheckOutcome, error) {
	item, err := s.watchlists.GetItem(ctx, itemID)
	if err != nil {
		return domain.CheckOutcome{}, fmt.Errorf("loading item: %w", err)
	}
	wl, err := s.watchlists.Get(ctx, item.WatchlistID, userID)
	if err != nil {
		return domain.CheckOutcome{}, fmt.Errorf("loading watchlist: %w", err)
	}
	return s.runCheck(ctx, item, wl, false)
}

// CheckItemForSchedule is the scheduler's entry point: automatic-mode-only so
// the background loop never burns manually-managed quota.
func (s *Service) CheckItemForSchedule(ctx context.Context, item domain.WatchlistItem, wl domain.Watchlist) (domain.CheckOutcome, error) {
	return s.runCheck(ctx, item, wl, true)
}

// WatchlistCheckSummary reports a manual whole-watchlist check.
type WatchlistCheckSummary struct {
	WatchlistID  string                `json:"watchlist_id"`
	CheckedItems int                   `json:"checked_items"`
	Results      []domain.CheckOutcome `json:"results"`
}

// CheckWatchlist manually checks every active item in one watchlist.
// Per-item failures are logged and do not stop the remaining items.
func (s *Service) CheckWatchlist(ctx context.Context, watchlistID, userID string) (WatchlistCheckSummary, error) {
	wl, err := s.watchlists.Get(ctx, watchlistID, userID)
	if err != nil {
		return WatchlistCheckSummary{}, fmt.Errorf("loading watchlist: %w", err)
	}
	items, err := s.watchlists.ListActiveItems(ctx, wl.ID)
	if err != nil {
		return WatchlistCheckSummary{}, fmt.Errorf("listing items: %w", err)
	}

	summary := WatchlistCheckSummary{WatchlistID: wl.ID}
	for _, item := range items {
		outcome, err := s.runCheck(ctx, item, wl, false)
		if err != nil {
			s.log.Error("item check failed", "item_id", item.ID, "err", err)
			continue
		}
		summary.Results = append(summary.Results, outcome)
		summary.CheckedItems++
	}
	return summary, nil
}

// AllCheckSummary reports a manual check of every watchlist a user owns.
type AllCheckSummary struct {
	TotalWatchlists   int                     `json:"total_watchlists"`
	TotalCheckedItems int                     `json:"total_checked_items"`
	Results           []WatchlistCheckSummary `json:"results"`
}

// CheckAll manually checks every active watchlist for a user.
func (s *Service) CheckAll(ctx context.Context, userID string) (AllCheckSummary, error) {
	lists, err := s.watchlists.ListByUser(ctx, userID)
	if err != nil {
		return AllCheckSummary{}, fmt.Errorf("listing watchlists: %w", err)
	}

	var out AllCheckSummary
	for _, wl := range lists {
		if !wl.Active {
			continue
		}
		out.TotalWatchlists++
		summary, err := s.CheckWatchlist(ctx, wl.ID, userID)
		if err != nil {
			s.log.Error("watchlist check failed", "watchlist_id", wl.ID, "err", err)
			continue
		}
		out.TotalCheckedItems += summary.CheckedItems
		out.Results = append(out.Results, summary)
	}
	return out, nil
}

// runCheck is the single shared check path: query the orchestrator, record
// the item's new state, append history, and raise an alert when the item's
// threshold policy is satisfied.
func (s *Service) runCheck(ctx context.Context, item domain.WatchlistItem, wl domain.Watchlist, autoOnly bool) (domain.CheckOutcome, error) {
	result, err := s.querier.Query(ctx, wl.UserID, domain.QueryRequest{
		IOCType:      item.IOCType,
		IOCValue:     item.IOCValue,
		AutoModeOnly: autoOnly,
	})
	if err != nil {
		return domain.CheckOutcome{}, fmt.Errorf("querying %s %s: %w", item.IOCType, item.IOCValue, err)
	}

	checkedAt := s.now().UTC()
	risk := result.OverallRisk
	status := domain.ItemStatusFromRisk(risk)

	// The check that owns the item is the only writer of its state; failures
	// below are persistence problems and never invalidate the computed result.
	if err := s.watchlists.UpdateItemCheckState(ctx, item.ID, checkedAt, risk, status); err != nil {
		s.log.Error("updating item check state failed", "item_id", item.ID, "err", err)
	}

	triggered := domain.ThresholdTriggers(item.RiskThreshold, risk)

	breakdown, _ := json.Marshal(result)
	sources := make([]string, 0, len(result.Sources))
	for _, sr := range result.Sources {
		sources = append(sources, sr.Source)
	}
	entry := domain.CheckHistoryEntry{
		ID:             uuid.NewString(),
		ItemID:         item.ID,
		CheckedAt:      checkedAt,
		Risk:           risk,
		Status:         status,
		Breakdown:      breakdown,
		SourcesChecked: sources,
		AlertTriggered: triggered,
	}
	if err := s.history.Append(ctx, entry); err != nil {
		s.log.Error("appending check history failed", "item_id", item.ID, "err", err)
	}

	if triggered && wl.NotificationsEnabled {
		s.raiseAlert(ctx, item, wl, risk, status)
	}
	metrics.ItemsChecked.Inc()

	return domain.CheckOutcome{
		ItemID:         item.ID,
		IOCType:        item.IOCType,
		IOCValue:       item.IOCValue,
		Risk:           risk,
		Status:         status,
		CheckedAt:      checkedAt,
		SourcesChecked: sources,
		AlertTriggered: triggered,
	}, nil
}

func (s *Service) raiseAlert(ctx context.Context, item domain.WatchlistItem, wl domain.Watchlist, risk *domain.RiskLevel, status *domain.ItemStatus) {
	severity := domain.SeverityFromRisk(risk)
	riskLabel := string(domain.RiskUnknown)
	if risk != nil {
		riskLabel = string(*risk)
	}
	meta, _ := json.Marshal(struct {
		IOCType  domain.IOCType     `json:"ioc_type"`
		IOCValue string             `json:"ioc_value"`
		Risk     string             `json:"risk"`
		Status   *domain.ItemStatus `json:"status"`
	}{item.IOCType, item.IOCValue, riskLabel, status})

	alert := domain.Alert{
		ID:          uuid.NewString(),
		UserID:      wl.UserID,
		WatchlistID: wl.ID,
		ItemID:      item.ID,
		Kind:        domain.AlertKindWatchlist,
		Severity:    severity,
		Title:       fmt.Sprintf("High Risk Detected: %s - %s", strings.ToUpper(string(item.IOCType)), item.IOCValue),
		Message:     fmt.Sprintf("Watchlist asset %q detected with %s risk level.", item.IOCValue, riskLabel),
		Metadata:    meta,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.alerts.CreateAlert(ctx, alert); err != nil {
		s.log.Error("creating alert failed", "item_id", item.ID, "err", err)
		return
	}
	metrics.AlertsRaised.WithLabelValues(string(severity)).Inc()
}

// ItemHistory lists recent check history for an item the user can see.
func (s *Service) ItemHistory(ctx context.Context, itemID, userID string, limit int) ([]domain.CheckHistoryEntry, error) {
	item, err := s.watchlists.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("loading item: %w", err)
	}
	if _, err := s.watchlists.Get(ctx, item.WatchlistID, userID); err != nil {
		return nil, fmt.Errorf("loading watchlist: %w", err)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.history.ListByItem(ctx, itemID, limit)
}

// CreateInput describes a new watchlist and its initial items.
type CreateInput struct {
	Name                 string
	Description          string
	NotificationsEnabled bool
	CheckIntervalMinutes int
	Items                []ItemInput
}

type ItemInput struct {
	IOCType       domain.IOCType
	IOCValue      string
	Description   string
	RiskThreshold domain.RiskThreshold
	Active        bool
}

// Create registers a watchlist with its items. Item types are auto-detected
// when absent; values are normalized so monitoring and querying share one
// indicator identity.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (domain.Watchlist, error) {
	if in.Name == "" {
		return domain.Watchlist{}, fmt.Errorf("watchlist name is required")
	}
	if in.CheckIntervalMinutes <= 0 {
		in.CheckIntervalMinutes = 60
	}
	now := s.now().UTC()
	wl := domain.Watchlist{
		ID:                   uuid.NewString(),
		UserID:               userID,
		Name:                 in.Name,
		Description:          in.Description,
		Active:               true,
		NotificationsEnabled: in.NotificationsEnabled,
		CheckIntervalMinutes: in.CheckIntervalMinutes,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	items, err := s.buildItems(wl.ID, in.Items)
	if err != nil {
		return domain.Watchlist{}, err
	}
	if err := s.watchlists.Create(ctx, wl, items); err != nil {
		return domain.Watchlist{}, fmt.Errorf("creating watchlist: %w", err)
	}
	return wl, nil
}

// AddItems appends items to an existing watchlist the user owns.
func (s *Service) AddItems(ctx context.Context, watchlistID, userID string, inputs []ItemInput) error {
	wl, err := s.watchlists.Get(ctx, watchlistID, userID)
	if err != nil {
		return fmt.Errorf("loading watchlist: %w", err)
	}
	items, err := s.buildItems(wl.ID, inputs)
	if err != nil {
		return err
	}
	if err := s.watchlists.AddItems(ctx, wl.ID, items); err != nil {
		return fmt.Errorf("adding items: %w", err)
	}
	return nil
}

func (s *Service) buildItems(watchlistID string, inputs []ItemInput) ([]domain.WatchlistItem, error) {
	items := make([]domain.WatchlistItem, 0, len(inputs))
	for _, in := range inputs {
		if in.IOCValue == "" {
			return nil, fmt.Errorf("item ioc value is required")
		}
		t := in.IOCType
		if t == "" || t == domain.IOCTypeUnknown {
			t = domain.DetectIOCType(in.IOCValue)
		}
		items = append(items, domain.WatchlistItem{
			ID:            uuid.NewString(),
			WatchlistID:   watchlistID,
			IOCType:       t,
			IOCValue:      domain.NormalizeIOC(t, in.IOCValue),
			Description:   in.Description,
			RiskThreshold: in.RiskThreshold,
			Active:        in.Active,
			CreatedAt:     s.now().UTC(),
		})
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, id, userID string) (domain.Watchlist, error) {
	return s.watchlists.Get(ctx, id, userID)
}

func (s *Service) List(ctx context.Context, userID string) ([]domain.Watchlist, error) {
	return s.watchlists.ListByUser(ctx, userID)
}

func (s *Service) Update(ctx context.Context, w domain.Watchlist) error {
	w.UpdatedAt = s.now().UTC()
	return s.watchlists.Update(ctx, w)
}

func (s *Service) Delete(ctx context.Context, id, userID string) error {
	return s.watchlists.Delete(ctx, id, userID)
}

// Alerts lists a user's alerts, newest first.
func (s *Service) Alerts(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Alert, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.alerts.ListAlerts(ctx, userID, unreadOnly, limit)
}

func (s *Service) MarkAlertRead(ctx context.Context, id, userID string) error {
	return s.alerts.MarkAlertRead(ctx, id, userID)
}
