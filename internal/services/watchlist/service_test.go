package watchlist

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/domain"
)

type fakeWatchlistRepo struct {
	watchlists map[string]domain.Watchlist
	items      map[string]domain.WatchlistItem

	created      []domain.Watchlist
	createdItems [][]domain.WatchlistItem
	stateUpdates []stateUpdate
}

type stateUpdate struct {
	itemID string
	at     time.Time
	risk   *domain.RiskLevel
	status *domain.ItemStatus
}

func newFakeWatchlistRepo() *fakeWatchlistRepo {
	return &fakeWatchlistRepo{
		watchlists: make(map[string]domain.Watchlist),
		items:      make(map[string]domain.WatchlistItem),
	}
}

func (f *fakeWatchlistRepo) Create(_ context.Context, w domain.Watchlist, items []domain.WatchlistItem) error {
	f.watchlists[w.ID] = w
	f.created = append(f.created, w)
	f.createdItems = append(f.createdItems, items)
	for _, it := range items {
		f.items[it.ID] = it
	}
	return nil
}

func (f *fakeWatchlistRepo) Get(_ context.Context, id, userID string) (domain.Watchlist, error) {
	w, ok := f.watchlists[id]
	if !ok || w.UserID != userID {
		return domain.Watchlist{}, errNotFound
	}
	return w, nil
}

func (f *fakeWatchlistRepo) ListByUser(_ context.Context, userID string) ([]domain.Watchlist, error) {
	var out []domain.Watchlist
	for _, w := range f.watchlists {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeWatchlistRepo) ListActiveNotifiable(context.Context) ([]domain.Watchlist, error) {
	var out []domain.Watchlist
	for _, w := range f.watchlists {
		if w.Active && w.NotificationsEnabled {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeWatchlistRepo) Update(_ context.Context, w domain.Watchlist) error {
	f.watchlists[w.ID] = w
	return nil
}

func (f *fakeWatchlistRepo) Delete(_ context.Context, id, _ string) error {
	delete(f.watchlists, id)
	return nil
}

func (f *fakeWatchlistRepo) AddItems(_ context.Context, _ string, items []domain.WatchlistItem) error {
	f.createdItems = append(f.createdItems, items)
	for _, it := range items {
		f.items[it.ID] = it
	}
	return nil
}

func (f *fakeWatchlistRepo) GetItem(_ context.Context, itemID string) (domain.WatchlistItem, error) {
	it, ok := f.items[itemID]
	if !ok {
		return domain.WatchlistItem{}, errNotFound
	}
	return it, nil
}

func (f *fakeWatchlistRepo) ListActiveItems(_ context.Context, watchlistID string) ([]domain.WatchlistItem, error) {
	var out []domain.WatchlistItem
	for _, it := range f.items {
		if it.WatchlistID == watchlistID && it.Active {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeWatchlistRepo) UpdateItemCheckState(_ context.Context, itemID string, at time.Time, risk *domain.RiskLevel, status *domain.ItemStatus) error {
	f.stateUpdates = append(f.stateUpdates, stateUpdate{itemID, at, risk, status})
	it := f.items[itemID]
	it.LastCheckAt = &at
	it.LastRisk = risk
	it.LastStatus = status
	f.items[itemID] = it
	return nil
}

type fakeHistoryRepo struct {
	entries []domain.CheckHistoryEntry
}

func (f *fakeHistoryRepo) Append(_ context.Context, e domain.CheckHistoryEntry) error {
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeHistoryRepo) ListByItem(_ context.Context, itemID string, limit int) ([]domain.CheckHistoryEntry, error) {
	var out []domain.CheckHistoryEntry
	for _, e := range f.entries {
		if e.ItemID == itemID && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeAlertRepo struct {
	alerts []domain.Alert
}

func (f *fakeAlertRepo) CreateAlert(_ context.Context, a domain.Alert) error {
	f.alerts = append(f.alerts, a)
	return nil
}

func (f *fakeAlertRepo) ListAlerts(_ context.Context, userID string, unreadOnly bool, _ int) ([]domain.Alert, error) {
	var out []domain.Alert
	for _, a := range f.alerts {
		if a.UserID == userID && (!unreadOnly || !a.Read) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAlertRepo) MarkAlertRead(_ context.Context, id, _ string) error {
	for i := range f.alerts {
		if f.alerts[i].ID == id {
			f.alerts[i].Read = true
		}
	}
	return nil
}

type fakeQuerier struct {
	risk     *domain.RiskLevel
	lastReq  domain.QueryRequest
	lastUser string
}

func (f *fakeQuerier) Query(_ context.Context, userID string, req domain.QueryRequest) (domain.QueryResult, error) {
	f.lastReq = req
	f.lastUser = userID
	return domain.QueryResult{
		IOCType:     req.IOCType,
		IOCValue:    req.IOCValue,
		OverallRisk: f.risk,
		Sources: []domain.SourceResult{
			{Source: "a", Status: domain.StatusSuccess},
			{Source: "b", Status: domain.StatusTimeout},
		},
		QueriedAt: time.Now().UTC(),
	}, nil
}

var errNotFound = errString("not found")

type errString string

func (e errString) Error() string { return string(e) }

func level(r domain.RiskLevel) *domain.RiskLevel { return &r }

type fixture struct {
	svc     *Service
	repo    *fakeWatchlistRepo
	history *fakeHistoryRepo
	alerts  *fakeAlertRepo
	querier *fakeQuerier
}

func newFixture(t *testing.T, threshold domain.RiskThreshold, notifications bool, risk *domain.RiskLevel) (fixture, domain.WatchlistItem) {
	t.Helper()
	repo := newFakeWatchlistRepo()
	history := &fakeHistoryRepo{}
	alerts := &fakeAlertRepo{}
	querier := &fakeQuerier{risk: risk}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(repo, history, alerts, querier, log)

	wl := domain.Watchlist{ID: "wl1", UserID: "u1", Name: "assets", Active: true, NotificationsEnabled: notifications, CheckIntervalMinutes: 60}
	item := domain.WatchlistItem{ID: "it1", WatchlistID: "wl1", IOCType: domain.IOCTypeIP, IOCValue: "8.8.8.8", RiskThreshold: threshold, Active: true}
	repo.watchlists[wl.ID] = wl
	repo.items[item.ID] = item

	return fixture{svc: svc, repo: repo, history: history, alerts: alerts, querier: querier}, item
}

func TestCheckItemRaisesAlertAtThreshold(t *testing.T) {
	fx, item := newFixture(t, domain.ThresholdMedium, true, level(domain.RiskHigh))

	outcome, err := fx.svc.CheckItem(context.Background(), item.ID, "u1")
	require.NoError(t, err)

	assert.True(t, outcome.AlertTriggered)
	require.NotNil(t, outcome.Risk)
	assert.Equal(t, domain.RiskHigh, *outcome.Risk)
	require.NotNil(t, outcome.Status)
	assert.Equal(t, domain.ItemMalicious, *outcome.Status)
	assert.Equal(t, []string{"a", "b"}, outcome.SourcesChecked)

	require.Len(t, fx.alerts.alerts, 1)
	alert := fx.alerts.alerts[0]
	assert.Equal(t, "u1", alert.UserID)
	assert.Equal(t, domain.AlertKindWatchlist, alert.Kind)
	assert.Equal(t, domain.SeverityHigh, alert.Severity)
	assert.Equal(t, "High Risk Detected: IP - 8.8.8.8", alert.Title)
	assert.Contains(t, alert.Message, "high risk level")

	require.Len(t, fx.history.entries, 1)
	assert.True(t, fx.history.entries[0].AlertTriggered)

	require.Len(t, fx.repo.stateUpdates, 1)
	assert.Equal(t, item.ID, fx.repo.stateUpdates[0].itemID)
}

func TestCheckItemBelowThresholdIsSilent(t *testing.T) {
	fx, item := newFixture(t, domain.ThresholdHigh, true, level(domain.RiskMedium))

	outcome, err := fx.svc.CheckItem(context.Background(), item.ID, "u1")
	require.NoError(t, err)

	assert.False(t, outcome.AlertTriggered)
	assert.Empty(t, fx.alerts.alerts)

	// State and history are still recorded.
	require.Len(t, fx.history.entries, 1)
	assert.False(t, fx.history.entries[0].AlertTriggered)
	assert.Len(t, fx.repo.stateUpdates, 1)
}

func TestCheckItemLowThresholdLowRiskAlerts(t *testing.T) {
	fx, item := newFixture(t, domain.ThresholdLow, true, level(domain.RiskLow))

	outcome, err := fx.svc.CheckItem(context.Background(), item.ID, "u1")
	require.NoError(t, err)

	assert.True(t, outcome.AlertTriggered)
	require.Len(t, fx.alerts.alerts, 1)
	assert.Equal(t, domain.SeverityLow, fx.alerts.alerts[0].Severity)
}

func TestCheckItemNotificationsDisabled(t *testing.T) {
	fx, item := newFixture(t, domain.ThresholdLow, false, level(domain.RiskHigh))

	outcome, err := fx.svc.CheckItem(context.Background(), item.ID, "u1")
	require.NoError(t, err)

	// The threshold is met and recorded, but no alert is created.
	assert.True(t, outcome.AlertTriggered)
	assert.Empty(t, fx.alerts.alerts)
}

func TestCheckItemNoVerdict(t *testing.T) {
	fx, item := newFixture(t, domain.ThresholdLow, true, nil)

	outcome, err := fx.svc.CheckItem(context.Background(), item.ID, "u1")
	require.NoError(t, err)

	assert.Nil(t, outcome.Risk)
	assert.Nil(t, outcome.Status)
	assert.False(t, outcome.AlertTriggered)
	assert.Empty(t, fx.alerts.alerts)
}

func TestCheckItemScopedToOwner(t *testing.T) {
	fx, item := newFixture(t, domain.ThresholdLow, true, level(domain.RiskHigh))

	_, err := fx.svc.CheckItem(context.Background(), item.ID, "someone-else")
	assert.Error(t, err)
}

func TestCheckItemForScheduleIsAutoOnly(t *testing.T) {
	fx, item := newFixture(t, "", true, level(domain.RiskClean))
	wl := fx.repo.watchlists["wl1"]

	_, err := fx.svc.CheckItemForSchedule(context.Background(), item, wl)
	require.NoError(t, err)
	assert.True(t, fx.querier.lastReq.AutoModeOnly)

	_, err = fx.svc.CheckItem(context.Background(), item.ID, "u1")
	require.NoError(t, err)
	assert.False(t, fx.querier.lastReq.AutoModeOnly)
}

func TestCheckWatchlist(t *testing.T) {
	fx, _ := newFixture(t, domain.ThresholdMedium, true, level(domain.RiskHigh))
	fx.repo.items["it2"] = domain.WatchlistItem{ID: "it2", WatchlistID: "wl1", IOCType: domain.IOCTypeIP, IOCValue: "1.1.1.1", Active: true}
	fx.repo.items["inactive"] = domain.WatchlistItem{ID: "inactive", WatchlistID: "wl1", IOCType: domain.IOCTypeIP, IOCValue: "2.2.2.2"}

	summary, err := fx.svc.CheckWatchlist(context.Background(), "wl1", "u1")
	require.NoError(t, err)

	assert.Equal(t, 2, summary.CheckedItems)
	assert.Len(t, summary.Results, 2)
}

func TestCreateDefaultsAndNormalizes(t *testing.T) {
	fx, _ := newFixture(t, "", true, nil)

	wl, err := fx.svc.Create(context.Background(), "u1", CreateInput{
		Name: "infra",
		Items: []ItemInput{
			{IOCValue: "WWW.Example.com", RiskThreshold: domain.ThresholdHigh, Active: true},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 60, wl.CheckIntervalMinutes)
	assert.True(t, wl.Active)

	items := fx.repo.createdItems[len(fx.repo.createdItems)-1]
	require.Len(t, items, 1)
	assert.Equal(t, domain.IOCTypeDomain, items[0].IOCType)
	assert.Equal(t, "example.com", items[0].IOCValue)
}

func TestCreateRequiresName(t *testing.T) {
	fx, _ := newFixture(t, "", true, nil)
	_, err := fx.svc.Create(context.Background(), "u1", CreateInput{})
	assert.Error(t, err)
}

func TestItemHistoryClampsLimit(t *testing.T) {
	fx, item := newFixture(t, "", true, level(domain.RiskClean))
	for i := 0; i < 3; i++ {
		_, err := fx.svc.CheckItem(context.Background(), item.ID, "u1")
		require.NoError(t, err)
	}

	entries, err := fx.svc.ItemHistory(context.Background(), item.ID, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	entries, err = fx.svc.ItemHistory(context.Background(), item.ID, "u1", 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
