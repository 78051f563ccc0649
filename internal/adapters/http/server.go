// Package httpadapter exposes the engine over a thin JSON API. Handlers shape
// transport types and delegate; no domain logic lives here.
package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vigil/internal/adapters/postgres"
	"vigil/internal/domain"
	"vigil/internal/services/intel"
	"vigil/internal/services/watchlist"
)

type Server struct {
	intel      *intel.Service
	watchlists *watchlist.Service
	log        *slog.Logger
}

func New(intelSvc *intel.Service, watchlists *watchlist.Service, log *slog.Logger) *Server {
	return &Server{intel: intelSvc, watchlists: watchlists, log: log}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/queries", s.handleQuery)
		r.Get("/queries", s.handleQueryHistory)
		r.Get("/queries/{id}", s.handleQueryDetail)

		r.Route("/watchlists", func(r chi.Router) {
			r.Post("/", s.handleWatchlistCreate)
			r.Get("/", s.handleWatchlistList)
			r.Post("/check-all", s.handleCheckAll)
			r.Get("/{id}", s.handleWatchlistGet)
			r.Put("/{id}", s.handleWatchlistUpdate)
			r.Delete("/{id}", s.handleWatchlistDelete)
			r.Post("/{id}/items", s.handleAddItems)
			r.Post("/{id}/check", s.handleCheckWatchlist)
			r.Post("/items/{id}/check", s.handleCheckItem)
			r.Get("/items/{id}/history", s.handleItemHistory)
		})

		r.Get("/alerts", s.handleAlertList)
		r.Post("/alerts/{id}/read", s.handleAlertRead)
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type queryRequest struct {
	IOCType      domain.IOCType `json:"ioc_type"`
	IOCValue     string         `json:"ioc_value"`
	Sources      []string       `json:"sources"`
	AutoModeOnly bool           `json:"auto_mode_only"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.IOCValue == "" {
		writeError(w, http.StatusBadRequest, "ioc_value is required")
		return
	}
	result, err := s.intel.Query(r.Context(), userID, domain.QueryRequest{
		IOCType:      req.IOCType,
		IOCValue:     req.IOCValue,
		Sources:      req.Sources,
		AutoModeOnly: req.AutoModeOnly,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type storedQueryResponse struct {
	ID        string          `json:"id"`
	IOCType   domain.IOCType  `json:"ioc_type"`
	IOCValue  string          `json:"ioc_value"`
	RiskScore *float64        `json:"risk_score"`
	Status    string          `json:"status"`
	Results   json.RawMessage `json:"results,omitempty"`
	QueriedAt time.Time       `json:"queried_at"`
}

func toStoredQueryResponse(q domain.StoredQuery) storedQueryResponse {
	return storedQueryResponse{
		ID:        q.ID,
		IOCType:   q.IOCType,
		IOCValue:  q.IOCValue,
		RiskScore: q.RiskScore,
		Status:    q.Status,
		Results:   q.Results,
		QueriedAt: q.QueriedAt,
	}
}

func (s *Server) handleQueryHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := domain.QueryFilter{
		IOCType:  domain.IOCType(q.Get("ioc_type")),
		IOCValue: q.Get("ioc_value"),
		Risk:     domain.RiskLevel(q.Get("risk")),
		Page:     intParam(q.Get("page")),
		PageSize: intParam(q.Get("page_size")),
	}
	if t, ok := timeParam(q.Get("since")); ok {
		f.Since = &t
	}
	if t, ok := timeParam(q.Get("until")); ok {
		f.Until = &t
	}

	queries, total, err := s.intel.History(r.Context(), userID, f)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	items := make([]storedQueryResponse, 0, len(queries))
	for _, sq := range queries {
		items = append(items, toStoredQueryResponse(sq))
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total, "queries": items})
}

type sourceRecordResponse struct {
	Source    string          `json:"source"`
	Raw       json.RawMessage `json:"raw,omitempty"`
	Processed json.RawMessage `json:"processed,omitempty"`
	RiskScore *float64        `json:"risk_score"`
}

func (s *Server) handleQueryDetail(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	q, records, err := s.intel.QueryDetail(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	recs := make([]sourceRecordResponse, 0, len(records))
	for _, rec := range records {
		recs = append(recs, sourceRecordResponse{
			Source:    rec.Source,
			Raw:       rec.Raw,
			Processed: rec.Processed,
			RiskScore: rec.RiskScore,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": toStoredQueryResponse(q), "sources": recs})
}

type itemRequest struct {
	IOCType       domain.IOCType       `json:"ioc_type"`
	IOCValue      string               `json:"ioc_value"`
	Description   string               `json:"description"`
	RiskThreshold domain.RiskThreshold `json:"risk_threshold"`
	Active        *bool                `json:"is_active"`
}

func (in itemRequest) toInput() watchlist.ItemInput {
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	return watchlist.ItemInput{
		IOCType:       in.IOCType,
		IOCValue:      in.IOCValue,
		Description:   in.Description,
		RiskThreshold: in.RiskThreshold,
		Active:        active,
	}
}

type watchlistCreateRequest struct {
	Name                 string        `json:"name"`
	Description          string        `json:"description"`
	NotificationsEnabled *bool         `json:"notifications_enabled"`
	CheckIntervalMinutes int           `json:"check_interval_minutes"`
	Items                []itemRequest `json:"items"`
}

func (s *Server) handleWatchlistCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req watchlistCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	in := watchlist.CreateInput{
		Name:                 req.Name,
		Description:          req.Description,
		NotificationsEnabled: true,
		CheckIntervalMinutes: req.CheckIntervalMinutes,
	}
	if req.NotificationsEnabled != nil {
		in.NotificationsEnabled = *req.NotificationsEnabled
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, it.toInput())
	}
	wl, err := s.watchlists.Create(r.Context(), userID, in)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wl)
}

func (s *Server) handleWatchlistList(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	lists, err := s.watchlists.List(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"watchlists": lists})
}

func (s *Server) handleWatchlistGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	wl, err := s.watchlists.Get(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wl)
}

type watchlistUpdateRequest struct {
	Name                 *string `json:"name"`
	Description          *string `json:"description"`
	Active               *bool   `json:"is_active"`
	NotificationsEnabled *bool   `json:"notifications_enabled"`
	CheckIntervalMinutes *int    `json:"check_interval_minutes"`
}

func (s *Server) handleWatchlistUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req watchlistUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	wl, err := s.watchlists.Get(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if req.Name != nil {
		wl.Name = *req.Name
	}
	if req.Description != nil {
		wl.Description = *req.Description
	}
	if req.Active != nil {
		wl.Active = *req.Active
	}
	if req.NotificationsEnabled != nil {
		wl.NotificationsEnabled = *req.NotificationsEnabled
	}
	if req.CheckIntervalMinutes != nil {
		wl.CheckIntervalMinutes = *req.CheckIntervalMinutes
	}
	if err := s.watchlists.Update(r.Context(), wl); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wl)
}

func (s *Server) handleWatchlistDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	if err := s.watchlists.Delete(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddItems(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req struct {
		Items []itemRequest `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	inputs := make([]watchlist.ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		inputs = append(inputs, it.toInput())
	}
	if err := s.watchlists.AddItems(r.Context(), chi.URLParam(r, "id"), userID, inputs); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleCheckItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	outcome, err := s.watchlists.CheckItem(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleCheckWatchlist(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	summary, err := s.watchlists.CheckWatchlist(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCheckAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	summary, err := s.watchlists.CheckAll(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleItemHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	limit := intParam(r.URL.Query().Get("limit"))
	entries, err := s.watchlists.ItemHistory(r.Context(), chi.URLParam(r, "id"), userID, limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

func (s *Server) handleAlertList(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	alerts, err := s.watchlists.Alerts(r.Context(), userID, q.Get("unread") == "true", intParam(q.Get("limit")))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (s *Server) handleAlertRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	if err := s.watchlists.MarkAlertRead(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// userID resolves the calling user. Authentication proper sits in front of
// this service; the header is trusted as-is.
func (s *Server) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get("X-User-ID")
	if id == "" {
		writeError(w, http.StatusBadRequest, "X-User-ID header is required")
		return "", false
	}
	return id, true
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, postgres.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		s.log.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func intParam(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func timeParam(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
