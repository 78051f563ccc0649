package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Core domain models used internally. Transport shapes are derived from these
// in the HTTP adapter; keep these decoupled from wire concerns.

type IOCType string

const (
	IOCTypeIP      IOCType = "ip"
	IOCTypeDomain  IOCType = "domain"
	IOCTypeURL     IOCType = "url"
	IOCTypeHash    IOCType = "hash"
	IOCTypeEmail   IOCType = "email"
	IOCTypeCVE     IOCType = "cve"
	IOCTypeUnknown IOCType = "unknown"
)

type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthAPIKey AuthType = "api_key"
	AuthBasic  AuthType = "basic"
	AuthBearer AuthType = "bearer"
	AuthOAuth  AuthType = "oauth"
)

type UpdateMode string

const (
	UpdateManual UpdateMode = "manual"
	UpdateAuto   UpdateMode = "auto"
)

type SourceStatus string

const (
	StatusSuccess      SourceStatus = "success"
	StatusError        SourceStatus = "error"
	StatusTimeout      SourceStatus = "timeout"
	StatusSkipped      SourceStatus = "skipped"
	StatusNotSupported SourceStatus = "not_supported"
)

type RiskLevel string

const (
	RiskClean   RiskLevel = "clean"
	RiskLow     RiskLevel = "low"
	RiskMedium  RiskLevel = "medium"
	RiskHigh    RiskLevel = "high"
	RiskUnknown RiskLevel = "unknown"
)

type RiskThreshold string

const (
	ThresholdLow      RiskThreshold = "low"
	ThresholdMedium   RiskThreshold = "medium"
	ThresholdHigh     RiskThreshold = "high"
	ThresholdCritical RiskThreshold = "critical"
)

type ItemStatus string

const (
	ItemClean      ItemStatus = "clean"
	ItemSuspicious ItemStatus = "suspicious"
	ItemMalicious  ItemStatus = "malicious"
)

type AlertKind string

const AlertKindWatchlist AlertKind = "watchlist"

type AlertSeverity string

const (
	SeverityLow    AlertSeverity = "low"
	SeverityMedium AlertSeverity = "medium"
	SeverityHigh   AlertSeverity = "high"
)

// RequestConfig describes how to build one outbound request from templates.
// Placeholders: {ioc_type}, {ioc_value}, {api_key}, {username}, {password}.
type RequestConfig struct {
	Method           string            `json:"method,omitempty"`
	EndpointTemplate string            `json:"endpoint_template,omitempty"`
	Headers          map[string]string `json:"headers,omitempty"`
	QueryParams      map[string]string `json:"query_params,omitempty"`
	BodyTemplate     string            `json:"body,omitempty"`
	BodyObject       map[string]any    `json:"body_object,omitempty"`
}

// ResponseConfig describes where in the JSON response the normalized fields
// live. Paths are dotted with optional [n] indexing; empty or "$" means the
// whole body.
type ResponseConfig struct {
	RiskScorePath string `json:"risk_score_path,omitempty"`
	StatusPath    string `json:"status_path,omitempty"`
	DataPath      string `json:"data_path,omitempty"`
}

// RateLimit is the descriptor's outbound quota hint.
type RateLimit struct {
	Limit  int    `json:"limit,omitempty"`
	Period string `json:"period,omitempty"` // second|30_seconds|minute|hour|day
}

// SourceDescriptor is the declarative description of one external
// threat-intelligence API. Immutable during a query.
type SourceDescriptor struct {
	ID               string
	Name             string // unique, lowercase
	DisplayName      string
	Description      string
	BaseURL          string
	DocumentationURL string
	SupportedTypes   []IOCType
	AuthType         AuthType
	Request          RequestConfig
	Response         ResponseConfig
	RateLimit        RateLimit
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Supports reports whether the descriptor handles the given indicator kind.
// An empty supported set means every kind is accepted.
func (d SourceDescriptor) Supports(t IOCType) bool {
	if len(d.SupportedTypes) == 0 {
		return true
	}
	for _, st := range d.SupportedTypes {
		if strings.EqualFold(string(st), string(t)) {
			return true
		}
	}
	return false
}

// RequiresAuth reports whether queries against this source need credential
// material.
func (d SourceDescriptor) RequiresAuth() bool { return d.AuthType != AuthNone }

// Credential holds one user's encrypted secret material for a source.
// APIKey/Username/Password are ciphertext; they are decrypted per query and
// the plaintext is never persisted.
type Credential struct {
	ID              string
	UserID          string
	SourceID        string
	APIKey          string
	Username        string
	Password        string
	BaseURLOverride string
	UpdateMode      UpdateMode
	Active          bool
	LastUsed        *time.Time
	CreatedAt       time.Time
}

// CredentialMaterial is decrypted secret material, alive for one query only.
type CredentialMaterial struct {
	APIKey          string
	Username        string
	Password        string
	BaseURLOverride string
}

// CredentialedSource pairs a credential with its descriptor, both active.
type CredentialedSource struct {
	Credential Credential
	Source     SourceDescriptor
}

// SourceResult is one source's normalized answer for one query. Never mutated
// after creation.
type SourceResult struct {
	Source      string          `json:"source"`
	Status      SourceStatus    `json:"status"`
	RiskScore   *float64        `json:"risk_score"`
	Description string          `json:"description,omitempty"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// QueryResult is the aggregated answer for one IOC query. OverallRisk is nil
// only when no source produced output; RiskUnknown when sources answered but
// none successfully with a numeric signal.
type QueryResult struct {
	IOCType     IOCType        `json:"ioc_type"`
	IOCValue    string         `json:"ioc_value"`
	OverallRisk *RiskLevel     `json:"overall_risk"`
	Sources     []SourceResult `json:"queried_sources"`
	QueriedAt   time.Time      `json:"queried_at"`
}

// QueryRequest is the orchestrator's input. AutoModeOnly restricts the fan-out
// to credentials in auto update mode; the scheduler always sets it.
type QueryRequest struct {
	IOCType      IOCType
	IOCValue     string
	Sources      []string
	AutoModeOnly bool
}

// StoredQuery is the persisted form of one query.
type StoredQuery struct {
	ID        string
	UserID    string
	IOCType   IOCType
	IOCValue  string
	RiskScore *float64
	Status    string // verdict label, or "pending" when none
	Results   json.RawMessage
	QueriedAt time.Time
	CreatedAt time.Time
}

// SourceRecord is one persisted per-source row under a StoredQuery.
type SourceRecord struct {
	ID        string
	QueryID   string
	Source    string
	Raw       json.RawMessage
	Processed json.RawMessage
	RiskScore *float64
	CreatedAt time.Time
}

// QueryFilter narrows history listings. Zero values mean no filter.
type QueryFilter struct {
	IOCType  IOCType
	IOCValue string
	Risk     RiskLevel
	Since    *time.Time
	Until    *time.Time
	Page     int
	PageSize int
}

// Watchlist groups monitored indicators under one check interval.
type Watchlist struct {
	ID                   string
	UserID               string
	Name                 string
	Description          string
	Active               bool
	NotificationsEnabled bool
	CheckIntervalMinutes int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// WatchlistItem is one IOC under periodic monitoring. Check state fields are
// mutated only by the single check operation that owns the check.
type WatchlistItem struct {
	ID            string
	WatchlistID   string
	IOCType       IOCType
	IOCValue      string
	Description   string
	RiskThreshold RiskThreshold // empty means alerting disabled for the item
	LastCheckAt   *time.Time
	LastRisk      *RiskLevel
	LastStatus    *ItemStatus
	Active        bool
	CreatedAt     time.Time
}

// CheckHistoryEntry is the append-only record of one item check.
type CheckHistoryEntry struct {
	ID             string
	ItemID         string
	CheckedAt      time.Time
	Risk           *RiskLevel
	Status         *ItemStatus
	Breakdown      json.RawMessage
	SourcesChecked []string
	AlertTriggered bool
}

// Alert is a derived record raised when an item check satisfies its threshold
// policy.
type Alert struct {
	ID          string
	UserID      string
	WatchlistID string
	ItemID      string
	Kind        AlertKind
	Severity    AlertSeverity
	Title       string
	Message     string
	Read        bool
	Metadata    json.RawMessage
	CreatedAt   time.Time
}

// CheckOutcome summarizes one item check for manual-path callers.
type CheckOutcome struct {
	ItemID         string      `json:"item_id"`
	IOCType        IOCType     `json:"ioc_type"`
	IOCValue       string      `json:"ioc_value"`
	Risk           *RiskLevel  `json:"risk"`
	Status         *ItemStatus `json:"status"`
	CheckedAt      time.Time   `json:"checked_at"`
	SourcesChecked []string    `json:"sources_checked"`
	AlertTriggered bool        `json:"alert_triggered"`
}
