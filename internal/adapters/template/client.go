// Package template implements the data-driven source adapter: a single
// interpreter that turns a SourceDescriptor plus decrypted credential
// material into one concrete HTTP request and extracts a normalized result
// from whatever JSON shape the source answers with.
package template

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"vigil/internal/domain"
)

const maxResponseBytes = 4 << 20

// Doer is the HTTP execution capability; *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	http Doer
	log  *slog.Logger
}

// New returns a Client using the given HTTP doer. Per-call deadlines come
// from the caller's context, so the underlying client needs no timeout of
// its own.
func New(doer Doer, log *slog.Logger) *Client {
	if doer == nil {
		doer = &http.Client{}
	}
	return &Client{http: doer, log: log}
}

// Execute runs one templated query against one source. It never returns a Go
// error: configuration mistakes, transport failures, non-2xx answers and
// timeouts all surface as the result's status. The second return is the raw
// extracted risk signal before normalization.
func (c *Client) Execute(ctx context.Context, desc domain.SourceDescriptor, material domain.CredentialMaterial, iocType domain.IOCType, iocValue string) (domain.SourceResult, any) {
	sub := newSubstituter(material, iocType, iocValue)

	method := strings.ToUpper(desc.Request.Method)
	if method == "" {
		method = http.MethodGet
	}

	reqURL, err := c.buildURL(desc, material, sub)
	if err != nil {
		return configError(desc.Name, err), nil
	}
	headers, err := sub.applyMap(desc.Request.Headers)
	if err != nil {
		return configError(desc.Name, err), nil
	}

	var params map[string]string
	if method == http.MethodGet {
		if params, err = sub.applyMap(desc.Request.QueryParams); err != nil {
			return configError(desc.Name, err), nil
		}
	}

	var body io.Reader
	if method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch {
		bodyMap, err := sub.buildBody(desc.Request)
		if err != nil {
			return configError(desc.Name, err), nil
		}
		if bodyMap != nil {
			encoded, err := json.Marshal(bodyMap)
			if err != nil {
				return configError(desc.Name, err), nil
			}
			body = bytes.NewReader(encoded)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return configError(desc.Name, err), nil
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(params) > 0 {
		q := req.URL.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}

	switch desc.AuthType {
	case domain.AuthBasic:
		if material.Username != "" && material.Password != "" {
			req.SetBasicAuth(material.Username, material.Password)
		}
	case domain.AuthBearer:
		req.Header.Set("Authorization", "Bearer "+material.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		status := domain.StatusError
		if isTimeout(err) {
			status = domain.StatusTimeout
		}
		c.log.Error("source request failed", "source", desc.Name, "status", status)
		return domain.SourceResult{
			Source:      desc.Name,
			Status:      status,
			Description: requestErrorText(err, status),
		}, nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.SourceResult{
			Source:      desc.Name,
			Status:      domain.StatusError,
			Description: fmt.Sprintf("reading response: %v", err),
		}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.SourceResult{
			Source:      desc.Name,
			Status:      domain.StatusError,
			Description: fmt.Sprintf("unexpected HTTP status %d", resp.StatusCode),
		}, nil
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		// Non-JSON bodies are still usable payload.
		doc = map[string]any{"text": string(raw)}
		raw, _ = json.Marshal(doc)
	}

	riskRaw := any(nil)
	if desc.Response.RiskScorePath != "" {
		riskRaw = extractPath(doc, desc.Response.RiskScorePath)
	}
	dataPath := desc.Response.DataPath
	if dataPath == "" {
		dataPath = "$"
	}
	data := extractPath(doc, dataPath)
	if data == nil {
		data = doc
	}

	result := domain.SourceResult{
		Source:      desc.Name,
		Status:      domain.StatusSuccess,
		Raw:         json.RawMessage(raw),
		Description: describe(data),
	}
	if score, ok := toFloat(riskRaw); ok {
		result.RiskScore = &score
	}
	return result, riskRaw
}

func (c *Client) buildURL(desc domain.SourceDescriptor, material domain.CredentialMaterial, sub *substituter) (string, error) {
	base := desc.BaseURL
	if material.BaseURLOverride != "" {
		base = material.BaseURLOverride
	}
	tpl := desc.Request.EndpointTemplate
	if tpl == "" {
		tpl = "/{ioc_type}/{ioc_value}"
	}
	endpoint, err := sub.applyEscaped(tpl)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(base, "/") + endpoint, nil
}

// describe pulls a human summary out of the extracted data object.
func describe(data any) string {
	obj, ok := data.(map[string]any)
	if !ok {
		return "query completed with status: success"
	}
	var parts []string
	if d, ok := obj["description"]; ok {
		parts = append(parts, fmt.Sprint(d))
	}
	if s, ok := obj["status"]; ok {
		parts = append(parts, fmt.Sprintf("Status: %v", s))
	}
	if len(parts) == 0 {
		return "query completed with status: success"
	}
	return strings.Join(parts, " | ")
}

func configError(source string, err error) domain.SourceResult {
	return domain.SourceResult{
		Source:      source,
		Status:      domain.StatusError,
		Description: fmt.Sprintf("configuration error: %v", err),
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// requestErrorText avoids echoing *url.Error's full URL, which may embed
// secrets in query parameters.
func requestErrorText(err error, status domain.SourceStatus) string {
	if status == domain.StatusTimeout {
		return "request timeout"
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Sprintf("request failed: %v", ue.Err)
	}
	return fmt.Sprintf("request failed: %v", err)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
