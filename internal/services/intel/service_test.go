package intel

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/adapters/cache"
	"vigil/internal/domain"
)

type fakeRegistry struct {
	withCreds    []domain.CredentialedSource
	withoutCreds []domain.SourceDescriptor
}

func (f *fakeRegistry) EligibleWithCredentials(context.Context, []string, bool) ([]domain.CredentialedSource, error) {
	return f.withCreds, nil
}

func (f *fakeRegistry) EligibleWithoutCredentials(context.Context, []string) ([]domain.SourceDescriptor, error) {
	return f.withoutCreds, nil
}

type fakeClient struct {
	mu    sync.Mutex
	calls int
	fn    func(desc domain.SourceDescriptor, material domain.CredentialMaterial) (domain.SourceResult, any)
}

func (f *fakeClient) Execute(_ context.Context, desc domain.SourceDescriptor, material domain.CredentialMaterial, _ domain.IOCType, _ string) (domain.SourceResult, any) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(desc, material)
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeSecrets decrypts "enc:<plain>" ciphertexts and fails closed on
// everything else.
type fakeSecrets struct{}

func (fakeSecrets) Decrypt(ciphertext string) string {
	if plain, ok := strings.CutPrefix(ciphertext, "enc:"); ok {
		return plain
	}
	return ""
}

type fakeQueryRepo struct {
	mu     sync.Mutex
	saved  []domain.StoredQuery
	record [][]domain.SourceRecord
}

func (f *fakeQueryRepo) SaveQuery(_ context.Context, q domain.StoredQuery, records []domain.SourceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, q)
	f.record = append(f.record, records)
	return nil
}

func (f *fakeQueryRepo) ListQueries(context.Context, string, domain.QueryFilter) ([]domain.StoredQuery, int, error) {
	return nil, 0, nil
}

func (f *fakeQueryRepo) GetQuery(context.Context, string, string) (domain.StoredQuery, []domain.SourceRecord, error) {
	return domain.StoredQuery{}, nil, nil
}

type fakeCredRepo struct {
	mu      sync.Mutex
	touched []string
}

func (f *fakeCredRepo) ListEligible(context.Context, []string, bool) ([]domain.CredentialedSource, error) {
	return nil, nil
}

func (f *fakeCredRepo) TouchLastUsed(_ context.Context, credentialID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, credentialID)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openSource(name string) domain.SourceDescriptor {
	return domain.SourceDescriptor{ID: name, Name: name, DisplayName: name, AuthType: domain.AuthNone}
}

func successResult(name string, score float64) (domain.SourceResult, any) {
	return domain.SourceResult{Source: name, Status: domain.StatusSuccess, RiskScore: &score}, score
}

func newTestService(reg SourceRegistry, client *fakeClient) (*Service, *fakeQueryRepo, *fakeCredRepo) {
	queries := &fakeQueryRepo{}
	creds := &fakeCredRepo{}
	svc := New(reg, client, fakeSecrets{}, cache.NewMemory(), nil, queries, creds, Options{}, testLogger())
	return svc, queries, creds
}

func TestQueryAveragesSuccessfulScores(t *testing.T) {
	reg := &fakeRegistry{withoutCreds: []domain.SourceDescriptor{openSource("a"), openSource("b")}}
	client := &fakeClient{fn: func(desc domain.SourceDescriptor, _ domain.CredentialMaterial) (domain.SourceResult, any) {
		if desc.Name == "a" {
			return successResult("a", 0.9)
		}
		return successResult("b", 0.1)
	}}
	svc, queries, _ := newTestService(reg, client)

	result, err := svc.Query(context.Background(), "u1", domain.QueryRequest{IOCValue: "8.8.8.8"})
	require.NoError(t, err)

	require.NotNil(t, result.OverallRisk)
	assert.Equal(t, domain.RiskMedium, *result.OverallRisk) // (0.9+0.1)/2 = 0.5
	assert.Len(t, result.Sources, 2)
	assert.Equal(t, domain.IOCTypeIP, result.IOCType)

	require.Len(t, queries.saved, 1)
	assert.Equal(t, "medium", queries.saved[0].Status)
	assert.Equal(t, "u1", queries.saved[0].UserID)
	assert.Len(t, queries.record[0], 2)
}

func TestQueryAllFailuresIsUnknown(t *testing.T) {
	reg := &fakeRegistry{withoutCreds: []domain.SourceDescriptor{openSource("a"), openSource("b")}}
	client := &fakeClient{fn: func(desc domain.SourceDescriptor, _ domain.CredentialMaterial) (domain.SourceResult, any) {
		return domain.SourceResult{Source: desc.Name, Status: domain.StatusTimeout, Description: "request timeout"}, nil
	}}
	svc, _, _ := newTestService(reg, client)

	result, err := svc.Query(context.Background(), "u1", domain.QueryRequest{IOCValue: "8.8.8.8"})
	require.NoError(t, err)

	require.NotNil(t, result.OverallRisk)
	assert.Equal(t, domain.RiskUnknown, *result.OverallRisk)
}

func TestQueryAllSkippedHasNoVerdict(t *testing.T) {
	hashOnly := openSource("hashes")
	hashOnly.SupportedTypes = []domain.IOCType{domain.IOCTypeHash}
	reg := &fakeRegistry{withoutCreds: []domain.SourceDescriptor{hashOnly}}
	client := &fakeClient{fn: func(domain.SourceDescriptor, domain.CredentialMaterial) (domain.SourceResult, any) {
		t.Fatal("client must not be called for an unsupported type")
		return domain.SourceResult{}, nil
	}}
	svc, _, _ := newTestService(reg, client)

	result, err := svc.Query(context.Background(), "u1", domain.QueryRequest{IOCValue: "8.8.8.8"})
	require.NoError(t, err)

	assert.Nil(t, result.OverallRisk)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, domain.StatusSkipped, result.Sources[0].Status)
	assert.Zero(t, client.callCount())
}

func TestQueryWithoutSources(t *testing.T) {
	svc, queries, _ := newTestService(&fakeRegistry{}, &fakeClient{})

	result, err := svc.Query(context.Background(), "u1", domain.QueryRequest{IOCValue: "8.8.8.8"})
	require.NoError(t, err)

	assert.Nil(t, result.OverallRisk)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "system", result.Sources[0].Source)
	assert.Equal(t, domain.StatusError, result.Sources[0].Status)
	assert.Empty(t, queries.saved)
}

func TestQueryServesSecondCallFromCache(t *testing.T) {
	reg := &fakeRegistry{withoutCreds: []domain.SourceDescriptor{openSource("a")}}
	client := &fakeClient{fn: func(desc domain.SourceDescriptor, _ domain.CredentialMaterial) (domain.SourceResult, any) {
		return successResult(desc.Name, 0.9)
	}}
	svc, queries, _ := newTestService(reg, client)

	first, err := svc.Query(context.Background(), "u1", domain.QueryRequest{IOCValue: "8.8.8.8"})
	require.NoError(t, err)
	second, err := svc.Query(context.Background(), "u1", domain.QueryRequest{IOCValue: "8.8.8.8"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, client.callCount())
	assert.Len(t, queries.saved, 1, "cache hits are not persisted again")
}

func TestQueryCacheKeyIsCaseInsensitive(t *testing.T) {
	reg := &fakeRegistry{withoutCreds: []domain.SourceDescriptor{openSource("a")}}
	client := &fakeClient{fn: func(desc domain.SourceDescriptor, _ domain.CredentialMaterial) (domain.SourceResult, any) {
		return successResult(desc.Name, 0.9)
	}}
	svc, _, _ := newTestService(reg, client)

	_, err := svc.Query(context.Background(), "u1", domain.QueryRequest{IOCValue: "Example.com"})
	require.NoError(t, err)
	_, err = svc.Query(context.Background(), "u1", domain.QueryRequest{IOCValue: "EXAMPLE.COM"})
	require.NoError(t, err)

	assert.Equal(t, 1, client.callCount())
}

func TestQueryMissingAPIKey(t *testing.T) {
	src := openSource("needs-key")
	src.AuthType = domain.AuthAPIKey
	reg := &fakeRegistry{withCreds: []domain.CredentialedSource{{
		Credential: domain.Credential{ID: "c1"},
		Source:     src,
	}}}
	client := &fakeClient{fn: func(domain.SourceDescriptor, domain.CredentialMaterial) (domain.SourceResult, any) {
		t.Fatal("client must not be called without credential material")
		return domain.SourceResult{}, nil
	}}
	svc, _, _ := newTestService(reg, client)

	result, err := svc.Query(context.Background(), "u1", domain.QueryRequest{IOCValue: "8.8.8.8"})
	require.NoError(t, err)

	require.Len(t, result.Sources, 1)
	assert.Equal(t, domain.StatusError, result.Sources[0].Status)
	assert.Equal(t, "an API key is required for this source", result.Sources[0].Description)
	require.NotNil(t, result.OverallRisk)
	assert.Equal(t, domain.RiskUnknown, *result.OverallRisk)
}

func TestQueryDecryptFailureIsPerSourceError(t *testing.T) {
	src := openSource("needs-key")
	src.AuthType = domain.AuthAPIKey
	reg := &fakeRegistry{withCreds: []domain.CredentialedSource{{
		Credential: domain.Credential{ID: "c1", APIKey: "garbage-ciphertext"},
		Source:     src,
	}}}
	client := &fakeClient{fn: func(domain.SourceDescriptor, domain.CredentialMaterial) (domain.SourceResult, any) {
		t.Fatal("client must not be called after a decrypt failure")
		return domain.SourceResult{}, nil
	}}
	svc, _, _ := newTestService(reg, client)

	result, err := svc.Query(context.Background(), "u1", domain.QueryRequest{IOCValue: "8.8.8.8"})
	require.NoError(t, err)

	require.Len(t, result.Sources, 1)
	assert.Equal(t, domain.StatusError, result.Sources[0].Status)
	assert.Equal(t, "failed to decrypt API key or API key is empty", result.Sources[0].Description)
}

func TestQueryDecryptsAndTouchesCredential(t *testing.T) {
	src := openSource("keyed")
	src.AuthType = domain.AuthAPIKey
	reg := &fakeRegistry{withCreds: []domain.CredentialedSource{{
		Credential: domain.Credential{ID: "c1", APIKey: "enc:plain-key"},
		Source:     src,
	}}}
	var gotKey string
	client := &fakeClient{fn: func(desc domain.SourceDescriptor, material domain.CredentialMaterial) (domain.SourceResult, any) {
		gotKey = material.APIKey
		return successResult(desc.Name, 0.9)
	}}
	svc, _, creds := newTestService(reg, client)

	_, err := svc.Query(context.Background(), "u1", domain.QueryRequest{IOCValue: "8.8.8.8"})
	require.NoError(t, err)

	assert.Equal(t, "plain-key", gotKey)
	assert.Equal(t, []string{"c1"}, creds.touched)
}

func TestQueryCredentialedSourceShadowsUnauthenticated(t *testing.T) {
	src := openSource("dual")
	reg := &fakeRegistry{
		withCreds:    []domain.CredentialedSource{{Credential: domain.Credential{ID: "c1"}, Source: src}},
		withoutCreds: []domain.SourceDescriptor{src},
	}
	client := &fakeClient{fn: func(desc domain.SourceDescriptor, _ domain.CredentialMaterial) (domain.SourceResult, any) {
		return successResult(desc.Name, 0.5)
	}}
	svc, _, _ := newTestService(reg, client)

	result, err := svc.Query(context.Background(), "u1", domain.QueryRequest{IOCValue: "8.8.8.8"})
	require.NoError(t, err)

	assert.Len(t, result.Sources, 1)
}

func TestQueryCategoricalSignal(t *testing.T) {
	src := openSource("kaspersky")
	reg := &fakeRegistry{withoutCreds: []domain.SourceDescriptor{src}}
	client := &fakeClient{fn: func(desc domain.SourceDescriptor, _ domain.CredentialMaterial) (domain.SourceResult, any) {
		return domain.SourceResult{Source: desc.Name, Status: domain.StatusSuccess}, "Red"
	}}
	svc, _, _ := newTestService(reg, client)

	result, err := svc.Query(context.Background(), "u1", domain.QueryRequest{IOCValue: "8.8.8.8"})
	require.NoError(t, err)

	require.Len(t, result.Sources, 1)
	require.NotNil(t, result.Sources[0].RiskScore)
	assert.Equal(t, 0.9, *result.Sources[0].RiskScore)
	require.NotNil(t, result.OverallRisk)
	assert.Equal(t, domain.RiskHigh, *result.OverallRisk)
}

func TestQueryRateLimit(t *testing.T) {
	src := openSource("limited")
	src.RateLimit = domain.RateLimit{Limit: 1, Period: "day"}
	reg := &fakeRegistry{withoutCreds: []domain.SourceDescriptor{src}}
	client := &fakeClient{fn: func(desc domain.SourceDescriptor, _ domain.CredentialMaterial) (domain.SourceResult, any) {
		return successResult(desc.Name, 0.1)
	}}
	svc, _, _ := newTestService(reg, client)

	first, err := svc.Query(context.Background(), "u1", domain.QueryRequest{IOCValue: "1.1.1.1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, first.Sources[0].Status)

	// A different indicator bypasses the cache; the limiter budget is spent.
	second, err := svc.Query(context.Background(), "u1", domain.QueryRequest{IOCValue: "2.2.2.2"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, second.Sources[0].Status)
	assert.Equal(t, "source rate limit exceeded, skipping call", second.Sources[0].Description)
	assert.Equal(t, 1, client.callCount())
}

func TestQueryDetectsAndNormalizes(t *testing.T) {
	reg := &fakeRegistry{withoutCreds: []domain.SourceDescriptor{openSource("a")}}
	client := &fakeClient{fn: func(desc domain.SourceDescriptor, _ domain.CredentialMaterial) (domain.SourceResult, any) {
		return successResult(desc.Name, 0.1)
	}}
	svc, _, _ := newTestService(reg, client)

	result, err := svc.Query(context.Background(), "u1", domain.QueryRequest{IOCValue: "WWW.Example.com"})
	require.NoError(t, err)

	assert.Equal(t, domain.IOCTypeDomain, result.IOCType)
	assert.Equal(t, "example.com", result.IOCValue)
}

func TestQueryRejectsEmptyValue(t *testing.T) {
	svc, _, _ := newTestService(&fakeRegistry{}, &fakeClient{})
	_, err := svc.Query(context.Background(), "u1", domain.QueryRequest{})
	assert.Error(t, err)
}
