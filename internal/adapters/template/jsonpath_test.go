package template

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var doc any
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return doc
}

func TestExtractPath(t *testing.T) {
	doc := decode(t, `{
        "data": {
            "attributes": {"last_analysis_stats": {"malicious": 5}}
        },
        "vulnerabilities": [
            {"cve": {"metrics": {"cvssMetricV31": [{"cvssData": {"baseScore": 9.8}}]}}}
        ],
        "query_status": "ok"
    }`)

	assert.Equal(t, float64(5), extractPath(doc, "data.attributes.last_analysis_stats.malicious"))
	assert.Equal(t, float64(9.8), extractPath(doc, "vulnerabilities[0].cve.metrics.cvssMetricV31[0].cvssData.baseScore"))
	assert.Equal(t, "ok", extractPath(doc, "query_status"))
	assert.Equal(t, "ok", extractPath(doc, "$.query_status"))
}

func TestExtractPathWholeDocument(t *testing.T) {
	doc := decode(t, `{"a": 1}`)
	assert.Equal(t, doc, extractPath(doc, ""))
	assert.Equal(t, doc, extractPath(doc, "$"))
}

func TestExtractPathMisses(t *testing.T) {
	doc := decode(t, `{"data": {"items": [1, 2]}}`)

	assert.Nil(t, extractPath(doc, "missing"))
	assert.Nil(t, extractPath(doc, "data.missing.deeper"))
	assert.Nil(t, extractPath(doc, "data.items[5]"))
	assert.Nil(t, extractPath(doc, "data.items[-1]"))
	assert.Nil(t, extractPath(doc, "data.items[x]"))
	// Indexing into a non-array or descending into a scalar.
	assert.Nil(t, extractPath(doc, "data[0]"))
	assert.Nil(t, extractPath(doc, "data.items.name"))
}

func TestExtractPathBareIndex(t *testing.T) {
	doc := decode(t, `[{"name": "first"}, {"name": "second"}]`)
	assert.Equal(t, "second", extractPath(doc, "[1].name"))
}
