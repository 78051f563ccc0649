package intel

import (
	"strings"

	"vigil/internal/domain"
)

// Some sources report a categorical signal instead of a 0..1 score. The
// mapping depends on source identity, not on generic templating, so it lives
// here at the orchestration boundary.
var categoricalScores = map[string]map[string]float64{
	"kaspersky": {
		"red":    0.9,
		"yellow": 0.6,
		"green":  0.3,
		"white":  0.1,
		"grey":   0.1,
	},
}

// categoricalDefault is used when a mapped source reports a label outside
// its table.
const categoricalDefault = 0.5

// normalizeSignal fills in a numeric risk score for successful results whose
// raw signal was a known categorical label.
func normalizeSignal(sourceName string, raw any, result *domain.SourceResult) {
	if result.Status != domain.StatusSuccess || result.RiskScore != nil {
		return
	}
	table, ok := categoricalScores[strings.ToLower(sourceName)]
	if !ok {
		return
	}
	label, ok := raw.(string)
	if !ok {
		return
	}
	score := categoricalDefault
	if mapped, ok := table[strings.ToLower(label)]; ok {
		score = mapped
	}
	result.RiskScore = &score
}

// overallRisk aggregates per-source results into one verdict. Only successful
// results with a numeric signal count toward the average. With none, any
// source that actually produced output (anything beyond a type-mismatch skip)
// makes the verdict unknown; a purely skipped set yields no verdict at all.
func overallRisk(results []domain.SourceResult) *domain.RiskLevel {
	if len(results) == 0 {
		return nil
	}
	var sum float64
	var n int
	anyOutput := false
	for _, r := range results {
		if r.Status == domain.StatusSuccess && r.RiskScore != nil {
			sum += *r.RiskScore
			n++
			continue
		}
		if r.Status != domain.StatusSkipped && r.Status != domain.StatusNotSupported {
			anyOutput = true
		}
	}
	if n == 0 {
		if anyOutput {
			level := domain.RiskUnknown
			return &level
		}
		return nil
	}
	level := domain.RiskFromScore(sum / float64(n))
	return &level
}
