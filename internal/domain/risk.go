package domain

// RiskFromScore maps an averaged 0..1 signal to a verdict. Boundaries are
// inclusive: exactly 0.8 is high, 0.5 medium, 0.2 low.
func RiskFromScore(score float64) RiskLevel {
	switch {
	case score >= 0.8:
		return RiskHigh
	case score >= 0.5:
		return RiskMedium
	case score >= 0.2:
		return RiskLow
	default:
		return RiskClean
	}
}

// ScoreFromRisk is the inverse table used when persisting a verdict as a
// numeric score.
func ScoreFromRisk(r RiskLevel) *float64 {
	var s float64
	switch r {
	case RiskHigh:
		s = 0.9
	case RiskMedium:
		s = 0.6
	case RiskLow:
		s = 0.3
	case RiskClean:
		s = 0.1
	case RiskUnknown:
		s = 0.5
	default:
		return nil
	}
	return &s
}

// ItemStatusFromRisk maps a verdict to the tri-state watchlist item status.
// Unknown and empty verdicts carry no status.
func ItemStatusFromRisk(r *RiskLevel) *ItemStatus {
	if r == nil {
		return nil
	}
	var s ItemStatus
	switch *r {
	case RiskHigh:
		s = ItemMalicious
	case RiskMedium, RiskLow:
		s = ItemSuspicious
	case RiskClean:
		s = ItemClean
	default:
		return nil
	}
	return &s
}

// ThresholdTriggers reports whether a verdict satisfies an item's alert
// threshold. An empty threshold or verdict never triggers.
func ThresholdTriggers(threshold RiskThreshold, risk *RiskLevel) bool {
	if threshold == "" || risk == nil {
		return false
	}
	switch threshold {
	case ThresholdLow:
		return *risk == RiskLow || *risk == RiskMedium || *risk == RiskHigh
	case ThresholdMedium:
		return *risk == RiskMedium || *risk == RiskHigh
	case ThresholdHigh, ThresholdCritical:
		return *risk == RiskHigh
	default:
		return false
	}
}

// SeverityFromRisk maps a triggering verdict to an alert severity. Unrecognized
// verdicts default to medium.
func SeverityFromRisk(risk *RiskLevel) AlertSeverity {
	if risk == nil {
		return SeverityMedium
	}
	switch *risk {
	case RiskLow:
		return SeverityLow
	case RiskMedium:
		return SeverityMedium
	case RiskHigh:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}
