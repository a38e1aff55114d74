package rules

import "github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/domain"

// Trigger reports whether value violates rule. Bounds are exclusive: a value
// sitting exactly on a bound never fires, and a rule without the bound(s)
// its type requires never fires at all.
func Trigger(rule domain.Rule, value float64) bool {
	switch rule.Type {
	case domain.RuleMax:
		return rule.MaxValue != nil && value > *rule.MaxValue
	case domain.RuleMin:
		return rule.MinValue != nil && value < *rule.MinValue
	case domain.RuleRange:
		if rule.MinValue == nil || rule.MaxValue == nil {
			return false
		}
		return value < *rule.MinValue || value > *rule.MaxValue
	default:
		return false
	}
}

// Triggered filters candidates down to the rules value violates, keeping order.
func Triggered(candidates []domain.Rule, value float64) []domain.Rule {
	var out []domain.Rule
	for _, r := range candidates {
		if Trigger(r, value) {
			out = append(out, r)
		}
	}
	return out
}
