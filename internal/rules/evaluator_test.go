package rules

import (
	"testing"

	"github.com/matryer/is"

	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/domain"
)

func f(v float64) *float64 { return &v }

func TestMaxRuleTriggersStrictlyAbove(t *testing.T) {
	is := is.New(t)
	rule := domain.Rule{Type: domain.RuleMax, MaxValue: f(30)}

	is.True(Trigger(rule, 30.0001))
	is.True(!Trigger(rule, 30))
	is.True(!Trigger(rule, -5))
}

func TestMinRuleTriggersStrictlyBelow(t *testing.T) {
	is := is.New(t)
	rule := domain.Rule{Type: domain.RuleMin, MinValue: f(10)}

	is.True(Trigger(rule, 9.99))
	is.True(!Trigger(rule, 10))
	is.True(!Trigger(rule, 100))
}

func TestRangeRuleBounds(t *testing.T) {
	is := is.New(t)
	rule := domain.Rule{Type: domain.RuleRange, MinValue: f(10), MaxValue: f(20)}

	is.True(Trigger(rule, 9))
	is.True(Trigger(rule, 21))
	is.True(!Trigger(rule, 10))
	is.True(!Trigger(rule, 20))
	is.True(!Trigger(rule, 15))
}

func TestRuleMissingBoundNeverTriggers(t *testing.T) {
	is := is.New(t)

	rules := []domain.Rule{
		{Type: domain.RuleMax, MinValue: f(1)},
		{Type: domain.RuleMin, MaxValue: f(1)},
		{Type: domain.RuleRange, MinValue: f(1)},
		{Type: domain.RuleRange, MaxValue: f(1)},
		{Type: domain.RuleRange},
		{Type: "UNKNOWN", MinValue: f(1), MaxValue: f(2)},
	}
	for _, r := range rules {
		for _, v := range []float64{-1e9, 0, 1, 2, 1e9} {
			is.True(!Trigger(r, v))
		}
	}
}

func TestTriggeredKeepsCandidateOrder(t *testing.T) {
	is := is.New(t)
	candidates := []domain.Rule{
		{ID: "a", Type: domain.RuleMax, MaxValue: f(10)},
		{ID: "b", Type: domain.RuleMin, MinValue: f(0)},
		{ID: "c", Type: domain.RuleRange, MinValue: f(0), MaxValue: f(5)},
	}

	got := Triggered(candidates, 12)
	is.Equal(len(got), 2)
	is.Equal(got[0].ID, "a")
	is.Equal(got[1].ID, "c")
}
