package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/domain"
)

// NewMemory returns process-local stores for local runs and tests.
func NewMemory() *Repos {
	return &Repos{
		Readings: NewMemoryReadings(),
		Rules:    NewMemoryRules(),
		Alerts:   NewMemoryAlerts(nil),
	}
}

type MemoryReadings struct {
	mu       sync.RWMutex
	readings []domain.Reading
}

func NewMemoryReadings() *MemoryReadings { return &MemoryReadings{} }

func (m *MemoryReadings) Append(_ context.Context, readings []domain.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, readings...)
	return nil
}

func (m *MemoryReadings) Query(_ context.Context, deviceID, metricName string, from, to time.Time) ([]domain.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []domain.Reading{}
	for _, r := range m.readings {
		if r.DeviceID != deviceID || r.MetricName != metricName {
			continue
		}
		if r.Timestamp.Before(from) || r.Timestamp.After(to) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Len reports how many readings have been appended.
func (m *MemoryReadings) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.readings)
}

type MemoryRules struct {
	mu    sync.RWMutex
	rules []domain.Rule
}

func NewMemoryRules() *MemoryRules { return &MemoryRules{} }

func (m *MemoryRules) FindEnabled(_ context.Context, deviceID, metricName string) ([]domain.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []domain.Rule{}
	for _, r := range m.rules {
		if r.Enabled && r.DeviceID == deviceID && strings.EqualFold(r.MetricName, metricName) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRules) Create(_ context.Context, rule domain.Rule) (domain.Rule, error) {
	rule.MetricName = strings.ToLower(rule.MetricName)
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule)
	return rule, nil
}

type MemoryAlerts struct {
	mu     sync.RWMutex
	alerts []domain.Alert
	now    func() time.Time
}

// NewMemoryAlerts uses now for triggeredAt; nil means the wall clock.
func NewMemoryAlerts(now func() time.Time) *MemoryAlerts {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryAlerts{now: now}
}

func (m *MemoryAlerts) Create(_ context.Context, a domain.NewAlert) (domain.Alert, error) {
	alert := domain.Alert{
		ID:          uuid.NewString(),
		DeviceID:    a.DeviceID,
		MetricName:  a.MetricName,
		RuleID:      a.RuleID,
		Value:       a.Value,
		Status:      domain.AlertActive,
		TriggeredAt: m.now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
	return alert, nil
}

func (m *MemoryAlerts) Resolve(_ context.Context, id string, at time.Time) (domain.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.alerts {
		if m.alerts[i].ID != id {
			continue
		}
		resolved := at.UTC()
		m.alerts[i].Status = domain.AlertResolved
		m.alerts[i].ResolvedAt = &resolved
		return m.alerts[i], nil
	}
	return domain.Alert{}, domain.ErrNotFound
}

func (m *MemoryAlerts) Query(_ context.Context, f domain.AlertFilter) ([]domain.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []domain.Alert{}
	for _, a := range m.alerts {
		if f.Match(a) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TriggeredAt.After(out[j].TriggeredAt) })
	return out, nil
}
