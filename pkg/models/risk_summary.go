package models

import (
	"sort"
	"time"
)

// DueSoonWindow is how far ahead the summary looks for upcoming due dates.
const DueSoonWindow = 7 * 24 * time.Hour

// RiskSummary is the aggregate view of the register.
type RiskSummary struct {
	Total           int            `json:"total"`
	ActiveHighRisks int            `json:"activeHighRisks"`
	ByLevel         map[string]int `json:"byLevel"`
	ByStatus        map[string]int `json:"byStatus"`
	ByCategory      map[string]int `json:"byCategory"`
	DueSoon         []*Risk        `json:"dueSoon"`
}

// NewRiskSummary returns an empty summary with initialised maps.
func NewRiskSummary() *RiskSummary {
	return &RiskSummary{
		ByLevel:    map[string]int{},
		ByStatus:   map[string]int{},
		ByCategory: map[string]int{},
		DueSoon:    []*Risk{},
	}
}

// DueWindowBounds returns the inclusive [from, to] range of due dates that
// count as "due soon" at now.
func DueWindowBounds(now time.Time) (time.Time, time.Time) {
	return now, now.Add(DueSoonWindow)
}

// IsDueSoon reports whether r is still active and due within the window.
func (r *Risk) IsDueSoon(now time.Time) bool {
	if r.DueAt == nil || !r.Status.IsActive() {
		return false
	}
	from, to := DueWindowBounds(now)
	return !r.DueAt.Before(from) && !r.DueAt.After(to)
}

// IsActiveHigh reports whether r is High or Critical and not yet settled.
func (r *Risk) IsActiveHigh() bool {
	return (r.Level == RiskLevelHigh || r.Level == RiskLevelCritical) && r.Status.IsActive()
}

// SummarizeRisks aggregates a full set of risks in memory. Stores without
// server-side grouping use it.
func SummarizeRisks(risks []*Risk, now time.Time) *RiskSummary {
	s := NewRiskSummary()
	s.Total = len(risks)
	for _, r := range risks {
		s.ByLevel[string(r.Level)]++
		s.ByStatus[string(r.Status)]++
		s.ByCategory[string(r.Category)]++
		if r.IsActiveHigh() {
			s.ActiveHighRisks++
		}
		if r.IsDueSoon(now) {
			s.DueSoon = append(s.DueSoon, r)
		}
	}
	SortByDueDate(s.DueSoon)
	return s
}

// SortByDueDate orders risks by due date ascending.
func SortByDueDate(risks []*Risk) {
	sort.SliceStable(risks, func(i, j int) bool {
		return compareOptionalTime(risks[i].DueAt, risks[j].DueAt) < 0
	})
}
