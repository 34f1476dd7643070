package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ekaya-inc/risk-register/pkg/apperrors"
)

// DefaultRiskSort lists newest entries first.
const DefaultRiskSort = "-createdAt"

// Sortable risk fields, named as they appear in JSON.
const (
	SortFieldCreatedAt    = "createdAt"
	SortFieldUpdatedAt    = "updatedAt"
	SortFieldIdentifiedAt = "identifiedAt"
	SortFieldDueAt        = "dueAt"
	SortFieldTitle        = "title"
	SortFieldScore        = "score"
	SortFieldProbability  = "probability"
	SortFieldImpact       = "impact"
	SortFieldLevel        = "level"
	SortFieldStatus       = "status"
	SortFieldCategory     = "category"
	SortFieldOwner        = "owner"
)

// SortableRiskFields is the set of fields a list may be ordered by.
var SortableRiskFields = map[string]bool{
	SortFieldCreatedAt:    true,
	SortFieldUpdatedAt:    true,
	SortFieldIdentifiedAt: true,
	SortFieldDueAt:        true,
	SortFieldTitle:        true,
	SortFieldScore:        true,
	SortFieldProbability:  true,
	SortFieldImpact:       true,
	SortFieldLevel:        true,
	SortFieldStatus:       true,
	SortFieldCategory:     true,
	SortFieldOwner:        true,
}

// RiskSort is a single sort key.
type RiskSort struct {
	Field      string
	Descending bool
}

// String renders the sort back in "-field" form.
func (s RiskSort) String() string {
	if s.Descending {
		return "-" + s.Field
	}
	return s.Field
}

// ParseRiskSort parses "field" (ascending) or "-field" (descending).
// An empty key yields the default sort.
func ParseRiskSort(key string) (RiskSort, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		key = DefaultRiskSort
	}
	s := RiskSort{Field: key}
	if strings.HasPrefix(key, "-") {
		s.Field = key[1:]
		s.Descending = true
	} else if strings.HasPrefix(key, "+") {
		s.Field = key[1:]
	}
	if !SortableRiskFields[s.Field] {
		return RiskSort{}, fmt.Errorf("unsupported sort field %q", s.Field)
	}
	return s, nil
}

// RiskFilter holds the equality constraints and ordering for a list query.
// Empty fields impose no constraint; set fields are AND-combined.
type RiskFilter struct {
	Status   string
	Level    string
	Category string
	Sort     RiskSort
}

// BuildFilter translates list query parameters into a RiskFilter.
// Only status, level, category and sort are recognised.
func BuildFilter(query url.Values) (*RiskFilter, error) {
	sort, err := ParseRiskSort(query.Get("sort"))
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}
	return &RiskFilter{
		Status:   strings.TrimSpace(query.Get("status")),
		Level:    strings.TrimSpace(query.Get("level")),
		Category: strings.TrimSpace(query.Get("category")),
		Sort:     sort,
	}, nil
}

// Matches reports whether r satisfies every clause of the filter.
func (f *RiskFilter) Matches(r *Risk) bool {
	if f.Status != "" && string(r.Status) != f.Status {
		return false
	}
	if f.Level != "" && string(r.Level) != f.Level {
		return false
	}
	if f.Category != "" && string(r.Category) != f.Category {
		return false
	}
	return true
}

// Less orders a before b according to the filter's sort key. Ties fall back
// to newest first, then id, so results are stable across stores.
func (f *RiskFilter) Less(a, b *Risk) bool {
	if c := compareRiskField(f.Sort.Field, a, b); c != 0 {
		if f.Sort.Descending {
			return c > 0
		}
		return c < 0
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

func compareRiskField(field string, a, b *Risk) int {
	switch field {
	case SortFieldCreatedAt:
		return a.CreatedAt.Compare(b.CreatedAt)
	case SortFieldUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case SortFieldIdentifiedAt:
		return a.IdentifiedAt.Compare(b.IdentifiedAt)
	case SortFieldDueAt:
		return compareOptionalTime(a.DueAt, b.DueAt)
	case SortFieldTitle:
		return strings.Compare(a.Title, b.Title)
	case SortFieldScore:
		return a.Score - b.Score
	case SortFieldProbability:
		return a.Probability - b.Probability
	case SortFieldImpact:
		return a.Impact - b.Impact
	case SortFieldLevel:
		return strings.Compare(string(a.Level), string(b.Level))
	case SortFieldStatus:
		return strings.Compare(string(a.Status), string(b.Status))
	case SortFieldCategory:
		return strings.Compare(string(a.Category), string(b.Category))
	case SortFieldOwner:
		return strings.Compare(a.Owner, b.Owner)
	}
	return 0
}

// compareOptionalTime sorts missing dates after present ones in ascending
// order, matching Postgres' default NULLS LAST.
func compareOptionalTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return a.Compare(*b)
}
