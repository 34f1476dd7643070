package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ekaya-inc/risk-register/pkg/apperrors"
)

// Bounds for the probability and impact scales.
const (
	MinRating      = 1
	MaxRating      = 5
	MaxTitleLength = 200
)

// RiskLevel is the severity bucket derived from a risk's score.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "Low"
	RiskLevelMedium   RiskLevel = "Medium"
	RiskLevelHigh     RiskLevel = "High"
	RiskLevelCritical RiskLevel = "Critical"
)

// AllRiskLevels lists levels from least to most severe.
var AllRiskLevels = []RiskLevel{RiskLevelLow, RiskLevelMedium, RiskLevelHigh, RiskLevelCritical}

// IsValid reports whether l is one of the known levels.
func (l RiskLevel) IsValid() bool {
	for _, v := range AllRiskLevels {
		if l == v {
			return true
		}
	}
	return false
}

// RiskCategory classifies the origin of a risk.
type RiskCategory string

const (
	RiskCategoryOperational      RiskCategory = "Operational"
	RiskCategoryTechnological    RiskCategory = "Technological"
	RiskCategoryLegal            RiskCategory = "Legal"
	RiskCategoryFinancial        RiskCategory = "Financial"
	RiskCategoryReputational     RiskCategory = "Reputational"
	RiskCategoryPhysicalSecurity RiskCategory = "Physical Security"
	RiskCategoryCybersecurity    RiskCategory = "Cybersecurity"
)

// AllRiskCategories lists the accepted categories.
var AllRiskCategories = []RiskCategory{
	RiskCategoryOperational,
	RiskCategoryTechnological,
	RiskCategoryLegal,
	RiskCategoryFinancial,
	RiskCategoryReputational,
	RiskCategoryPhysicalSecurity,
	RiskCategoryCybersecurity,
}

// IsValid reports whether c is one of the accepted categories.
func (c RiskCategory) IsValid() bool {
	for _, v := range AllRiskCategories {
		if c == v {
			return true
		}
	}
	return false
}

// RiskStatus tracks where a risk is in its treatment workflow.
type RiskStatus string

const (
	RiskStatusIdentified RiskStatus = "Identified"
	RiskStatusAnalyzing  RiskStatus = "Analyzing"
	RiskStatusTreating   RiskStatus = "Treating"
	RiskStatusMitigated  RiskStatus = "Mitigated"
	RiskStatusClosed     RiskStatus = "Closed"
)

// AllRiskStatuses lists the accepted statuses in workflow order.
var AllRiskStatuses = []RiskStatus{
	RiskStatusIdentified,
	RiskStatusAnalyzing,
	RiskStatusTreating,
	RiskStatusMitigated,
	RiskStatusClosed,
}

// IsValid reports whether s is one of the accepted statuses.
func (s RiskStatus) IsValid() bool {
	for _, v := range AllRiskStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsActive reports whether a risk in this status still needs attention.
// Mitigated and Closed risks are settled.
func (s RiskStatus) IsActive() bool {
	return s != RiskStatusMitigated && s != RiskStatusClosed
}

// LevelForScore maps a score to its level: 1-4 Low, 5-9 Medium, 10-15 High,
// anything above Critical.
func LevelForScore(score int) RiskLevel {
	switch {
	case score <= 4:
		return RiskLevelLow
	case score <= 9:
		return RiskLevelMedium
	case score <= 15:
		return RiskLevelHigh
	default:
		return RiskLevelCritical
	}
}

// ComputeScore returns probability × impact and the matching level.
// Range checking is the caller's job.
func ComputeScore(probability, impact int) (int, RiskLevel) {
	score := probability * impact
	return score, LevelForScore(score)
}

// Risk is one entry of the register.
type Risk struct {
	ID           uuid.UUID    `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Category     RiskCategory `json:"category"`
	Probability  int          `json:"probability"`
	Impact       int          `json:"impact"`
	Score        int          `json:"score"`
	Level        RiskLevel    `json:"level"`
	Consequences string       `json:"consequences"`
	ActionPlan   string       `json:"actionPlan"`
	IdentifiedAt time.Time    `json:"identifiedAt"`
	DueAt        *time.Time   `json:"dueAt,omitempty"`
	Owner        string       `json:"owner"`
	Status       RiskStatus   `json:"status"`
	Notes        string       `json:"notes,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Recompute refreshes Score and Level from Probability and Impact.
func (r *Risk) Recompute() {
	r.Score, r.Level = ComputeScore(r.Probability, r.Impact)
}

// Validate checks every field constraint and reports all violations at once.
func (r *Risk) Validate() error {
	v := &apperrors.ValidationError{}

	validateTitle(v, r.Title)
	requireText(v, r.Description, "Description is required")
	validateCategory(v, r.Category)
	validateRating(v, "Probability", r.Probability)
	validateRating(v, "Impact", r.Impact)
	requireText(v, r.Consequences, "Consequences are required")
	requireText(v, r.ActionPlan, "Action plan is required")
	if r.IdentifiedAt.IsZero() {
		v.Add("Identification date is required")
	}
	requireText(v, r.Owner, "Owner is required")
	validateStatus(v, r.Status)

	return v.OrNil()
}

// RiskPatch is a partial set of field changes. Nil fields are left as they
// are. Score and Level are never read from clients; the write path fills
// them in when both Probability and Impact are present.
type RiskPatch struct {
	Title        *string
	Description  *string
	Category     *RiskCategory
	Probability  *int
	Impact       *int
	Consequences *string
	ActionPlan   *string
	IdentifiedAt *time.Time
	DueAt        *time.Time
	ClearDueAt   bool
	Owner        *string
	Status       *RiskStatus
	Notes        *string

	Score *int
	Level *RiskLevel
}

// HasRatings reports whether the patch sets both probability and impact,
// the only case in which an update recomputes score and level.
func (p *RiskPatch) HasRatings() bool {
	return p.Probability != nil && p.Impact != nil
}

// ApplyScore fills Score and Level from the patch's ratings when both are
// present and reports whether it did.
func (p *RiskPatch) ApplyScore() bool {
	if !p.HasRatings() {
		return false
	}
	score, level := ComputeScore(*p.Probability, *p.Impact)
	p.Score = &score
	p.Level = &level
	return true
}

// Validate checks the fields present in the patch.
func (p *RiskPatch) Validate() error {
	v := &apperrors.ValidationError{}

	if p.Title != nil {
		validateTitle(v, *p.Title)
	}
	if p.Description != nil {
		requireText(v, *p.Description, "Description is required")
	}
	if p.Category != nil {
		validateCategory(v, *p.Category)
	}
	if p.Probability != nil {
		validateRating(v, "Probability", *p.Probability)
	}
	if p.Impact != nil {
		validateRating(v, "Impact", *p.Impact)
	}
	if p.Consequences != nil {
		requireText(v, *p.Consequences, "Consequences are required")
	}
	if p.ActionPlan != nil {
		requireText(v, *p.ActionPlan, "Action plan is required")
	}
	if p.IdentifiedAt != nil && p.IdentifiedAt.IsZero() {
		v.Add("Identification date is required")
	}
	if p.Owner != nil {
		requireText(v, *p.Owner, "Owner is required")
	}
	if p.Status != nil {
		validateStatus(v, *p.Status)
	}

	return v.OrNil()
}

// ApplyTo copies the patch's fields onto r and stamps UpdatedAt. It does not
// touch Score or Level unless the patch carries them.
func (p *RiskPatch) ApplyTo(r *Risk, now time.Time) {
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.Category != nil {
		r.Category = *p.Category
	}
	if p.Probability != nil {
		r.Probability = *p.Probability
	}
	if p.Impact != nil {
		r.Impact = *p.Impact
	}
	if p.Consequences != nil {
		r.Consequences = *p.Consequences
	}
	if p.ActionPlan != nil {
		r.ActionPlan = *p.ActionPlan
	}
	if p.IdentifiedAt != nil {
		r.IdentifiedAt = *p.IdentifiedAt
	}
	if p.ClearDueAt {
		r.DueAt = nil
	} else if p.DueAt != nil {
		due := *p.DueAt
		r.DueAt = &due
	}
	if p.Owner != nil {
		r.Owner = *p.Owner
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.Notes != nil {
		r.Notes = *p.Notes
	}
	if p.Score != nil {
		r.Score = *p.Score
	}
	if p.Level != nil {
		r.Level = *p.Level
	}
	r.UpdatedAt = now
}

// NewRisk builds a risk from a creation payload, applying defaults
// (IdentifiedAt = now, Status = Identified) and computing the score.
// Missing required fields are left zero for Validate to report.
func NewRisk(p *RiskPatch, now time.Time) *Risk {
	r := &Risk{
		Status:       RiskStatusIdentified,
		IdentifiedAt: now,
		CreatedAt:    now,
	}
	// Derived values are never taken from the payload.
	p.Score, p.Level = nil, nil
	p.ApplyTo(r, now)
	r.Recompute()
	return r
}

func validateTitle(v *apperrors.ValidationError, title string) {
	if strings.TrimSpace(title) == "" {
		v.Add("Title is required")
		return
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		v.Add(fmt.Sprintf("Title cannot exceed %d characters", MaxTitleLength))
	}
}

func requireText(v *apperrors.ValidationError, value, message string) {
	if strings.TrimSpace(value) == "" {
		v.Add(message)
	}
}

func validateCategory(v *apperrors.ValidationError, c RiskCategory) {
	switch {
	case c == "":
		v.Add("Category is required")
	case !c.IsValid():
		v.Add(fmt.Sprintf("Invalid category %q", string(c)))
	}
}

func validateStatus(v *apperrors.ValidationError, s RiskStatus) {
	switch {
	case s == "":
		v.Add("Status is required")
	case !s.IsValid():
		v.Add(fmt.Sprintf("Invalid status %q", string(s)))
	}
}

func validateRating(v *apperrors.ValidationError, field string, value int) {
	switch {
	case value == 0:
		v.Add(field + " is required")
	case value < MinRating:
		v.Add(fmt.Sprintf("%s must be at least %d", field, MinRating))
	case value > MaxRating:
		v.Add(fmt.Sprintf("%s must be at most %d", field, MaxRating))
	}
}
