package main

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/risk-register/pkg/jsonutil"
	"github.com/ekaya-inc/risk-register/pkg/models"
)

// seedFile is the YAML document layout.
type seedFile struct {
	Risks []seedRisk `yaml:"risks"`
}

// seedRisk mirrors the API's create payload. Dates are RFC 3339 or
// YYYY-MM-DD.
type seedRisk struct {
	Title        string `yaml:"title"`
	Description  string `yaml:"description"`
	Category     string `yaml:"category"`
	Probability  int    `yaml:"probability"`
	Impact       int    `yaml:"impact"`
	Consequences string `yaml:"consequences"`
	ActionPlan   string `yaml:"actionPlan"`
	IdentifiedAt string `yaml:"identifiedAt"`
	DueAt        string `yaml:"dueAt"`
	Owner        string `yaml:"owner"`
	Status       string `yaml:"status"`
	Notes        string `yaml:"notes"`
}

// parseSeedFile decodes a seed document into create payloads. Unknown keys
// are rejected so typos do not silently drop data.
func parseSeedFile(data []byte) ([]*models.RiskPatch, error) {
	var doc seedFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(doc.Risks) == 0 {
		return nil, fmt.Errorf("no risks found under the \"risks\" key")
	}

	payloads := make([]*models.RiskPatch, 0, len(doc.Risks))
	for i, r := range doc.Risks {
		p, err := r.toPatch()
		if err != nil {
			return nil, fmt.Errorf("risk %d: %w", i+1, err)
		}
		payloads = append(payloads, p)
	}
	return payloads, nil
}

func (r seedRisk) toPatch() (*models.RiskPatch, error) {
	p := &models.RiskPatch{
		Title:        optionalString(r.Title),
		Description:  optionalString(r.Description),
		Consequences: optionalString(r.Consequences),
		ActionPlan:   optionalString(r.ActionPlan),
		Owner:        optionalString(r.Owner),
		Notes:        optionalString(r.Notes),
	}
	if r.Category != "" {
		c := models.RiskCategory(r.Category)
		p.Category = &c
	}
	if r.Status != "" {
		s := models.RiskStatus(r.Status)
		p.Status = &s
	}
	if r.Probability != 0 {
		p.Probability = &r.Probability
	}
	if r.Impact != 0 {
		p.Impact = &r.Impact
	}

	var err error
	if p.IdentifiedAt, err = optionalTime(r.IdentifiedAt); err != nil {
		return nil, fmt.Errorf("identifiedAt: %w", err)
	}
	if p.DueAt, err = optionalTime(r.DueAt); err != nil {
		return nil, fmt.Errorf("dueAt: %w", err)
	}
	return p, nil
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func optionalTime(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := jsonutil.ParseFlexibleTime(s)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}
