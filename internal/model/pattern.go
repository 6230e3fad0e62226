package model

import (
	"slices"
	"strings"
	"time"
)

// LearnedPattern is a DOM location that previously held a merchant name.
type LearnedPattern struct {
	Tag           string    `json:"tag"`
	Classes       []string  `json:"class"`
	ID            string    `json:"id"`
	TextPattern   string    `json:"text_pattern,omitempty"`
	SiteType      string    `json:"site_type"`
	Confidence    float64   `json:"confidence"`
	Successes     int       `json:"successes"`
	LearnedAt     time.Time `json:"learned_at"`
	LastSuccessAt time.Time `json:"last_success_at,omitempty"`
}

// Key identifies a pattern for deduplication.
func (p LearnedPattern) Key() string {
	classes := slices.Clone(p.Classes)
	slices.Sort(classes)
	return p.SiteType + "|" + p.Tag + "|" + strings.Join(classes, ".") + "|#" + p.ID
}

// Selector renders the pattern as a CSS selector.
func (p LearnedPattern) Selector() string {
	var b strings.Builder
	b.WriteString(p.Tag)
	if p.ID != "" {
		b.WriteString("#")
		b.WriteString(p.ID)
	}
	for _, c := range p.Classes {
		if c == "" {
			continue
		}
		b.WriteString(".")
		b.WriteString(c)
	}
	return b.String()
}

// LastSeen returns the most recent time the pattern was learned or reused.
func (p LearnedPattern) LastSeen() time.Time {
	if p.LastSuccessAt.After(p.LearnedAt) {
		return p.LastSuccessAt
	}
	return p.LearnedAt
}
