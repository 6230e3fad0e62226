package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Level controls prompt depth and the schema richness of extracted records.
type Level string

const (
	LevelBasic         Level = "basic"
	LevelStandard      Level = "standard"
	LevelComprehensive Level = "comprehensive"
)

// AllLevels returns the intelligence levels from cheapest to richest.
func AllLevels() []Level {
	return []Level{LevelBasic, LevelStandard, LevelComprehensive}
}

// ParseLevel parses a level name case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelBasic:
		return LevelBasic, nil
	case LevelStandard:
		return LevelStandard, nil
	case LevelComprehensive:
		return LevelComprehensive, nil
	}
	return "", eris.Errorf("model: unknown intelligence level %q", s)
}

// Extraction method tags.
const (
	MethodInference           = "Inference"
	MethodLearnedPattern      = "Pattern_Learning"
	MethodAdaptiveSelector    = "Adaptive_Selector"
	MethodContextAware        = "Context_Aware"
	MethodContextAwareGeneric = "Context_Aware_Generic"
)

const (
	UnknownMerchant = "Unknown"
	NoOfferInfo     = "No Cashback Info"
)

// ExtractionResult is the output of one extraction strategy.
type ExtractionResult struct {
	Merchant   string         `json:"merchant"`
	Offer      string         `json:"cashback_offer"`
	Confidence float64        `json:"confidence"`
	Method     string         `json:"method"`
	Level      Level          `json:"level,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
	TokensUsed int64          `json:"tokens_used"`
	Cost       float64        `json:"cost"`
	URL        string         `json:"url"`
	ScrapedAt  time.Time      `json:"scraped_at"`
}

// NewResult builds a result with its confidence clamped into [0,1].
func NewResult(merchant, offer string, confidence float64, method string) *ExtractionResult {
	return &ExtractionResult{
		Merchant:   merchant,
		Offer:      offer,
		Confidence: ClampConfidence(confidence),
		Method:     method,
		ScrapedAt:  time.Now().UTC(),
	}
}

// ClampConfidence restricts c to [0,1].
func ClampConfidence(c float64) float64 {
	switch {
	case c != c: // NaN
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

// Attempt records one strategy invocation against a page.
type Attempt struct {
	Method     string    `json:"method"`
	Success    bool      `json:"success"`
	Confidence float64   `json:"confidence"`
	At         time.Time `json:"at"`
	Error      string    `json:"error,omitempty"`
}
