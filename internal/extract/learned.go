package extract

import (
	"context"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/cashback-intel/internal/dom"
	"github.com/sells-group/cashback-intel/internal/model"
)

const (
	learnedConfidence = 0.7
	learnedScanLimit  = 10
	minLearnedTextLen = 6
	maxLearnedTextLen = 99
)

var offerValueRes = []*regexp.Regexp{
	regexp.MustCompile(`\d+\.?\d*%`),
	regexp.MustCompile(`\$\d+\.?\d*`),
	regexp.MustCompile(`(?i)\d+\.?\d*\s*points`),
	regexp.MustCompile(`(?i)up to \d+`),
}

// PatternSource supplies learned merchant locations for a site type and
// is told when one of them produced a result.
type PatternSource interface {
	Suggest(siteType string) []model.LearnedPattern
	MarkSuccess(ctx context.Context, p model.LearnedPattern) error
}

// LearnedStrategy replays DOM locations that held merchant names on
// previous pages of the same site type.
type LearnedStrategy struct {
	source PatternSource
}

// NewLearnedStrategy creates a learned-pattern strategy.
func NewLearnedStrategy(source PatternSource) *LearnedStrategy {
	return &LearnedStrategy{source: source}
}

// Name implements Strategy.
func (s *LearnedStrategy) Name() string { return model.MethodLearnedPattern }

// Extract implements Strategy. Both a merchant and an offer value must be
// found for a result.
func (s *LearnedStrategy) Extract(ctx context.Context, ec *model.ExtractionContext) (*model.ExtractionResult, error) {
	for _, p := range s.source.Suggest(ec.SiteType) {
		sel := dom.Compose(p.Tag, p.Classes, p.ID)
		if sel == "" {
			continue
		}

		var merchant, offer string
		ec.Doc.Find(sel).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			text := dom.Text(el)
			if len(text) < minLearnedTextLen || len(text) > maxLearnedTextLen {
				return true
			}
			merchant = text
			offer = nearbyOffer(el.Parent())
			return false
		})
		if merchant == "" || offer == "" {
			continue
		}

		if err := s.source.MarkSuccess(ctx, p); err != nil {
			return nil, &FatalError{Method: s.Name(), Err: err}
		}
		return model.NewResult(merchant, offer, learnedConfidence, s.Name()), nil
	}
	return nil, nil
}

// nearbyOffer scans the first few descendants of parent for an offer value.
func nearbyOffer(parent *goquery.Selection) string {
	if parent.Length() == 0 {
		return ""
	}
	var found string
	all := parent.Find("*")
	all.Slice(0, min(learnedScanLimit, all.Length())).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		text := dom.Text(el)
		for _, re := range offerValueRes {
			if m := re.FindString(text); m != "" {
				found = m
				return false
			}
		}
		return true
	})
	return found
}
