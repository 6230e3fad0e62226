package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/cashback-intel/internal/dom"
	"github.com/sells-group/cashback-intel/internal/model"
)

const (
	adaptiveConfidence = 0.6
	maxOfferTextLen    = 200
)

var (
	merchantSelectors = []string{
		"h1", "h2",
		"[data-test*='name']", "[data-test*='title']",
		".merchant-name", ".store-name", ".title", "title",
	}
	offerSelectors = []string{
		"[class*='cashback']", "[class*='rate']", "[class*='offer']", "[class*='reward']",
		"[data-test*='rate']", "[data-test*='cashback']",
		"h2, h3, h4, h5",
		".percentage", ".rate",
	}
	navigationWords = []string{
		"home", "shop", "browse", "search", "menu", "cart",
		"login", "sign up", "about", "contact", "help",
	}
	offerInfoRes = []*regexp.Regexp{
		regexp.MustCompile(`\d+\.?\d*%`),
		regexp.MustCompile(`\$\d+`),
		regexp.MustCompile(`(?i)points`),
		regexp.MustCompile(`(?i)cashback`),
		regexp.MustCompile(`(?i)cash back`),
		regexp.MustCompile(`(?i)earn`),
		regexp.MustCompile(`(?i)reward`),
	}
	offerFallbackRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\d+\.?\d*%\s*cashback`),
		regexp.MustCompile(`(?i)earn\s+\d+\.?\d*%`),
		regexp.MustCompile(`(?i)up\s+to\s+\d+\.?\d*%`),
		regexp.MustCompile(`(?i)\$\d+\.?\d*\s*cashback`),
	}
)

// AdaptiveStrategy walks fixed lists of likely merchant and offer
// selectors.
type AdaptiveStrategy struct{}

// NewAdaptiveStrategy creates an adaptive selector strategy.
func NewAdaptiveStrategy() *AdaptiveStrategy { return &AdaptiveStrategy{} }

// Name implements Strategy.
func (s *AdaptiveStrategy) Name() string { return model.MethodAdaptiveSelector }

// Extract implements Strategy. A page without a plausible merchant name
// yields no result.
func (s *AdaptiveStrategy) Extract(_ context.Context, ec *model.ExtractionContext) (*model.ExtractionResult, error) {
	merchant := findMerchant(ec.Doc)
	if merchant == "" {
		return nil, nil
	}
	offer := findOffer(ec.Doc)
	if offer == "" {
		offer = model.NoOfferInfo
	}
	return model.NewResult(merchant, offer, adaptiveConfidence, s.Name()), nil
}

func findMerchant(doc *goquery.Document) string {
	for _, sel := range merchantSelectors {
		var name string
		doc.Find(sel).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			if text := dom.Text(el); plausibleMerchant(text) {
				name = text
				return false
			}
			return true
		})
		if name != "" {
			return name
		}
	}
	return ""
}

func plausibleMerchant(text string) bool {
	if len(text) < 2 || len(text) > 100 {
		return false
	}
	lower := strings.ToLower(text)
	for _, w := range navigationWords {
		if strings.Contains(lower, w) {
			return false
		}
	}
	return true
}

func findOffer(doc *goquery.Document) string {
	for _, sel := range offerSelectors {
		var offer string
		doc.Find(sel).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			text := collapse(dom.Text(el))
			if text == "" || len(text) > maxOfferTextLen {
				return true
			}
			for _, re := range offerInfoRes {
				if re.MatchString(text) {
					offer = text
					return false
				}
			}
			return true
		})
		if offer != "" {
			return offer
		}
	}

	all := collapse(doc.Find("body").Text())
	if all == "" {
		all = collapse(doc.Text())
	}
	for _, re := range offerFallbackRes {
		if m := re.FindString(all); m != "" {
			return m
		}
	}
	return ""
}
