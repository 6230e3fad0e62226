package model

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// Site types derived from a page URL.
const (
	SiteShopBack    = "shopback"
	SiteCashRewards = "cashrewards"
	SiteRakuten     = "rakuten"
	SiteGeneric     = "generic"
)

// DetectSiteType maps a URL onto a coarse site type.
func DetectSiteType(rawURL string) string {
	u := strings.ToLower(rawURL)
	switch {
	case strings.Contains(u, "shopback"):
		return SiteShopBack
	case strings.Contains(u, "cashrewards"):
		return SiteCashRewards
	case strings.Contains(u, "rakuten"):
		return SiteRakuten
	}
	return SiteGeneric
}

// ExtractionContext carries one fetched page through the strategy chain.
// It is owned by a single chain invocation and discarded afterwards.
type ExtractionContext struct {
	URL      string
	Raw      string
	Doc      *goquery.Document
	SiteType string
	Attempts []Attempt
}

// NewExtractionContext parses raw markup into a queryable document.
func NewExtractionContext(pageURL, raw string) (*ExtractionContext, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, eris.Wrapf(err, "model: parse document %s", pageURL)
	}
	return &ExtractionContext{
		URL:      pageURL,
		Raw:      raw,
		Doc:      doc,
		SiteType: DetectSiteType(pageURL),
	}, nil
}

// Record appends an attempt for method to the page's attempt log.
func (c *ExtractionContext) Record(method string, r *ExtractionResult, err error) Attempt {
	a := Attempt{
		Method:  method,
		Success: r != nil && err == nil,
		At:      time.Now().UTC(),
	}
	if r != nil {
		a.Confidence = r.Confidence
	}
	if err != nil {
		a.Error = err.Error()
	}
	c.Attempts = append(c.Attempts, a)
	return a
}
