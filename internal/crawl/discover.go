package crawl

import (
	"context"
	"encoding/xml"
	"io"
	neturl "net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cashback-intel/internal/fetcher"
	"github.com/sells-group/cashback-intel/internal/model"
)

const defaultDetailFilter = "/store/"

var detailKeywords = []string{"shop", "merchant", "brand"}

// sitemap is the parsed content of a urlset or sitemapindex document.
type sitemap struct {
	Index bool
	Locs  []string
}

// parseSitemap collects every <loc> value from r. Bodies arrive as UTF-8
// from the fetcher, so declared encodings are not re-applied.
func parseSitemap(ctx context.Context, r io.Reader) (*sitemap, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }
	dec.Strict = false

	sm := &sitemap{}
	root := true
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "crawl: sitemap parse cancelled")
		}
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "crawl: read sitemap token")
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if root {
			root = false
			sm.Index = se.Name.Local == "sitemapindex"
		}
		if se.Name.Local != "loc" {
			continue
		}
		var loc string
		if err := dec.DecodeElement(&loc, &se); err != nil {
			return nil, eris.Wrap(err, "crawl: decode loc")
		}
		if loc = strings.TrimSpace(loc); loc != "" {
			sm.Locs = append(sm.Locs, loc)
		}
	}
	return sm, nil
}

// Discoverer lists candidate detail URLs for a target.
type Discoverer interface {
	Discover(ctx context.Context, target model.CrawlTarget) ([]string, error)
}

// SitemapDiscoverer reads a target's sitemap, following a sitemap index one
// level deep.
type SitemapDiscoverer struct {
	fetcher fetcher.Fetcher
}

// NewSitemapDiscoverer creates a discoverer that fetches through f.
func NewSitemapDiscoverer(f fetcher.Fetcher) *SitemapDiscoverer {
	return &SitemapDiscoverer{fetcher: f}
}

// Discover implements Discoverer. URLs matching the target's detail filter
// or a merchant keyword are preferred; if none match, every URL is returned.
func (d *SitemapDiscoverer) Discover(ctx context.Context, target model.CrawlTarget) ([]string, error) {
	log := zap.L().With(zap.String("site", target.Site), zap.String("sitemap", target.EntryPoint))

	root, err := d.load(ctx, target.EntryPoint)
	if err != nil {
		return nil, err
	}

	locs := root.Locs
	if root.Index {
		locs = nil
		for _, child := range root.Locs {
			sm, err := d.load(ctx, child)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				log.Warn("crawl: skipping child sitemap", zap.String("child", child), zap.Error(err))
				continue
			}
			locs = append(locs, sm.Locs...)
		}
	}

	all := dedup(locs)
	detail := FilterDetail(all, target.DetailFilter)
	log.Info("crawl: sitemap discovered",
		zap.Int("urls", len(all)),
		zap.Int("detail_urls", len(detail)),
	)
	if len(detail) == 0 {
		return all, nil
	}
	return detail, nil
}

func (d *SitemapDiscoverer) load(ctx context.Context, url string) (*sitemap, error) {
	page, err := d.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, eris.Wrapf(err, "crawl: fetch sitemap %s", url)
	}
	if page.StatusCode < 200 || page.StatusCode >= 300 {
		return nil, eris.Errorf("crawl: sitemap %s returned status %d", url, page.StatusCode)
	}
	return parseSitemap(ctx, strings.NewReader(page.Body))
}

// FilterDetail keeps URLs containing filter (default "/store/") or whose
// path (not host) holds one of the merchant keywords.
func FilterDetail(urls []string, filter string) []string {
	if filter == "" {
		filter = defaultDetailFilter
	}
	var out []string
	for _, u := range urls {
		if strings.Contains(u, filter) {
			out = append(out, u)
			continue
		}
		lower := strings.ToLower(u)
		if parsed, err := neturl.Parse(u); err == nil {
			lower = strings.ToLower(parsed.Path)
		}
		for _, kw := range detailKeywords {
			if strings.Contains(lower, kw) {
				out = append(out, u)
				break
			}
		}
	}
	return out
}

func dedup(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
