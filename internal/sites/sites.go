// Package sites holds the catalog of crawlable cashback sites.
package sites

import (
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/cashback-intel/internal/model"
)

// Catalog maps lowercase site names to crawl targets.
type Catalog struct {
	sites map[string]model.CrawlTarget
}

// Defaults returns the built-in catalog.
func Defaults() *Catalog {
	c := &Catalog{sites: make(map[string]model.CrawlTarget)}
	c.put(model.CrawlTarget{
		Site:         model.SiteShopBack,
		EntryPoint:   "https://www.shopback.com.au/sitemap.xml",
		BaseURL:      "https://www.shopback.com.au",
		DetailFilter: "/store/",
	})
	c.put(model.CrawlTarget{
		Site:         model.SiteCashRewards,
		EntryPoint:   "https://www.cashrewards.com.au/en/sitemap.xml",
		BaseURL:      "https://www.cashrewards.com.au",
		DetailFilter: "/store/",
	})
	return c
}

// Load returns the built-in catalog overlaid with the sites in the YAML
// file at path. An empty path yields the defaults.
//
//	sites:
//	  - site: rakuten
//	    entry_point: https://www.rakuten.com.au/sitemap.xml
//	    detail_filter: /shop/
func Load(path string) (*Catalog, error) {
	c := Defaults()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sites: read %s", path)
	}
	var doc struct {
		Sites []model.CrawlTarget `yaml:"sites"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "sites: parse %s", path)
	}
	for _, t := range doc.Sites {
		if strings.TrimSpace(t.Site) == "" || strings.TrimSpace(t.EntryPoint) == "" {
			return nil, eris.Errorf("sites: %s: every site needs a name and entry_point", path)
		}
		c.put(t)
	}
	return c, nil
}

func (c *Catalog) put(t model.CrawlTarget) {
	t.Site = strings.ToLower(strings.TrimSpace(t.Site))
	c.sites[t.Site] = t
}

// Get returns the target named site, case-insensitively.
func (c *Catalog) Get(site string) (model.CrawlTarget, error) {
	t, ok := c.sites[strings.ToLower(strings.TrimSpace(site))]
	if !ok {
		return model.CrawlTarget{}, eris.Errorf("sites: unknown site %q (known: %s)", site, strings.Join(c.Names(), ", "))
	}
	return t, nil
}

// Names returns the catalog's site names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.sites))
	for n := range c.sites {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// All returns every target in name order.
func (c *Catalog) All() []model.CrawlTarget {
	out := make([]model.CrawlTarget, 0, len(c.sites))
	for _, n := range c.Names() {
		out = append(out, c.sites[n])
	}
	return out
}
