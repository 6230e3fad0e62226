// Package matcher aligns an externally supplied list of retailer names
// with merchant slugs discovered on a cashback site.
package matcher

import (
	"encoding/csv"
	"errors"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
)

// Normalize folds case and collapses whitespace.
func Normalize(s string) string {
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}

// Similarity returns the Jaro-Winkler similarity of the normalized names.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	return matchr.JaroWinkler(na, nb, false)
}

// Match pairs every priority name with its most similar candidate when the
// similarity reaches cutoff. Unmatched names map to nil. The returned
// candidate is the original, un-normalized string.
func Match(priority, candidates []string, cutoff float64) map[string]*string {
	out := make(map[string]*string, len(priority))
	for _, name := range priority {
		best, bestScore := -1, 0.0
		for i, c := range candidates {
			if score := Similarity(name, c); score > bestScore {
				best, bestScore = i, score
			}
		}
		if best >= 0 && bestScore >= cutoff {
			match := candidates[best]
			out[name] = &match
		} else {
			out[name] = nil
		}
	}
	return out
}

// Slug returns the merchant name implied by a store URL's last path
// segment, with separators turned into spaces.
func Slug(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	base := path.Base(strings.TrimSuffix(p, "/"))
	if base == "." || base == "/" {
		return ""
	}
	return strings.NewReplacer("-", " ", "_", " ", "+", " ").Replace(base)
}

// Prioritize moves URLs whose slug matches a priority name to the front,
// in priority order, followed by the rest in their original order. When
// nothing matches, urls is returned unchanged.
func Prioritize(urls, priority []string, cutoff float64) []string {
	if len(priority) == 0 || len(urls) == 0 {
		return urls
	}

	slugs := make([]string, len(urls))
	bySlug := make(map[string][]int, len(urls))
	for i, u := range urls {
		slugs[i] = Slug(u)
		bySlug[slugs[i]] = append(bySlug[slugs[i]], i)
	}

	matches := Match(priority, slugs, cutoff)
	taken := make([]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, name := range priority {
		m := matches[name]
		if m == nil {
			continue
		}
		for _, i := range bySlug[*m] {
			if !taken[i] {
				taken[i] = true
				out = append(out, urls[i])
			}
		}
	}
	if len(out) == 0 {
		return urls
	}
	for i, u := range urls {
		if !taken[i] {
			out = append(out, u)
		}
	}
	return out
}

var headerNames = map[string]bool{"retailer": true, "name": true, "merchant": true, "store": true, "brand": true}

// LoadPriority reads retailer names from the first column of a CSV file,
// skipping blanks and a header row.
func LoadPriority(file string) ([]string, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, eris.Wrapf(err, "matcher: open %s", file)
	}
	defer f.Close() //nolint:errcheck
	return ReadPriority(f)
}

// ReadPriority parses the priority CSV from r.
func ReadPriority(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var names []string
	seen := make(map[string]bool)
	first := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "matcher: read priority csv")
		}
		if len(rec) == 0 {
			continue
		}
		name := strings.TrimSpace(rec[0])
		if first {
			first = false
			if headerNames[Normalize(name)] {
				continue
			}
		}
		if name == "" || seen[Normalize(name)] {
			continue
		}
		seen[Normalize(name)] = true
		names = append(names, name)
	}
	return names, nil
}
