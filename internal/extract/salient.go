package extract

import (
	"math"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/sells-group/cashback-intel/internal/dom"
)

const (
	maxSections       = 12
	maxSectionChars   = 200
	matchesPerKeyword = 2
	maxHeaders        = 5
	maxRateLines      = 3
	maxAmountLines    = 3
)

var (
	noiseSelectors  = "script, style, nav, footer, header, aside, noscript"
	salientKeywords = []string{"cashback", "cash back", "reward", "earn", "%", "discount", "offer", "deal"}
	attrHints       = []string{"cashback", "rate", "offer", "reward", "earn"}
	rateSentenceRe  = regexp.MustCompile(`[^.]*\d+\.?\d*%[^.]*`)
	amountRe        = regexp.MustCompile(`[^.]*\$\d+\.?\d*[^.]*`)
	spaceRe         = regexp.MustCompile(`\s+`)
)

// EstimateTokens approximates the token count of text at 1.3 tokens per word.
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(len(strings.Fields(text))) * 1.3))
}

// SalientText reduces a page to the few lines an inference call needs: the
// title, headings, offer-like elements, keyword matches and rate sentences.
// The result is trimmed to roughly maxTokens. raw is re-parsed so the
// caller's document is not mutated.
func SalientText(raw string, maxTokens int) (string, int) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", 0
	}

	title := collapse(doc.Find("title").First().Text())
	doc.Find(noiseSelectors).Remove()

	var sections []string
	seen := make(map[string]bool)
	add := func(s string) {
		s = collapse(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		sections = append(sections, s)
	}

	if title != "" {
		add("TITLE: " + title)
	}

	doc.Find("h1, h2, h3, h4").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if t := dom.Text(s); t != "" && len(t) < maxSectionChars {
			add("HEADER: " + t)
		}
		return i < maxHeaders-1
	})

	doc.Find("body *").Each(func(_ int, s *goquery.Selection) {
		if !hasOfferHint(s) {
			return
		}
		if t := dom.Text(s); t != "" && len(t) < maxSectionChars {
			add(t)
		}
	})

	for _, kw := range salientKeywords {
		matched := 0
		dom.TextNodes(doc, func(n *html.Node) bool {
			if !strings.Contains(strings.ToLower(n.Data), kw) {
				return true
			}
			matched++
			if n.Parent != nil && n.Parent.Type == html.ElementNode {
				parent := goquery.NewDocumentFromNode(n.Parent).Selection
				if t := dom.Text(parent); t != "" && len(t) < maxSectionChars {
					add(t)
				}
			}
			return matched < matchesPerKeyword
		})
	}

	allText := doc.Text()
	for _, m := range firstN(rateSentenceRe.FindAllString(allText, -1), maxRateLines) {
		add("RATE: " + m)
	}
	for _, m := range firstN(amountRe.FindAllString(allText, -1), maxAmountLines) {
		add("AMOUNT: " + m)
	}

	if len(sections) > maxSections {
		sections = sections[:maxSections]
	}
	content := strings.Join(sections, "\n")

	if maxTokens > 0 && EstimateTokens(content) > maxTokens {
		words := strings.Fields(content)
		maxWords := int(float64(maxTokens) * 0.75)
		if maxWords < len(words) {
			words = words[:maxWords]
		}
		content = strings.Join(words, " ")
	}
	return content, EstimateTokens(content)
}

func hasOfferHint(s *goquery.Selection) bool {
	if len(s.Nodes) == 0 {
		return false
	}
	for _, a := range s.Nodes[0].Attr {
		if a.Key != "class" && a.Key != "id" && !strings.HasPrefix(a.Key, "data-") {
			continue
		}
		v := strings.ToLower(a.Val)
		for _, h := range attrHints {
			if strings.Contains(v, h) {
				return true
			}
		}
	}
	return false
}

func collapse(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func firstN(ss []string, n int) []string {
	if len(ss) > n {
		return ss[:n]
	}
	return ss
}
