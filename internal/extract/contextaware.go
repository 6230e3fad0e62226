package extract

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/sells-group/cashback-intel/internal/dom"
	"github.com/sells-group/cashback-intel/internal/model"
)

const (
	contextCachedConfidence  = 0.8
	contextGenericConfidence = 0.5
	contextLearnThreshold    = 0.7
)

var percentRe = regexp.MustCompile(`\d+\.?\d*%`)

type siteSelectors struct {
	merchant string
	offer    string
}

// ContextAwareStrategy remembers, per site type, which selectors located
// the merchant and offer on earlier confident results. The memory lasts
// for the life of the strategy.
type ContextAwareStrategy struct {
	mu    sync.RWMutex
	cache map[string]siteSelectors
}

// NewContextAwareStrategy creates a context-aware strategy with an empty
// selector cache.
func NewContextAwareStrategy() *ContextAwareStrategy {
	return &ContextAwareStrategy{cache: make(map[string]siteSelectors)}
}

// Name implements Strategy.
func (s *ContextAwareStrategy) Name() string { return model.MethodContextAware }

// Extract implements Strategy.
func (s *ContextAwareStrategy) Extract(_ context.Context, ec *model.ExtractionContext) (*model.ExtractionResult, error) {
	s.mu.RLock()
	cached, ok := s.cache[ec.SiteType]
	s.mu.RUnlock()

	if ok {
		if merchant := dom.Text(ec.Doc.Find(cached.merchant).First()); merchant != "" {
			offer := model.NoOfferInfo
			if cached.offer != "" {
				if t := collapse(dom.Text(ec.Doc.Find(cached.offer).First())); t != "" {
					offer = t
				}
			}
			return model.NewResult(merchant, offer, contextCachedConfidence, model.MethodContextAware), nil
		}
	}

	merchant := dom.Text(ec.Doc.Find("h1").First())
	if merchant == "" {
		return nil, nil
	}
	offer := model.NoOfferInfo
	dom.TextNodes(ec.Doc, func(n *html.Node) bool {
		if percentRe.MatchString(n.Data) {
			offer = strings.TrimSpace(n.Data)
			return false
		}
		return true
	})
	return model.NewResult(merchant, offer, contextGenericConfidence, model.MethodContextAwareGeneric), nil
}

// Learn caches the selectors that locate r's merchant and offer on the
// page, when r is confident enough.
func (s *ContextAwareStrategy) Learn(ec *model.ExtractionContext, r *model.ExtractionResult) {
	if r == nil || r.Confidence <= contextLearnThreshold || r.Merchant == "" || r.Merchant == model.UnknownMerchant {
		return
	}
	el := dom.ExactTextOwner(ec.Doc, r.Merchant)
	if el == nil {
		return
	}
	learned := siteSelectors{merchant: dom.Selector(el)}
	if learned.merchant == "" {
		return
	}
	if r.Offer != "" && r.Offer != model.NoOfferInfo {
		if oel := dom.ExactTextOwner(ec.Doc, r.Offer); oel != nil {
			learned.offer = dom.Selector(oel)
		}
	}

	s.mu.Lock()
	s.cache[ec.SiteType] = learned
	s.mu.Unlock()
}
