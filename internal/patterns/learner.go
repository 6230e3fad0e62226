package patterns

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/cashback-intel/internal/dom"
	"github.com/sells-group/cashback-intel/internal/model"
)

const (
	// DefaultThreshold is the minimum result confidence worth learning from.
	DefaultThreshold = 0.7
	maxOwners        = 3
)

// Learner records where confident results found their merchant name.
type Learner struct {
	store     *Store
	threshold float64
	now       func() time.Time
}

// NewLearner creates a learner backed by store. Thresholds below
// DefaultThreshold are raised to it.
func NewLearner(store *Store, threshold float64) *Learner {
	if threshold < DefaultThreshold {
		threshold = DefaultThreshold
	}
	return &Learner{store: store, threshold: threshold, now: time.Now}
}

// Observe learns the parents of up to three text nodes holding r's merchant
// name. It reports whether any new pattern was stored.
func (l *Learner) Observe(ctx context.Context, ec *model.ExtractionContext, r *model.ExtractionResult) (bool, error) {
	if r == nil || r.Confidence < l.threshold {
		return false, nil
	}
	if r.Merchant == "" || r.Merchant == model.UnknownMerchant {
		return false, nil
	}

	now := l.now().UTC()
	var learned []model.LearnedPattern
	for _, el := range dom.TextOwners(ec.Doc, r.Merchant, maxOwners) {
		learned = append(learned, model.LearnedPattern{
			Tag:         dom.TagName(el),
			Classes:     dom.Classes(el),
			ID:          el.AttrOr("id", ""),
			TextPattern: r.Merchant,
			SiteType:    ec.SiteType,
			Confidence:  r.Confidence,
			LearnedAt:   now,
		})
	}
	if len(learned) == 0 {
		return false, nil
	}

	added, err := l.store.Add(ctx, learned...)
	if err != nil {
		return false, err
	}
	if added > 0 {
		zap.L().Debug("patterns: learned merchant locations",
			zap.String("site_type", ec.SiteType),
			zap.String("merchant", r.Merchant),
			zap.Int("added", added),
		)
	}
	return added > 0, nil
}
