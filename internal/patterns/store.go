// Package patterns persists the DOM locations where merchant names were
// found on confidently extracted pages, and replays them on later pages.
package patterns

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cashback-intel/internal/model"
)

// patternFile is the on-disk document.
type patternFile struct {
	MerchantSelectors []model.LearnedPattern `json:"merchant_selectors"`
	CashbackSelectors []model.LearnedPattern `json:"cashback_selectors"`
	URLPatterns       map[string]any         `json:"url_patterns"`
}

// Store is a JSON file of learned patterns. Every mutation rewrites the
// whole file atomically.
type Store struct {
	path  string
	decay DecayConfig

	mu   sync.Mutex
	file patternFile
	now  func() time.Time
}

// Open loads the pattern file at path. A missing file yields an empty
// store; an unreadable or corrupt file is an error.
func Open(path string, decay DecayConfig) (*Store, error) {
	s := &Store{
		path:  path,
		decay: decay,
		file:  patternFile{URLPatterns: map[string]any{}},
		now:   time.Now,
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "patterns: read %s", path)
	}
	if err := json.Unmarshal(data, &s.file); err != nil {
		return nil, eris.Wrapf(err, "patterns: parse %s", path)
	}
	if s.file.URLPatterns == nil {
		s.file.URLPatterns = map[string]any{}
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// All returns a copy of every stored merchant pattern.
func (s *Store) All() []model.LearnedPattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.LearnedPattern, len(s.file.MerchantSelectors))
	copy(out, s.file.MerchantSelectors)
	return out
}

// Suggest returns the fresh patterns that apply to siteType, most
// confident first. Patterns learned without a site type apply everywhere.
func (s *Store) Suggest(siteType string) []model.LearnedPattern {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var out []model.LearnedPattern
	for _, p := range s.file.MerchantSelectors {
		if p.SiteType != "" && p.SiteType != siteType {
			continue
		}
		if Stale(p, now, s.decay) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return EffectiveConfidence(out[i], now, s.decay) > EffectiveConfidence(out[j], now, s.decay)
	})
	return out
}

// Add stores patterns not already present and persists the file when
// anything changed. It returns the number added.
func (s *Store) Add(ctx context.Context, ps ...model.LearnedPattern) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	known := make(map[string]bool, len(s.file.MerchantSelectors))
	for _, p := range s.file.MerchantSelectors {
		known[p.Key()] = true
	}
	added := 0
	for _, p := range ps {
		if known[p.Key()] {
			continue
		}
		known[p.Key()] = true
		s.file.MerchantSelectors = append(s.file.MerchantSelectors, p)
		added++
	}
	if added == 0 {
		return 0, nil
	}
	return added, s.saveLocked()
}

// MarkSuccess refreshes the pattern matching p's key.
func (s *Store) MarkSuccess(ctx context.Context, p model.LearnedPattern) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := p.Key()
	for i := range s.file.MerchantSelectors {
		if s.file.MerchantSelectors[i].Key() != key {
			continue
		}
		s.file.MerchantSelectors[i].Successes++
		s.file.MerchantSelectors[i].LastSuccessAt = s.now().UTC()
		return s.saveLocked()
	}
	return nil
}

// Prune drops stale patterns and returns how many were removed.
func (s *Store) Prune(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	kept := s.file.MerchantSelectors[:0]
	for _, p := range s.file.MerchantSelectors {
		if !Stale(p, now, s.decay) {
			kept = append(kept, p)
		}
	}
	removed := len(s.file.MerchantSelectors) - len(kept)
	s.file.MerchantSelectors = kept
	if removed == 0 {
		return 0, nil
	}
	zap.L().Info("patterns: pruned stale patterns", zap.Int("removed", removed), zap.Int("kept", len(kept)))
	return removed, s.saveLocked()
}

// saveLocked writes the file via a temp file and rename. s.mu must be held.
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.file, "", "  ")
	if err != nil {
		return eris.Wrap(err, "patterns: encode")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "patterns: create dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".patterns-*.json")
	if err != nil {
		return eris.Wrap(err, "patterns: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "patterns: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "patterns: close temp file")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return eris.Wrapf(err, "patterns: replace %s", s.path)
	}
	return nil
}
