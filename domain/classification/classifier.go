package classification

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"math"
	"path"
	"strings"
	"time"

	"github.com/TKontu/knowledge-extraction/domain/projects"
	"github.com/TKontu/knowledge-extraction/internal/config"
	"github.com/TKontu/knowledge-extraction/pkg/embeddings"
	"github.com/TKontu/knowledge-extraction/pkg/logger"
)

// defaultSkipPatterns are skip patterns applied when no project-level
// patterns are configured and resolution falls back to the built-in set
// (spec.md §4.8 step 1). matchesAny tests each one against the whole
// lowercased URL, as a glob and, with its '*' wildcards trimmed, as a
// substring.
var defaultSkipPatterns = []string{
	"*/login*", "*/signin*", "*/logout*", "*/signup*", "*/register*",
	"*/cart*", "*/checkout*", "*/account*",
	"*/privacy*", "*/terms*", "*/cookie*",
	"*/contact*", "*/about*",
	"*.css", "*.js", "*.png", "*.jpg", "*.jpeg", "*.gif", "*.svg", "*.woff", "*.woff2",
}

const contentSummaryPrefixLen = 500

// Decision is SmartClassifier's verdict for one page.
type Decision struct {
	SkipExtraction bool
	// SelectedGroups is the set of field-group names the pipeline should
	// run. UseAllGroups means "run every group" (conservative fallback);
	// it is distinct from an empty, deliberately-narrowed SelectedGroups.
	SelectedGroups []string
	UseAllGroups   bool
}

// PageInfo is the page-level context SmartClassifier reasons over.
type PageInfo struct {
	URL           string
	Title         string
	ContentPrefix string
}

// Classifier implements SmartClassifier (spec.md §4.8).
type Classifier struct {
	repo       *Repository
	embeddings *embeddings.Service
	ke         config.KEConfig
	log        *slog.Logger
}

func NewClassifier(repo *Repository, embSvc *embeddings.Service, cfg *config.Config, log *slog.Logger) *Classifier {
	return &Classifier{repo: repo, embeddings: embSvc, ke: cfg.KE, log: log.With(logger.Scope("classifier"))}
}

// Classify decides which field groups apply to page, or whether the page
// should be skipped outright.
func (c *Classifier) Classify(ctx context.Context, page PageInfo, groups []projects.FieldGroup, cfg *projects.ClassificationConfig) (Decision, error) {
	patterns := resolveSkipPatterns(cfg, c.ke.UseDefaultSkipPatterns)
	if matchesAny(patterns, page.URL) {
		return Decision{SkipExtraction: true}, nil
	}
	if len(groups) == 0 {
		return Decision{UseAllGroups: true}, nil
	}

	highThreshold, lowThreshold, rerankThreshold, ttl := thresholds(cfg, c.ke)

	summaryText := buildSummaryText(page)
	summaryVec, err := c.embeddings.EmbedQuery(ctx, summaryText)
	if err != nil {
		return Decision{}, err
	}
	if summaryVec == nil {
		// Embeddings disabled: cannot classify, run everything.
		return Decision{UseAllGroups: true}, nil
	}

	groupVectors, err := c.groupVectors(ctx, groups, ttl)
	if err != nil {
		return Decision{}, err
	}

	type scored struct {
		name string
		text string
		sim  float64
	}
	sims := make([]scored, 0, len(groups))
	best := -1.0
	for _, g := range groups {
		text := groupText(g)
		sim := cosineSimilarity(summaryVec, groupVectors[cacheKey(text)])
		sims = append(sims, scored{name: g.Name, text: text, sim: sim})
		if sim > best {
			best = sim
		}
	}

	var highConfidence []string
	var positive []string
	for _, s := range sims {
		if s.sim >= highThreshold {
			highConfidence = append(highConfidence, s.name)
		}
		if s.sim >= lowThreshold {
			positive = append(positive, s.name)
		}
	}
	if len(highConfidence) > 0 {
		return Decision{SelectedGroups: highConfidence}, nil
	}
	if best < lowThreshold {
		return Decision{UseAllGroups: true}, nil
	}

	candidateTexts := make([]string, len(sims))
	for i, s := range sims {
		candidateTexts[i] = s.text
	}
	rerankResults, err := c.embeddings.Rerank(ctx, summaryText, candidateTexts)
	if err != nil {
		c.log.Warn("reranker call failed, falling back to embedding-positive set", logger.Error(err))
		return Decision{SelectedGroups: positive}, nil
	}
	var selected []string
	for _, r := range rerankResults {
		if r.Index < 0 || r.Index >= len(sims) {
			continue
		}
		if r.RelevanceScore >= rerankThreshold {
			selected = append(selected, sims[r.Index].name)
		}
	}
	return Decision{SelectedGroups: selected}, nil
}

// groupVectors resolves the per-group embedding for every group, serving
// cache hits and batch-embedding the misses in a single call (spec.md
// §4.8 step 2).
func (c *Classifier) groupVectors(ctx context.Context, groups []projects.FieldGroup, ttl time.Duration) (map[string][]float32, error) {
	texts := make(map[string]string, len(groups))
	keys := make([]string, 0, len(groups))
	for _, g := range groups {
		text := groupText(g)
		key := cacheKey(text)
		if _, ok := texts[key]; ok {
			continue
		}
		texts[key] = text
		keys = append(keys, key)
	}

	cached, err := c.repo.BatchGet(ctx, keys)
	if err != nil {
		return nil, err
	}

	var missKeys []string
	var missTexts []string
	for _, key := range keys {
		if _, ok := cached[key]; ok {
			continue
		}
		missKeys = append(missKeys, key)
		missTexts = append(missTexts, texts[key])
	}
	if len(missTexts) == 0 {
		return cached, nil
	}

	vectors, err := c.embeddings.EmbedDocuments(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	fresh := make(map[string][]float32, len(missKeys))
	for i, key := range missKeys {
		if i < len(vectors) {
			fresh[key] = vectors[i]
			cached[key] = vectors[i]
		}
	}
	if err := c.repo.BatchPut(ctx, fresh, ttl); err != nil {
		c.log.Warn("failed to write back group embedding cache", logger.Error(err))
	}
	return cached, nil
}

func thresholds(cfg *projects.ClassificationConfig, ke config.KEConfig) (high, low, rerank float64, ttl time.Duration) {
	high, low, rerank = ke.ClassifierHighThreshold, ke.ClassifierLowThreshold, ke.ClassifierRerankThreshold
	ttl = 24 * time.Hour
	if cfg == nil {
		return
	}
	if cfg.HighThreshold > 0 {
		high = cfg.HighThreshold
	}
	if cfg.LowThreshold > 0 {
		low = cfg.LowThreshold
	}
	if cfg.RerankerThreshold > 0 {
		rerank = cfg.RerankerThreshold
	}
	if cfg.CacheTTLSeconds > 0 {
		ttl = time.Duration(cfg.CacheTTLSeconds) * time.Second
	}
	return
}

// resolveSkipPatterns implements spec.md §4.8 step 1's tri-state resolution:
// an explicit non-null list always wins (empty list included, which
// disables skipping entirely); a null list falls back to the built-in
// defaults whenever classification is disabled or use_default_skip_patterns
// forces it, and otherwise disables skipping (the project relies purely on
// embedding classification).
func resolveSkipPatterns(cfg *projects.ClassificationConfig, globalUseDefaults bool) []string {
	if cfg != nil && cfg.SkipPatterns != nil {
		return cfg.SkipPatterns
	}
	smartEnabled := cfg != nil && cfg.Enabled
	useDefaults := globalUseDefaults || !smartEnabled
	if cfg != nil && cfg.UseDefaultSkipPatterns {
		useDefaults = true
	}
	if useDefaults {
		return defaultSkipPatterns
	}
	return nil
}

func matchesAny(patterns []string, rawURL string) bool {
	if len(patterns) == 0 {
		return false
	}
	lower := strings.ToLower(rawURL)
	for _, p := range patterns {
		if ok, _ := path.Match(strings.ToLower(p), lower); ok {
			return true
		}
		if strings.Contains(lower, strings.ToLower(strings.Trim(p, "*"))) {
			return true
		}
	}
	return false
}

func buildSummaryText(page PageInfo) string {
	prefix := page.ContentPrefix
	if len(prefix) > contentSummaryPrefixLen {
		prefix = prefix[:contentSummaryPrefixLen]
	}
	return strings.Join([]string{page.Title, page.URL, prefix}, "\n")
}

func groupText(g projects.FieldGroup) string {
	return strings.Join([]string{g.Name, g.Description, strings.Join(g.FieldNames(), " ")}, " ")
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
