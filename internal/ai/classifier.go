package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-ingest/internal/domain"
)

// DefaultConfidence is reported when the model omits a confidence.
const DefaultConfidence = 0.5

const defaultCacheSize = 4096

// Options tunes a Classifier. Zero values disable the timeout and the cache.
type Options struct {
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Classifier turns a narration into a classification using the inference
// service. It never returns an error: any failure is "no opinion" (nil).
type Classifier struct {
	client  Client
	log     zerolog.Logger
	timeout time.Duration
	cache   *resultCache
}

func NewClassifier(client Client, log zerolog.Logger, opts Options) *Classifier {
	c := &Classifier{client: client, log: log, timeout: opts.Timeout}
	if opts.CacheTTL > 0 {
		c.cache = newResultCache(opts.CacheTTL, defaultCacheSize)
	}
	return c
}

// Classify returns the model's classification of description, or nil when
// the call fails, the response is not JSON, or it names no known base
// category. An UNCLASSIFIED answer is also nil.
func (c *Classifier) Classify(ctx context.Context, description string) *domain.ClassificationResult {
	key := cacheKey(description)
	if key == "" {
		return nil
	}
	if c.cache != nil {
		if res, ok := c.cache.get(key); ok {
			return &res
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	raw, err := c.client.Generate(ctx, buildPrompt(description))
	if err != nil {
		c.log.Error().Err(err).Msg("ai classification call failed")
		return nil
	}

	res, err := parseResponse(raw)
	if err != nil {
		c.log.Warn().Err(err).Str("raw", truncate(raw, 200)).Msg("discarding ai classification")
		return nil
	}

	if c.cache != nil {
		c.cache.set(key, *res)
	}
	return res
}

// Embed returns the embedding of text, or nil on failure.
func (c *Classifier) Embed(ctx context.Context, text string) []float32 {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	vec, err := c.client.Embed(ctx, text)
	if err != nil {
		c.log.Warn().Err(err).Msg("embedding call failed")
		return nil
	}
	return vec
}

func cacheKey(description string) string {
	return strings.Join(strings.Fields(strings.ToLower(description)), " ")
}

// parseResponse reads {base, sub?, reason?, confidence?} out of the model
// text. "category" and "sub_category"/"subcategory" are accepted as aliases.
func parseResponse(raw string) (*domain.ClassificationResult, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &fields); err != nil {
		return nil, fmt.Errorf("parseResponse: unmarshal: %w", err)
	}

	baseLabel := firstString(fields, "base", "category", "base_category")
	if baseLabel == "" {
		return nil, fmt.Errorf("parseResponse: missing base")
	}
	base, ok := domain.ParseBaseCategory(baseLabel)
	if !ok {
		return nil, fmt.Errorf("parseResponse: unknown base %q", baseLabel)
	}
	if base == domain.CategoryUnclassified {
		return nil, fmt.Errorf("parseResponse: model returned %s", base)
	}

	res := &domain.ClassificationResult{
		Category:    base,
		SubCategory: domain.NormalizeSubCategory(base, firstString(fields, "sub", "sub_category", "subcategory", "subCategory")),
		Reason:      strings.TrimSpace(firstString(fields, "reason")),
		Confidence:  DefaultConfidence,
		TaggedBy:    domain.TaggedByAI,
	}
	if v, ok := confidenceOf(fields["confidence"]); ok {
		res.Confidence, res.ConfidenceSet = v, true
	}
	return res, nil
}

func firstString(fields map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := fields[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// confidenceOf accepts a number or a numeric string. Percentages (1 < v <=
// 100) are scaled down; anything else outside [0,1] is rejected.
func confidenceOf(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(t), "%"), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if f > 1 && f <= 100 {
		f /= 100
	}
	if f < 0 || f > 1 {
		return 0, false
	}
	return f, true
}

// cleanModelJSON strips Markdown fences and any text around the outermost
// JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
