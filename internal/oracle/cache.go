package oracle

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"datasteward/internal/logging"
)

// CachedClient memoizes oracle answers keyed by a content fingerprint so a
// run never pays for the same question twice. Execution is sequential, so
// the cache map needs no locking.
type CachedClient struct {
	inner  Client
	cache  map[string]interface{}
	hits   int
	misses int
}

// NewCachedClient wraps an oracle with an in-process answer cache.
func NewCachedClient(inner Client) *CachedClient {
	return &CachedClient{
		inner: inner,
		cache: make(map[string]interface{}),
	}
}

func fingerprint(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (c *CachedClient) lookup(key string, compute func() interface{}) interface{} {
	if v, ok := c.cache[key]; ok {
		c.hits++
		return v
	}
	c.misses++
	v := compute()
	c.cache[key] = v
	return v
}

func (c *CachedClient) InterpretRule(ctx context.Context, ruleDescription string) string {
	key := "rule:" + fingerprint(ruleDescription)
	return c.lookup(key, func() interface{} {
		return c.inner.InterpretRule(ctx, ruleDescription)
	}).(string)
}

func (c *CachedClient) InferSemanticTypes(ctx context.Context, sqlText string, columns []string) map[string]string {
	sorted := append([]string(nil), columns...)
	sort.Strings(sorted)
	key := "semtype:" + fingerprint(sqlText+"|"+strings.Join(sorted, "|"))
	return c.lookup(key, func() interface{} {
		return c.inner.InferSemanticTypes(ctx, sqlText, columns)
	}).(map[string]string)
}

func (c *CachedClient) DetectRiskyTransformations(ctx context.Context, sqlText string) []RiskFinding {
	key := "risks:" + fingerprint(sqlText)
	out := c.lookup(key, func() interface{} {
		return c.inner.DetectRiskyTransformations(ctx, sqlText)
	})
	if out == nil {
		return nil
	}
	return out.([]RiskFinding)
}

func (c *CachedClient) GenerateExplanation(ctx context.Context, eventType string, eventContext map[string]interface{}) string {
	// Canonical JSON keeps the key stable across map iteration orders.
	ctxJSON, err := json.Marshal(eventContext)
	if err != nil {
		ctxJSON = []byte("{}")
	}
	key := "explain:" + eventType + ":" + fingerprint(string(ctxJSON))
	return c.lookup(key, func() interface{} {
		return c.inner.GenerateExplanation(ctx, eventType, eventContext)
	}).(string)
}

// Stats reports cache effectiveness for the run summary.
func (c *CachedClient) Stats() (hits, misses int) {
	return c.hits, c.misses
}

// LogStats writes the hit/miss counters to the oracle log.
func (c *CachedClient) LogStats() {
	logging.Oracle("cache: %d hits, %d misses", c.hits, c.misses)
}
