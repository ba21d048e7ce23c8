package query

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
)

// ConditionCache memoizes Lower() results keyed by (backend name, tree
// fingerprint), avoiding repeated string-building for hot, frequently
// reissued queries (e.g. a dashboard polling the same filtered QuerySet).
type ConditionCache struct {
	cache *ristretto.Cache[string, string]
}

// NewConditionCache builds a cache sized for a few thousand distinct
// compiled conditions, mirroring the modest working sets query layers
// typically see.
func NewConditionCache() (*ConditionCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: 100_000,
		MaxCost:     10_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &ConditionCache{cache: c}, nil
}

// LowerCached lowers n through b, caching the result under a fingerprint of
// (backendName, n). Cache hits skip Lower entirely.
func (cc *ConditionCache) LowerCached(backendName string, n Node, b ConditionBuilder) (string, error) {
	key := fingerprint(backendName, n)
	if v, ok := cc.cache.Get(key); ok {
		return v, nil
	}
	lowered, err := Lower(n, b)
	if err != nil {
		return "", err
	}
	cc.cache.Set(key, lowered, 1)
	cc.cache.Wait()
	return lowered, nil
}

// Close releases the cache's background goroutines.
func (cc *ConditionCache) Close() { cc.cache.Close() }

func fingerprint(backendName string, n Node) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|", backendName)
	writeFingerprint(h, n)
	return hex.EncodeToString(h.Sum(nil))
}

func writeFingerprint(h interface{ Write([]byte) (int, error) }, n Node) {
	switch t := n.(type) {
	case Leaf:
		fmt.Fprintf(h, "L(%s,%s,%v)", t.Field, t.Op, t.Value)
	case Combinator:
		fmt.Fprintf(h, "C(%s,[", t.Kind)
		for _, c := range t.Children {
			writeFingerprint(h, c)
			fmt.Fprint(h, ";")
		}
		fmt.Fprint(h, "])")
	}
}
