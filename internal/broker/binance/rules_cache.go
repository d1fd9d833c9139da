package binance

import (
	"sync"
	"time"

	"trade-mirror-bot/internal/types"
)

// rulesCache keeps symbol trading rules for ttl.
type rulesCache struct {
	mu   sync.RWMutex
	data map[string]rulesEntry
	ttl  time.Duration
}

type rulesEntry struct {
	rules     types.SymbolRules
	timestamp time.Time
}

func newRulesCache(ttl time.Duration) *rulesCache {
	return &rulesCache{
		data: make(map[string]rulesEntry),
		ttl:  ttl,
	}
}

func (c *rulesCache) get(symbol string) (types.SymbolRules, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[symbol]
	if !ok || time.Since(entry.timestamp) > c.ttl {
		return types.SymbolRules{}, false
	}
	return entry.rules, true
}

func (c *rulesCache) set(rules types.SymbolRules) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[rules.Symbol] = rulesEntry{rules: rules, timestamp: time.Now()}
}
