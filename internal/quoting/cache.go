package quoting

import (
	"container/list"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nullmev/arbengine/internal/domain"
)

// cacheKey identifies one cached quote by (venue, pool, t_in, t_out,
// block_bucket); the pool is part of the key so each fee tier of a pair is
// cached separately.
type cacheKey struct {
	Venue       domain.VenueID
	Pool        common.Address
	TokenIn     common.Address
	TokenOut    common.Address
	BlockBucket uint64
}

// lruCache is a bounded, mutex-guarded least-recently-used cache. No LRU
// library appears anywhere in the retrieved corpus, so this is a small
// hand-rolled container/list-backed implementation rather than an
// out-of-pack dependency; see DESIGN.md.
type lruCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[cacheKey]*list.Element
}

type lruEntry struct {
	key   cacheKey
	quote domain.Quote
}

func newLRUCache(capacity int) *lruCache {
	if capacity < 1 {
		capacity = 1
	}
	return &lruCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[cacheKey]*list.Element),
	}
}

func (c *lruCache) get(key cacheKey) (domain.Quote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return domain.Quote{}, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*lruEntry).quote, true
}

// set writes key's quote; a later write for the same key wins (spec §5).
func (c *lruCache) set(key cacheKey, quote domain.Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*lruEntry).quote = quote
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&lruEntry{key: key, quote: quote})
	c.items[key] = el

	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*lruEntry).key)
	}
}
