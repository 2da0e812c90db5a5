package sstable

import (
	"sync"

	"spatiallsm/pkg/metrics"
)

type cacheKey struct {
	table  uint64
	offset uint64
}

// BlockCache is an LRU of decoded blocks shared by every open table.
type BlockCache struct {
	mu       sync.Mutex
	capacity int
	items    map[cacheKey]*cacheItem
	head     *cacheItem
	tail     *cacheItem
	metrics  metrics.Collector
}

type cacheItem struct {
	key   cacheKey
	value []byte
	prev  *cacheItem
	next  *cacheItem
}

// NewBlockCache creates a cache holding up to capacity blocks.
func NewBlockCache(capacity int, m metrics.Collector) *BlockCache {
	if m == nil {
		m = metrics.Noop{}
	}
	return &BlockCache{
		capacity: max(capacity, 1),
		items:    make(map[cacheKey]*cacheItem),
		metrics:  m,
	}
}

// Get returns the block of table at offset.
func (bc *BlockCache) Get(table, offset uint64) ([]byte, bool) {
	bc.mu.Lock()
	item, found := bc.items[cacheKey{table, offset}]
	if found {
		bc.moveToHead(item)
	}
	bc.mu.Unlock()

	if found {
		bc.metrics.IncCounter(metrics.BlockCacheHits, nil, 1)
		return item.value, true
	}
	bc.metrics.IncCounter(metrics.BlockCacheMisses, nil, 1)
	return nil, false
}

// Set stores the block of table at offset.
func (bc *BlockCache) Set(table, offset uint64, value []byte) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	key := cacheKey{table, offset}
	if item, found := bc.items[key]; found {
		item.value = value
		bc.moveToHead(item)
		return
	}

	item := &cacheItem{key: key, value: value}
	bc.addToHead(item)
	bc.items[key] = item

	for len(bc.items) > bc.capacity {
		bc.evictLRU()
	}
}

// EvictTable drops every block of table.
func (bc *BlockCache) EvictTable(table uint64) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	for key, item := range bc.items {
		if key.table == table {
			bc.unlink(item)
			delete(bc.items, key)
		}
	}
}

// Len is the number of cached blocks.
func (bc *BlockCache) Len() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.items)
}

func (bc *BlockCache) moveToHead(item *cacheItem) {
	if item == bc.head {
		return
	}
	bc.unlink(item)
	bc.addToHead(item)
}

func (bc *BlockCache) addToHead(item *cacheItem) {
	item.prev = nil
	item.next = bc.head
	if bc.head != nil {
		bc.head.prev = item
	}
	bc.head = item
	if bc.tail == nil {
		bc.tail = item
	}
}

func (bc *BlockCache) unlink(item *cacheItem) {
	if item.prev != nil {
		item.prev.next = item.next
	} else {
		bc.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		bc.tail = item.prev
	}
	item.prev, item.next = nil, nil
}

func (bc *BlockCache) evictLRU() {
	if bc.tail == nil {
		return
	}
	victim := bc.tail
	bc.unlink(victim)
	delete(bc.items, victim.key)
}
