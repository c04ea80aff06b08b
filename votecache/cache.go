package votecache

import (
	"container/list"
	"sync"

	"github.com/FutureHeadCoin/futurehead-node-sub001/blocks"
)

// Cache maps block hash → votes seen for it, evicting least-recently
// touched hashes once full. Its capacity scales inversely with the
// number of local voting accounts: max_cache / voting_accounts,
// minimum 1.
type Cache struct {
	mu      sync.Mutex
	cap     int
	entries map[blocks.Hash]*list.Element
	order   *list.List // front = most recently touched
}

type cacheEntry struct {
	hash  blocks.Hash
	votes []*Vote
}

// NewCache builds a cache sized maxCache/votingAccounts (minimum 1).
func NewCache(maxCache, votingAccounts int) *Cache {
	if votingAccounts < 1 {
		votingAccounts = 1
	}
	capacity := maxCache / votingAccounts
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		cap:     capacity,
		entries: make(map[blocks.Hash]*list.Element),
		order:   list.New(),
	}
}

// Add records vote against every hash it covers.
func (c *Cache) Add(vote *Vote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range vote.Hashes {
		if el, ok := c.entries[h]; ok {
			c.order.MoveToFront(el)
			e := el.Value.(*cacheEntry)
			e.votes = append(e.votes, vote)
			continue
		}
		el := c.order.PushFront(&cacheEntry{hash: h, votes: []*Vote{vote}})
		c.entries[h] = el
		for len(c.entries) > c.cap {
			oldest := c.order.Back()
			if oldest == nil {
				break
			}
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).hash)
		}
	}
}

// Votes returns the cached votes for hash, most useful for replaying
// on an incoming confirm_req instead of generating a fresh vote.
func (c *Cache) Votes(hash blocks.Hash) []*Vote {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[hash]
	if !ok {
		return nil
	}
	c.order.MoveToFront(el)
	votes := el.Value.(*cacheEntry).votes
	out := make([]*Vote, len(votes))
	copy(out, votes)
	return out
}

// Evict drops hash's entry; called when a block is rolled back so a
// stale vote is never replayed for a hash the ledger no longer holds.
func (c *Cache) Evict(hash blocks.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[hash]; ok {
		c.order.Remove(el)
		delete(c.entries, hash)
	}
}

// Len reports how many hashes currently have cached votes.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
