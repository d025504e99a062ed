package torm

import (
	"container/list"
	"database/sql"
	"sync"
	"time"
)

// StmtCacheConfig 预编译语句缓存配置
type StmtCacheConfig struct {
	Enabled bool          // 是否启用缓存（默认 true）
	MaxSize int           // 最大缓存数量（默认 256）
	BaseTTL time.Duration // 基础 TTL（0 表示禁用 TTL，完全依赖 LRU 淘汰）
}

// DefaultStmtCacheConfig returns the default statement cache configuration
func DefaultStmtCacheConfig() StmtCacheConfig {
	return StmtCacheConfig{
		Enabled: true,
		MaxSize: 256,
	}
}

// stmtCacheEntry 单个缓存条目
type stmtCacheEntry struct {
	stmt        *sql.Stmt
	sql         string
	createdAt   time.Time
	lastUsedAt  time.Time
	listElement *list.Element
}

// stmtCache 预编译语句的 LRU 缓存
type stmtCache struct {
	config  StmtCacheConfig
	mu      sync.Mutex
	items   map[string]*stmtCacheEntry
	lruList *list.List

	hits      int64
	misses    int64
	evictions int64
}

func newStmtCache(config StmtCacheConfig) *stmtCache {
	if config.MaxSize <= 0 {
		config.MaxSize = 256
	}
	return &stmtCache{
		config:  config,
		items:   make(map[string]*stmtCacheEntry),
		lruList: list.New(),
	}
}

// Get returns a cached prepared statement
func (c *stmtCache) Get(key string) (*sql.Stmt, bool) {
	if !c.config.Enabled {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.items[key]
	if !exists {
		c.misses++
		return nil, false
	}

	// TTL 作为可选的安全网，过期即删除并关闭
	if c.config.BaseTTL > 0 && time.Since(entry.createdAt) > c.config.BaseTTL {
		c.removeEntry(key, entry)
		c.misses++
		return nil, false
	}

	entry.lastUsedAt = time.Now()
	c.lruList.MoveToFront(entry.listElement)
	c.hits++
	return entry.stmt, true
}

// Set adds or replaces a cached prepared statement
func (c *stmtCache) Set(key string, stmt *sql.Stmt, query string) {
	if !c.config.Enabled || key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if oldEntry, exists := c.items[key]; exists {
		c.removeEntry(key, oldEntry)
	}

	// 容量满时淘汰最久未使用的条目
	for len(c.items) >= c.config.MaxSize {
		oldest := c.lruList.Back()
		if oldest == nil {
			break
		}
		oldestKey := oldest.Value.(string)
		if entry, ok := c.items[oldestKey]; ok {
			c.removeEntry(oldestKey, entry)
			c.evictions++
		}
	}

	now := time.Now()
	entry := &stmtCacheEntry{
		stmt:       stmt,
		sql:        query,
		createdAt:  now,
		lastUsedAt: now,
	}
	entry.listElement = c.lruList.PushFront(key)
	c.items[key] = entry
}

// Delete removes a cached statement, closing it
func (c *stmtCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.items[key]; exists {
		c.removeEntry(key, entry)
	}
}

// Clear closes and drops every cached statement
func (c *stmtCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.items {
		c.removeEntry(key, entry)
	}
	c.lruList.Init()
}

// Stats 返回命中率等统计指标
func (c *stmtCache) Stats() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return map[string]interface{}{
		"enabled":   c.config.Enabled,
		"size":      len(c.items),
		"max_size":  c.config.MaxSize,
		"hits":      c.hits,
		"misses":    c.misses,
		"evictions": c.evictions,
		"hit_rate":  hitRate,
	}
}

// removeEntry 删除并关闭条目，调用方必须持有锁
func (c *stmtCache) removeEntry(key string, entry *stmtCacheEntry) {
	delete(c.items, key)
	if entry.listElement != nil {
		c.lruList.Remove(entry.listElement)
	}
	if entry.stmt != nil {
		_ = entry.stmt.Close()
	}
}
