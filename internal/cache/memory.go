package cache

import (
	"log/slog"
	"sync"
	"time"
)

// cacheEntry 是缓存中的条目定义
type cacheEntry struct {
	value     []byte
	expiresAt time.Time // 零值表示永不过期
}

// expired 判断条目在 now 时刻是否已过期。
// 过期判定是严格的：now < expiresAt 才算有效。
func (e cacheEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore 是一个支持 TTL 的线程安全内存凭据缓存
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]cacheEntry
	stop  chan struct{} // 用于停止后台清理 goroutine

	// now 用于获取当前时间，测试时可以注入假时钟
	now func() time.Time
}

// NewMemoryStore 创建一个新的内存缓存。
// cleanupInterval 大于 0 时会启动一个后台清理 goroutine 回收过期条目；
// 过期判定始终在 Get 时进行，后台清理只影响内存占用，不影响正确性。
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	ms := &MemoryStore{
		items: make(map[string]cacheEntry),
		stop:  make(chan struct{}),
		now:   time.Now,
	}

	// 只有在 cleanupInterval 大于 0 时才启动清理 goroutine
	if cleanupInterval > 0 {
		go ms.cleanupLoop(cleanupInterval)
	}

	return ms
}

// Set 向缓存中添加一个带特定 TTL 的条目。ttl <= 0 表示永不过期。
func (ms *MemoryStore) Set(key string, value []byte, ttl time.Duration) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	entry := cacheEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = ms.now().Add(ttl)
	}
	ms.items[key] = entry
	slog.Debug("条目已缓存", "key", key, "ttl", ttl.String())
}

// Get 从缓存中检索一个条目。如果找到且未过期，则返回值和 true。
// 如果条目未找到或已过期，则返回 nil 和 false。
// 过期的条目在被访问时会被删除。
func (ms *MemoryStore) Get(key string) ([]byte, bool) {
	ms.mu.RLock()
	entry, found := ms.items[key]
	ms.mu.RUnlock()

	if !found {
		slog.Debug("缓存未命中", "key", key)
		return nil, false
	}

	if entry.expired(ms.now()) {
		// 如果条目已过期，我们获取写锁并再次检查，然后删除它
		ms.mu.Lock()
		// 再次检查，因为在获取写锁的过程中，条目可能已被更新或已被其他 goroutine 删除
		entry, found = ms.items[key]
		if found && entry.expired(ms.now()) {
			delete(ms.items, key)
			slog.Debug("访问到过期条目并已删除", "key", key)
			found = false // 标记为未找到
		}
		ms.mu.Unlock()
		if !found {
			return nil, false
		}
	}
	slog.Debug("缓存命中", "key", key)
	return entry.value, true
}

// Flush 清空缓存中的所有条目
func (ms *MemoryStore) Flush() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.items = make(map[string]cacheEntry)
	slog.Debug("缓存已清空")
}

// Stop 停止后台清理 goroutine，用于优雅关闭
func (ms *MemoryStore) Stop() {
	// 检查 stop channel 是否已关闭或为 nil，避免重复关闭导致 panic
	select {
	case <-ms.stop:
		// 已经关闭或从未启动
		return
	default:
		slog.Debug("正在停止凭据缓存的后台清理任务...")
		close(ms.stop)
	}
}

// cleanupLoop 定期从缓存中删除过期的条目
func (ms *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ms.deleteExpired()
		case <-ms.stop:
			slog.Debug("已停止凭据缓存的后台清理任务。")
			return
		}
	}
}

// deleteExpired 遍历所有条目并删除任何已过期的条目
func (ms *MemoryStore) deleteExpired() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	deletedCount := 0
	for key, entry := range ms.items {
		if entry.expired(now) {
			delete(ms.items, key)
			deletedCount++
		}
	}
	if deletedCount > 0 {
		slog.Debug("凭据缓存后台清理完成", "删除数量", deletedCount)
	}
}
