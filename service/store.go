package service

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/NotanProEnhanced/madewithwords-segmentation/utils"
	"go.uber.org/zap"
)

// DefaultMaskTTL 掩码保留时长，调用方应在此窗口内取走并自行缓存
const DefaultMaskTTL = 1200 * time.Second

// MaskStore 短期掩码存储
type MaskStore interface {
	Put(ctx context.Context, payload []byte) (string, error)
	// Get 条目不存在或已过期时返回 ErrNotFound
	Get(ctx context.Context, id string) ([]byte, error)
	Evict(ctx context.Context) (int, error)
	Len(ctx context.Context) (int, error)
	TTL() time.Duration
}

// StoreEntry 存储条目，创建后不再修改
type StoreEntry struct {
	ID        string
	CreatedAt time.Time
	Payload   []byte
}

// MemoryStore 进程内存储，在每次 Put/Get 前惰性淘汰过期条目
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]StoreEntry
	ttl     time.Duration
	now     func() time.Time
	newID   func() string
	onEvict func(n int)
}

type MemoryStoreOption func(*MemoryStore)

// WithClock 替换时钟，用于测试
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithIDGenerator 替换ID生成器
func WithIDGenerator(newID func() string) MemoryStoreOption {
	return func(s *MemoryStore) { s.newID = newID }
}

// WithEvictionHook 每次淘汰到条目时回调
func WithEvictionHook(fn func(n int)) MemoryStoreOption {
	return func(s *MemoryStore) { s.onEvict = fn }
}

func NewMemoryStore(ttl time.Duration, opts ...MemoryStoreOption) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultMaskTTL
	}
	s := &MemoryStore{
		entries: make(map[string]StoreEntry),
		ttl:     ttl,
		now:     time.Now,
		newID:   utils.NewMaskID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) TTL() time.Duration { return s.ttl }

func (s *MemoryStore) Put(_ context.Context, payload []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.evictLocked(now)

	id := s.newID()
	s.entries[id] = StoreEntry{ID: id, CreatedAt: now, Payload: bytes.Clone(payload)}
	return id, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.evictLocked(now)

	entry, ok := s.entries[id]
	if !ok || s.expired(entry, now) {
		return nil, newError(KindNotFound, "store.get", "mask not found or expired", nil)
	}
	return bytes.Clone(entry.Payload), nil
}

// Evict 删除所有超过 TTL 的条目，返回删除数量
func (s *MemoryStore) Evict(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.evictLocked(s.now()), nil
}

// Len 返回未过期条目数
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for _, entry := range s.entries {
		if !s.expired(entry, now) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) evictLocked(now time.Time) int {
	removed := 0
	for id, entry := range s.entries {
		if s.expired(entry, now) {
			delete(s.entries, id)
			removed++
		}
	}
	if removed > 0 {
		utils.Logger.Debug("evicted expired masks", zap.Int("count", removed))
		if s.onEvict != nil {
			s.onEvict(removed)
		}
	}
	return removed
}

func (s *MemoryStore) expired(entry StoreEntry, now time.Time) bool {
	return now.Sub(entry.CreatedAt) > s.ttl
}

// size 返回内部条目数（含未淘汰的过期条目）
func (s *MemoryStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
