package session

import (
	"context"
	"sync"

	"github.com/langchou/trackgazer/internal/repository"
)

const cookiesKey = "cookies"

// Store 会话 Cookie 存储
// 空字符串表示"无会话"；非空表示"假定有效，直到 401/403 或空数据证明失效"。
// 轮询循环和用户触发的切换会并发访问，用互斥锁保证
// Clear 之后的 Cookies 一定观察到已清除的值
type Store struct {
	mu    sync.Mutex
	store repository.Store
}

// NewStore 创建会话存储
func NewStore(store repository.Store) *Store {
	return &Store{store: store}
}

// Cookies 读取当前会话 Cookie；未设置时返回空字符串
func (s *Store) Cookies(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok, err := s.store.Get(ctx, cookiesKey)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return v, nil
}

// SaveCookies 覆盖存储会话 Cookie
func (s *Store) SaveCookies(ctx context.Context, cookies string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Set(ctx, cookiesKey, cookies)
}

// Clear 清除会话
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Delete(ctx, cookiesKey)
}
