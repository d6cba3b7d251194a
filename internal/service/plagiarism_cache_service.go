package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"plagiarism_backend/internal/util"
	"plagiarism_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ActiveCheckStore 记录"课程是否有进行中的查重"。
// 显式注入而不是包级单例，测试可以换成内存实现并在用例间重置。
type ActiveCheckStore interface {
	// SetIfAbsent 标记课程进入检测中；已被标记时返回 false
	SetIfAbsent(ctx context.Context, courseID uint) (bool, error)
	// Clear 撤销标记，可重复调用
	Clear(ctx context.Context, courseID uint) error
}

// MemoryActiveCheckStore 单进程内存实现
type MemoryActiveCheckStore struct {
	mu     sync.Mutex
	active map[uint]bool
}

func NewMemoryActiveCheckStore() *MemoryActiveCheckStore {
	return &MemoryActiveCheckStore{active: make(map[uint]bool)}
}

func (s *MemoryActiveCheckStore) SetIfAbsent(ctx context.Context, courseID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[courseID] {
		return false, nil
	}
	s.active[courseID] = true
	return true, nil
}

func (s *MemoryActiveCheckStore) Clear(ctx context.Context, courseID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, courseID)
	return nil
}

// RedisActiveCheckStore 多实例部署时用 redis SETNX 做课程级互斥。
// TTL 是崩溃兜底：进程没来得及 Release 时锁最终自动过期。
type RedisActiveCheckStore struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisActiveCheckStore(client *redis.Client, ttl time.Duration) *RedisActiveCheckStore {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &RedisActiveCheckStore{Client: client, TTL: ttl}
}

func (s *RedisActiveCheckStore) key(courseID uint) string {
	return fmt.Sprintf("plagiarism:active-check:%d", courseID)
}

func (s *RedisActiveCheckStore) SetIfAbsent(ctx context.Context, courseID uint) (bool, error) {
	return s.Client.SetNX(ctx, s.key(courseID), 1, s.TTL).Result()
}

func (s *RedisActiveCheckStore) Clear(ctx context.Context, courseID uint) error {
	return s.Client.Del(ctx, s.key(courseID)).Err()
}

// PlagiarismCacheService 课程级互斥守卫：每个课程同一时刻至多一次查重。
// 这不是通用互斥锁——没有排队，第二个请求立即被拒绝而不是串行化，
// 因为一次查重可能跑几分钟到几小时，阻塞等待对调用方毫无意义。
type PlagiarismCacheService struct {
	Store ActiveCheckStore
}

func NewPlagiarismCacheService(store ActiveCheckStore) *PlagiarismCacheService {
	return &PlagiarismCacheService{Store: store}
}

// Acquire 课程已有进行中的检测时立即返回 util.ErrAlreadyRunning。
// 同课程的嵌套获取同样被拒绝，不做可重入。
func (s *PlagiarismCacheService) Acquire(ctx context.Context, courseID uint) error {
	ok, err := s.Store.SetIfAbsent(ctx, courseID)
	if err != nil {
		return fmt.Errorf("acquire active check for course %d: %w", courseID, err)
	}
	if !ok {
		return util.ErrAlreadyRunning
	}
	return nil
}

// Release 幂等；必须在 defer 中围绕整个分析调用，崩溃的检测不能把课程永久锁死
func (s *PlagiarismCacheService) Release(ctx context.Context, courseID uint) {
	if err := s.Store.Clear(ctx, courseID); err != nil {
		logger.Log.Error("release active plagiarism check failed",
			zap.Uint("courseId", courseID), zap.Error(err))
	}
}
