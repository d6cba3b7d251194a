package service

import (
	"os"
	"sync"
	"time"

	"plagiarism_backend/pkg/logger"

	"go.uber.org/zap"
)

// CleanupTask 一条延迟删除任务
type CleanupTask struct {
	Path      string
	ExecuteAt time.Time
}

// CleanupService 显式的延迟删除队列。
// 工作副本和报告产物在检测结束后异步清理：入队永不阻塞调用方，
// 删除失败只记日志不影响整体流程。队列可观察，测试能断言"已入队"而无需真正等待。
type CleanupService struct {
	mu    sync.Mutex
	tasks []CleanupTask

	interval time.Duration
	stop     chan struct{}
	wg       sync.WaitGroup
}

func NewCleanupService(pollInterval time.Duration) *CleanupService {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	return &CleanupService{
		interval: pollInterval,
		stop:     make(chan struct{}),
	}
}

// Schedule 把路径排进延迟删除队列，立即返回
func (s *CleanupService) Schedule(path string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, CleanupTask{Path: path, ExecuteAt: time.Now().Add(delay)})
	logger.Log.Info("scheduled path for deletion",
		zap.String("path", path), zap.Duration("delay", delay))
}

// Pending 尚未执行的任务数
func (s *CleanupService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// PendingPaths 尚未执行的任务路径快照
func (s *CleanupService) PendingPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, len(s.tasks))
	for i, t := range s.tasks {
		paths[i] = t.Path
	}
	return paths
}

func (s *CleanupService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.runDue(time.Now())
			case <-s.stop:
				return
			}
		}
	}()
}

func (s *CleanupService) Stop() {
	close(s.stop)
	s.wg.Wait()
}

// runDue 执行所有到期任务，删除是尽力而为的
func (s *CleanupService) runDue(now time.Time) {
	s.mu.Lock()
	var due []CleanupTask
	remaining := s.tasks[:0]
	for _, t := range s.tasks {
		if !t.ExecuteAt.After(now) {
			due = append(due, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	s.tasks = remaining
	s.mu.Unlock()

	for _, t := range due {
		if err := os.RemoveAll(t.Path); err != nil {
			logger.Log.Warn("deferred cleanup failed",
				zap.String("path", t.Path), zap.Error(err))
			continue
		}
		logger.Log.Info("deleted path after plagiarism check", zap.String("path", t.Path))
	}
}
