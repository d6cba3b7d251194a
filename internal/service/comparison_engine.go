package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"plagiarism_backend/internal/model"
	"plagiarism_backend/internal/util"
	"plagiarism_backend/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ProgressObserver 接收 "comparing N/M" 式的进度通知。
// 通知是尽力而为的：观察者失败或 panic 不允许打断比较流程。
type ProgressObserver interface {
	OnProgress(exerciseID uint, message string)
}

// NoopProgressObserver 默认观察者
type NoopProgressObserver struct{}

func (NoopProgressObserver) OnProgress(uint, string) {}

// ComparisonEngine 对候选提交做两两全量比较。
// 算法是经典的上三角扫描（i 从 0..n-1，j 从 i+1..n-1），每个无序对恰好比较一次，
// 复杂度 O(n²) 次比较器调用——穷举式查重固有的开销，没有次平方近似。
// 各对之间互不共享可变状态，可以安全并行，聚合在最后一步串行完成。
type ComparisonEngine struct {
	Comparator SimilarityComparator
	Observer   ProgressObserver
	Workers    int
}

func NewComparisonEngine(comparator SimilarityComparator, observer ProgressObserver, workers int) *ComparisonEngine {
	if observer == nil {
		observer = NoopProgressObserver{}
	}
	if workers <= 0 {
		workers = 1
	}
	return &ComparisonEngine{Comparator: comparator, Observer: observer, Workers: workers}
}

// Run 执行比较扫描。
// minimumElementCount 是硬性的赛前过滤：元素数不足的提交在比较开始前剔除，而不是打低分。
// minimumSimilarity (0-100) 是硬性过滤：低于阈值的比较不进入结果。
// 直方图在截断前计算，sum(buckets) 等于全部命中比较数。
func (e *ComparisonEngine) Run(ctx context.Context, exerciseID uint, candidates []model.PlagiarismSubmission, minimumSimilarity float64, minimumElementCount int) (*model.PlagiarismResult, error) {
	start := time.Now()

	submissions := make([]model.PlagiarismSubmission, 0, len(candidates))
	for _, s := range candidates {
		if len(s.Elements) < minimumElementCount {
			continue
		}
		submissions = append(submissions, s)
	}

	n := len(submissions)
	total := n * (n - 1) / 2
	e.notifyProgress(exerciseID, fmt.Sprintf("Comparing submissions: 0/%d", total))

	var (
		mu          sync.Mutex
		comparisons []model.PlagiarismComparison
		done        int64
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Workers)

	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			row := make([]model.PlagiarismComparison, 0)
			for j := i + 1; j < n; j++ {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}

				a, b := &submissions[i], &submissions[j]

				// 跳过的配对也计入进度，最后一条通知才能到 M/M
				current := atomic.AddInt64(&done, 1)
				if current%50 == 0 || current == int64(total) {
					e.notifyProgress(exerciseID, fmt.Sprintf("Comparing submissions: %d/%d", current, total))
				}

				// 不变式：同一学生/团队的两份提交不互相比较
				if a.StudentLogin == b.StudentLogin {
					continue
				}

				similarity := e.Comparator.Compare(a.Elements, b.Elements) * 100

				if similarity < minimumSimilarity {
					continue
				}
				row = append(row, model.PlagiarismComparison{
					SubmissionA: copySubmission(a),
					SubmissionB: copySubmission(b),
					Similarity:  similarity,
					Status:      model.StatusNone,
				})
			}
			if len(row) > 0 {
				mu.Lock()
				comparisons = append(comparisons, row...)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("comparison sweep aborted: %w", err)
	}

	result := &model.PlagiarismResult{
		ExerciseID:             exerciseID,
		Comparisons:            comparisons,
		SimilarityDistribution: model.ComputeHistogram(comparisons),
		DurationMillis:         time.Since(start).Milliseconds(),
	}
	return result, nil
}

// RequireMinimumCandidates 少于两份可比提交时返回 util.ErrInsufficientData
func RequireMinimumCandidates(candidates []model.PlagiarismSubmission, minimumElementCount int) error {
	eligible := 0
	for _, s := range candidates {
		if len(s.Elements) >= minimumElementCount {
			eligible++
		}
	}
	if eligible < 2 {
		return util.ErrInsufficientData
	}
	return nil
}

// SortAndTruncate 所有领域共用的后处理：按相似度降序排序并截断到上限。
// 截断是因为大班级的全量比较集可能超出存储承受范围。
func SortAndTruncate(result *model.PlagiarismResult, maxComparisons int) {
	sort.SliceStable(result.Comparisons, func(i, j int) bool {
		a, b := &result.Comparisons[i], &result.Comparisons[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		// 相同相似度时按提交 id 保持确定性顺序
		if a.SubmissionA.SubmissionID != b.SubmissionA.SubmissionID {
			return a.SubmissionA.SubmissionID < b.SubmissionA.SubmissionID
		}
		return a.SubmissionB.SubmissionID < b.SubmissionB.SubmissionID
	})
	if maxComparisons > 0 && len(result.Comparisons) > maxComparisons {
		result.Comparisons = result.Comparisons[:maxComparisons]
	}
}

// copySubmission 每个比较持有独立的提交副本，互不共享
func copySubmission(s *model.PlagiarismSubmission) model.PlagiarismSubmission {
	elements := make([]string, len(s.Elements))
	copy(elements, s.Elements)
	return model.PlagiarismSubmission{
		SubmissionID: s.SubmissionID,
		StudentLogin: s.StudentLogin,
		Size:         s.Size,
		Elements:     elements,
	}
}

func (e *ComparisonEngine) notifyProgress(exerciseID uint, message string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Warn("progress observer panicked", zap.Any("reason", r))
		}
	}()
	e.Observer.OnProgress(exerciseID, message)
}
