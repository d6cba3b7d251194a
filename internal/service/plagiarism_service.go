package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"plagiarism_backend/internal/config"
	"plagiarism_backend/internal/model"
	"plagiarism_backend/internal/util"
	"plagiarism_backend/pkg/logger"
	"plagiarism_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type exerciseSource interface {
	FindByID(id uint) (*model.Exercise, error)
	FindDetectionConfig(exerciseID uint) (*model.PlagiarismDetectionConfig, error)
	CreateDetectionConfig(cfg *model.PlagiarismDetectionConfig) error
}

type latestSubmissionSource interface {
	FindLatestByExercise(exerciseID uint, minimumScore int) ([]*model.Submission, error)
}

type resultStore interface {
	SaveReplacingPrevious(exerciseID uint, result *model.PlagiarismResult) error
	FindByExercise(exerciseID uint) (*model.PlagiarismResult, error)
}

type programmingChecker interface {
	Check(ctx context.Context, exercise *model.Exercise, detection *model.PlagiarismDetectionConfig) (*model.PlagiarismResult, error)
}

// PlagiarismService 按需检测的入口：按练习类型分派引擎，
// 用课程级互斥防止同一门课并发跑多轮，结果原子替换旧结果。
type PlagiarismService struct {
	Exercises   exerciseSource
	Submissions latestSubmissionSource
	Results     resultStore
	Guard       *PlagiarismCacheService
	Programming programmingChecker
	Config      config.PlagiarismConfig

	textEngine     *ComparisonEngine
	modelingEngine *ComparisonEngine
}

func NewPlagiarismService(
	exercises exerciseSource,
	submissions latestSubmissionSource,
	results resultStore,
	guard *PlagiarismCacheService,
	programming programmingChecker,
	observer ProgressObserver,
	cfg config.PlagiarismConfig,
) *PlagiarismService {
	return &PlagiarismService{
		Exercises:      exercises,
		Submissions:    submissions,
		Results:        results,
		Guard:          guard,
		Programming:    programming,
		Config:         cfg,
		textEngine:     NewComparisonEngine(NewTextComparator(), observer, cfg.Workers),
		modelingEngine: NewComparisonEngine(NewModelingComparator(), observer, cfg.Workers),
	}
}

// CheckExercise 对练习跑一轮检测并持久化结果。
// 同一门课已有检测在跑时立刻返回 ErrAlreadyRunning，不排队。
func (s *PlagiarismService) CheckExercise(ctx context.Context, exerciseID uint) (result *model.PlagiarismResult, err error) {
	exercise, err := s.Exercises.FindByID(exerciseID)
	if err != nil {
		return nil, err
	}

	if err := s.Guard.Acquire(ctx, exercise.CourseID); err != nil {
		return nil, err
	}
	// 释放不能跟着请求上下文走：调用方中途断开时检测会随 ctx 中止，
	// 但课程锁必须照常归还，否则课程要等 TTL 过期才能再跑检测
	defer s.Guard.Release(context.WithoutCancel(ctx), exercise.CourseID)

	started := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		monitoring.PlagiarismCheckCounter.WithLabelValues(string(exercise.Type), outcome).Inc()
		monitoring.PlagiarismCheckDuration.WithLabelValues(string(exercise.Type)).Observe(time.Since(started).Seconds())
	}()

	detection, err := s.detectionConfig(exercise)
	if err != nil {
		return nil, err
	}

	result, err = s.runCheck(ctx, exercise, detection)
	if err != nil {
		logger.Log.Warn("plagiarism check failed",
			zap.Uint("exerciseId", exerciseID),
			zap.String("type", string(exercise.Type)),
			zap.Error(err))
		return nil, err
	}

	SortAndTruncate(result, s.Config.MaxComparisons)
	if err = s.Results.SaveReplacingPrevious(exerciseID, result); err != nil {
		return nil, fmt.Errorf("persist result: %w", err)
	}

	logger.Log.Info("plagiarism check finished",
		zap.Uint("exerciseId", exerciseID),
		zap.String("type", string(exercise.Type)),
		zap.Int("comparisons", len(result.Comparisons)),
		zap.Int64("durationMillis", result.DurationMillis))
	return result, nil
}

func (s *PlagiarismService) runCheck(ctx context.Context, exercise *model.Exercise, detection *model.PlagiarismDetectionConfig) (*model.PlagiarismResult, error) {
	switch exercise.Type {
	case model.ExerciseText:
		return s.checkWithEngine(ctx, s.textEngine, exercise, detection, TokenizeText)
	case model.ExerciseModeling:
		return s.checkWithEngine(ctx, s.modelingEngine, exercise, detection, TokenizeModelElements)
	case model.ExerciseProgramming:
		return s.Programming.Check(ctx, exercise, detection)
	default:
		return nil, fmt.Errorf("%w: %s", util.ErrUnsupportedExerciseType, exercise.Type)
	}
}

// checkWithEngine 文本/建模共用路径：按参与方取最新提交、分词、O(n²) 配对
func (s *PlagiarismService) checkWithEngine(ctx context.Context, engine *ComparisonEngine, exercise *model.Exercise, detection *model.PlagiarismDetectionConfig, tokenize func(string) []string) (*model.PlagiarismResult, error) {
	submissions, err := s.Submissions.FindLatestByExercise(exercise.ID, detection.MinimumScore)
	if err != nil {
		return nil, fmt.Errorf("load submissions: %w", err)
	}

	candidates := make([]model.PlagiarismSubmission, 0, len(submissions))
	for _, sub := range submissions {
		elements := tokenize(sub.Content)
		candidates = append(candidates, model.PlagiarismSubmission{
			SubmissionID: sub.ID,
			StudentLogin: sub.Participation.Identity(),
			Size:         len(elements),
			Elements:     elements,
		})
	}

	if err := RequireMinimumCandidates(candidates, detection.MinimumSize); err != nil {
		return nil, err
	}
	return engine.Run(ctx, exercise.ID, candidates, detection.SimilarityThreshold, detection.MinimumSize)
}

// detectionConfig 旧练习缺配置时惰性补建默认配置
func (s *PlagiarismService) detectionConfig(exercise *model.Exercise) (*model.PlagiarismDetectionConfig, error) {
	if exercise.DetectionConfig != nil {
		return exercise.DetectionConfig, nil
	}
	detection, err := s.Exercises.FindDetectionConfig(exercise.ID)
	if err == nil {
		return detection, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	detection = model.DefaultDetectionConfig(exercise.ID)
	if err := s.Exercises.CreateDetectionConfig(detection); err != nil {
		return nil, fmt.Errorf("create default detection config: %w", err)
	}
	return detection, nil
}

// GetResult 练习的当前结果，没有时透传 gorm.ErrRecordNotFound
func (s *PlagiarismService) GetResult(exerciseID uint) (*model.PlagiarismResult, error) {
	return s.Results.FindByExercise(exerciseID)
}
