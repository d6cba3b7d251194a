package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"plagiarism_backend/internal/model"
	"plagiarism_backend/internal/util"
	"plagiarism_backend/pkg/logger"

	"go.uber.org/zap"
)

type continuousExerciseSource interface {
	FindForContinuousControl(now time.Time) ([]*model.Exercise, error)
}

type exerciseChecker interface {
	CheckExercise(ctx context.Context, exerciseID uint) (*model.PlagiarismResult, error)
}

type caseManager interface {
	ConfirmComparison(comparisonID uint, byContinuousControl, notify bool) error
	ReconcileContinuousControlCases(exerciseID uint) (int, error)
}

// ExerciseOutcome 一轮持续检测里单个练习的处理结果，调度器间只靠它交换状态
type ExerciseOutcome struct {
	ExerciseID   uint   `json:"exerciseId"`
	Title        string `json:"title"`
	Comparisons  int    `json:"comparisons"`
	CasesRemoved int    `json:"casesRemoved"`
	Skipped      bool   `json:"skipped"`
	Err          error  `json:"-"`
	ErrorMessage string `json:"error,omitempty"`
}

// ContinuousControlService 周期性对开了持续检测的练习跑检测，
// 自动确认命中的比较、通知学生，并回收新一轮不再支持的空案件。
// 练习之间互不影响：单个练习失败只记录在它自己的 outcome 里。
type ContinuousControlService struct {
	Exercises continuousExerciseSource
	Checker   exerciseChecker
	Cases     caseManager
	Results   resultPurger
	Interval  time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewContinuousControlService(
	exercises continuousExerciseSource,
	checker exerciseChecker,
	cases caseManager,
	results resultPurger,
	interval time.Duration,
) *ContinuousControlService {
	return &ContinuousControlService{
		Exercises: exercises,
		Checker:   checker,
		Cases:     cases,
		Results:   results,
		Interval:  interval,
		stop:      make(chan struct{}),
	}
}

// RunOnce 跑一整轮持续检测，返回每个练习的处理结果
func (s *ContinuousControlService) RunOnce(ctx context.Context) []ExerciseOutcome {
	exercises, err := s.Exercises.FindForContinuousControl(time.Now())
	if err != nil {
		logger.Log.Error("load continuous control exercises", zap.Error(err))
		return nil
	}

	outcomes := make([]ExerciseOutcome, 0, len(exercises))
	for _, exercise := range exercises {
		outcomes = append(outcomes, s.processExercise(ctx, exercise))
	}
	return outcomes
}

func (s *ContinuousControlService) processExercise(ctx context.Context, exercise *model.Exercise) ExerciseOutcome {
	outcome := ExerciseOutcome{ExerciseID: exercise.ID, Title: exercise.Title}

	// 测验和文件上传类练习没有可比对的内容，静默跳过
	if exercise.Type == model.ExerciseQuiz || exercise.Type == model.ExerciseFileUpload {
		outcome.Skipped = true
		return outcome
	}

	result, err := s.Checker.CheckExercise(ctx, exercise.ID)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrAlreadyRunning):
			// 这门课正有手工检测在跑，本轮让路，不动它的结果
			outcome.Skipped = true
			logger.Log.Info("continuous control skipped, check already running",
				zap.Uint("exerciseId", exercise.ID))
		case errors.Is(err, util.ErrInsufficientData):
			outcome.Skipped = true
			logger.Log.Info("continuous control skipped, not enough submissions",
				zap.Uint("exerciseId", exercise.ID))
		default:
			outcome.Err = err
			outcome.ErrorMessage = err.Error()
			logger.Log.Error("continuous control check failed",
				zap.Uint("exerciseId", exercise.ID),
				zap.String("title", exercise.Title),
				zap.Error(err))
			// 失败练习的过期结果一并清掉，避免教师看到上一轮的旧数据
			if purgeErr := s.Results.DeleteByExercise(exercise.ID); purgeErr != nil {
				logger.Log.Error("purge result after continuous control failure",
					zap.Uint("exerciseId", exercise.ID), zap.Error(purgeErr))
			}
		}
		return outcome
	}

	outcome.Comparisons = len(result.Comparisons)
	for _, comparison := range result.Comparisons {
		// 确认和通知都按学生粒度容错，单个学生出错不中断整轮
		if err := s.Cases.ConfirmComparison(comparison.ID, true, true); err != nil {
			logger.Log.Error("continuous control confirm failed",
				zap.Uint("exerciseId", exercise.ID),
				zap.Uint("comparisonId", comparison.ID),
				zap.Error(err))
		}
	}

	removed, err := s.Cases.ReconcileContinuousControlCases(exercise.ID)
	if err != nil {
		logger.Log.Error("continuous control case reconciliation failed",
			zap.Uint("exerciseId", exercise.ID), zap.Error(err))
	}
	outcome.CasesRemoved = removed
	return outcome
}

// Start 启动周期调度循环
func (s *ContinuousControlService) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		logger.Log.Info("continuous plagiarism control started",
			zap.Duration("interval", s.Interval))
		for {
			select {
			case <-ticker.C:
				outcomes := s.RunOnce(ctx)
				s.logRound(outcomes)
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *ContinuousControlService) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *ContinuousControlService) logRound(outcomes []ExerciseOutcome) {
	checked, skipped, failed := 0, 0, 0
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			failed++
		case o.Skipped:
			skipped++
		default:
			checked++
		}
	}
	logger.Log.Info("continuous plagiarism control round finished",
		zap.Int("checked", checked),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed))
}
