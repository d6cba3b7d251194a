package service

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"plagiarism_backend/internal/config"
	"plagiarism_backend/internal/model"
	"plagiarism_backend/internal/util"
	"plagiarism_backend/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// GitClient 拉取学生仓库工作副本的边界，默认实现走系统 git
type GitClient interface {
	FetchWorkingCopy(ctx context.Context, repositoryURI, targetDir string) error
}

// ExecGitClient 调用系统 git 做浅克隆
type ExecGitClient struct{}

func (ExecGitClient) FetchWorkingCopy(ctx context.Context, repositoryURI, targetDir string) error {
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", repositoryURI, targetDir)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git clone %s: %w: %s", repositoryURI, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// ToolOptions 外部结构比对工具的一次调用参数
type ToolOptions struct {
	Language            model.ProgrammingLanguage
	RootDir             string  // 包含每个参与方一个子目录
	BaseCodeDir         string  // 模板代码目录，空表示不剔除模板
	SimilarityThreshold float64 // 0-100
}

// ToolComparison 工具输出的一条配对结果，Identity 对应 RootDir 下的子目录名
type ToolComparison struct {
	IdentityA  string                  `json:"identityA"`
	IdentityB  string                  `json:"identityB"`
	Similarity float64                 `json:"similarity"` // 0-100
	SizeA      int                     `json:"sizeA"`
	SizeB      int                     `json:"sizeB"`
	Matches    []model.PlagiarismMatch `json:"matches"`
}

// ExternalComparator 外部比对工具的边界。
// 返回配对结果和报告产物路径；报告由调用方负责上传与延迟删除。
type ExternalComparator interface {
	Run(ctx context.Context, opts ToolOptions) ([]ToolComparison, string, error)
}

// ExecComparator 以子进程方式运行配置的比对命令。
// 约定：命令在 RootDir 下生成 result.json（配对列表）和 report.zip（归档报告）。
type ExecComparator struct {
	Command string
}

func (c *ExecComparator) Run(ctx context.Context, opts ToolOptions) ([]ToolComparison, string, error) {
	args := []string{
		"--language", string(opts.Language),
		"--root", opts.RootDir,
		"--similarity-threshold", strconv.FormatFloat(opts.SimilarityThreshold, 'f', 2, 64),
	}
	if opts.BaseCodeDir != "" {
		args = append(args, "--base-code", opts.BaseCodeDir)
	}

	cmd := exec.CommandContext(ctx, c.Command, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, "", fmt.Errorf("%s: %w: %s", c.Command, err, strings.TrimSpace(string(out)))
	}

	raw, err := os.ReadFile(filepath.Join(opts.RootDir, "result.json"))
	if err != nil {
		return nil, "", fmt.Errorf("read tool result: %w", err)
	}
	var comparisons []ToolComparison
	if err := json.Unmarshal(raw, &comparisons); err != nil {
		return nil, "", fmt.Errorf("decode tool result: %w", err)
	}

	reportPath := filepath.Join(opts.RootDir, "report.zip")
	if _, err := os.Stat(reportPath); err != nil {
		reportPath = ""
	}
	return comparisons, reportPath, nil
}

type reportUploader interface {
	UploadReport(ctx context.Context, exerciseID uint, reportPath string) (string, error)
}

type resultPurger interface {
	DeleteByExercise(exerciseID uint) error
}

type participationSource interface {
	FindEligibleParticipations(exerciseID uint, minimumScore int) ([]*model.Participation, error)
	LatestSubmissionID(participationID uint) (uint, error)
}

// ProgrammingDetectionService 编译型练习的查重：下载工作副本、
// 最小规模过滤、外部工具比对、报告归档与延迟清理
type ProgrammingDetectionService struct {
	Participations participationSource
	Results        resultPurger
	Git            GitClient
	Tool           ExternalComparator
	Cleanup        *CleanupService
	Reports        reportUploader // 可为 nil，报告只留在本地
	Observer       ProgressObserver
	Config         config.PlagiarismConfig
}

func NewProgrammingDetectionService(
	participations participationSource,
	results resultPurger,
	git GitClient,
	tool ExternalComparator,
	cleanup *CleanupService,
	reports reportUploader,
	observer ProgressObserver,
	cfg config.PlagiarismConfig,
) *ProgrammingDetectionService {
	if git == nil {
		git = ExecGitClient{}
	}
	if tool == nil {
		tool = &ExecComparator{Command: cfg.ToolCommand}
	}
	if observer == nil {
		observer = NoopProgressObserver{}
	}
	return &ProgrammingDetectionService{
		Participations: participations,
		Results:        results,
		Git:            git,
		Tool:           tool,
		Cleanup:        cleanup,
		Reports:        reports,
		Observer:       observer,
		Config:         cfg,
	}
}

type workingCopy struct {
	participation *model.Participation
	dir           string
}

// Check 对一个编程练习跑一轮完整检测。
// 工作目录无论成功失败都会进入延迟删除队列。
func (s *ProgrammingDetectionService) Check(ctx context.Context, exercise *model.Exercise, detection *model.PlagiarismDetectionConfig) (*model.PlagiarismResult, error) {
	started := time.Now()

	if !exercise.ProgrammingLanguage.SupportsPlagiarismCheck() {
		return nil, fmt.Errorf("%w: %s", util.ErrUnsupportedLanguage, exercise.ProgrammingLanguage)
	}

	participations, err := s.Participations.FindEligibleParticipations(exercise.ID, detection.MinimumScore)
	if err != nil {
		return nil, fmt.Errorf("load participations: %w", err)
	}
	if len(participations) < 2 {
		return nil, util.ErrInsufficientData
	}

	rootDir := filepath.Join(s.Config.ClonePath, fmt.Sprintf("%d-%s", exercise.ID, uuid.NewString()))
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("create working dir: %w", err)
	}
	cleanupDelay := time.Duration(s.Config.CleanupDelayMinutes) * time.Minute
	defer s.Cleanup.Schedule(rootDir, cleanupDelay)

	copies := s.downloadWorkingCopies(ctx, exercise.ID, participations, rootDir)
	copies = s.filterByMinimumSize(copies, exercise.ProgrammingLanguage, detection.MinimumSize)
	if len(copies) < 2 {
		return nil, util.ErrInsufficientData
	}

	baseCodeDir := s.fetchTemplate(ctx, exercise, rootDir)

	toolComparisons, reportPath, err := s.runTool(ctx, exercise, rootDir, baseCodeDir, detection.SimilarityThreshold)
	if err != nil {
		// 失败轮次不能留下过期结果误导教师
		if purgeErr := s.Results.DeleteByExercise(exercise.ID); purgeErr != nil {
			logger.Log.Error("purge stale result after tool failure",
				zap.Uint("exerciseId", exercise.ID), zap.Error(purgeErr))
		}
		return nil, fmt.Errorf("%w: %v", util.ErrExternalTool, err)
	}

	if reportPath != "" {
		s.archiveReport(ctx, exercise.ID, reportPath, cleanupDelay)
	}

	result, err := s.buildResult(exercise.ID, copies, toolComparisons, detection.SimilarityThreshold)
	if err != nil {
		return nil, err
	}
	result.DurationMillis = time.Since(started).Milliseconds()
	return result, nil
}

// downloadWorkingCopies 并行拉取仓库，单个失败只记日志并剔除该参与方
func (s *ProgrammingDetectionService) downloadWorkingCopies(ctx context.Context, exerciseID uint, participations []*model.Participation, rootDir string) []workingCopy {
	var (
		mu     sync.Mutex
		copies []workingCopy
		done   int
	)
	total := len(participations)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Config.Workers)
	for _, p := range participations {
		p := p
		g.Go(func() error {
			dir := filepath.Join(rootDir, p.Identity())
			err := s.Git.FetchWorkingCopy(gctx, p.RepositoryURI, dir)

			mu.Lock()
			defer mu.Unlock()
			done++
			s.Observer.OnProgress(exerciseID, fmt.Sprintf("Downloading repositories: %d/%d", done, total))
			if err != nil {
				logger.Log.Warn("repository download failed, excluding participant",
					zap.Uint("exerciseId", exerciseID),
					zap.String("identity", p.Identity()),
					zap.Error(err))
				return nil
			}
			copies = append(copies, workingCopy{participation: p, dir: dir})
			return nil
		})
	}
	g.Wait()
	return copies
}

// filterByMinimumSize 剔除 token 数低于阈值的工作副本；
// 统计出错时按"足够大"处理，宁可多比较也不漏掉嫌疑
func (s *ProgrammingDetectionService) filterByMinimumSize(copies []workingCopy, lang model.ProgrammingLanguage, minimumSize int) []workingCopy {
	if minimumSize <= 0 {
		return copies
	}
	kept := copies[:0]
	for _, c := range copies {
		if meetsMinimumSize(c.dir, lang, minimumSize) {
			kept = append(kept, c)
		}
	}
	return kept
}

func meetsMinimumSize(dir string, lang model.ProgrammingLanguage, minimumSize int) bool {
	extensions := lang.FileExtensions()
	tokens := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		matched := false
		for _, ext := range extensions {
			if strings.HasSuffix(path, ext) {
				matched = true
				break
			}
		}
		if !matched {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		scanner.Split(bufio.ScanWords)
		for scanner.Scan() {
			tokens++
			if tokens >= minimumSize {
				return filepath.SkipAll
			}
		}
		return scanner.Err()
	})
	if err != nil && err != filepath.SkipAll {
		// 读不了就当够大，错误不应把学生排除在检测之外
		return true
	}
	return tokens >= minimumSize
}

func (s *ProgrammingDetectionService) fetchTemplate(ctx context.Context, exercise *model.Exercise, rootDir string) string {
	if exercise.TemplateRepositoryURI == "" {
		return ""
	}
	dir := filepath.Join(rootDir, "template-base-code")
	if err := s.Git.FetchWorkingCopy(ctx, exercise.TemplateRepositoryURI, dir); err != nil {
		logger.Log.Warn("template repository download failed, running without base code",
			zap.Uint("exerciseId", exercise.ID), zap.Error(err))
		return ""
	}
	return dir
}

// runTool 带超时运行外部工具；带模板剔除失败时退一步不剔除重试一次
func (s *ProgrammingDetectionService) runTool(ctx context.Context, exercise *model.Exercise, rootDir, baseCodeDir string, threshold float64) ([]ToolComparison, string, error) {
	toolCtx, cancel := context.WithTimeout(ctx, s.Config.ToolTimeout)
	defer cancel()

	opts := ToolOptions{
		Language:            exercise.ProgrammingLanguage,
		RootDir:             rootDir,
		BaseCodeDir:         baseCodeDir,
		SimilarityThreshold: threshold,
	}
	comparisons, reportPath, err := s.Tool.Run(toolCtx, opts)
	if err == nil || baseCodeDir == "" {
		return comparisons, reportPath, err
	}

	logger.Log.Warn("comparison tool failed with base code, retrying without",
		zap.Uint("exerciseId", exercise.ID), zap.Error(err))
	opts.BaseCodeDir = ""
	return s.Tool.Run(toolCtx, opts)
}

func (s *ProgrammingDetectionService) archiveReport(ctx context.Context, exerciseID uint, reportPath string, delay time.Duration) {
	if s.Reports != nil {
		if location, err := s.Reports.UploadReport(ctx, exerciseID, reportPath); err != nil {
			logger.Log.Warn("report upload failed, report stays local until cleanup",
				zap.Uint("exerciseId", exerciseID), zap.Error(err))
		} else {
			logger.Log.Info("plagiarism report archived",
				zap.Uint("exerciseId", exerciseID), zap.String("location", location))
		}
	}
	s.Cleanup.Schedule(reportPath, delay)
}

// buildResult 把工具输出映射回提交快照并套用相似度硬过滤
func (s *ProgrammingDetectionService) buildResult(exerciseID uint, copies []workingCopy, toolComparisons []ToolComparison, threshold float64) (*model.PlagiarismResult, error) {
	submissionIDs := make(map[string]uint, len(copies))
	for _, c := range copies {
		id, err := s.Participations.LatestSubmissionID(c.participation.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve latest submission for %s: %w", c.participation.Identity(), err)
		}
		submissionIDs[c.participation.Identity()] = id
	}

	var comparisons []model.PlagiarismComparison
	for _, tc := range toolComparisons {
		if tc.Similarity < threshold {
			continue
		}
		if tc.IdentityA == tc.IdentityB {
			continue
		}
		// 工具有时会把工作目录里的杂项目录也配对上，映射不回提交的一律丢弃
		if _, ok := submissionIDs[tc.IdentityA]; !ok {
			logger.Log.Warn("tool comparison references unknown identity, dropping",
				zap.Uint("exerciseId", exerciseID), zap.String("identity", tc.IdentityA))
			continue
		}
		if _, ok := submissionIDs[tc.IdentityB]; !ok {
			logger.Log.Warn("tool comparison references unknown identity, dropping",
				zap.Uint("exerciseId", exerciseID), zap.String("identity", tc.IdentityB))
			continue
		}
		comparisons = append(comparisons, model.PlagiarismComparison{
			SubmissionA: model.PlagiarismSubmission{
				SubmissionID: submissionIDs[tc.IdentityA],
				StudentLogin: tc.IdentityA,
				Size:         tc.SizeA,
			},
			SubmissionB: model.PlagiarismSubmission{
				SubmissionID: submissionIDs[tc.IdentityB],
				StudentLogin: tc.IdentityB,
				Size:         tc.SizeB,
			},
			Similarity: tc.Similarity,
			Matches:    tc.Matches,
			Status:     model.StatusNone,
		})
	}

	return &model.PlagiarismResult{
		ExerciseID:             exerciseID,
		Comparisons:            comparisons,
		SimilarityDistribution: model.ComputeHistogram(comparisons),
	}, nil
}
