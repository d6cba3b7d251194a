package service

import (
	"errors"
	"fmt"
	"time"

	"plagiarism_backend/internal/model"
	"plagiarism_backend/internal/util"
	"plagiarism_backend/pkg/logger"
	"plagiarism_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 数据访问以窄接口注入，具体实现是 repository 包的结构体；测试用进程内假实现
type caseStore interface {
	Create(c *model.PlagiarismCase) error
	Save(c *model.PlagiarismCase) error
	FindByID(id uint) (*model.PlagiarismCase, error)
	FindByStudentAndExercise(studentLogin string, exerciseID uint) (*model.PlagiarismCase, error)
	Delete(id uint) error
	CountSubmissions(caseID uint) (int64, error)
	FindEmptyContinuousControlCases(exerciseID uint) ([]*model.PlagiarismCase, error)
}

type comparisonStore interface {
	FindByIDWithSubmissions(id uint) (*model.PlagiarismComparison, error)
	UpdateStatus(id uint, status model.PlagiarismStatus) error
	UpdateSubmissionCaseID(submissionID uint, caseID *uint) error
	ExerciseID(comparisonID uint) (uint, error)
}

type userFinder interface {
	FindByLogin(login string) (*model.User, error)
}

// CaseInfo 学生端可见的案件元数据
type CaseInfo struct {
	ID                         uint                    `json:"id"`
	Verdict                    model.PlagiarismVerdict `json:"verdict"`
	CreatedByContinuousControl bool                    `json:"createdByContinuousControl"`
}

// CaseService 维护 (学生, 练习) 级的查重案件及其确认/否认状态机
type CaseService struct {
	Cases        caseStore
	Comparisons  comparisonStore
	Users        userFinder
	Notification *NotificationService
}

func NewCaseService(cases caseStore, comparisons comparisonStore, users userFinder, notification *NotificationService) *CaseService {
	return &CaseService{
		Cases:        cases,
		Comparisons:  comparisons,
		Users:        users,
		Notification: notification,
	}
}

// ConfirmComparison NONE→CONFIRMED。
// 对比较双方各自查找或创建 (学生, 练习) 案件，并把提交快照定向重指到案件上；
// 重复确认同一比较不会产生重复案件或重复成员。
// 团队提交解析不出单个学生时跳过建案，但比较本身仍然置为已确认。
// notify 为 true 时对新建案件立即发学生通知（教师手工确认路径）。
func (s *CaseService) ConfirmComparison(comparisonID uint, byContinuousControl, notify bool) error {
	comparison, err := s.Comparisons.FindByIDWithSubmissions(comparisonID)
	if err != nil {
		return fmt.Errorf("load comparison %d: %w", comparisonID, err)
	}
	exerciseID, err := s.Comparisons.ExerciseID(comparisonID)
	if err != nil {
		return fmt.Errorf("resolve exercise for comparison %d: %w", comparisonID, err)
	}

	if err := s.Comparisons.UpdateStatus(comparisonID, model.StatusConfirmed); err != nil {
		return fmt.Errorf("confirm comparison %d: %w", comparisonID, err)
	}

	for _, submission := range []*model.PlagiarismSubmission{&comparison.SubmissionA, &comparison.SubmissionB} {
		if err := s.assignToCase(submission, exerciseID, byContinuousControl, notify); err != nil {
			return err
		}
	}
	return nil
}

func (s *CaseService) assignToCase(submission *model.PlagiarismSubmission, exerciseID uint, byContinuousControl, notify bool) error {
	student, err := s.Users.FindByLogin(submission.StudentLogin)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 团队标识或已删除账号：置为已确认但不建案
			logger.Log.Info("no resolvable student for plagiarism submission, skipping case",
				zap.String("login", submission.StudentLogin))
			return nil
		}
		return fmt.Errorf("resolve student %q: %w", submission.StudentLogin, err)
	}

	plagiarismCase, err := s.Cases.FindByStudentAndExercise(student.Login, exerciseID)
	created := false
	if errors.Is(err, gorm.ErrRecordNotFound) {
		plagiarismCase = &model.PlagiarismCase{
			StudentLogin:               student.Login,
			ExerciseID:                 exerciseID,
			CreatedByContinuousControl: byContinuousControl,
		}
		if err := s.Cases.Create(plagiarismCase); err != nil {
			return fmt.Errorf("create case for %q: %w", student.Login, err)
		}
		monitoring.PlagiarismCasesCreated.Inc()
		created = true
	} else if err != nil {
		return fmt.Errorf("find case for %q: %w", student.Login, err)
	}

	// 定向更新外键，不做整实体重存，避免级联删除无关关联
	if err := s.Comparisons.UpdateSubmissionCaseID(submission.ID, &plagiarismCase.ID); err != nil {
		return fmt.Errorf("assign submission %d to case %d: %w", submission.ID, plagiarismCase.ID, err)
	}

	if created && notify {
		full, err := s.Cases.FindByID(plagiarismCase.ID)
		if err != nil {
			return fmt.Errorf("reload case %d: %w", plagiarismCase.ID, err)
		}
		if err := s.Notification.NotifyCase(full, student); err != nil {
			logger.Log.Warn("case notification failed", zap.Uint("caseId", full.ID), zap.Error(err))
		}
	}
	return nil
}

// DenyComparison NONE→DENIED（或撤销确认）。
// 把双方提交从各自案件上摘下；摘下后案件不再引用任何提交时当场删除该案件。
func (s *CaseService) DenyComparison(comparisonID uint) error {
	comparison, err := s.Comparisons.FindByIDWithSubmissions(comparisonID)
	if err != nil {
		return fmt.Errorf("load comparison %d: %w", comparisonID, err)
	}

	if err := s.Comparisons.UpdateStatus(comparisonID, model.StatusDenied); err != nil {
		return fmt.Errorf("deny comparison %d: %w", comparisonID, err)
	}

	for _, submission := range []*model.PlagiarismSubmission{&comparison.SubmissionA, &comparison.SubmissionB} {
		if submission.CaseID == nil {
			continue
		}
		caseID := *submission.CaseID
		if err := s.Comparisons.UpdateSubmissionCaseID(submission.ID, nil); err != nil {
			return fmt.Errorf("detach submission %d: %w", submission.ID, err)
		}
		count, err := s.Cases.CountSubmissions(caseID)
		if err != nil {
			return fmt.Errorf("count submissions of case %d: %w", caseID, err)
		}
		if count == 0 {
			if err := s.Cases.Delete(caseID); err != nil {
				return fmt.Errorf("delete empty case %d: %w", caseID, err)
			}
			logger.Log.Info("deleted plagiarism case with no remaining submissions",
				zap.Uint("caseId", caseID))
		}
	}
	return nil
}

// UpdateStatus 状态机入口，教师端确认/否认都走这里
func (s *CaseService) UpdateStatus(comparisonID uint, status model.PlagiarismStatus) error {
	switch status {
	case model.StatusConfirmed:
		return s.ConfirmComparison(comparisonID, false, true)
	case model.StatusDenied:
		return s.DenyComparison(comparisonID)
	default:
		return util.ErrInvalidStatus
	}
}

// UpdateVerdict 记录教师裁定。与比较的确认状态无关，且永远触发学生通知——
// 裁定可以发生在学生得知案件存在之前或之后。
func (s *CaseService) UpdateVerdict(caseID uint, verdict model.PlagiarismVerdict, pointDeduction int, message string, verdictByID uint) (*model.PlagiarismCase, error) {
	switch verdict {
	case model.VerdictPointDeduction, model.VerdictWarning, model.VerdictPlagiarism, model.VerdictNoPlagiarism:
	default:
		return nil, fmt.Errorf("unknown verdict %q", verdict)
	}

	plagiarismCase, err := s.Cases.FindByID(caseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrCaseNotFound
		}
		return nil, err
	}

	now := time.Now()
	plagiarismCase.Verdict = verdict
	plagiarismCase.VerdictPointDeduction = 0
	plagiarismCase.VerdictMessage = ""
	if verdict == model.VerdictPointDeduction {
		plagiarismCase.VerdictPointDeduction = pointDeduction
	}
	if verdict == model.VerdictWarning {
		plagiarismCase.VerdictMessage = message
	}
	plagiarismCase.VerdictDate = &now
	plagiarismCase.VerdictByID = &verdictByID

	if err := s.Cases.Save(plagiarismCase); err != nil {
		return nil, fmt.Errorf("save verdict on case %d: %w", caseID, err)
	}

	if student, err := s.Users.FindByLogin(plagiarismCase.StudentLogin); err == nil {
		s.Notification.NotifyVerdict(plagiarismCase, student)
	}
	return plagiarismCase, nil
}

// GetCaseInfoForStudent 只有学生已被通知（案件挂了通知帖）才返回案件元数据，
// 避免通过无关端点泄露尚未公开的嫌疑。
func (s *CaseService) GetCaseInfoForStudent(exerciseID uint, studentLogin string) (*CaseInfo, error) {
	plagiarismCase, err := s.Cases.FindByStudentAndExercise(studentLogin, exerciseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrCaseNotFound
		}
		return nil, err
	}
	if !plagiarismCase.Notified() {
		return nil, util.ErrCaseNotFound
	}
	return &CaseInfo{
		ID:                         plagiarismCase.ID,
		Verdict:                    plagiarismCase.Verdict,
		CreatedByContinuousControl: plagiarismCase.CreatedByContinuousControl,
	}, nil
}

// ReconcileContinuousControlCases 持续检测案件是"活"的：
// 新一轮比较不再支持的空案件在每轮处理后删除。
func (s *CaseService) ReconcileContinuousControlCases(exerciseID uint) (int, error) {
	empty, err := s.Cases.FindEmptyContinuousControlCases(exerciseID)
	if err != nil {
		return 0, fmt.Errorf("find empty continuous control cases: %w", err)
	}
	deleted := 0
	for _, c := range empty {
		if err := s.Cases.Delete(c.ID); err != nil {
			logger.Log.Error("delete stale continuous control case failed",
				zap.Uint("caseId", c.ID), zap.Error(err))
			continue
		}
		deleted++
	}
	return deleted, nil
}
