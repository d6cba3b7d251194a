package service

import (
	"fmt"

	"plagiarism_backend/internal/model"
	"plagiarism_backend/pkg/logger"

	"go.uber.org/zap"
)

// Mailer 通知投递协作方的边界。投递失败绝不向上冒泡，只记日志。
type Mailer interface {
	Notify(plagiarismCase *model.PlagiarismCase, student *model.User) error
	NotifyVerdict(plagiarismCase *model.PlagiarismCase, student *model.User) error
}

// NoopMailer 默认空实现，邮件子系统未配置时使用
type NoopMailer struct{}

func (NoopMailer) Notify(*model.PlagiarismCase, *model.User) error        { return nil }
func (NoopMailer) NotifyVerdict(*model.PlagiarismCase, *model.User) error { return nil }

type postAttacher interface {
	AttachPost(caseID uint, post *model.Post) error
}

// NotificationService 负责构造学生可见的案件通知帖并触发邮件投递
type NotificationService struct {
	Cases     postAttacher
	Mailer    Mailer
	PolicyURL string
}

func NewNotificationService(cases postAttacher, mailer Mailer, policyURL string) *NotificationService {
	if mailer == nil {
		mailer = NoopMailer{}
	}
	return &NotificationService{Cases: cases, Mailer: mailer, PolicyURL: policyURL}
}

// NotifyCase 给学生挂通知帖并投递邮件。
// 帖子按学生语言偏好本地化，引用课程/练习标题和固定的学术诚信条例链接。
// 案件已有通知帖时不再重复挂帖（通知状态单向），但邮件仍会补发。
// 邮件失败只记日志，挂帖的持久化失败返回给调用方决定如何隔离。
func (s *NotificationService) NotifyCase(plagiarismCase *model.PlagiarismCase, student *model.User) error {
	post := s.BuildCasePost(plagiarismCase, student)
	if err := s.Cases.AttachPost(plagiarismCase.ID, post); err != nil {
		return fmt.Errorf("attach post to case %d: %w", plagiarismCase.ID, err)
	}

	if err := s.Mailer.Notify(plagiarismCase, student); err != nil {
		logger.Log.Warn("plagiarism case mail delivery failed",
			zap.Uint("caseId", plagiarismCase.ID),
			zap.String("student", student.Login),
			zap.Error(err))
	}
	return nil
}

// NotifyVerdict 裁定更新永远触发一次学生通知，与案件是否已通知过无关
func (s *NotificationService) NotifyVerdict(plagiarismCase *model.PlagiarismCase, student *model.User) {
	if err := s.Mailer.NotifyVerdict(plagiarismCase, student); err != nil {
		logger.Log.Warn("plagiarism verdict mail delivery failed",
			zap.Uint("caseId", plagiarismCase.ID),
			zap.String("student", student.Login),
			zap.Error(err))
	}
}

// BuildCasePost 按学生语言生成通知帖
func (s *NotificationService) BuildCasePost(plagiarismCase *model.PlagiarismCase, student *model.User) *model.Post {
	courseTitle := ""
	exerciseTitle := ""
	if plagiarismCase.Exercise != nil {
		exerciseTitle = plagiarismCase.Exercise.Title
		if plagiarismCase.Exercise.Course != nil {
			courseTitle = plagiarismCase.Exercise.Course.Title
		}
	}

	lang := student.Language
	var title, content string
	switch lang {
	case "zh":
		title = fmt.Sprintf("关于课程《%s》练习《%s》的相似度审查", courseTitle, exerciseTitle)
		content = fmt.Sprintf(
			"你在课程《%s》练习《%s》中的提交与其他提交存在显著相似，已立案审查。\n"+
				"在裁定作出前你可以提交说明。学术诚信条例：%s",
			courseTitle, exerciseTitle, s.PolicyURL)
	default:
		lang = "en"
		title = fmt.Sprintf("Plagiarism review for exercise %q in course %q", exerciseTitle, courseTitle)
		content = fmt.Sprintf(
			"Your submission for exercise %q in course %q shows significant similarity "+
				"to other submissions and is under review.\n"+
				"You may submit a statement before a verdict is reached. Code of conduct: %s",
			exerciseTitle, courseTitle, s.PolicyURL)
	}

	return &model.Post{
		Title:          title,
		Content:        content,
		RecipientLogin: student.Login,
		Language:       lang,
	}
}
