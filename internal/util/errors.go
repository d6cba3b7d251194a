package util

import "errors"

var (
	// ErrAlreadyRunning 同一课程已有进行中的查重，立即拒绝不排队
	ErrAlreadyRunning = errors.New("only one active plagiarism check per course allowed")
	// ErrInsufficientData 过滤后可比较的提交不足两份
	ErrInsufficientData = errors.New("insufficient amount of valid submissions available for comparison")
	ErrUnsupportedLanguage     = errors.New("programming language not supported for plagiarism check")
	ErrUnsupportedExerciseType = errors.New("exercise type not supported for plagiarism check")
	// ErrExternalTool 外部比对工具在去掉基准代码重试一次之后仍然失败
	ErrExternalTool  = errors.New("external comparison tool failed")
	ErrCaseNotFound  = errors.New("plagiarism case not found")
	ErrUserNotFound  = errors.New("用户不存在")
	ErrLoginFailed   = errors.New("invalid login or password")
	ErrInvalidStatus = errors.New("invalid comparison status")
)
