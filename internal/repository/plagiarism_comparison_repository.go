package repository

import (
	"plagiarism_backend/internal/model"

	"gorm.io/gorm"
)

type PlagiarismComparisonRepository struct {
	DB *gorm.DB
}

func NewPlagiarismComparisonRepository(db *gorm.DB) *PlagiarismComparisonRepository {
	return &PlagiarismComparisonRepository{DB: db}
}

func (r *PlagiarismComparisonRepository) FindByIDWithSubmissions(id uint) (*model.PlagiarismComparison, error) {
	var comparison model.PlagiarismComparison
	err := r.DB.
		Preload("SubmissionA").
		Preload("SubmissionB").
		First(&comparison, id).Error
	if err != nil {
		return nil, err
	}
	return &comparison, nil
}

func (r *PlagiarismComparisonRepository) UpdateStatus(id uint, status model.PlagiarismStatus) error {
	return r.DB.Model(&model.PlagiarismComparison{}).
		Where("id = ?", id).
		Update("status", status).
		Error
}

// UpdateSubmissionCaseID 定向更新提交快照的归属案件外键。
// 刻意不走整实体 Save，避免级联写波及无关关联。
func (r *PlagiarismComparisonRepository) UpdateSubmissionCaseID(submissionID uint, caseID *uint) error {
	return r.DB.Model(&model.PlagiarismSubmission{}).
		Where("id = ?", submissionID).
		Update("case_id", caseID).
		Error
}

// ExerciseID 通过所属结果反查比较所在的练习
func (r *PlagiarismComparisonRepository) ExerciseID(comparisonID uint) (uint, error) {
	var exerciseID uint
	err := r.DB.Model(&model.PlagiarismComparison{}).
		Select("pr.exercise_id").
		Joins("JOIN plagiarism_results pr ON pr.id = plagiarism_comparisons.result_id").
		Where("plagiarism_comparisons.id = ?", comparisonID).
		Scan(&exerciseID).
		Error
	if err != nil {
		return 0, err
	}
	if exerciseID == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return exerciseID, nil
}

// FindConfirmedByExercise 练习下所有已确认的比较（跨历史结果）
func (r *PlagiarismComparisonRepository) FindConfirmedByExercise(exerciseID uint) ([]*model.PlagiarismComparison, error) {
	var comparisons []*model.PlagiarismComparison
	err := r.DB.
		Joins("JOIN plagiarism_results pr ON pr.id = plagiarism_comparisons.result_id").
		Where("pr.exercise_id = ? AND plagiarism_comparisons.status = ?", exerciseID, model.StatusConfirmed).
		Preload("SubmissionA").
		Preload("SubmissionB").
		Find(&comparisons).Error
	return comparisons, err
}
