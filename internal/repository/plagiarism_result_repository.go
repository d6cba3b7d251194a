package repository

import (
	"plagiarism_backend/internal/model"

	"gorm.io/gorm"
)

// PlagiarismResultRepository 维护"每个练习只保留最新结果"的持久化契约
type PlagiarismResultRepository struct {
	DB *gorm.DB
}

func NewPlagiarismResultRepository(db *gorm.DB) *PlagiarismResultRepository {
	return &PlagiarismResultRepository{DB: db}
}

// SaveReplacingPrevious 原子替换练习的查重结果：旧结果连同其比较和提交快照
// 在同一事务内删除，读取方不会看到半替换状态。
// 已挂到案件上的提交快照不删除，案件聚合的是历史上所有确认过的比较。
func (r *PlagiarismResultRepository) SaveReplacingPrevious(exerciseID uint, result *model.PlagiarismResult) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var previous []model.PlagiarismResult
		if err := tx.Where("exercise_id = ?", exerciseID).Find(&previous).Error; err != nil {
			return err
		}
		for i := range previous {
			if err := deleteResultCascade(tx, previous[i].ID); err != nil {
				return err
			}
		}
		result.ExerciseID = exerciseID
		return tx.Create(result).Error
	})
}

func (r *PlagiarismResultRepository) FindByExercise(exerciseID uint) (*model.PlagiarismResult, error) {
	var result model.PlagiarismResult
	err := r.DB.
		Preload("Comparisons").
		Preload("Comparisons.SubmissionA").
		Preload("Comparisons.SubmissionB").
		Where("exercise_id = ?", exerciseID).
		First(&result).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteByExercise 清掉练习的结果，失败的检测不允许留下半写的数据
func (r *PlagiarismResultRepository) DeleteByExercise(exerciseID uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var results []model.PlagiarismResult
		if err := tx.Where("exercise_id = ?", exerciseID).Find(&results).Error; err != nil {
			return err
		}
		for i := range results {
			if err := deleteResultCascade(tx, results[i].ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// deleteResultCascade 结果独占其比较；比较引用的提交快照仅在未被案件引用时删除
func deleteResultCascade(tx *gorm.DB, resultID uint) error {
	var comparisons []model.PlagiarismComparison
	if err := tx.Where("result_id = ?", resultID).Find(&comparisons).Error; err != nil {
		return err
	}
	for i := range comparisons {
		c := &comparisons[i]
		for _, sid := range []uint{c.SubmissionAID, c.SubmissionBID} {
			if err := tx.Where("id = ? AND case_id IS NULL", sid).
				Delete(&model.PlagiarismSubmission{}).Error; err != nil {
				return err
			}
		}
	}
	if err := tx.Where("result_id = ?", resultID).
		Delete(&model.PlagiarismComparison{}).Error; err != nil {
		return err
	}
	return tx.Delete(&model.PlagiarismResult{}, resultID).Error
}
