package repository

import (
	"plagiarism_backend/internal/model"

	"gorm.io/gorm"
)

// PlagiarismCaseRepository 处理学生查重案件的数据库操作
type PlagiarismCaseRepository struct {
	DB *gorm.DB
}

func NewPlagiarismCaseRepository(db *gorm.DB) *PlagiarismCaseRepository {
	return &PlagiarismCaseRepository{DB: db}
}

func (r *PlagiarismCaseRepository) Create(c *model.PlagiarismCase) error {
	return r.DB.Create(c).Error
}

func (r *PlagiarismCaseRepository) Save(c *model.PlagiarismCase) error {
	return r.DB.Save(c).Error
}

func (r *PlagiarismCaseRepository) FindByID(id uint) (*model.PlagiarismCase, error) {
	var plagiarismCase model.PlagiarismCase
	err := r.DB.Preload("Exercise").Preload("Exercise.Course").Preload("Post").First(&plagiarismCase, id).Error
	if err != nil {
		return nil, err
	}
	return &plagiarismCase, nil
}

func (r *PlagiarismCaseRepository) FindByStudentAndExercise(studentLogin string, exerciseID uint) (*model.PlagiarismCase, error) {
	var plagiarismCase model.PlagiarismCase
	err := r.DB.
		Where("student_login = ? AND exercise_id = ?", studentLogin, exerciseID).
		First(&plagiarismCase).Error
	if err != nil {
		return nil, err
	}
	return &plagiarismCase, nil
}

// Delete 删除案件并解开其提交快照的反向引用（快照本身归比较所有，不删）
func (r *PlagiarismCaseRepository) Delete(id uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.PlagiarismSubmission{}).
			Where("case_id = ?", id).
			Update("case_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&model.PlagiarismCase{}, id).Error
	})
}

// CountSubmissions 案件当前引用的提交快照数，为 0 时案件应被回收
func (r *PlagiarismCaseRepository) CountSubmissions(caseID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.PlagiarismSubmission{}).
		Where("case_id = ?", caseID).
		Count(&count).Error
	return count, err
}

// FindEmptyContinuousControlCases 练习下由持续检测创建、且已不再引用任何提交的案件
func (r *PlagiarismCaseRepository) FindEmptyContinuousControlCases(exerciseID uint) ([]*model.PlagiarismCase, error) {
	var cases []*model.PlagiarismCase
	err := r.DB.
		Where("exercise_id = ? AND created_by_continuous_control = ?", exerciseID, true).
		Where("id NOT IN (?)", r.DB.Model(&model.PlagiarismSubmission{}).
			Select("case_id").
			Where("case_id IS NOT NULL")).
		Find(&cases).Error
	return cases, err
}

// AttachPost 首次通知：挂上通知帖。已有通知帖时不覆盖，通知状态单向。
func (r *PlagiarismCaseRepository) AttachPost(caseID uint, post *model.Post) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var plagiarismCase model.PlagiarismCase
		if err := tx.First(&plagiarismCase, caseID).Error; err != nil {
			return err
		}
		if plagiarismCase.PostID != nil {
			return nil
		}
		if err := tx.Create(post).Error; err != nil {
			return err
		}
		return tx.Model(&model.PlagiarismCase{}).
			Where("id = ?", caseID).
			Update("post_id", post.ID).Error
	})
}
