package repository

import (
	"plagiarism_backend/internal/model"

	"gorm.io/gorm"
)

// SubmissionRepository 查重只读访问提交与参与记录
type SubmissionRepository struct {
	DB *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{DB: db}
}

// FindLatestByExercise 返回练习下每个参与记录的最新提交，按最低分过滤。
// 未评分（score 为 null）的提交在 minimumScore > 0 时被排除。
func (r *SubmissionRepository) FindLatestByExercise(exerciseID uint, minimumScore int) ([]*model.Submission, error) {
	var submissions []*model.Submission
	sub := r.DB.Model(&model.Submission{}).
		Select("MAX(submissions.id)").
		Joins("JOIN participations p ON p.id = submissions.participation_id").
		Where("p.exercise_id = ? AND p.practice = ?", exerciseID, false).
		Group("submissions.participation_id")

	q := r.DB.Preload("Participation").Where("submissions.id IN (?)", sub)
	if minimumScore > 0 {
		q = q.Where("submissions.score >= ?", minimumScore)
	}
	err := q.Find(&submissions).Error
	return submissions, err
}

// FindEligibleParticipations 返回有仓库地址、非练习模式的参与记录，供编程查重下载
func (r *SubmissionRepository) FindEligibleParticipations(exerciseID uint, minimumScore int) ([]*model.Participation, error) {
	var participations []*model.Participation
	q := r.DB.Model(&model.Participation{}).
		Where("exercise_id = ? AND practice = ? AND repository_uri <> ''", exerciseID, false)
	if minimumScore > 0 {
		scored := r.DB.Model(&model.Submission{}).
			Select("participation_id").
			Where("score >= ?", minimumScore)
		q = q.Where("id IN (?)", scored)
	}
	err := q.Find(&participations).Error
	return participations, err
}

// LatestSubmissionID 参与记录的最新提交 id，没有提交时返回 0
func (r *SubmissionRepository) LatestSubmissionID(participationID uint) (uint, error) {
	var submission model.Submission
	err := r.DB.Where("participation_id = ?", participationID).
		Order("id DESC").
		First(&submission).Error
	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return submission.ID, nil
}
