package repository

import (
	"time"

	"plagiarism_backend/internal/model"

	"gorm.io/gorm"
)

// ExerciseRepository 处理练习及其查重配置的数据库操作
type ExerciseRepository struct {
	DB *gorm.DB
}

func NewExerciseRepository(db *gorm.DB) *ExerciseRepository {
	return &ExerciseRepository{DB: db}
}

func (r *ExerciseRepository) FindByID(id uint) (*model.Exercise, error) {
	var exercise model.Exercise
	err := r.DB.Preload("Course").Preload("DetectionConfig").First(&exercise, id).Error
	if err != nil {
		return nil, err
	}
	return &exercise, nil
}

// FindForContinuousControl 选出开启持续检测且仍在检测窗口内的练习：
// 截止日期在未来，或截止已过但显式允许截止后检测
func (r *ExerciseRepository) FindForContinuousControl(now time.Time) ([]*model.Exercise, error) {
	var exercises []*model.Exercise
	err := r.DB.
		Where("continuous_control_enabled = ?", true).
		Where("due_date IS NULL OR due_date > ? OR check_after_due_date = ?", now, true).
		Preload("Course").
		Preload("DetectionConfig").
		Find(&exercises).Error
	return exercises, err
}

func (r *ExerciseRepository) CreateDetectionConfig(cfg *model.PlagiarismDetectionConfig) error {
	return r.DB.Create(cfg).Error
}

func (r *ExerciseRepository) FindDetectionConfig(exerciseID uint) (*model.PlagiarismDetectionConfig, error) {
	var cfg model.PlagiarismDetectionConfig
	err := r.DB.Where("exercise_id = ?", exerciseID).First(&cfg).Error
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}
