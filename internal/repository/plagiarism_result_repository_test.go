package repository

import (
	"regexp"
	"testing"

	"plagiarism_backend/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestResultDeleteByExerciseCascades(t *testing.T) {
	gdb, mock := setupMockDB(t)
	repo := NewPlagiarismResultRepository(gdb)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `plagiarism_results` WHERE exercise_id = ?")).
		WithArgs(uint(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "exercise_id"}).AddRow(7, 5))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `plagiarism_comparisons` WHERE result_id = ?")).
		WithArgs(uint(7)).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "result_id", "submission_a_id", "submission_b_id"}).
			AddRow(11, 7, 21, 22))
	// 快照 21 未挂案件，删除命中
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `plagiarism_submissions` SET `deleted_at`=? WHERE id = ? AND case_id IS NULL")).
		WithArgs(sqlmock.AnyArg(), uint(21)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// 快照 22 已挂案件，case_id IS NULL 不命中，快照留给案件
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `plagiarism_submissions` SET `deleted_at`=? WHERE id = ? AND case_id IS NULL")).
		WithArgs(sqlmock.AnyArg(), uint(22)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `plagiarism_comparisons` SET `deleted_at`=? WHERE result_id = ?")).
		WithArgs(sqlmock.AnyArg(), uint(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `plagiarism_results` SET `deleted_at`=? WHERE `plagiarism_results`.`id` = ?")).
		WithArgs(sqlmock.AnyArg(), 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.DeleteByExercise(5); err != nil {
		t.Fatalf("DeleteByExercise: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestResultDeleteByExerciseNoResults(t *testing.T) {
	gdb, mock := setupMockDB(t)
	repo := NewPlagiarismResultRepository(gdb)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `plagiarism_results` WHERE exercise_id = ?")).
		WithArgs(uint(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "exercise_id"}))
	mock.ExpectCommit()

	if err := repo.DeleteByExercise(5); err != nil {
		t.Fatalf("DeleteByExercise: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestResultSaveReplacingPreviousDeletesOldInSameTransaction(t *testing.T) {
	gdb, mock := setupMockDB(t)
	repo := NewPlagiarismResultRepository(gdb)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `plagiarism_results` WHERE exercise_id = ?")).
		WithArgs(uint(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "exercise_id"}).AddRow(7, 3))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `plagiarism_comparisons` WHERE result_id = ?")).
		WithArgs(uint(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "result_id", "submission_a_id", "submission_b_id"}))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `plagiarism_comparisons` SET `deleted_at`=? WHERE result_id = ?")).
		WithArgs(sqlmock.AnyArg(), uint(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `plagiarism_results` SET `deleted_at`=? WHERE `plagiarism_results`.`id` = ?")).
		WithArgs(sqlmock.AnyArg(), 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `plagiarism_results`")).
		WillReturnResult(sqlmock.NewResult(100, 1))
	mock.ExpectCommit()

	result := &model.PlagiarismResult{
		SimilarityDistribution: make([]int, model.HistogramBuckets),
		DurationMillis:         1200,
	}
	if err := repo.SaveReplacingPrevious(3, result); err != nil {
		t.Fatalf("SaveReplacingPrevious: %v", err)
	}
	if result.ExerciseID != 3 {
		t.Errorf("ExerciseID = %d, want forced to 3", result.ExerciseID)
	}
	if result.ID != 100 {
		t.Errorf("ID = %d, want last insert id 100", result.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
