package service

import (
	"context"
	"fmt"
	"time"

	"plagiarism_backend/internal/util"
)

// ReportService 把外部工具产出的报告压缩包归档到对象存储。
// 实现 reportUploader；本地的报告文件由清理队列删除，归档副本长期保留。
type ReportService struct {
	Storage *StorageService
}

func NewReportService(storage *StorageService) *ReportService {
	return &ReportService{Storage: storage}
}

// UploadReport 归档一份报告，对象名含练习 id 和时间戳，历史轮次互不覆盖
func (s *ReportService) UploadReport(ctx context.Context, exerciseID uint, reportPath string) (string, error) {
	objectName := fmt.Sprintf("%s%d/%d.zip", util.ReportPrefix, exerciseID, time.Now().Unix())
	location, err := s.Storage.UploadFile(ctx, objectName, reportPath, util.MimeZip)
	if err != nil {
		return "", fmt.Errorf("archive report for exercise %d: %w", exerciseID, err)
	}
	return location, nil
}
