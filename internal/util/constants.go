package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

// 报告归档相关常量
const (
	MimeZip         = "application/zip"
	MimeOctetStream = "application/octet-stream"
	ReportPrefix    = "plagiarism-reports/"
)
