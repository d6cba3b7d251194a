package model

import "time"

type ExerciseType string

const (
	ExerciseText        ExerciseType = "text"
	ExerciseProgramming ExerciseType = "programming"
	ExerciseModeling    ExerciseType = "modeling"
	ExerciseQuiz        ExerciseType = "quiz"
	ExerciseFileUpload  ExerciseType = "file_upload"
)

type ProgrammingLanguage string

const (
	LangC          ProgrammingLanguage = "c"
	LangCPP        ProgrammingLanguage = "cpp"
	LangCSharp     ProgrammingLanguage = "csharp"
	LangGo         ProgrammingLanguage = "go"
	LangJava       ProgrammingLanguage = "java"
	LangJavaScript ProgrammingLanguage = "javascript"
	LangKotlin     ProgrammingLanguage = "kotlin"
	LangPython     ProgrammingLanguage = "python"
	LangRust       ProgrammingLanguage = "rust"
	LangSwift      ProgrammingLanguage = "swift"
	LangTypeScript ProgrammingLanguage = "typescript"
)

// 支持结构化查重的编程语言集合，不在其中的语言直接拒绝检测
var supportedPlagiarismLanguages = map[ProgrammingLanguage]bool{
	LangC: true, LangCPP: true, LangCSharp: true, LangGo: true,
	LangJava: true, LangJavaScript: true, LangKotlin: true, LangPython: true,
	LangRust: true, LangSwift: true, LangTypeScript: true,
}

func (l ProgrammingLanguage) SupportsPlagiarismCheck() bool {
	return supportedPlagiarismLanguages[l]
}

// 各语言参与查重的源文件扩展名，用于最小规模过滤时只统计相关文件
var languageFileExtensions = map[ProgrammingLanguage][]string{
	LangC:          {".c", ".h"},
	LangCPP:        {".cpp", ".cc", ".cxx", ".h", ".hpp"},
	LangCSharp:     {".cs"},
	LangGo:         {".go"},
	LangJava:       {".java"},
	LangJavaScript: {".js", ".jsx"},
	LangKotlin:     {".kt", ".kts"},
	LangPython:     {".py"},
	LangRust:       {".rs"},
	LangSwift:      {".swift"},
	LangTypeScript: {".ts", ".tsx"},
}

func (l ProgrammingLanguage) FileExtensions() []string {
	return languageFileExtensions[l]
}

// swagger:model Course
type Course struct {
	BaseModel
	Title     string `gorm:"size:255;not null" json:"Title"`
	ShortName string `gorm:"size:50;uniqueIndex;not null" json:"ShortName"`
}

func (Course) TableName() string {
	return "courses"
}

// swagger:model Exercise
type Exercise struct {
	BaseModel
	CourseID              uint                `gorm:"index;type:bigint unsigned" json:"courseId"`
	Course                *Course             `gorm:"foreignKey:CourseID" json:"course,omitempty"`
	Title                 string              `gorm:"size:255;not null" json:"Title"`
	Type                  ExerciseType        `gorm:"size:20;index;not null" json:"Type"`
	DueDate               *time.Time          `json:"DueDate"`
	ProgrammingLanguage   ProgrammingLanguage `gorm:"size:20" json:"ProgrammingLanguage"`
	TemplateRepositoryURI string              `gorm:"size:500" json:"templateRepositoryUri"`
	// 持续检测开关直接放在练习上，旧数据即使缺少配置记录也能被调度选中
	ContinuousControlEnabled bool                       `gorm:"default:false;index" json:"continuousControlEnabled"`
	CheckAfterDueDate        bool                       `gorm:"default:false" json:"checkAfterDueDate"`
	DetectionConfig          *PlagiarismDetectionConfig `gorm:"foreignKey:ExerciseID" json:"detectionConfig,omitempty"`
}

func (Exercise) TableName() string {
	return "exercises"
}

// PlagiarismDetectionConfig 每个练习的查重阈值参数，旧数据缺省时由持续检测惰性补建
// swagger:model PlagiarismDetectionConfig
type PlagiarismDetectionConfig struct {
	BaseModel
	ExerciseID          uint    `gorm:"uniqueIndex;type:bigint unsigned" json:"exerciseId"`
	SimilarityThreshold float64 `gorm:"default:90" json:"similarityThreshold"` // 0-100
	MinimumScore        int     `gorm:"default:0" json:"minimumScore"`
	MinimumSize         int     `gorm:"default:0" json:"minimumSize"`
}

func (PlagiarismDetectionConfig) TableName() string {
	return "plagiarism_detection_configs"
}

// DefaultDetectionConfig 为缺少配置的旧练习生成默认配置
func DefaultDetectionConfig(exerciseID uint) *PlagiarismDetectionConfig {
	return &PlagiarismDetectionConfig{
		ExerciseID:          exerciseID,
		SimilarityThreshold: 90,
		MinimumScore:        0,
		MinimumSize:         0,
	}
}
