package model

type PlagiarismStatus string

const (
	StatusNone      PlagiarismStatus = "NONE"
	StatusConfirmed PlagiarismStatus = "CONFIRMED"
	StatusDenied    PlagiarismStatus = "DENIED"
)

// HistogramBuckets 相似度直方图固定 10 个桶，每桶 10 个百分点
const HistogramBuckets = 10

// PlagiarismSubmission 比较级的提交快照，创建后不可变。
// 归属于引用它的 PlagiarismComparison；两个比较引用同一底层 Submission 时各持有独立副本。
// CaseID 是指向学生案件的非拥有外键，案件删除时只置空不级联。
// swagger:model PlagiarismSubmission
type PlagiarismSubmission struct {
	BaseModel
	SubmissionID uint     `gorm:"index;type:bigint unsigned" json:"submissionId"`
	StudentLogin string   `gorm:"size:100;index" json:"studentLogin"` // 个人登录名或团队标识
	Size         int      `gorm:"default:0" json:"size"`
	Elements     []string `gorm:"serializer:json;type:json" json:"elements"`
	CaseID       *uint    `gorm:"index;type:bigint unsigned" json:"caseId"`
}

func (PlagiarismSubmission) TableName() string {
	return "plagiarism_submissions"
}

// PlagiarismMatch 元素级对应关系，UI 高亮用
type PlagiarismMatch struct {
	StartA int `json:"startA"`
	StartB int `json:"startB"`
	Length int `json:"length"`
}

// PlagiarismComparison 一对提交的无序配对，每个结果内同一对只出现一次。
// 不变式：SubmissionA 与 SubmissionB 属于不同学生（或不同团队）。
// swagger:model PlagiarismComparison
type PlagiarismComparison struct {
	BaseModel
	ResultID      uint                 `gorm:"index;type:bigint unsigned" json:"-"`
	SubmissionAID uint                 `gorm:"type:bigint unsigned" json:"-"`
	SubmissionA   PlagiarismSubmission `gorm:"foreignKey:SubmissionAID" json:"submissionA"`
	SubmissionBID uint                 `gorm:"type:bigint unsigned" json:"-"`
	SubmissionB   PlagiarismSubmission `gorm:"foreignKey:SubmissionBID" json:"submissionB"`
	Similarity    float64              `gorm:"index" json:"similarity"` // 0-100
	Matches       []PlagiarismMatch    `gorm:"serializer:json;type:json" json:"matches,omitempty"`
	Status        PlagiarismStatus     `gorm:"size:20;default:'NONE'" json:"status"`
}

func (PlagiarismComparison) TableName() string {
	return "plagiarism_comparisons"
}

// PlagiarismResult 每个练习同一时刻最多一份；写入新结果时旧结果连同其比较一并删除。
// swagger:model PlagiarismResult
type PlagiarismResult struct {
	BaseModel
	ExerciseID             uint                   `gorm:"index;type:bigint unsigned" json:"exerciseId"`
	Comparisons            []PlagiarismComparison `gorm:"foreignKey:ResultID" json:"comparisons"`
	SimilarityDistribution []int                  `gorm:"serializer:json;type:json" json:"similarityDistribution"`
	DurationMillis         int64                  `gorm:"default:0" json:"duration"`
}

func (PlagiarismResult) TableName() string {
	return "plagiarism_results"
}

// ComputeHistogram 按 similarity/10 向下取整分桶；恰为 100 的比较计入最后一桶。
// 在截断之前调用，保证 sum(buckets) 等于全部命中比较数。
func ComputeHistogram(comparisons []PlagiarismComparison) []int {
	buckets := make([]int, HistogramBuckets)
	for _, c := range comparisons {
		idx := int(c.Similarity) / 10
		if idx >= HistogramBuckets {
			idx = HistogramBuckets - 1
		}
		if idx < 0 {
			idx = 0
		}
		buckets[idx]++
	}
	return buckets
}
