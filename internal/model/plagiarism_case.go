package model

import "time"

type PlagiarismVerdict string

const (
	VerdictPointDeduction PlagiarismVerdict = "POINT_DEDUCTION"
	VerdictWarning        PlagiarismVerdict = "WARNING"
	VerdictPlagiarism     PlagiarismVerdict = "PLAGIARISM"
	VerdictNoPlagiarism   PlagiarismVerdict = "NO_PLAGIARISM"
)

// Post 发给学生的案件通知。挂到案件上即视为"学生已被告知"，此转换单向不可逆。
// swagger:model Post
type Post struct {
	BaseModel
	Title          string `gorm:"size:255;not null" json:"Title"`
	Content        string `gorm:"type:text" json:"Content"`
	RecipientLogin string `gorm:"size:50;index" json:"recipientLogin"`
	Language       string `gorm:"size:10;default:'en'" json:"Language"`
}

func (Post) TableName() string {
	return "posts"
}

// PlagiarismCase 以 (学生, 练习) 为键的持久案件，聚合该学生在此练习所有已确认比较中的提交。
// 首次确认涉及该学生的比较时惰性创建；不再引用任何提交时自动删除。
// 提交的真正拥有者仍是其比较/结果，案件只持有非拥有的反向引用。
// swagger:model PlagiarismCase
type PlagiarismCase struct {
	BaseModel
	StudentLogin               string                 `gorm:"size:50;index:idx_case_student_exercise,unique" json:"studentLogin"`
	ExerciseID                 uint                   `gorm:"index:idx_case_student_exercise,unique;type:bigint unsigned" json:"exerciseId"`
	Exercise                   *Exercise              `gorm:"foreignKey:ExerciseID" json:"exercise,omitempty"`
	Verdict                    PlagiarismVerdict      `gorm:"size:20" json:"verdict"` // 空串表示尚未裁定
	VerdictPointDeduction      int                    `gorm:"default:0" json:"verdictPointDeduction"`
	VerdictMessage             string                 `gorm:"size:500" json:"verdictMessage"`
	VerdictDate                *time.Time             `json:"verdictDate"`
	VerdictByID                *uint                  `gorm:"type:bigint unsigned" json:"verdictById"`
	PostID                     *uint                  `gorm:"type:bigint unsigned" json:"postId"`
	Post                       *Post                  `gorm:"foreignKey:PostID" json:"post,omitempty"`
	CreatedByContinuousControl bool                   `gorm:"default:false" json:"createdByContinuousControl"`
	Submissions                []PlagiarismSubmission `gorm:"foreignKey:CaseID" json:"submissions,omitempty"`
}

func (PlagiarismCase) TableName() string {
	return "plagiarism_cases"
}

// Notified 学生是否已被告知案件存在
func (c *PlagiarismCase) Notified() bool {
	return c.PostID != nil
}
