package model

// Participation 学生（或团队）在一个练习中的参与记录，查重只读取不修改
// swagger:model Participation
type Participation struct {
	BaseModel
	ExerciseID    uint   `gorm:"index;type:bigint unsigned" json:"exerciseId"`
	StudentLogin  string `gorm:"size:50;index" json:"studentLogin"` // 团队参与时为空
	TeamName      string `gorm:"size:100" json:"teamName"`
	RepositoryURI string `gorm:"size:500" json:"repositoryUri"`
	Practice      bool   `gorm:"default:false" json:"practice"` // 练习模式的参与不参与查重
}

func (Participation) TableName() string {
	return "participations"
}

// Identity 返回用于去重的参与方标识：个人为登录名，团队为团队名
func (p *Participation) Identity() string {
	if p.StudentLogin != "" {
		return p.StudentLogin
	}
	return p.TeamName
}

// swagger:model Submission
type Submission struct {
	BaseModel
	ParticipationID uint           `gorm:"index;type:bigint unsigned" json:"participationId"`
	Participation   *Participation `gorm:"foreignKey:ParticipationID" json:"participation,omitempty"`
	Score           *float64       `json:"score"` // 未评分时为 null
	Size            int            `gorm:"default:0" json:"size"`
	Content         string         `gorm:"type:longtext" json:"-"` // 文本正文或模型元素列表
}

func (Submission) TableName() string {
	return "submissions"
}
