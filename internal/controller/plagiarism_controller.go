package controller

import (
	"errors"

	"plagiarism_backend/internal/model"
	"plagiarism_backend/internal/service"
	"plagiarism_backend/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type PlagiarismController struct {
	Plagiarism        *service.PlagiarismService
	Cases             *service.CaseService
	ContinuousControl *service.ContinuousControlService
}

func NewPlagiarismController(plagiarism *service.PlagiarismService, cases *service.CaseService, continuousControl *service.ContinuousControlService) *PlagiarismController {
	return &PlagiarismController{
		Plagiarism:        plagiarism,
		Cases:             cases,
		ContinuousControl: continuousControl,
	}
}

// CheckExercise godoc
// @Summary 对练习发起查重
// @Description 同步跑一轮检测并返回结果；同一门课已有检测在跑时返回 409
// @Tags 查重
// @Produce  json
// @Param   id path int true "练习ID"
// @Success 200 {object} util.Response{data=model.PlagiarismResult}
// @Failure 400 {object} util.Response "练习类型或语言不支持，或可比提交不足"
// @Failure 409 {object} util.Response "该课程已有检测在运行"
// @Failure 500 {object} util.Response "检测失败"
// @Router /api/exercises/{id}/plagiarism-check [post]
func (c *PlagiarismController) CheckExercise(ctx *gin.Context) {
	exerciseID, err := util.ParseUint(ctx.Param("id"))
	if err != nil {
		util.BadRequest(ctx, "invalid exercise id")
		return
	}

	result, err := c.Plagiarism.CheckExercise(ctx.Request.Context(), exerciseID)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrAlreadyRunning):
			util.Conflict(ctx, "另一轮查重正在此课程上运行")
		case errors.Is(err, util.ErrInsufficientData):
			util.BadRequest(ctx, "可比较的提交不足两份")
		case errors.Is(err, util.ErrUnsupportedExerciseType), errors.Is(err, util.ErrUnsupportedLanguage):
			util.BadRequest(ctx, err.Error())
		case errors.Is(err, gorm.ErrRecordNotFound):
			util.NotFound(ctx)
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, result)
}

// GetResult godoc
// @Summary 练习的当前查重结果
// @Tags 查重
// @Produce  json
// @Param   id path int true "练习ID"
// @Success 200 {object} util.Response{data=model.PlagiarismResult}
// @Failure 404 {object} util.Response "尚无结果"
// @Router /api/exercises/{id}/plagiarism-result [get]
func (c *PlagiarismController) GetResult(ctx *gin.Context) {
	exerciseID, err := util.ParseUint(ctx.Param("id"))
	if err != nil {
		util.BadRequest(ctx, "invalid exercise id")
		return
	}

	result, err := c.Plagiarism.GetResult(exerciseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, result)
}

// UpdateStatusRequest 教师对单条比较的裁断
// swagger:model UpdateStatusRequest
type UpdateStatusRequest struct {
	Status model.PlagiarismStatus `json:"status" binding:"required,oneof=CONFIRMED DENIED"`
}

// UpdateComparisonStatus godoc
// @Summary 确认或否认一条比较
// @Description 确认会为双方学生建立（或补充）案件并通知学生；否认会把双方从案件摘除
// @Tags 查重
// @Accept  json
// @Produce  json
// @Param   id path int true "比较ID"
// @Param   body body UpdateStatusRequest true "目标状态"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.Response "状态不合法"
// @Failure 404 {object} util.Response "比较不存在"
// @Router /api/plagiarism-comparisons/{id}/status [put]
func (c *PlagiarismController) UpdateComparisonStatus(ctx *gin.Context) {
	comparisonID, err := util.ParseUint(ctx.Param("id"))
	if err != nil {
		util.BadRequest(ctx, "invalid comparison id")
		return
	}

	var req UpdateStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := c.Cases.UpdateStatus(comparisonID, req.Status); err != nil {
		switch {
		case errors.Is(err, util.ErrInvalidStatus):
			util.BadRequest(ctx, err.Error())
		case errors.Is(err, gorm.ErrRecordNotFound):
			util.NotFound(ctx)
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, gin.H{"status": req.Status})
}

// VerdictRequest 教师对案件的最终裁定
// swagger:model VerdictRequest
type VerdictRequest struct {
	Verdict        model.PlagiarismVerdict `json:"verdict" binding:"required,oneof=POINT_DEDUCTION WARNING PLAGIARISM NO_PLAGIARISM"`
	PointDeduction int                     `json:"pointDeduction"`
	Message        string                  `json:"message"`
}

// UpdateVerdict godoc
// @Summary 对案件下裁定
// @Description 记录裁定并立即通知学生，不论学生此前是否已被告知案件
// @Tags 查重
// @Accept  json
// @Produce  json
// @Param   id path int true "案件ID"
// @Param   body body VerdictRequest true "裁定内容"
// @Success 200 {object} util.Response{data=model.PlagiarismCase}
// @Failure 400 {object} util.Response "裁定不合法"
// @Failure 404 {object} util.Response "案件不存在"
// @Router /api/plagiarism-cases/{id}/verdict [put]
func (c *PlagiarismController) UpdateVerdict(ctx *gin.Context) {
	caseID, err := util.ParseUint(ctx.Param("id"))
	if err != nil {
		util.BadRequest(ctx, "invalid case id")
		return
	}

	var req VerdictRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	plagiarismCase, err := c.Cases.UpdateVerdict(caseID, req.Verdict, req.PointDeduction, req.Message, claims.UserID)
	if err != nil {
		if errors.Is(err, util.ErrCaseNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, plagiarismCase)
}

// GetCaseForStudent godoc
// @Summary 学生查询自己在练习上的案件
// @Description 仅当学生已被通知时返回案件元数据，否则一律 404
// @Tags 查重
// @Produce  json
// @Param   id path int true "练习ID"
// @Success 200 {object} util.Response{data=service.CaseInfo}
// @Failure 404 {object} util.Response "无案件或尚未通知"
// @Router /api/exercises/{id}/plagiarism-case [get]
func (c *PlagiarismController) GetCaseForStudent(ctx *gin.Context) {
	exerciseID, err := util.ParseUint(ctx.Param("id"))
	if err != nil {
		util.BadRequest(ctx, "invalid exercise id")
		return
	}

	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	info, err := c.Cases.GetCaseInfoForStudent(exerciseID, claims.Login)
	if err != nil {
		if errors.Is(err, util.ErrCaseNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, info)
}

// RunContinuousControl godoc
// @Summary 手动触发一轮持续检测
// @Description 立即对所有开启持续检测的练习跑一轮，返回逐练习的处理结果
// @Tags 查重
// @Produce  json
// @Success 200 {object} util.Response{data=[]service.ExerciseOutcome}
// @Router /api/admin/plagiarism/continuous-control/run [post]
func (c *PlagiarismController) RunContinuousControl(ctx *gin.Context) {
	outcomes := c.ContinuousControl.RunOnce(ctx.Request.Context())
	util.Success(ctx, outcomes)
}
