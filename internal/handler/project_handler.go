package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/logic"
	"github.com/gin-gonic/gin"
)

// ProjectHandler 项目捐赠汇总、额度和匹配查询
type ProjectHandler struct {
	records  *logic.RecordLogic
	caps     *logic.CapLogic
	matching *logic.MatchingLogic
	now      func() time.Time
}

// NewProjectHandler 创建项目处理器
func NewProjectHandler(records *logic.RecordLogic, caps *logic.CapLogic, matching *logic.MatchingLogic) *ProjectHandler {
	return &ProjectHandler{
		records:  records,
		caps:     caps,
		matching: matching,
		now:      time.Now,
	}
}

// GetUserTotals 用户在项目上的捐赠汇总，可选 seasonId
func (h *ProjectHandler) GetUserTotals(c *gin.Context) {
	projectId, ok := paramId(c, "id")
	if !ok {
		return
	}
	userId, ok := paramId(c, "userId")
	if !ok {
		return
	}

	var seasonId *int64
	if raw := c.Query("seasonId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			ErrorResponse(c, http.StatusBadRequest, "invalid seasonId")
			return
		}
		seasonId = &id
	}

	totals, err := h.records.ProjectUserTotalDonationAmounts(c.Request.Context(), projectId, userId, seasonId)
	if err != nil {
		LogicErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", totals)
}

// GetUserDonationCap 当前生效轮次内用户剩余可捐额度
func (h *ProjectHandler) GetUserDonationCap(c *gin.Context) {
	projectId, ok := paramId(c, "id")
	if !ok {
		return
	}
	userId, ok := paramId(c, "userId")
	if !ok {
		return
	}

	remaining, err := h.caps.ProjectUserDonationCap(c.Request.Context(), projectId, userId, h.now())
	if err != nil {
		LogicErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", NewUserDonationCapResponse(remaining))
}

// GetExpectedMatching 当前 QF 轮内项目的预计匹配
func (h *ProjectHandler) GetExpectedMatching(c *gin.Context) {
	projectId, ok := paramId(c, "id")
	if !ok {
		return
	}

	expected, err := h.matching.ExpectedMatching(c.Request.Context(), projectId, h.now())
	if err != nil {
		LogicErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", expected)
}
