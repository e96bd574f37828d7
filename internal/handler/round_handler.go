package handler

import (
	"net/http"
	"time"

	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/logic"
	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/model"
	"github.com/gin-gonic/gin"
)

// RoundHandler 轮次与赛季查询
type RoundHandler struct {
	rounds   *logic.RoundLogic
	matching *logic.MatchingLogic
	now      func() time.Time
}

// NewRoundHandler 创建轮次处理器
func NewRoundHandler(rounds *logic.RoundLogic, matching *logic.MatchingLogic) *RoundHandler {
	return &RoundHandler{rounds: rounds, matching: matching, now: time.Now}
}

// GetRounds 全部轮次及累计上限
func (h *RoundHandler) GetRounds(c *gin.Context) {
	views, err := h.rounds.AllRounds(c.Request.Context())
	if err != nil {
		LogicErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", views)
}

// GetActiveRound 当前生效轮次，没有时 data 为 null
func (h *RoundHandler) GetActiveRound(c *gin.Context) {
	view, err := h.rounds.ActiveRound(c.Request.Context(), h.now())
	if err != nil {
		LogicErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", view)
}

// GetQfRoundStats QF 轮捐赠统计
func (h *RoundHandler) GetQfRoundStats(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}

	round, err := h.rounds.FindRoundByID(c.Request.Context(), model.RoundKindQf, id)
	if err != nil {
		LogicErrorResponse(c, err)
		return
	}

	stats, err := h.matching.GetQfRoundStats(c.Request.Context(), round.(*model.QfRoundModel))
	if err != nil {
		LogicErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", stats)
}

// GetSeasons 全部赛季
func (h *RoundHandler) GetSeasons(c *gin.Context) {
	seasons, err := h.rounds.FindAllSeasons(c.Request.Context())
	if err != nil {
		LogicErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", seasons)
}

// GetActiveSeason 当前赛季，没有时 data 为 null
func (h *RoundHandler) GetActiveSeason(c *gin.Context) {
	season, err := h.rounds.FindActiveSeasonByDate(c.Request.Context(), h.now())
	if err != nil {
		LogicErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", season)
}
