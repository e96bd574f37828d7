package handler

import (
	"net/http"

	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/logic"
	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/model"
	"github.com/gin-gonic/gin"
)

// DonationHandler 捐赠处理器
type DonationHandler struct {
	donationLogic *logic.DonationLogic
}

// NewDonationHandler 创建捐赠处理器
func NewDonationHandler(donationLogic *logic.DonationLogic) *DonationHandler {
	return &DonationHandler{donationLogic: donationLogic}
}

// CreateDonation 创建捐赠，超出上限时仍然保存但不计入轮次
func (h *DonationHandler) CreateDonation(c *gin.Context) {
	var req CreateDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	donation, err := h.donationLogic.CreateDonation(c.Request.Context(), req.ToModel())
	if err != nil {
		LogicErrorResponse(c, err)
		return
	}

	_, _, counted := donation.AttributedRound()
	SuccessResponse(c, http.StatusCreated, "donation created", DonationResponse{
		Donation: donation,
		Counted:  counted,
	})
}

// UpdateDonationStatus 更新捐赠状态
func (h *DonationHandler) UpdateDonationStatus(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}

	var req UpdateDonationStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	donation, err := h.donationLogic.UpdateDonationStatus(c.Request.Context(), id, model.DonationStatus(req.Status))
	if err != nil {
		LogicErrorResponse(c, err)
		return
	}

	_, _, counted := donation.AttributedRound()
	SuccessResponse(c, http.StatusOK, "donation status updated", DonationResponse{
		Donation: donation,
		Counted:  counted,
	})
}
