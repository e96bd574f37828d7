package handler

import (
	"math"
	"time"

	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/model"
)

// 通用响应结构
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// 捐赠相关请求/响应模型

// CreateDonationRequest 创建捐赠请求
type CreateDonationRequest struct {
	ProjectId            int64      `json:"projectId" binding:"required"`
	UserId               *int64     `json:"userId"`
	Amount               float64    `json:"amount" binding:"required,gt=0"`
	ValueUsd             float64    `json:"valueUsd"`
	Currency             string     `json:"currency"`
	Status               string     `json:"status"`
	TransactionId        string     `json:"transactionId"`
	TransactionNetworkId int        `json:"transactionNetworkId"`
	FromWalletAddress    string     `json:"fromWalletAddress"`
	BlockNumber          int64      `json:"blockNumber"`
	CreatedAt            *time.Time `json:"createdAt"`
}

// ToModel 转换为捐赠模型
func (r CreateDonationRequest) ToModel() *model.DonationModel {
	donation := &model.DonationModel{
		ProjectId:            r.ProjectId,
		UserId:               r.UserId,
		Amount:               r.Amount,
		ValueUsd:             r.ValueUsd,
		Currency:             r.Currency,
		Status:               model.DonationStatus(r.Status),
		TransactionId:        r.TransactionId,
		TransactionNetworkId: r.TransactionNetworkId,
		FromWalletAddress:    r.FromWalletAddress,
		BlockNumber:          r.BlockNumber,
	}
	if r.CreatedAt != nil {
		donation.CreatedAt = r.CreatedAt.UTC()
	}
	return donation
}

// UpdateDonationStatusRequest 更新捐赠状态请求
type UpdateDonationStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// DonationResponse 捐赠响应模型
type DonationResponse struct {
	Donation *model.DonationModel `json:"donation"`
	Counted  bool                 `json:"counted"` // 是否计入轮次
}

// 项目相关响应模型

// UserDonationCapResponse 用户剩余可捐额度，Unlimited 时 RemainingCap 为空
type UserDonationCapResponse struct {
	RemainingCap *float64 `json:"remainingCap"`
	Unlimited    bool     `json:"unlimited"`
}

// NewUserDonationCapResponse 处理无上限的情况，JSON 无法编码 +Inf
func NewUserDonationCapResponse(remaining float64) UserDonationCapResponse {
	if math.IsInf(remaining, 1) {
		return UserDonationCapResponse{Unlimited: true}
	}
	return UserDonationCapResponse{RemainingCap: &remaining}
}
