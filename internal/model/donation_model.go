package model

import (
	"time"
)

// DonationModel 捐赠记录。EarlyAccessRoundId 与 QfRoundId 互斥，最多归属一个轮次。
type DonationModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`

	ProjectId int64  `json:"project_id" gorm:"not null;index"`
	UserId    *int64 `json:"user_id" gorm:"index"` // 匿名捐赠为空

	Amount   float64        `json:"amount" gorm:"not null"`
	ValueUsd float64        `json:"value_usd" gorm:"default:0"`
	Currency string         `json:"currency"`
	Status   DonationStatus `json:"status" gorm:"not null;default:'pending';index"`

	// 轮次归属
	EarlyAccessRoundId *int64 `json:"early_access_round_id" gorm:"index"`
	QfRoundId          *int64 `json:"qf_round_id" gorm:"index"`

	// 链上信息
	TransactionId        string `json:"transaction_id" gorm:"index"`
	TransactionNetworkId int    `json:"transaction_network_id"`
	FromWalletAddress    string `json:"from_wallet_address" gorm:"index"`
	BlockNumber          int64  `json:"block_number"`

	// 奖励信息，由批量对账任务回填
	RewardTokenAmount *float64   `json:"reward_token_amount"`
	RewardStreamStart *time.Time `json:"reward_stream_start"`
	RewardStreamEnd   *time.Time `json:"reward_stream_end"`
	Cliff             *float64   `json:"cliff"` // 秒
}

// DonationStatus 捐赠状态
type DonationStatus string

const (
	DonationStatusPending     DonationStatus = "pending"      // 待确认
	DonationStatusVerified    DonationStatus = "verified"     // 已确认
	DonationStatusFailed      DonationStatus = "failed"       // 失败
	DonationStatusSwapPending DonationStatus = "swap_pending" // 跨链兑换中
)

// CountedDonationStatuses 计入轮次累计额度的状态
var CountedDonationStatuses = []DonationStatus{
	DonationStatusVerified,
	DonationStatusPending,
	DonationStatusSwapPending,
}

// IsValid 状态是否合法
func (s DonationStatus) IsValid() bool {
	switch s {
	case DonationStatusPending, DonationStatusVerified, DonationStatusFailed, DonationStatusSwapPending:
		return true
	}
	return false
}

// AttributedRound 返回捐赠归属的轮次类型和 ID，未归属时 ok 为 false
func (d *DonationModel) AttributedRound() (kind RoundKind, id int64, ok bool) {
	switch {
	case d.EarlyAccessRoundId != nil:
		return RoundKindEarlyAccess, *d.EarlyAccessRoundId, true
	case d.QfRoundId != nil:
		return RoundKindQf, *d.QfRoundId, true
	}
	return "", 0, false
}

// AttributeTo 将捐赠归属到指定轮次，nil 表示清除归属
func (d *DonationModel) AttributeTo(r Round) {
	d.EarlyAccessRoundId = nil
	d.QfRoundId = nil
	if r == nil {
		return
	}
	id := r.RoundID()
	switch r.Kind() {
	case RoundKindEarlyAccess:
		d.EarlyAccessRoundId = &id
	case RoundKindQf:
		d.QfRoundId = &id
	}
}

// HasRewardInfo 奖励字段是否已回填
func (d *DonationModel) HasRewardInfo() bool {
	return d.RewardTokenAmount != nil && d.RewardStreamStart != nil && d.RewardStreamEnd != nil
}

// TableName 自定义表名
func (DonationModel) TableName() string {
	return "donation"
}
