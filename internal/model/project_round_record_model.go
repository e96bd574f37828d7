package model

import (
	"time"
)

// ProjectRoundRecordModel 项目在单个轮次内的累计捐赠。
// 每次按源数据整体重算后 upsert，不做增量累加。
type ProjectRoundRecordModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProjectId          int64  `json:"project_id" gorm:"not null;uniqueIndex:idx_project_round_record_key"`
	RoundKey           string `json:"round_key" gorm:"not null;uniqueIndex:idx_project_round_record_key"`
	EarlyAccessRoundId *int64 `json:"early_access_round_id" gorm:"index"`
	QfRoundId          *int64 `json:"qf_round_id" gorm:"index"`

	TotalDonationAmount    float64 `json:"total_donation_amount" gorm:"default:0"`
	TotalDonationUsdAmount float64 `json:"total_donation_usd_amount" gorm:"default:0"`
}

// TableName 自定义表名
func (ProjectRoundRecordModel) TableName() string {
	return "project_round_record"
}
