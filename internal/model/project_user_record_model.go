package model

import (
	"time"
)

// NoSeason 未指定赛季时 project_user_record.season_id 的取值
const NoSeason int64 = 0

// ProjectUserRecordModel 用户在项目上按赛季聚合的捐赠额
type ProjectUserRecordModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProjectId int64 `json:"project_id" gorm:"not null;uniqueIndex:idx_project_user_record_key"`
	UserId    int64 `json:"user_id" gorm:"not null;uniqueIndex:idx_project_user_record_key"`
	SeasonId  int64 `json:"season_id" gorm:"not null;default:0;uniqueIndex:idx_project_user_record_key"`

	EaTotalDonationAmount float64 `json:"ea_total_donation_amount" gorm:"default:0"`
	QfTotalDonationAmount float64 `json:"qf_total_donation_amount" gorm:"default:0"`
	TotalDonationAmount   float64 `json:"total_donation_amount" gorm:"default:0"`
}

// TableName 自定义表名
func (ProjectUserRecordModel) TableName() string {
	return "project_user_record"
}
