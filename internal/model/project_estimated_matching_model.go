package model

import (
	"time"
)

// ProjectEstimatedMatchingModel 项目在 QF 轮内的二次方统计物化结果，
// 由 MatchingLogic 按轮次刷新
type ProjectEstimatedMatchingModel struct {
	ProjectId int64 `json:"project_id" gorm:"primaryKey;autoIncrement:false"`
	QfRoundId int64 `json:"qf_round_id" gorm:"primaryKey;autoIncrement:false"`

	SqrtRootSum  float64   `json:"sqrt_root_sum"` // Σ_u sqrt(Σ valueUsd)
	SumValueUsd  float64   `json:"sum_value_usd"` // 已确认捐赠总额
	UniqueDonors int64     `json:"unique_donors"` // 匿名捐赠每笔计一人
	RefreshedAt  time.Time `json:"refreshed_at"`
}

// TableName 自定义表名
func (ProjectEstimatedMatchingModel) TableName() string {
	return "project_estimated_matching_view"
}
