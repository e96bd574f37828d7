package model

import (
	"slices"
	"time"

	"gorm.io/datatypes"
)

// QfRoundModel 二次方募资轮
type QfRoundModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RoundNumber int       `json:"round_number" gorm:"not null;uniqueIndex"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug" gorm:"index"`
	IsActive    bool      `json:"is_active" gorm:"default:false"`
	BeginDate   time.Time `json:"begin_date" gorm:"not null"`
	EndDate     time.Time `json:"end_date" gorm:"not null"`
	SeasonId    *int64    `json:"season_id" gorm:"index"`

	// 匹配资金池（美元）
	AllocatedFund float64 `json:"allocated_fund" gorm:"default:0"`

	// 允许的捐赠网络，为空表示不限制
	EligibleNetworks datatypes.JSONSlice[int] `json:"eligible_networks"`

	CapPerProject        *float64 `json:"cap_per_project"`
	CapPerUserPerProject *float64 `json:"cap_per_user_per_project"`

	RoundUsdCapPerProject                *float64 `json:"round_usd_cap_per_project"`
	RoundUsdCapPerUserPerProject         *float64 `json:"round_usd_cap_per_user_per_project"`
	RoundUsdCloseCapPerProject           *float64 `json:"round_usd_close_cap_per_project"`
	RoundUsdVerifiedCapPerUserPerProject *float64 `json:"round_usd_verified_cap_per_user_per_project"`

	TokenPrice             *float64 `json:"token_price"`
	IsBatchMintingExecuted bool     `json:"is_batch_minting_executed" gorm:"default:false"`
}

// TableName 自定义表名
func (QfRoundModel) TableName() string {
	return "qf_round"
}

func (r *QfRoundModel) Kind() RoundKind  { return RoundKindQf }
func (r *QfRoundModel) RoundID() int64   { return r.Id }
func (r *QfRoundModel) Number() int      { return r.RoundNumber }
func (r *QfRoundModel) Begin() time.Time { return r.BeginDate }
func (r *QfRoundModel) End() time.Time   { return r.EndDate }
func (r *QfRoundModel) Season() *int64   { return r.SeasonId }
func (r *QfRoundModel) Price() *float64  { return r.TokenPrice }

func (r *QfRoundModel) BatchMintingExecuted() bool { return r.IsBatchMintingExecuted }

// IsActiveAt is_active 为真且时间在 [begin, end] 内
func (r *QfRoundModel) IsActiveAt(t time.Time) bool {
	return r.IsActive && withinWindow(t, r.BeginDate, r.EndDate)
}

// IsEligibleNetwork 未配置网络时全部允许
func (r *QfRoundModel) IsEligibleNetwork(networkId int) bool {
	if len(r.EligibleNetworks) == 0 {
		return true
	}
	return slices.Contains(r.EligibleNetworks, networkId)
}

// Caps 返回上限字段
func (r *QfRoundModel) Caps() RoundCaps {
	return RoundCaps{
		CapPerProject:                   r.CapPerProject,
		CapPerUserPerProject:            r.CapPerUserPerProject,
		UsdCapPerProject:                r.RoundUsdCapPerProject,
		UsdCapPerUserPerProject:         r.RoundUsdCapPerUserPerProject,
		UsdCloseCapPerProject:           r.RoundUsdCloseCapPerProject,
		UsdVerifiedCapPerUserPerProject: r.RoundUsdVerifiedCapPerUserPerProject,
	}
}
