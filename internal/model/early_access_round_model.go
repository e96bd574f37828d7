package model

import (
	"time"
)

// EarlyAccessRoundModel 早期准入轮。没有 is_active 标记，是否生效只看时间窗口。
type EarlyAccessRoundModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RoundNumber int       `json:"round_number" gorm:"not null;uniqueIndex"`
	StartDate   time.Time `json:"start_date" gorm:"not null"`
	EndDate     time.Time `json:"end_date" gorm:"not null"`
	SeasonId    *int64    `json:"season_id" gorm:"index"`

	// 上限（原生代币单位）
	CapPerProject        *float64 `json:"cap_per_project"`
	CapPerUserPerProject *float64 `json:"cap_per_user_per_project"`

	// 上限（美元）
	RoundUsdCapPerProject                *float64 `json:"round_usd_cap_per_project"`
	RoundUsdCapPerUserPerProject         *float64 `json:"round_usd_cap_per_user_per_project"`
	RoundUsdCloseCapPerProject           *float64 `json:"round_usd_close_cap_per_project"`
	RoundUsdVerifiedCapPerUserPerProject *float64 `json:"round_usd_verified_cap_per_user_per_project"`

	TokenPrice             *float64 `json:"token_price"`
	IsBatchMintingExecuted bool     `json:"is_batch_minting_executed" gorm:"default:false"`
}

// TableName 自定义表名
func (EarlyAccessRoundModel) TableName() string {
	return "early_access_round"
}

func (r *EarlyAccessRoundModel) Kind() RoundKind  { return RoundKindEarlyAccess }
func (r *EarlyAccessRoundModel) RoundID() int64   { return r.Id }
func (r *EarlyAccessRoundModel) Number() int      { return r.RoundNumber }
func (r *EarlyAccessRoundModel) Begin() time.Time { return r.StartDate }
func (r *EarlyAccessRoundModel) End() time.Time   { return r.EndDate }
func (r *EarlyAccessRoundModel) Season() *int64   { return r.SeasonId }
func (r *EarlyAccessRoundModel) Price() *float64  { return r.TokenPrice }

func (r *EarlyAccessRoundModel) BatchMintingExecuted() bool { return r.IsBatchMintingExecuted }

// IsActiveAt 时间窗口内即为生效
func (r *EarlyAccessRoundModel) IsActiveAt(t time.Time) bool {
	return withinWindow(t, r.StartDate, r.EndDate)
}

// Caps 返回上限字段
func (r *EarlyAccessRoundModel) Caps() RoundCaps {
	return RoundCaps{
		CapPerProject:                   r.CapPerProject,
		CapPerUserPerProject:            r.CapPerUserPerProject,
		UsdCapPerProject:                r.RoundUsdCapPerProject,
		UsdCapPerUserPerProject:         r.RoundUsdCapPerUserPerProject,
		UsdCloseCapPerProject:           r.RoundUsdCloseCapPerProject,
		UsdVerifiedCapPerUserPerProject: r.RoundUsdVerifiedCapPerUserPerProject,
	}
}
