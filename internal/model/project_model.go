package model

import (
	"time"
)

// ProjectModel 募资项目
type ProjectModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title       string `json:"title" gorm:"not null"`
	Slug        string `json:"slug" gorm:"uniqueIndex"`
	Description string `json:"description" gorm:"type:text"`

	Status ProjectStatus `json:"status" gorm:"default:'active'"`

	// 奖励代币信息
	RewardTokenSymbol string `json:"reward_token_symbol"`
	// ABC 编排合约地址，链上对账时读取 vesting 信息
	OrchestratorAddress string `json:"orchestrator_address"`

	CreatorAddress string `json:"creator_address"`
}

// ProjectStatus 项目状态
type ProjectStatus string

const (
	ProjectStatusPending   ProjectStatus = "pending"   // 待审核
	ProjectStatusActive    ProjectStatus = "active"    // 进行中
	ProjectStatusCancelled ProjectStatus = "cancelled" // 已取消
)

// TableName 自定义表名
func (ProjectModel) TableName() string {
	return "project"
}
