package model

import (
	"time"
)

// UserModel 捐赠用户
type UserModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	WalletAddress   string   `json:"wallet_address" gorm:"uniqueIndex"`
	Name            string   `json:"name"`
	PrivadoVerified bool     `json:"privado_verified" gorm:"default:false"` // 强身份验证
	PassportScore   *float64 `json:"passport_score"`
}

// TableName 自定义表名
func (UserModel) TableName() string {
	return "user"
}
