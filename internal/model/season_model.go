package model

import (
	"time"
)

// SeasonModel 赛季，包含若干个募资轮次
type SeasonModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SeasonNumber int       `json:"season_number" gorm:"not null;uniqueIndex"`
	StartDate    time.Time `json:"start_date" gorm:"not null"`
	EndDate      time.Time `json:"end_date" gorm:"not null"`
}

// Contains 判断时间点是否落在赛季区间内
func (s *SeasonModel) Contains(t time.Time) bool {
	return !t.Before(s.StartDate) && !t.After(s.EndDate)
}

// TableName 自定义表名
func (SeasonModel) TableName() string {
	return "season"
}
