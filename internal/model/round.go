package model

import (
	"fmt"
	"time"
)

// RoundKind 轮次类型
type RoundKind string

const (
	RoundKindEarlyAccess RoundKind = "early_access" // 早期准入轮
	RoundKindQf          RoundKind = "qf"           // 二次方募资轮
)

// RoundCaps 轮次上限字段，nil 表示未设置
type RoundCaps struct {
	CapPerProject                   *float64 `json:"cap_per_project"`
	CapPerUserPerProject            *float64 `json:"cap_per_user_per_project"`
	UsdCapPerProject                *float64 `json:"usd_cap_per_project"`
	UsdCapPerUserPerProject         *float64 `json:"usd_cap_per_user_per_project"`
	UsdCloseCapPerProject           *float64 `json:"usd_close_cap_per_project"`
	UsdVerifiedCapPerUserPerProject *float64 `json:"usd_verified_cap_per_user_per_project"`
}

// HasProjectCaps 是否定义了项目级和用户级上限
func (c RoundCaps) HasProjectCaps() bool {
	return (c.CapPerProject != nil || c.UsdCapPerProject != nil) &&
		(c.CapPerUserPerProject != nil || c.UsdCapPerUserPerProject != nil)
}

// Round 早期准入轮和 QF 轮的公共视图。
// 调用方通过 Kind() 区分具体类型，不依赖继承。
type Round interface {
	Kind() RoundKind
	RoundID() int64
	Number() int
	Begin() time.Time
	End() time.Time
	IsActiveAt(t time.Time) bool
	Caps() RoundCaps
	Season() *int64
	Price() *float64
	BatchMintingExecuted() bool
}

// RoundKey 轮次唯一键，用于 project_round_record 的唯一约束
func RoundKey(r Round) string {
	return FormatRoundKey(r.Kind(), r.RoundID())
}

// FormatRoundKey 格式化轮次唯一键，未知类型以类型原值作前缀
func FormatRoundKey(kind RoundKind, id int64) string {
	switch kind {
	case RoundKindEarlyAccess:
		return fmt.Sprintf("ea:%d", id)
	case RoundKindQf:
		return fmt.Sprintf("qf:%d", id)
	default:
		return fmt.Sprintf("%s:%d", kind, id)
	}
}

func withinWindow(t, begin, end time.Time) bool {
	return !t.Before(begin) && !t.After(end)
}
