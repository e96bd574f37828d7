package logic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/model"
	"gorm.io/gorm"
)

// CapLogic 确定捐赠适用的轮次及其上限
type CapLogic struct {
	db      *gorm.DB
	rounds  *RoundLogic
	records *RecordLogic
}

// NewCapLogic 创建上限业务逻辑
func NewCapLogic(db *gorm.DB, rounds *RoundLogic, records *RecordLogic) *CapLogic {
	return &CapLogic{db: db, rounds: rounds, records: records}
}

// CapQuery 轮次判定参数
type CapQuery struct {
	ProjectId int64
	UserId    *int64
	Timestamp time.Time
	NetworkId int // 捐赠所在网络，0 表示未知
}

// EffectiveCaps 以原生代币计的有效上限，未设置时为 +Inf
type EffectiveCaps struct {
	ProjectCap float64
	UserCap    float64
}

// Unlimited 是否两个上限都未设置
func (c EffectiveCaps) Unlimited() bool {
	return math.IsInf(c.ProjectCap, 1) && math.IsInf(c.UserCap, 1)
}

// ResolveRound 返回时间点上生效的轮次：早期准入轮优先，其次是网络符合要求的 QF 轮。
// 都不存在时返回 nil。
func (c *CapLogic) ResolveRound(ctx context.Context, q CapQuery) (model.Round, error) {
	ea, err := c.rounds.FindActiveEarlyAccessRound(ctx, q.Timestamp)
	if err != nil {
		return nil, err
	}
	if ea != nil {
		return ea, nil
	}

	qf, err := c.rounds.FindActiveQfRound(ctx, q.Timestamp)
	if err != nil {
		return nil, err
	}
	if qf != nil && qf.IsEligibleNetwork(q.NetworkId) {
		return qf, nil
	}
	return nil, nil
}

// EffectiveCapsFor 计算轮次的有效上限。
// 有代币价格时美元上限按 usdCap / tokenPrice 换算，否则使用原生代币上限。
// 更高的项目关闭上限和认证用户上限只对通过强身份验证的捐赠者生效。
func EffectiveCapsFor(round model.Round, verified bool) EffectiveCaps {
	caps := round.Caps()

	projectUsd := caps.UsdCapPerProject
	userUsd := caps.UsdCapPerUserPerProject
	if verified {
		if caps.UsdCloseCapPerProject != nil {
			projectUsd = caps.UsdCloseCapPerProject
		}
		if caps.UsdVerifiedCapPerUserPerProject != nil {
			userUsd = caps.UsdVerifiedCapPerUserPerProject
		}
	}

	price := round.Price()
	return EffectiveCaps{
		ProjectCap: tokenCap(projectUsd, caps.CapPerProject, price),
		UserCap:    tokenCap(userUsd, caps.CapPerUserPerProject, price),
	}
}

func tokenCap(usdCap, nativeCap, price *float64) float64 {
	if usdCap != nil && price != nil && *price > 0 {
		return *usdCap / *price
	}
	if nativeCap != nil {
		return *nativeCap
	}
	return math.Inf(1)
}

// IsUserVerified 用户是否通过强身份验证，匿名用户返回 false
func (c *CapLogic) IsUserVerified(ctx context.Context, userId *int64) (bool, error) {
	if userId == nil {
		return false, nil
	}

	var user model.UserModel
	err := c.db.WithContext(ctx).Select("id", "privado_verified").First(&user, *userId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load user %d: %w", *userId, err)
	}
	return user.PrivadoVerified, nil
}

// CapsFor 轮次对该用户的有效上限
func (c *CapLogic) CapsFor(ctx context.Context, round model.Round, userId *int64) (EffectiveCaps, error) {
	verified, err := c.IsUserVerified(ctx, userId)
	if err != nil {
		return EffectiveCaps{}, err
	}
	return EffectiveCapsFor(round, verified), nil
}

// ProjectUserDonationCap 当前生效轮次内用户还能向项目捐赠的额度（原生代币）
func (c *CapLogic) ProjectUserDonationCap(ctx context.Context, projectId, userId int64, now time.Time) (float64, error) {
	round, err := c.ResolveRound(ctx, CapQuery{ProjectId: projectId, UserId: &userId, Timestamp: now})
	if err != nil {
		return 0, err
	}
	if round == nil {
		return 0, ErrNoActiveRound
	}

	caps, err := c.CapsFor(ctx, round, &userId)
	if err != nil {
		return 0, err
	}

	projectTotal, err := c.records.ProjectRoundTotal(ctx, projectId, round)
	if err != nil {
		return 0, err
	}
	userTotal, err := c.records.UserRoundTotal(ctx, projectId, &userId, round)
	if err != nil {
		return 0, err
	}

	remaining := math.Min(caps.UserCap-userTotal, caps.ProjectCap-projectTotal)
	return math.Max(remaining, 0), nil
}
