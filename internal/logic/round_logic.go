package logic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/model"
	"gorm.io/gorm"
)

// RoundLogic 轮次与赛季查询
type RoundLogic struct {
	db *gorm.DB
}

// NewRoundLogic 创建轮次业务逻辑
func NewRoundLogic(db *gorm.DB) *RoundLogic {
	return &RoundLogic{db: db}
}

// QfRoundFilter QF 轮查询条件
type QfRoundFilter struct {
	ActiveOnly bool      // 只返回当前生效的轮次
	Now        time.Time // ActiveOnly 时的参考时间，零值取当前时间
	SeasonId   *int64
	Slug       string
	Limit      int
}

// CumulativeCaps 累计上限
type CumulativeCaps struct {
	CumulativeCapPerProject        float64 `json:"cumulative_cap_per_project"`
	CumulativeCapPerUserPerProject float64 `json:"cumulative_cap_per_user_per_project"`
}

// RoundView 轮次列表视图，附带按类型累加的上限
type RoundView struct {
	Kind        model.RoundKind `json:"kind"`
	Id          int64           `json:"id"`
	RoundNumber int             `json:"round_number"`
	Name        string          `json:"name,omitempty"`
	BeginDate   time.Time       `json:"begin_date"`
	EndDate     time.Time       `json:"end_date"`
	SeasonId    *int64          `json:"season_id"`
	IsActive    bool            `json:"is_active"`
	TokenPrice  *float64        `json:"token_price"`
	Caps        model.RoundCaps `json:"caps"`

	IsBatchMintingExecuted bool `json:"is_batch_minting_executed"`

	CumulativeCaps
}

// FindActiveSeasonByDate 返回包含该时间点的赛季，不存在时返回 nil
func (r *RoundLogic) FindActiveSeasonByDate(ctx context.Context, date time.Time) (*model.SeasonModel, error) {
	var season model.SeasonModel
	err := r.db.WithContext(ctx).
		Where("start_date <= ? AND end_date >= ?", date.UTC(), date.UTC()).
		Order("season_number ASC").
		First(&season).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active season: %w", err)
	}
	return &season, nil
}

// FindAllSeasons 按赛季编号返回全部赛季
func (r *RoundLogic) FindAllSeasons(ctx context.Context) ([]model.SeasonModel, error) {
	var seasons []model.SeasonModel
	if err := r.db.WithContext(ctx).Order("season_number ASC").Find(&seasons).Error; err != nil {
		return nil, fmt.Errorf("failed to list seasons: %w", err)
	}
	return seasons, nil
}

// FindActiveQfRound is_active 且 now 在 [begin, end] 内的 QF 轮
func (r *RoundLogic) FindActiveQfRound(ctx context.Context, now time.Time) (*model.QfRoundModel, error) {
	now = now.UTC()
	var round model.QfRoundModel
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND begin_date <= ? AND end_date >= ?", true, now, now).
		Order("round_number ASC").
		First(&round).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active qf round: %w", err)
	}
	return &round, nil
}

// FindActiveEarlyAccessRound 时间窗口包含 now 的早期准入轮
func (r *RoundLogic) FindActiveEarlyAccessRound(ctx context.Context, now time.Time) (*model.EarlyAccessRoundModel, error) {
	now = now.UTC()
	var round model.EarlyAccessRoundModel
	err := r.db.WithContext(ctx).
		Where("start_date <= ? AND end_date >= ?", now, now).
		Order("round_number ASC").
		First(&round).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active early access round: %w", err)
	}
	return &round, nil
}

// FindAllEarlyAccessRounds 按轮次编号升序返回全部早期准入轮
func (r *RoundLogic) FindAllEarlyAccessRounds(ctx context.Context) ([]model.EarlyAccessRoundModel, error) {
	var rounds []model.EarlyAccessRoundModel
	if err := r.db.WithContext(ctx).Order("round_number ASC").Find(&rounds).Error; err != nil {
		return nil, fmt.Errorf("failed to list early access rounds: %w", err)
	}
	return rounds, nil
}

// FindQfRounds 按条件查询 QF 轮，按轮次编号升序
func (r *RoundLogic) FindQfRounds(ctx context.Context, filter QfRoundFilter) ([]model.QfRoundModel, error) {
	query := r.db.WithContext(ctx).Model(&model.QfRoundModel{})

	if filter.ActiveOnly {
		now := filter.Now
		if now.IsZero() {
			now = time.Now()
		}
		query = query.Where("is_active = ? AND begin_date <= ? AND end_date >= ?", true, now.UTC(), now.UTC())
	}
	if filter.SeasonId != nil {
		query = query.Where("season_id = ?", *filter.SeasonId)
	}
	if filter.Slug != "" {
		query = query.Where("slug = ?", filter.Slug)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rounds []model.QfRoundModel
	if err := query.Order("round_number ASC").Find(&rounds).Error; err != nil {
		return nil, fmt.Errorf("failed to list qf rounds: %w", err)
	}
	return rounds, nil
}

// FindRoundByID 按类型和 ID 查询轮次
func (r *RoundLogic) FindRoundByID(ctx context.Context, kind model.RoundKind, id int64) (model.Round, error) {
	var (
		round model.Round
		err   error
	)
	switch kind {
	case model.RoundKindEarlyAccess:
		var ea model.EarlyAccessRoundModel
		err = r.db.WithContext(ctx).First(&ea, id).Error
		round = &ea
	case model.RoundKindQf:
		var qf model.QfRoundModel
		err = r.db.WithContext(ctx).First(&qf, id).Error
		round = &qf
	default:
		return nil, fmt.Errorf("unknown round kind %q", kind)
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find %s round %d: %w", kind, id, err)
	}
	return round, nil
}

// FindRoundByNumber 按类型和轮次编号查询轮次
func (r *RoundLogic) FindRoundByNumber(ctx context.Context, kind model.RoundKind, number int) (model.Round, error) {
	var (
		round model.Round
		err   error
	)
	switch kind {
	case model.RoundKindEarlyAccess:
		var ea model.EarlyAccessRoundModel
		err = r.db.WithContext(ctx).Where("round_number = ?", number).First(&ea).Error
		round = &ea
	case model.RoundKindQf:
		var qf model.QfRoundModel
		err = r.db.WithContext(ctx).Where("round_number = ?", number).First(&qf).Error
		round = &qf
	default:
		return nil, fmt.Errorf("unknown round kind %q", kind)
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find %s round #%d: %w", kind, number, err)
	}
	return round, nil
}

// AllRounds 返回全部轮次（早期准入轮在前），累计上限为同类型中到当前轮为止的累加值。
// 未设置上限的轮次不参与累加。
func (r *RoundLogic) AllRounds(ctx context.Context) ([]RoundView, error) {
	eaRounds, err := r.FindAllEarlyAccessRounds(ctx)
	if err != nil {
		return nil, err
	}
	qfRounds, err := r.FindQfRounds(ctx, QfRoundFilter{})
	if err != nil {
		return nil, err
	}

	views := make([]RoundView, 0, len(eaRounds)+len(qfRounds))

	var running CumulativeCaps
	for i := range eaRounds {
		views = append(views, runningView(&eaRounds[i], &running))
	}

	running = CumulativeCaps{}
	for i := range qfRounds {
		view := runningView(&qfRounds[i], &running)
		view.Name = qfRounds[i].Name
		view.IsActive = qfRounds[i].IsActive
		views = append(views, view)
	}

	return views, nil
}

// ActiveRound 返回当前生效的轮次，早期准入轮优先；没有时返回 nil
func (r *RoundLogic) ActiveRound(ctx context.Context, now time.Time) (*RoundView, error) {
	views, err := r.AllRounds(ctx)
	if err != nil {
		return nil, err
	}

	var qfView *RoundView
	for i := range views {
		v := &views[i]
		switch v.Kind {
		case model.RoundKindEarlyAccess:
			if !now.Before(v.BeginDate) && !now.After(v.EndDate) {
				return v, nil
			}
		case model.RoundKindQf:
			if qfView == nil && v.IsActive && !now.Before(v.BeginDate) && !now.After(v.EndDate) {
				qfView = v
			}
		}
	}
	return qfView, nil
}

// FindQfRoundCumulativeCaps 只有第一个设置了上限的 QF 轮报告自己的上限作为累计值，
// 之后的轮次累计值均为 0。
func (r *RoundLogic) FindQfRoundCumulativeCaps(ctx context.Context, qfRoundId int64) (CumulativeCaps, error) {
	rounds, err := r.FindQfRounds(ctx, QfRoundFilter{})
	if err != nil {
		return CumulativeCaps{}, err
	}

	var (
		first *model.QfRoundModel
		found bool
	)
	for i := range rounds {
		if first == nil && rounds[i].Caps().HasProjectCaps() {
			first = &rounds[i]
		}
		if rounds[i].Id == qfRoundId {
			found = true
		}
	}
	if !found {
		return CumulativeCaps{}, ErrRoundNotFound
	}
	if first == nil || first.Id != qfRoundId {
		return CumulativeCaps{}, nil
	}

	perProject, perUser, _ := capValues(first.Caps())
	return CumulativeCaps{
		CumulativeCapPerProject:        perProject,
		CumulativeCapPerUserPerProject: perUser,
	}, nil
}

// MarkBatchMintingExecuted 设置批量铸造已执行标记，只能从 false 变为 true
func (r *RoundLogic) MarkBatchMintingExecuted(ctx context.Context, round model.Round) error {
	var target interface{}
	switch round.Kind() {
	case model.RoundKindEarlyAccess:
		target = &model.EarlyAccessRoundModel{}
	case model.RoundKindQf:
		target = &model.QfRoundModel{}
	}

	err := r.db.WithContext(ctx).Model(target).
		Where("id = ? AND is_batch_minting_executed = ?", round.RoundID(), false).
		Update("is_batch_minting_executed", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark batch minting executed for %s: %w", model.RoundKey(round), err)
	}
	return nil
}

// runningView 构建视图并把本轮上限累加到 running
func runningView(round model.Round, running *CumulativeCaps) RoundView {
	if perProject, perUser, ok := capValues(round.Caps()); ok {
		running.CumulativeCapPerProject += perProject
		running.CumulativeCapPerUserPerProject += perUser
	}

	return RoundView{
		Kind:                   round.Kind(),
		Id:                     round.RoundID(),
		RoundNumber:            round.Number(),
		BeginDate:              round.Begin(),
		EndDate:                round.End(),
		SeasonId:               round.Season(),
		TokenPrice:             round.Price(),
		Caps:                   round.Caps(),
		IsBatchMintingExecuted: round.BatchMintingExecuted(),
		CumulativeCaps:         *running,
	}
}

// capValues 取项目级和用户级上限，美元上限优先
func capValues(c model.RoundCaps) (perProject, perUser float64, ok bool) {
	if !c.HasProjectCaps() {
		return 0, 0, false
	}
	return firstSet(c.UsdCapPerProject, c.CapPerProject), firstSet(c.UsdCapPerUserPerProject, c.CapPerUserPerProject), true
}

func firstSet(values ...*float64) float64 {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return 0
}
