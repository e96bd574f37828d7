package logic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/logger"
	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PriceOracle 美元价格来源
type PriceOracle interface {
	GetTokenPriceAtDate(ctx context.Context, symbol string, date time.Time) (float64, error)
}

// MatchingConfig 匹配计算参数
type MatchingConfig struct {
	TokenSymbol   string        // 捐赠代币符号
	PriceLeadTime time.Duration // 取价时间 = 轮次开始时间 - PriceLeadTime
}

// QfRoundStats QF 轮统计
type QfRoundStats struct {
	UniqueDonors     int64   `json:"unique_donors"`
	TotalDonationUsd float64 `json:"total_donation_usd"`
}

// ExpectedMatching 项目预计匹配
type ExpectedMatching struct {
	ProjectDonationsSqrtRootSum float64 `json:"project_donations_sqrt_root_sum"`
	AllProjectsSum              float64 `json:"all_projects_sum"`
	MatchingPool                float64 `json:"matching_pool"`
	EstimatedMatching           float64 `json:"estimated_matching"`
}

// MatchingLogic 二次方募资匹配统计
type MatchingLogic struct {
	db     *gorm.DB
	rounds *RoundLogic
	oracle PriceOracle
	cfg    MatchingConfig
	now    func() time.Time
}

// NewMatchingLogic 创建匹配业务逻辑，oracle 为空时无法回填代币价格
func NewMatchingLogic(db *gorm.DB, rounds *RoundLogic, oracle PriceOracle, cfg MatchingConfig) *MatchingLogic {
	return &MatchingLogic{
		db:     db,
		rounds: rounds,
		oracle: oracle,
		cfg:    cfg,
		now:    time.Now,
	}
}

type matchingAcc struct {
	sqrtRootSum  float64
	sumValueUsd  float64
	uniqueDonors int64
}

func (a *matchingAcc) add(donorTotal float64) {
	a.sqrtRootSum += math.Sqrt(math.Max(donorTotal, 0))
	a.sumValueUsd += donorTotal
	a.uniqueDonors++
}

// RefreshEstimatedMatchingView 逐个 QF 轮重建 project_estimated_matching_view
func (m *MatchingLogic) RefreshEstimatedMatchingView(ctx context.Context) error {
	var roundIds []int64
	err := m.db.WithContext(ctx).Model(&model.QfRoundModel{}).Order("id ASC").Pluck("id", &roundIds).Error
	if err != nil {
		return fmt.Errorf("failed to list qf rounds: %w", err)
	}

	for _, id := range roundIds {
		if err := m.RefreshQfRoundMatching(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// RefreshQfRoundMatching 根据已确认捐赠重建单个 QF 轮的统计。
// 按用户汇总 valueUsd 后开方再求和；匿名捐赠每笔视为一个独立捐赠者。
// 行按 project_id 顺序 upsert，并发刷新同一轮次时不会主键冲突。
func (m *MatchingLogic) RefreshQfRoundMatching(ctx context.Context, qfRoundId int64) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var perUser []struct {
			ProjectId int64
			UserId    int64
			Total     float64
		}
		err := tx.Model(&model.DonationModel{}).
			Select("project_id, user_id, SUM(value_usd) AS total").
			Where("status = ? AND qf_round_id = ? AND user_id IS NOT NULL", model.DonationStatusVerified, qfRoundId).
			Group("project_id, user_id").
			Scan(&perUser).Error
		if err != nil {
			return fmt.Errorf("failed to aggregate donations per user for round %d: %w", qfRoundId, err)
		}

		var anonymous []struct {
			ProjectId int64
			ValueUsd  float64
		}
		err = tx.Model(&model.DonationModel{}).
			Select("project_id, value_usd").
			Where("status = ? AND qf_round_id = ? AND user_id IS NULL", model.DonationStatusVerified, qfRoundId).
			Scan(&anonymous).Error
		if err != nil {
			return fmt.Errorf("failed to load anonymous donations for round %d: %w", qfRoundId, err)
		}

		acc := make(map[int64]*matchingAcc)
		get := func(projectId int64) *matchingAcc {
			a, ok := acc[projectId]
			if !ok {
				a = &matchingAcc{}
				acc[projectId] = a
			}
			return a
		}
		for _, row := range perUser {
			get(row.ProjectId).add(row.Total)
		}
		for _, row := range anonymous {
			get(row.ProjectId).add(row.ValueUsd)
		}

		projectIds := make([]int64, 0, len(acc))
		for id := range acc {
			projectIds = append(projectIds, id)
		}
		slices.Sort(projectIds)

		stale := tx.Where("qf_round_id = ?", qfRoundId)
		if len(projectIds) > 0 {
			stale = stale.Where("project_id NOT IN ?", projectIds)
		}
		if err := stale.Delete(&model.ProjectEstimatedMatchingModel{}).Error; err != nil {
			return fmt.Errorf("failed to clear stale matching rows for round %d: %w", qfRoundId, err)
		}
		if len(projectIds) == 0 {
			return nil
		}

		refreshedAt := m.now()
		rows := make([]model.ProjectEstimatedMatchingModel, 0, len(projectIds))
		for _, id := range projectIds {
			a := acc[id]
			rows = append(rows, model.ProjectEstimatedMatchingModel{
				ProjectId:    id,
				QfRoundId:    qfRoundId,
				SqrtRootSum:  a.sqrtRootSum,
				SumValueUsd:  a.sumValueUsd,
				UniqueDonors: a.uniqueDonors,
				RefreshedAt:  refreshedAt,
			})
		}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "project_id"}, {Name: "qf_round_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"sqrt_root_sum", "sum_value_usd", "unique_donors", "refreshed_at"}),
		}).CreateInBatches(rows, 500).Error
		if err != nil {
			return fmt.Errorf("failed to write matching rows for round %d: %w", qfRoundId, err)
		}

		logger.Debug("Refreshed estimated matching for qf round %d with %d rows", qfRoundId, len(rows))
		return nil
	})
}

// GetProjectDonationsSqrtRootSum 读取项目在轮次内的 Σ_u sqrt(Σ valueUsd)，未统计时为 0
func (m *MatchingLogic) GetProjectDonationsSqrtRootSum(ctx context.Context, projectId, qfRoundId int64) (float64, error) {
	var row model.ProjectEstimatedMatchingModel
	err := m.db.WithContext(ctx).
		Where("project_id = ? AND qf_round_id = ?", projectId, qfRoundId).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read sqrt root sum for project %d round %d: %w", projectId, qfRoundId, err)
	}
	return row.SqrtRootSum, nil
}

// GetQfRoundTotalSqrtRootSumSquared 轮次内所有项目 (Σ sqrt)^2 之和
func (m *MatchingLogic) GetQfRoundTotalSqrtRootSumSquared(ctx context.Context, qfRoundId int64) (float64, error) {
	var total float64
	err := m.db.WithContext(ctx).Model(&model.ProjectEstimatedMatchingModel{}).
		Select("COALESCE(SUM(sqrt_root_sum * sqrt_root_sum), 0)").
		Where("qf_round_id = ?", qfRoundId).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum squared sqrt root sums for round %d: %w", qfRoundId, err)
	}
	return total, nil
}

// GetQfRoundStats 轮次内已确认捐赠的去重捐赠者数和美元总额。
// 匿名捐赠每笔都算一个捐赠者。
func (m *MatchingLogic) GetQfRoundStats(ctx context.Context, round *model.QfRoundModel) (QfRoundStats, error) {
	var stats QfRoundStats
	err := m.db.WithContext(ctx).Model(&model.DonationModel{}).
		Select("COUNT(DISTINCT user_id) + COALESCE(SUM(CASE WHEN user_id IS NULL THEN 1 ELSE 0 END), 0) AS unique_donors, "+
			"COALESCE(SUM(value_usd), 0) AS total_donation_usd").
		Where("qf_round_id = ? AND status = ?", round.Id, model.DonationStatusVerified).
		Scan(&stats).Error
	if err != nil {
		return QfRoundStats{}, fmt.Errorf("failed to compute stats for qf round %d: %w", round.Id, err)
	}
	return stats, nil
}

// ExpectedMatching 当前生效 QF 轮内项目的预计匹配
func (m *MatchingLogic) ExpectedMatching(ctx context.Context, projectId int64, now time.Time) (ExpectedMatching, error) {
	round, err := m.rounds.FindActiveQfRound(ctx, now)
	if err != nil {
		return ExpectedMatching{}, err
	}
	if round == nil {
		return ExpectedMatching{}, ErrNoActiveRound
	}

	sqrtRootSum, err := m.GetProjectDonationsSqrtRootSum(ctx, projectId, round.Id)
	if err != nil {
		return ExpectedMatching{}, err
	}
	allProjectsSum, err := m.GetQfRoundTotalSqrtRootSumSquared(ctx, round.Id)
	if err != nil {
		return ExpectedMatching{}, err
	}

	result := ExpectedMatching{
		ProjectDonationsSqrtRootSum: sqrtRootSum,
		AllProjectsSum:              allProjectsSum,
		MatchingPool:                round.AllocatedFund,
	}
	if allProjectsSum > 0 {
		result.EstimatedMatching = round.AllocatedFund * sqrtRootSum * sqrtRootSum / allProjectsSum
	}
	return result, nil
}

// FillMissingTokenPriceInQfRounds 为缺少代币价格的 QF 轮回填价格，返回回填数量。
// 取价失败的轮次保持为空，下次执行时重试。
func (m *MatchingLogic) FillMissingTokenPriceInQfRounds(ctx context.Context) (int, error) {
	var rounds []model.QfRoundModel
	if err := m.db.WithContext(ctx).Where("token_price IS NULL").Find(&rounds).Error; err != nil {
		return 0, fmt.Errorf("failed to list qf rounds without token price: %w", err)
	}
	if len(rounds) == 0 {
		return 0, nil
	}

	filled := 0
	for i := range rounds {
		ok, err := m.fillTokenPrice(ctx, &model.QfRoundModel{}, rounds[i].Id, rounds[i].BeginDate)
		if err != nil {
			return filled, err
		}
		if ok {
			filled++
		}
	}
	return filled, nil
}

// FillMissingTokenPriceInEarlyAccessRounds 早期准入轮的价格回填，规则同 QF 轮
func (m *MatchingLogic) FillMissingTokenPriceInEarlyAccessRounds(ctx context.Context) (int, error) {
	var rounds []model.EarlyAccessRoundModel
	if err := m.db.WithContext(ctx).Where("token_price IS NULL").Find(&rounds).Error; err != nil {
		return 0, fmt.Errorf("failed to list early access rounds without token price: %w", err)
	}
	if len(rounds) == 0 {
		return 0, nil
	}

	filled := 0
	for i := range rounds {
		ok, err := m.fillTokenPrice(ctx, &model.EarlyAccessRoundModel{}, rounds[i].Id, rounds[i].StartDate)
		if err != nil {
			return filled, err
		}
		if ok {
			filled++
		}
	}
	return filled, nil
}

// fillTokenPrice 取价并写入，预言机失败返回 (false, nil)
func (m *MatchingLogic) fillTokenPrice(ctx context.Context, target interface{}, roundId int64, begin time.Time) (bool, error) {
	if m.oracle == nil {
		return false, ErrPriceOracleMissing
	}

	at := begin.Add(-m.cfg.PriceLeadTime)
	price, err := m.oracle.GetTokenPriceAtDate(ctx, m.cfg.TokenSymbol, at)
	if err != nil {
		logger.Warn("Failed to fetch %s price at %s for round %d: %v",
			m.cfg.TokenSymbol, at.Format(time.RFC3339), roundId, err)
		return false, nil
	}
	if price <= 0 {
		logger.Warn("Ignoring non-positive %s price %f for round %d", m.cfg.TokenSymbol, price, roundId)
		return false, nil
	}

	result := m.db.WithContext(ctx).Model(target).
		Where("id = ? AND token_price IS NULL", roundId).
		Update("token_price", price)
	if result.Error != nil {
		return false, fmt.Errorf("failed to save token price for round %d: %w", roundId, result.Error)
	}
	return result.RowsAffected > 0, nil
}
