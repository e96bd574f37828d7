package logic

import (
	"context"
	"errors"
	"fmt"

	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/logger"
	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordLogic 维护 project_round_record 与 project_user_record。
// 所有写入都是从 donation 表整体重算后 upsert，重复执行结果一致。
type RecordLogic struct {
	db *gorm.DB
}

// NewRecordLogic 创建累计记录业务逻辑
func NewRecordLogic(db *gorm.DB) *RecordLogic {
	return &RecordLogic{db: db}
}

// withDB 返回使用指定连接（通常是事务）的副本
func (r *RecordLogic) withDB(db *gorm.DB) *RecordLogic {
	return &RecordLogic{db: db}
}

// ProjectUserKey project_user_record 的唯一键
type ProjectUserKey struct {
	ProjectId int64
	UserId    int64
	SeasonId  *int64 // nil 表示不限赛季
}

func (k ProjectUserKey) seasonColumn() int64 {
	if k.SeasonId == nil {
		return model.NoSeason
	}
	return *k.SeasonId
}

// UserTotals 用户在项目上的捐赠汇总
type UserTotals struct {
	TotalDonationAmount   float64 `json:"total_donation_amount"`
	EaTotalDonationAmount float64 `json:"ea_total_donation_amount"`
	QfTotalDonationAmount float64 `json:"qf_total_donation_amount"`
}

// CumulativeQuery 历史轮次累计查询
type CumulativeQuery struct {
	ProjectId          int64
	EarlyAccessRoundId *int64
	QfRoundId          *int64
}

// LedgerTouch 一次捐赠写入影响到的累计键
type LedgerTouch struct {
	ProjectId int64
	Round     model.Round // 为空时只重算用户记录
	UserId    *int64
}

// UpdateOrCreateProjectRoundRecord 重算项目在指定轮次内的捐赠总额并 upsert
func (r *RecordLogic) UpdateOrCreateProjectRoundRecord(ctx context.Context, projectId int64, qfRoundId, earlyAccessRoundId *int64) (*model.ProjectRoundRecordModel, error) {
	var (
		column   string
		roundId  int64
		roundKey string
	)
	switch {
	case qfRoundId != nil && earlyAccessRoundId != nil:
		return nil, ErrAmbiguousRound
	case qfRoundId != nil:
		column, roundId = "qf_round_id", *qfRoundId
		roundKey = model.FormatRoundKey(model.RoundKindQf, roundId)
	case earlyAccessRoundId != nil:
		column, roundId = "early_access_round_id", *earlyAccessRoundId
		roundKey = model.FormatRoundKey(model.RoundKindEarlyAccess, roundId)
	default:
		return nil, ErrNoRoundSpecified
	}

	db := r.db.WithContext(ctx)

	var totals struct {
		TotalAmount    float64
		TotalUsdAmount float64
	}
	err := db.Model(&model.DonationModel{}).
		Select("COALESCE(SUM(amount), 0) AS total_amount, COALESCE(SUM(value_usd), 0) AS total_usd_amount").
		Where("project_id = ? AND status IN ?", projectId, model.CountedDonationStatuses).
		Where(column+" = ?", roundId).
		Scan(&totals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum donations for project %d %s: %w", projectId, roundKey, err)
	}

	record := model.ProjectRoundRecordModel{
		ProjectId:              projectId,
		RoundKey:               roundKey,
		EarlyAccessRoundId:     earlyAccessRoundId,
		QfRoundId:              qfRoundId,
		TotalDonationAmount:    totals.TotalAmount,
		TotalDonationUsdAmount: totals.TotalUsdAmount,
	}

	// 数值未变化时不更新，保证重复重算不改动行内容
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}, {Name: "round_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"total_donation_amount", "total_donation_usd_amount", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{clause.Expr{
			SQL: "project_round_record.total_donation_amount <> excluded.total_donation_amount OR " +
				"project_round_record.total_donation_usd_amount <> excluded.total_donation_usd_amount",
		}}},
	}).Create(&record).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert project round record for project %d %s: %w", projectId, roundKey, err)
	}

	return r.findProjectRoundRecord(ctx, projectId, roundKey)
}

// GetProjectRoundRecord 查询项目轮次累计记录，不存在时返回 nil
func (r *RecordLogic) GetProjectRoundRecord(ctx context.Context, projectId int64, qfRoundId, earlyAccessRoundId *int64) (*model.ProjectRoundRecordModel, error) {
	switch {
	case qfRoundId != nil && earlyAccessRoundId != nil:
		return nil, ErrAmbiguousRound
	case qfRoundId != nil:
		return r.findProjectRoundRecord(ctx, projectId, model.FormatRoundKey(model.RoundKindQf, *qfRoundId))
	case earlyAccessRoundId != nil:
		return r.findProjectRoundRecord(ctx, projectId, model.FormatRoundKey(model.RoundKindEarlyAccess, *earlyAccessRoundId))
	default:
		return nil, ErrNoRoundSpecified
	}
}

func (r *RecordLogic) findProjectRoundRecord(ctx context.Context, projectId int64, roundKey string) (*model.ProjectRoundRecordModel, error) {
	var record model.ProjectRoundRecordModel
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND round_key = ?", projectId, roundKey).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find project round record: %w", err)
	}
	return &record, nil
}

// UpdateOrCreateProjectUserRecord 重算用户在项目上的早期准入轮/QF 轮捐赠额并 upsert。
// 指定赛季时只统计归属轮次属于该赛季的捐赠。
func (r *RecordLogic) UpdateOrCreateProjectUserRecord(ctx context.Context, key ProjectUserKey) (*model.ProjectUserRecordModel, error) {
	db := r.db.WithContext(ctx)

	var totals struct {
		EaTotal float64
		QfTotal float64
	}
	query := db.Table("donation AS d").
		Select("COALESCE(SUM(CASE WHEN d.early_access_round_id IS NOT NULL THEN d.amount ELSE 0 END), 0) AS ea_total, "+
			"COALESCE(SUM(CASE WHEN d.qf_round_id IS NOT NULL THEN d.amount ELSE 0 END), 0) AS qf_total").
		Where("d.project_id = ? AND d.user_id = ? AND d.status IN ?", key.ProjectId, key.UserId, model.CountedDonationStatuses)
	if key.SeasonId != nil {
		query = query.
			Joins("LEFT JOIN early_access_round ear ON ear.id = d.early_access_round_id").
			Joins("LEFT JOIN qf_round qr ON qr.id = d.qf_round_id").
			Where("(ear.season_id = ? OR qr.season_id = ?)", *key.SeasonId, *key.SeasonId)
	}
	if err := query.Scan(&totals).Error; err != nil {
		return nil, fmt.Errorf("failed to sum donations for project %d user %d: %w", key.ProjectId, key.UserId, err)
	}

	record := model.ProjectUserRecordModel{
		ProjectId:             key.ProjectId,
		UserId:                key.UserId,
		SeasonId:              key.seasonColumn(),
		EaTotalDonationAmount: totals.EaTotal,
		QfTotalDonationAmount: totals.QfTotal,
		TotalDonationAmount:   totals.EaTotal + totals.QfTotal,
	}

	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "project_id"}, {Name: "user_id"}, {Name: "season_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"ea_total_donation_amount", "qf_total_donation_amount", "total_donation_amount", "updated_at",
		}),
		Where: clause.Where{Exprs: []clause.Expression{clause.Expr{
			SQL: "project_user_record.ea_total_donation_amount <> excluded.ea_total_donation_amount OR " +
				"project_user_record.qf_total_donation_amount <> excluded.qf_total_donation_amount",
		}}},
	}).Create(&record).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert project user record for project %d user %d: %w", key.ProjectId, key.UserId, err)
	}

	return r.GetProjectUserRecord(ctx, key)
}

// GetProjectUserRecord 查询用户项目累计记录，不存在时返回 nil
func (r *RecordLogic) GetProjectUserRecord(ctx context.Context, key ProjectUserKey) (*model.ProjectUserRecordModel, error) {
	var record model.ProjectUserRecordModel
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ? AND season_id = ?", key.ProjectId, key.UserId, key.seasonColumn()).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find project user record: %w", err)
	}
	return &record, nil
}

// ProjectUserTotalDonationAmounts 重算并返回用户在项目上的捐赠汇总
func (r *RecordLogic) ProjectUserTotalDonationAmounts(ctx context.Context, projectId, userId int64, seasonId *int64) (UserTotals, error) {
	record, err := r.UpdateOrCreateProjectUserRecord(ctx, ProjectUserKey{
		ProjectId: projectId,
		UserId:    userId,
		SeasonId:  seasonId,
	})
	if err != nil {
		return UserTotals{}, err
	}
	return UserTotals{
		TotalDonationAmount:   record.TotalDonationAmount,
		EaTotalDonationAmount: record.EaTotalDonationAmount,
		QfTotalDonationAmount: record.QfTotalDonationAmount,
	}, nil
}

// GetCumulativePastRoundsDonationAmounts 汇总指定轮次及其之前所有轮次的项目捐赠总额。
// 同一赛季内早期准入轮排在 QF 轮之前。
func (r *RecordLogic) GetCumulativePastRoundsDonationAmounts(ctx context.Context, q CumulativeQuery) (float64, error) {
	if q.EarlyAccessRoundId == nil && q.QfRoundId == nil {
		return 0, ErrNoRoundSpecified
	}

	db := r.db.WithContext(ctx)

	var (
		eaRounds *gorm.DB
		qfRounds *gorm.DB
	)
	if q.EarlyAccessRoundId != nil {
		var round model.EarlyAccessRoundModel
		if err := db.First(&round, *q.EarlyAccessRoundId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, ErrRoundNotFound
			}
			return 0, fmt.Errorf("failed to load early access round: %w", err)
		}
		eaRounds = seasonScoped(db.Model(&model.EarlyAccessRoundModel{}).Select("id").
			Where("round_number <= ?", round.RoundNumber), round.SeasonId)
	} else {
		var round model.QfRoundModel
		if err := db.First(&round, *q.QfRoundId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, ErrRoundNotFound
			}
			return 0, fmt.Errorf("failed to load qf round: %w", err)
		}
		eaRounds = seasonScoped(db.Model(&model.EarlyAccessRoundModel{}).Select("id"), round.SeasonId)
		qfRounds = seasonScoped(db.Model(&model.QfRoundModel{}).Select("id").
			Where("round_number <= ?", round.RoundNumber), round.SeasonId)
	}

	query := db.Model(&model.ProjectRoundRecordModel{}).
		Select("COALESCE(SUM(total_donation_amount), 0)").
		Where("project_id = ?", q.ProjectId)
	if qfRounds != nil {
		query = query.Where("(early_access_round_id IN (?) OR qf_round_id IN (?))", eaRounds, qfRounds)
	} else {
		query = query.Where("early_access_round_id IN (?)", eaRounds)
	}

	var total float64
	if err := query.Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to sum past round records for project %d: %w", q.ProjectId, err)
	}
	return total, nil
}

// ProjectRoundTotal 项目在轮次内已计入的捐赠额，优先读取累计记录，不存在时实时汇总
func (r *RecordLogic) ProjectRoundTotal(ctx context.Context, projectId int64, round model.Round) (float64, error) {
	record, err := r.findProjectRoundRecord(ctx, projectId, model.RoundKey(round))
	if err != nil {
		return 0, err
	}
	if record != nil {
		return record.TotalDonationAmount, nil
	}
	return r.liveRoundSum(ctx, projectId, nil, round)
}

// UserRoundTotal 用户在项目该轮次内已计入的捐赠额，匿名用户为 0
func (r *RecordLogic) UserRoundTotal(ctx context.Context, projectId int64, userId *int64, round model.Round) (float64, error) {
	if userId == nil {
		return 0, nil
	}
	return r.liveRoundSum(ctx, projectId, userId, round)
}

func (r *RecordLogic) liveRoundSum(ctx context.Context, projectId int64, userId *int64, round model.Round) (float64, error) {
	query := r.db.WithContext(ctx).Model(&model.DonationModel{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("project_id = ? AND status IN ?", projectId, model.CountedDonationStatuses).
		Where(roundColumn(round.Kind())+" = ?", round.RoundID())
	if userId != nil {
		query = query.Where("user_id = ?", *userId)
	}

	var total float64
	if err := query.Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to sum donations for project %d %s: %w", projectId, model.RoundKey(round), err)
	}
	return total, nil
}

// Recompute 按去重后的键重算累计记录。
// 用户记录同时重算轮次所属赛季和不限赛季两条。
func (r *RecordLogic) Recompute(ctx context.Context, touches ...LedgerTouch) error {
	rounds := make(map[string]LedgerTouch)
	users := make(map[ProjectUserKey]struct{})

	for _, t := range touches {
		if t.Round != nil {
			rounds[fmt.Sprintf("%d/%s", t.ProjectId, model.RoundKey(t.Round))] = t
		}
		if t.UserId == nil {
			continue
		}
		users[ProjectUserKey{ProjectId: t.ProjectId, UserId: *t.UserId}] = struct{}{}
		if t.Round != nil && t.Round.Season() != nil {
			season := *t.Round.Season()
			users[ProjectUserKey{ProjectId: t.ProjectId, UserId: *t.UserId, SeasonId: &season}] = struct{}{}
		}
	}

	var errs []error
	for _, t := range rounds {
		qfRoundId, eaRoundId := roundIds(t.Round)
		if _, err := r.UpdateOrCreateProjectRoundRecord(ctx, t.ProjectId, qfRoundId, eaRoundId); err != nil {
			errs = append(errs, err)
		}
	}
	for key := range users {
		if _, err := r.UpdateOrCreateProjectUserRecord(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		logger.Error("Ledger recompute finished with %d errors", len(errs))
		return errors.Join(errs...)
	}
	return nil
}

// roundColumn 轮次类型对应的 donation 列
func roundColumn(kind model.RoundKind) string {
	if kind == model.RoundKindEarlyAccess {
		return "early_access_round_id"
	}
	return "qf_round_id"
}

// roundIds 拆分为 (qfRoundId, earlyAccessRoundId)
func roundIds(round model.Round) (*int64, *int64) {
	id := round.RoundID()
	if round.Kind() == model.RoundKindEarlyAccess {
		return nil, &id
	}
	return &id, nil
}

func seasonScoped(query *gorm.DB, seasonId *int64) *gorm.DB {
	if seasonId == nil {
		return query
	}
	return query.Where("season_id = ?", *seasonId)
}
