package reward

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/config"
	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/logger"
	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/logic"
	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/model"
	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrRoundAlreadyExecuted 轮次已完成批量铸造
var ErrRoundAlreadyExecuted = errors.New("batch minting already executed for round")

// OutcomeKind 单笔捐赠的处理结果
type OutcomeKind string

const (
	OutcomeUpdated      OutcomeKind = "updated"      // 写入了奖励字段
	OutcomeUnchanged    OutcomeKind = "unchanged"    // 已是正确结果
	OutcomeUnattributed OutcomeKind = "unattributed" // 报告中不存在，取消轮次归属
	OutcomeSkipped      OutcomeKind = "skipped"      // 缺少数据，未处理
)

// Outcome 单笔捐赠的处理记录
type Outcome struct {
	DonationId int64       `json:"donation_id"`
	ProjectId  int64       `json:"project_id"`
	Kind       OutcomeKind `json:"kind"`
	Reassigned bool        `json:"reassigned,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

// Summary 一次轮次对账的结果
type Summary struct {
	Round          string    `json:"round"`
	Projects       int       `json:"projects"`
	FailedProjects []int64   `json:"failed_projects,omitempty"`
	Outcomes       []Outcome `json:"outcomes"`
}

// Count 指定结果的捐赠数量
func (s Summary) Count(kind OutcomeKind) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

// Options 对账选项
type Options struct {
	Force        bool // 重新处理已有奖励字段的捐赠，并忽略已执行标记
	MarkExecuted bool // 全部项目成功后设置批量铸造已执行标记
}

// Reconciler 根据奖励数据回填捐赠的奖励字段并修正轮次归属
type Reconciler struct {
	db      *gorm.DB
	source  Source
	rounds  *logic.RoundLogic
	records *logic.RecordLogic
	cfg     config.RewardConfig
}

// NewReconciler 创建对账器
func NewReconciler(db *gorm.DB, source Source, rounds *logic.RoundLogic, records *logic.RecordLogic, cfg config.RewardConfig) *Reconciler {
	return &Reconciler{db: db, source: source, rounds: rounds, records: records, cfg: cfg}
}

type projectResult struct {
	outcomes []Outcome
	touches  []logic.LedgerTouch
	err      error
}

// ReconcileRound 对轮次内的每个项目执行对账，单个项目失败不影响其他项目
func (r *Reconciler) ReconcileRound(ctx context.Context, round model.Round, opts Options) (Summary, error) {
	key := model.RoundKey(round)
	summary := Summary{Round: key}

	if round.BatchMintingExecuted() && !opts.Force {
		return summary, fmt.Errorf("%s: %w", key, ErrRoundAlreadyExecuted)
	}

	stream, err := r.defaultStream(round)
	if err != nil {
		return summary, err
	}

	donations, err := r.roundDonations(ctx, round)
	if err != nil {
		return summary, err
	}
	// byProject 用于奖励数据的分配基数，pending 为本次需要处理的捐赠
	byProject := make(map[int64][]model.DonationModel)
	pending := make(map[int64][]model.DonationModel)
	for _, d := range donations {
		byProject[d.ProjectId] = append(byProject[d.ProjectId], d)
		if opts.Force || d.RewardTokenAmount == nil {
			pending[d.ProjectId] = append(pending[d.ProjectId], d)
		}
	}
	if len(pending) == 0 {
		logger.Info("No donations to reconcile for %s", key)
		return summary, r.finish(ctx, round, opts, nil)
	}

	projectIds := make([]int64, 0, len(pending))
	for id := range pending {
		projectIds = append(projectIds, id)
	}
	var projects []model.ProjectModel
	if err := r.db.WithContext(ctx).Where("id IN ?", projectIds).Order("id ASC").Find(&projects).Error; err != nil {
		return summary, fmt.Errorf("failed to load projects: %w", err)
	}
	summary.Projects = len(projects)

	workers := r.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return summary, fmt.Errorf("failed to create reconcile pool: %w", err)
	}
	defer pool.Release()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		touches []logic.LedgerTouch
	)
	for i := range projects {
		project := &projects[i]
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			result := r.reconcileProject(ctx, project, round, byProject[project.Id], pending[project.Id], stream)

			mu.Lock()
			defer mu.Unlock()
			summary.Outcomes = append(summary.Outcomes, result.outcomes...)
			touches = append(touches, result.touches...)
			if result.err != nil {
				summary.FailedProjects = append(summary.FailedProjects, project.Id)
			}
		})
		if err != nil {
			wg.Done()
			logger.Error("Failed to submit project %d to pool: %v", project.Id, err)
			mu.Lock()
			summary.FailedProjects = append(summary.FailedProjects, project.Id)
			mu.Unlock()
		}
	}
	wg.Wait()

	if err := r.records.Recompute(ctx, touches...); err != nil {
		return summary, fmt.Errorf("failed to recompute ledger after reconciling %s: %w", key, err)
	}

	logger.Info("Reconciled %s: %d projects, %d updated, %d unchanged, %d unattributed, %d skipped",
		key, summary.Projects, summary.Count(OutcomeUpdated), summary.Count(OutcomeUnchanged),
		summary.Count(OutcomeUnattributed), summary.Count(OutcomeSkipped))

	return summary, r.finish(ctx, round, opts, summary.FailedProjects)
}

// finish 全部项目成功时设置已执行标记
func (r *Reconciler) finish(ctx context.Context, round model.Round, opts Options, failed []int64) error {
	if !opts.MarkExecuted {
		return nil
	}
	if len(failed) > 0 {
		logger.Warn("Not marking %s as executed, %d projects failed", model.RoundKey(round), len(failed))
		return nil
	}
	return r.rounds.MarkBatchMintingExecuted(ctx, round)
}

// roundDonations 归属于该轮次或在轮次窗口内创建的已确认捐赠，包括已有奖励的捐赠
func (r *Reconciler) roundDonations(ctx context.Context, round model.Round) ([]model.DonationModel, error) {
	column := "qf_round_id"
	if round.Kind() == model.RoundKindEarlyAccess {
		column = "early_access_round_id"
	}

	query := r.db.WithContext(ctx).
		Where("status = ?", model.DonationStatusVerified).
		Where("("+column+" = ? OR (created_at >= ? AND created_at <= ?))", round.RoundID(), round.Begin(), round.End())
	var donations []model.DonationModel
	if err := query.Order("id ASC").Find(&donations).Error; err != nil {
		return nil, fmt.Errorf("failed to load donations for %s: %w", model.RoundKey(round), err)
	}
	return donations, nil
}

// defaultStream 按轮次类型取配置的释放参数，未配置起点时以轮次结束时间为起点
func (r *Reconciler) defaultStream(round model.Round) (Stream, error) {
	vesting := r.cfg.Qf
	if round.Kind() == model.RoundKindEarlyAccess {
		vesting = r.cfg.EarlyAccess
	}

	start, err := vesting.StreamStartTime(round.End())
	if err != nil {
		return Stream{}, fmt.Errorf("invalid reward stream start %q: %w", vesting.StreamStart, err)
	}
	return Stream{Start: start, End: start.Add(vesting.StreamDuration), Cliff: vesting.Cliff}, nil
}

// reconcileProject all 为项目在轮次内的全部捐赠，只处理 donations
func (r *Reconciler) reconcileProject(ctx context.Context, project *model.ProjectModel, round model.Round, all, donations []model.DonationModel, stream Stream) projectResult {
	var result projectResult

	logger.Info("Reconciling project %d (%s) for %s with %d of %d donations",
		project.Id, project.Slug, model.RoundKey(round), len(donations), len(all))

	rewards, err := r.source.ProjectRewards(ctx, project, round, all)
	if err != nil {
		logger.Error("Failed to load rewards for project %d: %v", project.Id, err)
		result.err = err
		for _, d := range donations {
			result.outcomes = append(result.outcomes, Outcome{
				DonationId: d.Id, ProjectId: project.Id, Kind: OutcomeSkipped, Reason: err.Error(),
			})
		}
		return result
	}
	if rewards.Stream != nil {
		stream = *rewards.Stream
	}

	for i := range donations {
		outcome, touches, err := r.reconcileDonation(ctx, &donations[i], round, rewards.Participants, stream)
		if err != nil {
			logger.Error("Failed to reconcile donation %d: %v", donations[i].Id, err)
			outcome = Outcome{Kind: OutcomeSkipped, Reason: err.Error()}
		}
		outcome.DonationId = donations[i].Id
		outcome.ProjectId = project.Id
		result.outcomes = append(result.outcomes, outcome)
		result.touches = append(result.touches, touches...)
	}
	return result
}

func (r *Reconciler) reconcileDonation(ctx context.Context, d *model.DonationModel, round model.Round, report Report, stream Stream) (Outcome, []logic.LedgerTouch, error) {
	touch := logic.LedgerTouch{ProjectId: d.ProjectId, Round: round, UserId: d.UserId}
	attributedHere := attributedTo(d, round)

	participant, ok := report.Participant(d.FromWalletAddress)
	if !ok {
		if !attributedHere {
			return Outcome{Kind: OutcomeSkipped, Reason: "wallet not in report"}, nil, nil
		}
		d.AttributeTo(nil)
		if err := r.saveAttribution(ctx, d); err != nil {
			return Outcome{}, nil, err
		}
		logger.Warn("Donation %d from %s is not in the %s report, removed from round",
			d.Id, d.FromWalletAddress, model.RoundKey(round))
		return Outcome{Kind: OutcomeUnattributed}, []logic.LedgerTouch{touch}, nil
	}

	tx, ok := participant.Transaction(d.TransactionId)
	if !ok {
		logger.Warn("Donation %d transaction %s not found in report for %s", d.Id, d.TransactionId, d.FromWalletAddress)
		return Outcome{Kind: OutcomeSkipped, Reason: "transaction not in report"}, nil, nil
	}
	if !participant.ValidContribution.InCollateral.IsPositive() {
		logger.Warn("Participant %s has no valid contribution in report", d.FromWalletAddress)
		return Outcome{Kind: OutcomeSkipped, Reason: "no valid contribution"}, nil, nil
	}

	amount := participant.IssuanceAllocation.
		Mul(tx.ValidContribution.InCollateral).
		Div(participant.ValidContribution.InCollateral)

	var touches []logic.LedgerTouch
	reassigned := !attributedHere
	if reassigned {
		if kind, id, ok := d.AttributedRound(); ok {
			previous, err := r.rounds.FindRoundByID(ctx, kind, id)
			if err != nil {
				return Outcome{}, nil, err
			}
			touches = append(touches, logic.LedgerTouch{ProjectId: d.ProjectId, Round: previous, UserId: d.UserId})
		}
		logger.Warn("Donation %d attributed to %s, reassigning to %s",
			d.Id, attributionLabel(d), model.RoundKey(round))
		d.AttributeTo(round)
		touches = append(touches, touch)
	}

	if !reassigned && hasReward(d, amount, stream) {
		return Outcome{Kind: OutcomeUnchanged}, nil, nil
	}

	rewardAmount := amount.InexactFloat64()
	cliff := stream.Cliff.Seconds()
	start, end := stream.Start, stream.End
	err := r.db.WithContext(ctx).Model(&model.DonationModel{}).Where("id = ?", d.Id).Updates(map[string]interface{}{
		"early_access_round_id": d.EarlyAccessRoundId,
		"qf_round_id":           d.QfRoundId,
		"reward_token_amount":   rewardAmount,
		"reward_stream_start":   start,
		"reward_stream_end":     end,
		"cliff":                 cliff,
	}).Error
	if err != nil {
		return Outcome{}, nil, fmt.Errorf("failed to save reward for donation %d: %w", d.Id, err)
	}
	d.RewardTokenAmount, d.RewardStreamStart, d.RewardStreamEnd, d.Cliff = &rewardAmount, &start, &end, &cliff

	return Outcome{Kind: OutcomeUpdated, Reassigned: reassigned}, touches, nil
}

func (r *Reconciler) saveAttribution(ctx context.Context, d *model.DonationModel) error {
	err := r.db.WithContext(ctx).Model(&model.DonationModel{}).Where("id = ?", d.Id).Updates(map[string]interface{}{
		"early_access_round_id": d.EarlyAccessRoundId,
		"qf_round_id":           d.QfRoundId,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update round of donation %d: %w", d.Id, err)
	}
	return nil
}

func attributedTo(d *model.DonationModel, round model.Round) bool {
	kind, id, ok := d.AttributedRound()
	return ok && kind == round.Kind() && id == round.RoundID()
}

func attributionLabel(d *model.DonationModel) string {
	if kind, id, ok := d.AttributedRound(); ok {
		return model.FormatRoundKey(kind, id)
	}
	return "no round"
}

// hasReward 奖励字段已与计算结果一致
func hasReward(d *model.DonationModel, amount decimal.Decimal, stream Stream) bool {
	if d.RewardTokenAmount == nil || d.RewardStreamStart == nil || d.RewardStreamEnd == nil || d.Cliff == nil {
		return false
	}
	return decimal.NewFromFloat(*d.RewardTokenAmount).Equal(decimal.NewFromFloat(amount.InexactFloat64())) &&
		d.RewardStreamStart.Equal(stream.Start) &&
		d.RewardStreamEnd.Equal(stream.End) &&
		*d.Cliff == stream.Cliff.Seconds()
}
