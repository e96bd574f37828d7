package logic

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/logger"
	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/model"
	"gorm.io/gorm"
)

// 未计入轮次的原因
const (
	ReasonNoActiveRound      = "no active round"
	ReasonProjectCapExceeded = "project cap exceeded"
	ReasonUserCapExceeded    = "user cap exceeded"
)

// DonationEvaluation 待校验的捐赠
type DonationEvaluation struct {
	ProjectId int64
	UserId    *int64
	Amount    float64
	Timestamp time.Time
	NetworkId int
	Round     model.Round // 已确定轮次时跳过轮次判定
}

// Decision 上限校验结果。Accepted 为 false 时捐赠仍然保存，只是不归属任何轮次。
type Decision struct {
	Accepted bool
	Round    model.Round // 判定出的轮次，可能为空
	Reason   string
}

// AttributedRound 捐赠应归属的轮次
func (d Decision) AttributedRound() model.Round {
	if !d.Accepted {
		return nil
	}
	return d.Round
}

// DonationLogic 捐赠写入与上限校验
type DonationLogic struct {
	db       *gorm.DB
	caps     *CapLogic
	records  *RecordLogic
	matching *MatchingLogic
	strict   bool
	now      func() time.Time
}

// NewDonationLogic 创建捐赠业务逻辑。matching 可以为空，此时不触发匹配统计刷新。
func NewDonationLogic(db *gorm.DB, caps *CapLogic, records *RecordLogic, matching *MatchingLogic) *DonationLogic {
	return &DonationLogic{
		db:       db,
		caps:     caps,
		records:  records,
		matching: matching,
		now:      time.Now,
	}
}

// WithStrictCaps 开启后同一 (项目, 轮次) 的校验与写入串行执行
func (l *DonationLogic) WithStrictCaps(strict bool) *DonationLogic {
	l.strict = strict
	return l
}

// EvaluateDonation 校验捐赠是否在轮次上限内
func (l *DonationLogic) EvaluateDonation(ctx context.Context, in DonationEvaluation) (Decision, error) {
	return l.evaluate(ctx, l.caps, l.records, in)
}

func (l *DonationLogic) evaluate(ctx context.Context, caps *CapLogic, records *RecordLogic, in DonationEvaluation) (Decision, error) {
	round := in.Round
	if round == nil {
		var err error
		round, err = caps.ResolveRound(ctx, CapQuery{
			ProjectId: in.ProjectId,
			UserId:    in.UserId,
			Timestamp: in.Timestamp,
			NetworkId: in.NetworkId,
		})
		if err != nil {
			return Decision{}, err
		}
	}
	if round == nil {
		return Decision{Accepted: true, Reason: ReasonNoActiveRound}, nil
	}

	limits, err := caps.CapsFor(ctx, round, in.UserId)
	if err != nil {
		return Decision{}, err
	}
	if limits.Unlimited() {
		return Decision{Accepted: true, Round: round}, nil
	}

	projectTotal, err := records.ProjectRoundTotal(ctx, in.ProjectId, round)
	if err != nil {
		return Decision{}, err
	}
	if projectTotal+in.Amount > limits.ProjectCap {
		return Decision{Round: round, Reason: ReasonProjectCapExceeded}, nil
	}

	userTotal, err := records.UserRoundTotal(ctx, in.ProjectId, in.UserId, round)
	if err != nil {
		return Decision{}, err
	}
	if userTotal+in.Amount > limits.UserCap {
		return Decision{Round: round, Reason: ReasonUserCapExceeded}, nil
	}

	return Decision{Accepted: true, Round: round}, nil
}

// CreateDonation 校验上限、确定轮次归属并保存捐赠，随后重算累计记录。
// 超出上限不会导致失败，捐赠以未归属轮次的状态保存。
func (l *DonationLogic) CreateDonation(ctx context.Context, donation *model.DonationModel) (*model.DonationModel, error) {
	if err := l.validateDonation(ctx, donation); err != nil {
		return nil, err
	}
	if donation.CreatedAt.IsZero() {
		donation.CreatedAt = l.now().UTC()
	}

	in := DonationEvaluation{
		ProjectId: donation.ProjectId,
		UserId:    donation.UserId,
		Amount:    donation.Amount,
		Timestamp: donation.CreatedAt,
		NetworkId: donation.TransactionNetworkId,
	}

	var decision Decision
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		records := l.records.withDB(tx)
		caps := &CapLogic{db: tx, rounds: NewRoundLogic(tx), records: records}

		if l.strict {
			round, err := caps.ResolveRound(ctx, CapQuery{
				ProjectId: in.ProjectId,
				UserId:    in.UserId,
				Timestamp: in.Timestamp,
				NetworkId: in.NetworkId,
			})
			if err != nil {
				return err
			}
			if round != nil {
				if err := lockProjectRound(tx, donation.ProjectId, round); err != nil {
					return err
				}
			}
			in.Round = round
		}

		var err error
		decision, err = l.evaluate(ctx, caps, records, in)
		if err != nil {
			return err
		}

		donation.AttributeTo(decision.AttributedRound())
		if err := tx.Create(donation).Error; err != nil {
			return fmt.Errorf("failed to create donation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !decision.Accepted && decision.Round != nil {
		logger.Info("Donation %d to project %d not counted in %s: %s",
			donation.Id, donation.ProjectId, model.RoundKey(decision.Round), decision.Reason)
	}

	l.afterWrite(ctx, donation, decision.AttributedRound(), false)
	return donation, nil
}

// UpdateDonationStatus 更新捐赠状态并重算相关累计记录
func (l *DonationLogic) UpdateDonationStatus(ctx context.Context, id int64, status model.DonationStatus) (*model.DonationModel, error) {
	if !status.IsValid() {
		return nil, ErrInvalidStatus
	}

	var donation model.DonationModel
	if err := l.db.WithContext(ctx).First(&donation, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDonationNotFound
		}
		return nil, fmt.Errorf("failed to load donation %d: %w", id, err)
	}
	if donation.Status == status {
		return &donation, nil
	}

	previous := donation.Status
	if err := l.db.WithContext(ctx).Model(&donation).Update("status", status).Error; err != nil {
		return nil, fmt.Errorf("failed to update donation %d status: %w", id, err)
	}

	var round model.Round
	if kind, roundId, ok := donation.AttributedRound(); ok {
		r, err := l.caps.rounds.FindRoundByID(ctx, kind, roundId)
		if err != nil {
			logger.Error("Failed to load round for donation %d: %v", id, err)
		}
		round = r
	}

	verifiedChanged := previous == model.DonationStatusVerified || status == model.DonationStatusVerified
	l.afterWrite(ctx, &donation, round, verifiedChanged)
	return &donation, nil
}

// afterWrite 重算累计记录，失败只记录日志；累计记录可重算，不影响已保存的捐赠
func (l *DonationLogic) afterWrite(ctx context.Context, donation *model.DonationModel, round model.Round, verifiedChanged bool) {
	touch := LedgerTouch{ProjectId: donation.ProjectId, Round: round, UserId: donation.UserId}
	if err := l.records.Recompute(ctx, touch); err != nil {
		logger.Error("Failed to recompute ledger for donation %d: %v", donation.Id, err)
	}

	if l.matching == nil || donation.QfRoundId == nil {
		return
	}
	if verifiedChanged || donation.Status == model.DonationStatusVerified {
		if err := l.matching.RefreshQfRoundMatching(ctx, *donation.QfRoundId); err != nil {
			logger.Error("Failed to refresh estimated matching after donation %d: %v", donation.Id, err)
		}
	}
}

// validateDonation 结构性校验
func (l *DonationLogic) validateDonation(ctx context.Context, donation *model.DonationModel) error {
	if donation.ProjectId == 0 {
		return ErrProjectNotFound
	}
	if donation.Amount <= 0 {
		return ErrInvalidAmount
	}
	if donation.Status == "" {
		donation.Status = model.DonationStatusPending
	}
	if !donation.Status.IsValid() {
		return ErrInvalidStatus
	}

	var project model.ProjectModel
	err := l.db.WithContext(ctx).Select("id", "status").First(&project, donation.ProjectId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrProjectNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check project %d: %w", donation.ProjectId, err)
	}
	if project.Status != model.ProjectStatusActive {
		return ErrProjectNotActive
	}
	return nil
}

// lockProjectRound 事务级咨询锁，只在 postgres 上生效
func lockProjectRound(tx *gorm.DB, projectId int64, round model.Round) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}

	h := fnv.New64a()
	fmt.Fprintf(h, "%d/%s", projectId, model.RoundKey(round))
	if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", int64(h.Sum64())).Error; err != nil {
		return fmt.Errorf("failed to lock project %d %s: %w", projectId, model.RoundKey(round), err)
	}
	return nil
}
