package reward

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/chain"
	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ErrNoOrchestrator 项目没有配置编排合约地址
var ErrNoOrchestrator = errors.New("project has no orchestrator address")

// 奖励代币精度
const rewardTokenDecimals = 18

// Stream 奖励线性释放参数
type Stream struct {
	Start time.Time
	End   time.Time
	Cliff time.Duration
}

// ProjectRewards 项目在轮次内的奖励数据
type ProjectRewards struct {
	Participants Report
	Stream       *Stream // 为空时使用配置中的释放参数
}

// Source 奖励数据来源。donations 为项目在轮次内的全部已确认捐赠，
// 包括已回填奖励的捐赠，参与者的有效捐赠总额以此为基数。
type Source interface {
	ProjectRewards(ctx context.Context, project *model.ProjectModel, round model.Round, donations []model.DonationModel) (*ProjectRewards, error)
}

// ReportSource 从报告文件读取
type ReportSource struct {
	store *FileReportStore
}

// NewReportSource 创建报告文件来源
func NewReportSource(store *FileReportStore) *ReportSource {
	return &ReportSource{store: store}
}

// ProjectRewards 实现 Source
func (s *ReportSource) ProjectRewards(ctx context.Context, project *model.ProjectModel, round model.Round, donations []model.DonationModel) (*ProjectRewards, error) {
	report, err := s.store.ProjectReport(project, round)
	if err != nil {
		return nil, err
	}
	return &ProjectRewards{Participants: report}, nil
}

// VestingReader 链上读取接口，由 *chain.Reader 实现
type VestingReader interface {
	GetProjectRewardInfo(ctx context.Context, orchestrator common.Address) ([]chain.Vesting, error)
	GetBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error)
}

// ChainSource 从项目编排合约的 vesting 构造奖励数据。
// 参与者的有效捐赠为其在轮次窗口内上链的捐赠。
type ChainSource struct {
	reader VestingReader
}

// NewChainSource 创建链上来源
func NewChainSource(reader VestingReader) *ChainSource {
	return &ChainSource{reader: reader}
}

// ProjectRewards 实现 Source
func (s *ChainSource) ProjectRewards(ctx context.Context, project *model.ProjectModel, round model.Round, donations []model.DonationModel) (*ProjectRewards, error) {
	if project.OrchestratorAddress == "" {
		return nil, fmt.Errorf("project %d: %w", project.Id, ErrNoOrchestrator)
	}

	vestings, err := s.reader.GetProjectRewardInfo(ctx, common.HexToAddress(project.OrchestratorAddress))
	if err != nil {
		return nil, err
	}
	if len(vestings) == 0 {
		return nil, fmt.Errorf("project %d has no vestings: %w", project.Id, ErrReportNotFound)
	}

	report := make(Report)
	for _, v := range vestings {
		address := strings.ToLower(v.Recipient.Hex())
		p := report[address]
		p.IssuanceAllocation = p.IssuanceAllocation.Add(decimal.NewFromBigInt(v.Amount, -rewardTokenDecimals))
		report[address] = p
	}

	for _, d := range donations {
		address := strings.ToLower(d.FromWalletAddress)
		p, ok := report[address]
		if !ok {
			continue
		}

		at := d.CreatedAt
		if d.BlockNumber > 0 {
			at, err = s.reader.GetBlockTimestamp(ctx, uint64(d.BlockNumber))
			if err != nil {
				return nil, err
			}
		}
		if at.Before(round.Begin()) || at.After(round.End()) {
			continue
		}

		amount := decimal.NewFromFloat(d.Amount)
		p.Transactions = append(p.Transactions, Transaction{
			TransactionHash:   d.TransactionId,
			ValidContribution: Collateral{InCollateral: amount},
		})
		p.ValidContribution.InCollateral = p.ValidContribution.InCollateral.Add(amount)
		report[address] = p
	}

	first := vestings[0]
	return &ProjectRewards{
		Participants: report,
		Stream:       &Stream{Start: first.Start, End: first.End, Cliff: first.Cliff},
	}, nil
}
