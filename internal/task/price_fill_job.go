package task

import (
	"context"
	"time"

	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/logger"
	"github.com/go-co-op/gocron/v2"
)

// TokenPriceFiller 回填轮次代币价格，由 *logic.MatchingLogic 实现
type TokenPriceFiller interface {
	FillMissingTokenPriceInQfRounds(ctx context.Context) (int, error)
	FillMissingTokenPriceInEarlyAccessRounds(ctx context.Context) (int, error)
}

// TokenPriceFillJob 代币价格回填任务
type TokenPriceFillJob struct {
	filler   TokenPriceFiller
	interval time.Duration
	timeout  time.Duration
}

// NewTokenPriceFillJob 创建代币价格回填任务，interval 单位为秒
func NewTokenPriceFillJob(filler TokenPriceFiller, interval int) *TokenPriceFillJob {
	return &TokenPriceFillJob{
		filler:   filler,
		interval: time.Duration(interval) * time.Second,
		timeout:  5 * time.Minute,
	}
}

// GetName 获取任务名称
func (j *TokenPriceFillJob) GetName() string {
	return "round_token_price_filler"
}

// GetSchedule 获取调度配置
func (j *TokenPriceFillJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行任务
func (j *TokenPriceFillJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	eaFilled, err := j.filler.FillMissingTokenPriceInEarlyAccessRounds(ctx)
	if err != nil {
		logger.Error("Failed to fill early access round token prices: %v", err)
	}

	qfFilled, err := j.filler.FillMissingTokenPriceInQfRounds(ctx)
	if err != nil {
		logger.Error("Failed to fill qf round token prices: %v", err)
	}

	if eaFilled+qfFilled > 0 {
		logger.Info("Token price fill completed. Filled %d early access rounds and %d qf rounds", eaFilled, qfFilled)
	}
}
