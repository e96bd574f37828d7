package task

import (
	"context"
	"time"

	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/logger"
	"github.com/go-co-op/gocron/v2"
)

// MatchingRefresher 重建预计匹配统计，由 *logic.MatchingLogic 实现
type MatchingRefresher interface {
	RefreshEstimatedMatchingView(ctx context.Context) error
}

// MatchingRefreshJob 预计匹配统计刷新任务
type MatchingRefreshJob struct {
	refresher MatchingRefresher
	interval  time.Duration
}

// NewMatchingRefreshJob 创建匹配刷新任务，interval 单位为秒
func NewMatchingRefreshJob(refresher MatchingRefresher, interval int) *MatchingRefreshJob {
	return &MatchingRefreshJob{
		refresher: refresher,
		interval:  time.Duration(interval) * time.Second,
	}
}

// GetName 获取任务名称
func (j *MatchingRefreshJob) GetName() string {
	return "estimated_matching_refresher"
}

// GetSchedule 获取调度配置
func (j *MatchingRefreshJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行任务
func (j *MatchingRefreshJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), j.interval)
	defer cancel()

	start := time.Now()
	if err := j.refresher.RefreshEstimatedMatchingView(ctx); err != nil {
		logger.Error("Failed to refresh estimated matching: %v", err)
		return
	}
	logger.Debug("Estimated matching refreshed in %s", time.Since(start))
}
