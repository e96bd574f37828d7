package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockMatching struct {
	mock.Mock
}

func (m *mockMatching) FillMissingTokenPriceInQfRounds(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockMatching) FillMissingTokenPriceInEarlyAccessRounds(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockMatching) RefreshEstimatedMatchingView(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestTokenPriceFillJob_Execute(t *testing.T) {
	matching := &mockMatching{}
	matching.On("FillMissingTokenPriceInEarlyAccessRounds", mock.Anything).Return(0, errors.New("oracle down")).Once()
	matching.On("FillMissingTokenPriceInQfRounds", mock.Anything).Return(2, nil).Once()

	job := NewTokenPriceFillJob(matching, 60)
	assert.Equal(t, "round_token_price_filler", job.GetName())
	assert.NotNil(t, job.GetSchedule())

	job.Execute()
	matching.AssertExpectations(t)
}

func TestMatchingRefreshJob_Execute(t *testing.T) {
	matching := &mockMatching{}
	matching.On("RefreshEstimatedMatchingView", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	})).Return(nil).Once()

	job := NewMatchingRefreshJob(matching, 30)
	assert.Equal(t, "estimated_matching_refresher", job.GetName())

	job.Execute()
	matching.AssertExpectations(t)
}

func TestManager_RegistersJobs(t *testing.T) {
	matching := &mockMatching{}
	matching.On("RefreshEstimatedMatchingView", mock.Anything).Return(nil).Maybe()
	matching.On("FillMissingTokenPriceInEarlyAccessRounds", mock.Anything).Return(0, nil).Maybe()
	matching.On("FillMissingTokenPriceInQfRounds", mock.Anything).Return(0, nil).Maybe()

	manager, err := NewManager(
		NewTokenPriceFillJob(matching, 3600),
		NewMatchingRefreshJob(matching, 3600),
	)
	require.NoError(t, err)

	manager.RegisterJobs()
	jobs := manager.scheduler.Jobs()
	require.Len(t, jobs, 2)

	names := []string{jobs[0].Name(), jobs[1].Name()}
	assert.ElementsMatch(t, []string{"round_token_price_filler", "estimated_matching_refresher"}, names)

	manager.scheduler.Start()
	time.Sleep(10 * time.Millisecond)
	manager.Stop()
}
