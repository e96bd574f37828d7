package logic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPriceOracle struct {
	mock.Mock
}

func (m *mockPriceOracle) GetTokenPriceAtDate(ctx context.Context, symbol string, date time.Time) (float64, error) {
	args := m.Called(ctx, symbol, date)
	return args.Get(0).(float64), args.Error(1)
}

func sameInstant(want time.Time) interface{} {
	return mock.MatchedBy(func(got time.Time) bool { return got.Equal(want) })
}

func TestMatchingLogic_SqrtRootSum(t *testing.T) {
	db := setupTestDB(t)
	l := newTestLogics(db, nil)
	ctx := context.Background()
	start := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	round := createQfRound(t, db, model.QfRoundModel{RoundNumber: 1, IsActive: true, BeginDate: start, EndDate: start.AddDate(0, 0, 14), AllocatedFund: 1000})
	projectA := createProject(t, db, "project-a")
	projectB := createProject(t, db, "project-b")

	// 每个用户的美元总额为 4, 25, 100, 1024，sqrt 之和为 49
	users := make([]*model.UserModel, 4)
	for i := range users {
		users[i] = createUser(t, db, "0xmatch"+string(rune('a'+i)), false)
	}
	for _, d := range []struct {
		user  int
		value float64
	}{
		{0, 1}, {0, 3},
		{1, 25},
		{2, 60}, {2, 40},
		{3, 1000}, {3, 24},
	} {
		insertDonation(t, db, model.DonationModel{ProjectId: projectA.Id, UserId: &users[d.user].Id, Amount: d.value, ValueUsd: d.value, QfRoundId: &round.Id})
	}
	// 未确认和未归属的捐赠不计入
	insertDonation(t, db, model.DonationModel{ProjectId: projectA.Id, UserId: &users[0].Id, Amount: 500, ValueUsd: 500, QfRoundId: &round.Id, Status: model.DonationStatusPending})
	insertDonation(t, db, model.DonationModel{ProjectId: projectA.Id, UserId: &users[1].Id, Amount: 500, ValueUsd: 500})

	// 项目 B：一个用户 9 + 两笔匿名 16 和 64，sqrt 之和为 3 + 4 + 8 = 15
	insertDonation(t, db, model.DonationModel{ProjectId: projectB.Id, UserId: &users[0].Id, Amount: 9, ValueUsd: 9, QfRoundId: &round.Id})
	insertDonation(t, db, model.DonationModel{ProjectId: projectB.Id, Amount: 16, ValueUsd: 16, QfRoundId: &round.Id})
	insertDonation(t, db, model.DonationModel{ProjectId: projectB.Id, Amount: 64, ValueUsd: 64, QfRoundId: &round.Id})

	require.NoError(t, l.matching.RefreshEstimatedMatchingView(ctx))

	sumA, err := l.matching.GetProjectDonationsSqrtRootSum(ctx, projectA.Id, round.Id)
	require.NoError(t, err)
	assert.InDelta(t, 49.0, sumA, 1e-9)

	sumB, err := l.matching.GetProjectDonationsSqrtRootSum(ctx, projectB.Id, round.Id)
	require.NoError(t, err)
	assert.InDelta(t, 15.0, sumB, 1e-9)

	total, err := l.matching.GetQfRoundTotalSqrtRootSumSquared(ctx, round.Id)
	require.NoError(t, err)
	assert.InDelta(t, 49.0*49.0+15.0*15.0, total, 1e-6)

	t.Run("unknown project has zero sum", func(t *testing.T) {
		sum, err := l.matching.GetProjectDonationsSqrtRootSum(ctx, 424242, round.Id)
		require.NoError(t, err)
		assert.Zero(t, sum)
	})

	t.Run("expected matching", func(t *testing.T) {
		expected, err := l.matching.ExpectedMatching(ctx, projectA.Id, start.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.InDelta(t, 49.0, expected.ProjectDonationsSqrtRootSum, 1e-9)
		assert.InDelta(t, 2626.0, expected.AllProjectsSum, 1e-6)
		assert.Equal(t, 1000.0, expected.MatchingPool)
		assert.InDelta(t, 1000*2401.0/2626.0, expected.EstimatedMatching, 1e-6)
	})

	t.Run("expected matching without active round", func(t *testing.T) {
		_, err := l.matching.ExpectedMatching(ctx, projectA.Id, start.AddDate(1, 0, 0))
		assert.ErrorIs(t, err, ErrNoActiveRound)
	})

	t.Run("refresh replaces previous rows", func(t *testing.T) {
		require.NoError(t, db.Model(&model.DonationModel{}).
			Where("project_id = ?", projectB.Id).
			Update("status", model.DonationStatusFailed).Error)
		require.NoError(t, l.matching.RefreshEstimatedMatchingView(ctx))

		sum, err := l.matching.GetProjectDonationsSqrtRootSum(ctx, projectB.Id, round.Id)
		require.NoError(t, err)
		assert.Zero(t, sum)

		total, err := l.matching.GetQfRoundTotalSqrtRootSumSquared(ctx, round.Id)
		require.NoError(t, err)
		assert.InDelta(t, 2401.0, total, 1e-6)
	})
}

func TestMatchingLogic_SingleUserSqrtRootSum(t *testing.T) {
	db := setupTestDB(t)
	l := newTestLogics(db, nil)
	ctx := context.Background()
	start := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	round := createQfRound(t, db, model.QfRoundModel{RoundNumber: 1, IsActive: true, BeginDate: start, EndDate: start.AddDate(0, 0, 14)})
	project := createProject(t, db, "single")
	user := createUser(t, db, "0xsingle", false)
	for _, v := range []float64{100, 100, 89} {
		insertDonation(t, db, model.DonationModel{ProjectId: project.Id, UserId: &user.Id, Amount: v, ValueUsd: v, QfRoundId: &round.Id})
	}

	require.NoError(t, l.matching.RefreshEstimatedMatchingView(ctx))

	sum, err := l.matching.GetProjectDonationsSqrtRootSum(ctx, project.Id, round.Id)
	require.NoError(t, err)
	assert.InDelta(t, 17.0, sum, 1e-9)
}

func TestMatchingLogic_GetQfRoundStats(t *testing.T) {
	db := setupTestDB(t)
	l := newTestLogics(db, nil)
	ctx := context.Background()
	start := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	round := createQfRound(t, db, model.QfRoundModel{RoundNumber: 1, BeginDate: start, EndDate: start.AddDate(0, 0, 14)})
	project := createProject(t, db, "stats")
	alice := createUser(t, db, "0xalice", false)
	bob := createUser(t, db, "0xbob", false)

	for _, d := range []model.DonationModel{
		{ProjectId: project.Id, UserId: &alice.Id, Amount: 10, ValueUsd: 10, QfRoundId: &round.Id},
		{ProjectId: project.Id, UserId: &alice.Id, Amount: 5, ValueUsd: 5, QfRoundId: &round.Id},
		{ProjectId: project.Id, UserId: &bob.Id, Amount: 20, ValueUsd: 20, QfRoundId: &round.Id},
		{ProjectId: project.Id, Amount: 1, ValueUsd: 1, QfRoundId: &round.Id},
		{ProjectId: project.Id, Amount: 2, ValueUsd: 2, QfRoundId: &round.Id},
		{ProjectId: project.Id, UserId: &bob.Id, Amount: 99, ValueUsd: 99, QfRoundId: &round.Id, Status: model.DonationStatusFailed},
	} {
		insertDonation(t, db, d)
	}

	stats, err := l.matching.GetQfRoundStats(ctx, round)
	require.NoError(t, err)
	assert.EqualValues(t, 4, stats.UniqueDonors)
	assert.Equal(t, 38.0, stats.TotalDonationUsd)

	empty := createQfRound(t, db, model.QfRoundModel{RoundNumber: 2, BeginDate: start.AddDate(0, 1, 0), EndDate: start.AddDate(0, 1, 14)})
	stats, err = l.matching.GetQfRoundStats(ctx, empty)
	require.NoError(t, err)
	assert.Equal(t, QfRoundStats{}, stats)
}

func TestMatchingLogic_FillMissingTokenPrice(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	start := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	leadTime := 10 * time.Minute

	priced := createQfRound(t, db, model.QfRoundModel{RoundNumber: 1, BeginDate: start, EndDate: start.AddDate(0, 0, 7), TokenPrice: ptr(0.4)})
	missing := createQfRound(t, db, model.QfRoundModel{RoundNumber: 2, BeginDate: start.AddDate(0, 1, 0), EndDate: start.AddDate(0, 1, 7)})
	ea := createEarlyAccessRound(t, db, model.EarlyAccessRoundModel{RoundNumber: 1, StartDate: start.AddDate(0, -1, 0), EndDate: start.AddDate(0, -1, 7)})

	oracle := &mockPriceOracle{}
	oracle.On("GetTokenPriceAtDate", mock.Anything, "POL", sameInstant(missing.BeginDate.Add(-leadTime))).Return(0.25, nil).Once()
	oracle.On("GetTokenPriceAtDate", mock.Anything, "POL", sameInstant(ea.StartDate.Add(-leadTime))).Return(0.0, errors.New("rate limited")).Once()
	l := newTestLogics(db, oracle)

	t.Run("qf rounds filled once", func(t *testing.T) {
		filled, err := l.matching.FillMissingTokenPriceInQfRounds(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, filled)

		filled, err = l.matching.FillMissingTokenPriceInQfRounds(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, filled)

		var reloaded model.QfRoundModel
		require.NoError(t, db.First(&reloaded, missing.Id).Error)
		require.NotNil(t, reloaded.TokenPrice)
		assert.Equal(t, 0.25, *reloaded.TokenPrice)

		require.NoError(t, db.First(&reloaded, priced.Id).Error)
		assert.Equal(t, 0.4, *reloaded.TokenPrice)
	})

	t.Run("oracle failure leaves round unpriced", func(t *testing.T) {
		filled, err := l.matching.FillMissingTokenPriceInEarlyAccessRounds(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, filled)

		var reloaded model.EarlyAccessRoundModel
		require.NoError(t, db.First(&reloaded, ea.Id).Error)
		assert.Nil(t, reloaded.TokenPrice)
	})

	oracle.AssertExpectations(t)
	oracle.AssertNumberOfCalls(t, "GetTokenPriceAtDate", 2)
}

func TestMatchingLogic_FillWithoutOracle(t *testing.T) {
	db := setupTestDB(t)
	l := newTestLogics(db, nil)
	start := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	createQfRound(t, db, model.QfRoundModel{RoundNumber: 1, BeginDate: start, EndDate: start.AddDate(0, 0, 7)})

	_, err := l.matching.FillMissingTokenPriceInQfRounds(context.Background())
	assert.ErrorIs(t, err, ErrPriceOracleMissing)
}

func TestMatchingLogic_RefreshQfRoundMatching(t *testing.T) {
	db := setupTestDB(t)
	l := newTestLogics(db, nil)
	ctx := context.Background()
	start := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	round1 := createQfRound(t, db, model.QfRoundModel{RoundNumber: 1, BeginDate: start, EndDate: start.AddDate(0, 0, 14)})
	round2 := createQfRound(t, db, model.QfRoundModel{RoundNumber: 2, BeginDate: start.AddDate(0, 1, 0), EndDate: start.AddDate(0, 1, 14)})
	projectA := createProject(t, db, "scoped-a")
	projectB := createProject(t, db, "scoped-b")
	user := createUser(t, db, "0xscoped", false)

	insertDonation(t, db, model.DonationModel{ProjectId: projectA.Id, UserId: &user.Id, Amount: 4, ValueUsd: 4, QfRoundId: &round1.Id})
	insertDonation(t, db, model.DonationModel{ProjectId: projectB.Id, UserId: &user.Id, Amount: 9, ValueUsd: 9, QfRoundId: &round2.Id})

	require.NoError(t, l.matching.RefreshEstimatedMatchingView(ctx))

	countRows := func(roundId int64) int64 {
		var n int64
		require.NoError(t, db.Model(&model.ProjectEstimatedMatchingModel{}).Where("qf_round_id = ?", roundId).Count(&n).Error)
		return n
	}
	assert.Equal(t, int64(1), countRows(round1.Id))
	assert.Equal(t, int64(1), countRows(round2.Id))

	t.Run("stale rows of the round are removed", func(t *testing.T) {
		require.NoError(t, db.Create(&model.ProjectEstimatedMatchingModel{ProjectId: projectB.Id, QfRoundId: round1.Id, SqrtRootSum: 99}).Error)

		require.NoError(t, l.matching.RefreshQfRoundMatching(ctx, round1.Id))

		sum, err := l.matching.GetProjectDonationsSqrtRootSum(ctx, projectB.Id, round1.Id)
		require.NoError(t, err)
		assert.Zero(t, sum)
		assert.Equal(t, int64(1), countRows(round1.Id))
	})

	t.Run("existing rows are updated in place", func(t *testing.T) {
		insertDonation(t, db, model.DonationModel{ProjectId: projectA.Id, UserId: &user.Id, Amount: 5, ValueUsd: 5, QfRoundId: &round1.Id})

		require.NoError(t, l.matching.RefreshQfRoundMatching(ctx, round1.Id))
		require.NoError(t, l.matching.RefreshQfRoundMatching(ctx, round1.Id))

		sum, err := l.matching.GetProjectDonationsSqrtRootSum(ctx, projectA.Id, round1.Id)
		require.NoError(t, err)
		assert.InDelta(t, 3.0, sum, 1e-9)
		assert.Equal(t, int64(1), countRows(round1.Id))
	})

	t.Run("other rounds are untouched", func(t *testing.T) {
		insertDonation(t, db, model.DonationModel{ProjectId: projectB.Id, UserId: &user.Id, Amount: 16, ValueUsd: 16, QfRoundId: &round2.Id})
		require.NoError(t, l.matching.RefreshQfRoundMatching(ctx, round1.Id))

		sum, err := l.matching.GetProjectDonationsSqrtRootSum(ctx, projectB.Id, round2.Id)
		require.NoError(t, err)
		assert.InDelta(t, 3.0, sum, 1e-9)
	})

	t.Run("round without donations is emptied", func(t *testing.T) {
		require.NoError(t, db.Model(&model.DonationModel{}).
			Where("qf_round_id = ?", round2.Id).
			Update("status", model.DonationStatusFailed).Error)
		require.NoError(t, l.matching.RefreshQfRoundMatching(ctx, round2.Id))
		assert.Zero(t, countRows(round2.Id))
	})
}
