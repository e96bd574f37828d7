package logic

import (
	"context"
	"testing"
	"time"

	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDonationLogic_EndToEndUserRecord(t *testing.T) {
	db := setupTestDB(t)
	l := newTestLogics(db, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	project := createProject(t, db, "end-to-end")
	user := createUser(t, db, "0xe2e", false)
	round := createEarlyAccessRound(t, db, model.EarlyAccessRoundModel{
		RoundNumber:          1,
		StartDate:            now.Add(-time.Hour),
		EndDate:              now.Add(24 * time.Hour),
		CapPerProject:        ptr(1000000.0),
		CapPerUserPerProject: ptr(50000.0),
	})

	first, err := l.donation.CreateDonation(ctx, &model.DonationModel{ProjectId: project.Id, UserId: &user.Id, Amount: 100, CreatedAt: now})
	require.NoError(t, err)
	require.NotNil(t, first.EarlyAccessRoundId)
	assert.Equal(t, round.Id, *first.EarlyAccessRoundId)

	record, err := l.records.UpdateOrCreateProjectUserRecord(ctx, ProjectUserKey{ProjectId: project.Id, UserId: user.Id})
	require.NoError(t, err)
	assert.Equal(t, 100.0, record.TotalDonationAmount)

	_, err = l.donation.CreateDonation(ctx, &model.DonationModel{ProjectId: project.Id, UserId: &user.Id, Amount: 50, CreatedAt: now})
	require.NoError(t, err)

	record, err = l.records.UpdateOrCreateProjectUserRecord(ctx, ProjectUserKey{ProjectId: project.Id, UserId: user.Id})
	require.NoError(t, err)
	assert.Equal(t, 150.0, record.TotalDonationAmount)
	assert.Equal(t, 150.0, record.EaTotalDonationAmount)

	roundRecord, err := l.records.GetProjectRoundRecord(ctx, project.Id, nil, &round.Id)
	require.NoError(t, err)
	require.NotNil(t, roundRecord)
	assert.Equal(t, 150.0, roundRecord.TotalDonationAmount)
}

func TestDonationLogic_CreateDonation(t *testing.T) {
	db := setupTestDB(t)
	l := newTestLogics(db, nil)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	inRound := start.AddDate(0, 0, 1)

	project := createProject(t, db, "create-donation")
	user := createUser(t, db, "0xdonor", false)
	round := createEarlyAccessRound(t, db, model.EarlyAccessRoundModel{
		RoundNumber:          1,
		StartDate:            start,
		EndDate:              start.AddDate(0, 0, 7),
		CapPerProject:        ptr(1000.0),
		CapPerUserPerProject: ptr(100.0),
	})

	t.Run("within caps is attributed", func(t *testing.T) {
		donation, err := l.donation.CreateDonation(ctx, &model.DonationModel{ProjectId: project.Id, UserId: &user.Id, Amount: 80, CreatedAt: inRound})
		require.NoError(t, err)
		require.NotNil(t, donation.EarlyAccessRoundId)
		assert.Equal(t, round.Id, *donation.EarlyAccessRoundId)
		assert.Nil(t, donation.QfRoundId)
		assert.Equal(t, model.DonationStatusPending, donation.Status)
	})

	t.Run("over user cap is saved without round", func(t *testing.T) {
		donation, err := l.donation.CreateDonation(ctx, &model.DonationModel{ProjectId: project.Id, UserId: &user.Id, Amount: 30, CreatedAt: inRound})
		require.NoError(t, err)
		assert.NotZero(t, donation.Id)
		assert.Nil(t, donation.EarlyAccessRoundId)
		assert.Nil(t, donation.QfRoundId)

		decision, err := l.donation.EvaluateDonation(ctx, DonationEvaluation{ProjectId: project.Id, UserId: &user.Id, Amount: 30, Timestamp: inRound})
		require.NoError(t, err)
		assert.False(t, decision.Accepted)
		assert.Equal(t, ReasonUserCapExceeded, decision.Reason)
		assert.Nil(t, decision.AttributedRound())
	})

	t.Run("over project cap is saved without round", func(t *testing.T) {
		decision, err := l.donation.EvaluateDonation(ctx, DonationEvaluation{ProjectId: project.Id, Amount: 950, Timestamp: inRound})
		require.NoError(t, err)
		assert.False(t, decision.Accepted)
		assert.Equal(t, ReasonProjectCapExceeded, decision.Reason)

		donation, err := l.donation.CreateDonation(ctx, &model.DonationModel{ProjectId: project.Id, Amount: 950, CreatedAt: inRound})
		require.NoError(t, err)
		assert.Nil(t, donation.EarlyAccessRoundId)
	})

	t.Run("anonymous donor has no accumulated user total", func(t *testing.T) {
		decision, err := l.donation.EvaluateDonation(ctx, DonationEvaluation{ProjectId: project.Id, Amount: 90, Timestamp: inRound})
		require.NoError(t, err)
		assert.True(t, decision.Accepted)
		require.NotNil(t, decision.AttributedRound())
		assert.Equal(t, round.Id, decision.AttributedRound().RoundID())

		decision, err = l.donation.EvaluateDonation(ctx, DonationEvaluation{ProjectId: project.Id, Amount: 150, Timestamp: inRound})
		require.NoError(t, err)
		assert.False(t, decision.Accepted)
		assert.Equal(t, ReasonUserCapExceeded, decision.Reason)
	})

	t.Run("outside any round", func(t *testing.T) {
		donation, err := l.donation.CreateDonation(ctx, &model.DonationModel{ProjectId: project.Id, UserId: &user.Id, Amount: 5000, CreatedAt: start.AddDate(0, 1, 0)})
		require.NoError(t, err)
		assert.Nil(t, donation.EarlyAccessRoundId)
		assert.Nil(t, donation.QfRoundId)
	})

	t.Run("unattributed donations stay out of the round record", func(t *testing.T) {
		record, err := l.records.GetProjectRoundRecord(ctx, project.Id, nil, &round.Id)
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, 80.0, record.TotalDonationAmount)

		var count int64
		require.NoError(t, db.Model(&model.DonationModel{}).Where("project_id = ?", project.Id).Count(&count).Error)
		assert.EqualValues(t, 4, count)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := l.donation.CreateDonation(ctx, &model.DonationModel{ProjectId: project.Id, Amount: 0})
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = l.donation.CreateDonation(ctx, &model.DonationModel{ProjectId: 424242, Amount: 1})
		assert.ErrorIs(t, err, ErrProjectNotFound)

		_, err = l.donation.CreateDonation(ctx, &model.DonationModel{ProjectId: project.Id, Amount: 1, Status: "refunded"})
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})

	t.Run("cancelled project rejects donations", func(t *testing.T) {
		cancelled := createProject(t, db, "cancelled")
		require.NoError(t, db.Model(cancelled).Update("status", model.ProjectStatusCancelled).Error)

		_, err := l.donation.CreateDonation(ctx, &model.DonationModel{ProjectId: cancelled.Id, UserId: &user.Id, Amount: 10, CreatedAt: inRound})
		assert.ErrorIs(t, err, ErrProjectNotActive)

		var count int64
		require.NoError(t, db.Model(&model.DonationModel{}).Where("project_id = ?", cancelled.Id).Count(&count).Error)
		assert.Zero(t, count)
	})
}

func TestDonationLogic_UpdateDonationStatus(t *testing.T) {
	db := setupTestDB(t)
	oracle := &mockPriceOracle{}
	l := newTestLogics(db, oracle)
	ctx := context.Background()
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	project := createProject(t, db, "status")
	user := createUser(t, db, "0xstatus", false)
	round := createQfRound(t, db, model.QfRoundModel{
		RoundNumber: 1,
		IsActive:    true,
		BeginDate:   start,
		EndDate:     start.AddDate(0, 0, 14),
	})

	donation, err := l.donation.CreateDonation(ctx, &model.DonationModel{
		ProjectId: project.Id,
		UserId:    &user.Id,
		Amount:    40,
		ValueUsd:  16,
		CreatedAt: start.AddDate(0, 0, 1),
	})
	require.NoError(t, err)
	require.NotNil(t, donation.QfRoundId)
	assert.Equal(t, round.Id, *donation.QfRoundId)

	t.Run("verified donation refreshes matching", func(t *testing.T) {
		updated, err := l.donation.UpdateDonationStatus(ctx, donation.Id, model.DonationStatusVerified)
		require.NoError(t, err)
		assert.Equal(t, model.DonationStatusVerified, updated.Status)

		sum, err := l.matching.GetProjectDonationsSqrtRootSum(ctx, project.Id, round.Id)
		require.NoError(t, err)
		assert.Equal(t, 4.0, sum)
	})

	t.Run("failed donation leaves the ledger", func(t *testing.T) {
		_, err := l.donation.UpdateDonationStatus(ctx, donation.Id, model.DonationStatusFailed)
		require.NoError(t, err)

		record, err := l.records.GetProjectRoundRecord(ctx, project.Id, &round.Id, nil)
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, 0.0, record.TotalDonationAmount)

		userRecord, err := l.records.GetProjectUserRecord(ctx, ProjectUserKey{ProjectId: project.Id, UserId: user.Id})
		require.NoError(t, err)
		require.NotNil(t, userRecord)
		assert.Equal(t, 0.0, userRecord.QfTotalDonationAmount)

		sum, err := l.matching.GetProjectDonationsSqrtRootSum(ctx, project.Id, round.Id)
		require.NoError(t, err)
		assert.Equal(t, 0.0, sum)
	})

	t.Run("unknown donation", func(t *testing.T) {
		_, err := l.donation.UpdateDonationStatus(ctx, 987654, model.DonationStatusVerified)
		assert.ErrorIs(t, err, ErrDonationNotFound)
	})

	t.Run("invalid status", func(t *testing.T) {
		_, err := l.donation.UpdateDonationStatus(ctx, donation.Id, "refunded")
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})

	oracle.AssertNotCalled(t, "GetTokenPriceAtDate")
}
