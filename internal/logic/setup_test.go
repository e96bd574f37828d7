package logic

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/database"
	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/model"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func ptr[T any](v T) *T {
	return &v
}

func createProject(t *testing.T, db *gorm.DB, slug string) *model.ProjectModel {
	t.Helper()
	project := &model.ProjectModel{Title: slug, Slug: slug, Status: model.ProjectStatusActive}
	require.NoError(t, db.Create(project).Error)
	return project
}

func createUser(t *testing.T, db *gorm.DB, wallet string, verified bool) *model.UserModel {
	t.Helper()
	user := &model.UserModel{WalletAddress: wallet, PrivadoVerified: verified}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createSeason(t *testing.T, db *gorm.DB, number int, start, end time.Time) *model.SeasonModel {
	t.Helper()
	season := &model.SeasonModel{SeasonNumber: number, StartDate: start, EndDate: end}
	require.NoError(t, db.Create(season).Error)
	return season
}

func createEarlyAccessRound(t *testing.T, db *gorm.DB, round model.EarlyAccessRoundModel) *model.EarlyAccessRoundModel {
	t.Helper()
	require.NoError(t, db.Create(&round).Error)
	return &round
}

func createQfRound(t *testing.T, db *gorm.DB, round model.QfRoundModel) *model.QfRoundModel {
	t.Helper()
	require.NoError(t, db.Create(&round).Error)
	return &round
}

// insertDonation 直接写库，不经过上限校验
func insertDonation(t *testing.T, db *gorm.DB, donation model.DonationModel) *model.DonationModel {
	t.Helper()
	if donation.Status == "" {
		donation.Status = model.DonationStatusVerified
	}
	require.NoError(t, db.Create(&donation).Error)
	return &donation
}

type testLogics struct {
	rounds   *RoundLogic
	records  *RecordLogic
	caps     *CapLogic
	matching *MatchingLogic
	donation *DonationLogic
}

func newTestLogics(db *gorm.DB, oracle PriceOracle) testLogics {
	svc := NewServices(db, oracle, MatchingConfig{TokenSymbol: "POL", PriceLeadTime: 10 * time.Minute}, false)
	return testLogics{
		rounds:   svc.Rounds,
		records:  svc.Records,
		caps:     svc.Caps,
		matching: svc.Matching,
		donation: svc.Donations,
	}
}
