package logic

import "gorm.io/gorm"

// Services 组装好的业务逻辑
type Services struct {
	Rounds    *RoundLogic
	Records   *RecordLogic
	Caps      *CapLogic
	Matching  *MatchingLogic
	Donations *DonationLogic
}

// NewServices 按依赖顺序创建全部业务逻辑
func NewServices(db *gorm.DB, oracle PriceOracle, cfg MatchingConfig, strictCaps bool) *Services {
	rounds := NewRoundLogic(db)
	records := NewRecordLogic(db)
	caps := NewCapLogic(db, rounds, records)
	matching := NewMatchingLogic(db, rounds, oracle, cfg)
	return &Services{
		Rounds:    rounds,
		Records:   records,
		Caps:      caps,
		Matching:  matching,
		Donations: NewDonationLogic(db, caps, records, matching).WithStrictCaps(strictCaps),
	}
}
