package logic

import "errors"

var (
	// ErrNoRoundSpecified 调用方既没有给出早期准入轮也没有给出 QF 轮
	ErrNoRoundSpecified = errors.New("no round specified")
	// ErrAmbiguousRound 同时给出两种轮次
	ErrAmbiguousRound = errors.New("donation can belong to at most one round")
	ErrRoundNotFound  = errors.New("round not found")
	ErrNoActiveRound  = errors.New("no active round")

	ErrProjectNotFound    = errors.New("project not found")
	ErrProjectNotActive   = errors.New("project is not accepting donations")
	ErrDonationNotFound   = errors.New("donation not found")
	ErrInvalidAmount      = errors.New("donation amount must be positive")
	ErrInvalidStatus      = errors.New("invalid donation status")
	ErrPriceOracleMissing = errors.New("price oracle is not configured")
)
