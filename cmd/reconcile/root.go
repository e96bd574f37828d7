package main

import (
	"fmt"

	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/chain"
	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/config"
	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/database"
	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/logger"
	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/logic"
	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/model"
	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/reward"
	"github.com/spf13/cobra"
)

type options struct {
	configPath   string
	kind         string
	number       int
	source       string
	force        bool
	markExecuted bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Fill donation rewards for a finished round",
		Long: `reconcile reads the reward allocation of every project in a round, either from
report files or from the project orchestrator contracts, writes the reward token
amount and vesting stream of each donation and corrects its round attribution.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to config file")
	flags.StringVar(&opts.kind, "kind", string(model.RoundKindEarlyAccess), "round kind: early_access or qf")
	flags.IntVarP(&opts.number, "round", "r", 0, "round number")
	flags.StringVar(&opts.source, "source", "report", "reward source: report or chain")
	flags.BoolVar(&opts.force, "force", false, "reprocess donations that already have rewards")
	flags.BoolVar(&opts.markExecuted, "mark-executed", false, "set the batch minting latch when every project succeeds")
	_ = cmd.MarkFlagRequired("round")

	return cmd
}

func run(cmd *cobra.Command, opts *options) error {
	kind := model.RoundKind(opts.kind)
	if kind != model.RoundKindEarlyAccess && kind != model.RoundKindQf {
		return fmt.Errorf("unknown round kind %q", opts.kind)
	}

	cfg := config.Load(opts.configPath)
	if err := logger.Init(cfg.Log); err != nil {
		return err
	}
	defer logger.Sync()

	db, err := database.Init(cfg.Database)
	if err != nil {
		return err
	}

	var source reward.Source
	switch opts.source {
	case "report":
		source = reward.NewReportSource(reward.NewFileReportStore(cfg.Reward.ReportDir))
	case "chain":
		reader, err := chain.NewReader(cfg.Chain)
		if err != nil {
			return err
		}
		defer reader.Close()
		source = reward.NewChainSource(reader)
	default:
		return fmt.Errorf("unknown reward source %q", opts.source)
	}

	ctx := cmd.Context()
	rounds := logic.NewRoundLogic(db)
	round, err := rounds.FindRoundByNumber(ctx, kind, opts.number)
	if err != nil {
		return err
	}

	reconciler := reward.NewReconciler(db, source, rounds, logic.NewRecordLogic(db), cfg.Reward)
	summary, err := reconciler.ReconcileRound(ctx, round, reward.Options{
		Force:        opts.force,
		MarkExecuted: opts.markExecuted,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d projects, %d updated, %d unchanged, %d unattributed, %d skipped\n",
		summary.Round, summary.Projects,
		summary.Count(reward.OutcomeUpdated), summary.Count(reward.OutcomeUnchanged),
		summary.Count(reward.OutcomeUnattributed), summary.Count(reward.OutcomeSkipped))
	if len(summary.FailedProjects) > 0 {
		return fmt.Errorf("%d projects failed: %v", len(summary.FailedProjects), summary.FailedProjects)
	}
	return nil
}
