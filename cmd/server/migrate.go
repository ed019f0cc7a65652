package main

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"coderoom/internal/config"
	"coderoom/internal/utils"
)

var errNoGenerationLog = errors.New("GENERATION_LOG_DRIVER is not set, nothing to migrate")

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the generation log schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			logger, err := utils.NewLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return migrate(cfg.GenerationLog, logger)
		},
	}
}

func migrate(cfg config.GenerationLogConfig, logger *zap.Logger) error {
	if cfg.Driver == "" {
		return errNoGenerationLog
	}
	_, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	closeStore()
	logger.Info("generation log migrated", zap.String("driver", cfg.Driver))
	return nil
}
