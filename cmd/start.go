package cmd

import (
	"fmt"

	"github.com/michaelpento.lv/dexarb/config"
	"github.com/michaelpento.lv/dexarb/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the scan loop until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := utils.GetLogger()

		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		e, err := buildEngine(ctx, cfg, true, log)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.bot.Start(ctx); err != nil {
			return err
		}

		if addr := cfg.Metrics.ListenAddr; addr != "" {
			go func() {
				if err := e.bot.Serve(ctx, addr, e.registry); err != nil {
					log.Error("Ops server stopped", zap.Error(err))
				}
			}()
		}

		log.Info("Bot started",
			zap.Duration("interval", cfg.Monitor.Interval),
			zap.Bool("execution", cfg.Execution.Enabled),
			zap.Bool("safeMode", cfg.SafeMode.Enabled))

		<-ctx.Done()
		log.Info("Shutting down gracefully...")
		e.bot.Stop()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
