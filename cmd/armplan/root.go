package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teslashibe/go-twolink/internal/config"
	"github.com/teslashibe/go-twolink/internal/log"
)

// cli carries state shared by the subcommands.
type cli struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.New()}

	root := &cobra.Command{
		Use:           "armplan",
		Short:         "Motion planner for a planar two-link arm",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.v, c.cfgFile)
			if err != nil {
				return err
			}
			c.cfg = cfg

			log.InitWithFile(cfg.Logger.Level, log.FileOptions{
				Path:       cfg.Logger.File,
				MaxSizeMB:  cfg.Logger.MaxSizeMB,
				MaxBackups: cfg.Logger.MaxBackups,
				MaxAgeDays: cfg.Logger.MaxAgeDays,
				Compress:   cfg.Logger.Compress,
			})
			log.Debug("config loaded", "file", c.cfgFile, "l1", cfg.Arm.L1, "l2", cfg.Arm.L2)
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&c.cfgFile, "config", "c", "", "config file (YAML)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	_ = c.v.BindPFlag("logger.level", root.PersistentFlags().Lookup("log-level"))
	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	root.AddCommand(
		newPlanCmd(c),
		newPlotCmd(c),
		newServeCmd(c),
		newRemoteCmd(c),
		newVersionCmd(),
	)
	return root
}
