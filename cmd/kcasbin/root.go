package main

import (
	"fmt"
	"os"

	"github.com/casbin/casbin/v2/model"
	"github.com/getkayan/kcasbin"
	"github.com/getkayan/kcasbin/config"
	"github.com/getkayan/kcasbin/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

// app carries the state resolved by the root command for its subcommands.
type app struct {
	modelPath string
	cfg       *config.Config
}

func execute() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "kcasbin",
		Short:         "Manage casbin policies in a kcasbin store",
		Long:          "Import, export and edit casbin policy rules persisted by the kcasbin adapter, or serve them over HTTP.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			a.cfg = cfg
			logger.InitLogger(cfg.LogLevel)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			_ = logger.Log.Sync()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.modelPath, "model", "m", "", "Casbin model file (default: built-in RBAC model)")

	rootCmd.AddCommand(newImportCmd(a))
	rootCmd.AddCommand(newExportCmd(a))
	rootCmd.AddCommand(newAddCmd(a))
	rootCmd.AddCommand(newRemoveCmd(a))
	rootCmd.AddCommand(newRemoveFilteredCmd(a))
	rootCmd.AddCommand(newServeCmd(a))

	return rootCmd
}

func (a *app) model() (model.Model, error) {
	m, err := kcasbin.LoadModel(a.modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return m, nil
}

func (a *app) adapter(opts ...kcasbin.Option) (*kcasbin.Adapter, error) {
	opts = append([]kcasbin.Option{kcasbin.WithLogger(logger.Log)}, opts...)
	ad, err := kcasbin.NewAdapter(a.cfg, opts...)
	if err != nil {
		logger.Log.Error("failed to open policy store",
			zap.String("store", a.cfg.DBType),
			zap.Error(err),
		)
		return nil, err
	}
	return ad, nil
}
