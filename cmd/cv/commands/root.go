package commands

import (
	"context"
	"fmt"
	"os"

	"contentvault/pkg/app"
	"contentvault/pkg/config"
	"contentvault/pkg/logging"
	"contentvault/pkg/workspace"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

var (
	cfgFile string
	// 全局应用实例，供子命令使用
	CV *app.App
	// WS 是当前目录所在的工作区，init 之外的命令都需要
	WS *workspace.Workspace
)

var rootCmd = &cobra.Command{
	Use:           "cv",
	Short:         "ContentVault: content-addressed version control",
	SilenceUsage:  true,
	SilenceErrors: true,
	// PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		CV, WS = nil, nil
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		logger, err := logging.NewConsoleLogger(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}

		wd, err := os.Getwd()
		if err != nil {
			return err
		}

		// init 以当前目录为根，其余命令向上查找工作区
		base := wd
		if cmd.Name() != initCmd.Name() {
			if base, err = workspace.FindRoot(wd); err != nil {
				return err
			}
		}

		CV, err = app.New(cmd.Context(), cfg, base, logger, nil)
		if err != nil {
			return fmt.Errorf("failed to initialize contentvault: %w", err)
		}
		if cmd.Name() == initCmd.Name() {
			return nil
		}
		WS, err = CV.OpenWorkspace(wd)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if WS != nil {
			err = multierr.Append(err, WS.Close())
		}
		if CV != nil {
			err = multierr.Append(err, CV.Close())
		}
		CV, WS = nil, nil
		return err
	},
}

// Execute 是入口
func Execute() error {
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.cv/config.yaml or $HOME/.cv/config.yaml)")

	// 既可以在 yaml 里写，也可以用 flag 覆盖
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error, none)")
	rootCmd.PersistentFlags().String("user", "", "commit owner name")
	bind("log_level", "log-level")
	bind("user.name", "user")
}

func bind(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to bind flag:", err)
		os.Exit(1)
	}
}
