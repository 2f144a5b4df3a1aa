// Package main provides a CLI to inspect and switch the live trading strategy.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/trading-bot/internal/bot"
	"github.com/yourusername/trading-bot/internal/config"
	"github.com/yourusername/trading-bot/internal/database"
	"github.com/yourusername/trading-bot/internal/logger"
	"github.com/yourusername/trading-bot/internal/repository"
	"github.com/yourusername/trading-bot/internal/strategy"
)

var (
	configFile string
	changedBy  string
	appLog     *logrus.Logger
	cfg        *config.Config
	db         *database.DB
	repos      *repository.Repositories
	selector   *strategy.Selector
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
	selectCmd.Flags().StringVar(&changedBy, "by", os.Getenv("USER"), "Who requested the change")
	rootCmd.AddCommand(listCmd, currentCmd, selectCmd)
}

var rootCmd = &cobra.Command{
	Use:   "strategy",
	Short: "Inspect and switch the live trading strategy",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		if err := setupDependencies(cmd.Context()); err != nil {
			return fmt.Errorf("failed to setup dependencies: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			db.Close()
		}
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the registered strategies",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ACTIVE\tNAME\tDESCRIPTION")
		for _, name := range selector.Names() {
			evaluator, err := selector.Lookup(name)
			if err != nil {
				return err
			}
			marker := ""
			if name == selector.ActiveName() {
				marker = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", marker, name, evaluator.Description())
		}
		return w.Flush()
	},
}

var currentCmd = &cobra.Command{
	Use:   "current",
	Short: "Print the selected strategy",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), selector.ActiveName())
		return nil
	},
}

var selectCmd = &cobra.Command{
	Use:   "select NAME",
	Short: "Select the strategy used by the next live tick",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		previous, err := bot.SelectStrategy(cmd.Context(), selector, repos, args[0], changedBy, appLog)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Strategy switched from %s to %s\n", previous, args[0])
		return nil
	},
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func setupDependencies(ctx context.Context) error {
	var err error
	cfg, err = config.Load(configFile)
	if err != nil {
		return err
	}
	if cfg.Secrets.Enabled {
		if err := config.LoadSecretsFromAWS(ctx, cfg); err != nil {
			return err
		}
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	appLog = logger.NewLogger(cfg.App.LogLevel, cfg.App.Environment)

	db, err = database.Initialize(ctx, cfg, appLog)
	if err != nil {
		return err
	}
	repos, err = repository.NewRepositories(db)
	if err != nil {
		return err
	}

	selector, err = strategy.NewDefaultSelector(cfg.Strategy, appLog)
	if err != nil {
		return err
	}
	return bot.RestoreSelection(ctx, selector, repos.StrategySelection, appLog)
}
