package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/txmigrate/formatter"
	"github.com/gnolang/txmigrate/migrate"
)

var dryRun bool

var applyCmd = &cobra.Command{
	Use:   "apply [paths...]",
	Short: "Rewrite proven scopes and annotate the rest",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			fmt.Println("error: Please provide file or directory paths")
			os.Exit(1)
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		engine, err := migrate.New(".", cfgFile)
		if err != nil {
			logger.Fatal("Failed to initialize migration engine", zap.Error(err))
		}
		config, err := migrate.LoadConfig(cfgFile)
		if err != nil {
			logger.Fatal("Failed to load configuration", zap.Error(err))
		}

		runApplyProcess(ctx, logger, engine, args, config, dryRun)
	},
}

func init() {
	applyCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would change without writing any file")
}

func runApplyProcess(
	ctx context.Context,
	logger *zap.Logger,
	engine migrate.MigrationEngine,
	paths []string,
	config migrate.Config,
	dryRun bool,
) {
	results, err := migrate.ProcessFiles(ctx, logger, engine, paths, config, migrate.ApplyFile(dryRun))
	if err != nil {
		logger.Error("Error processing files", zap.Error(err))
		os.Exit(1)
	}

	if dryRun {
		for _, res := range results {
			if res.Changed {
				fmt.Printf("Would change %s\n", res.Filename)
			}
		}
	}

	printFindings(logger, results, false, "")
	fmt.Print(formatter.GenerateSummary(results))
}
