package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/txmigrate/formatter"
	"github.com/gnolang/txmigrate/internal"
	"github.com/gnolang/txmigrate/migrate"
)

var watchCmd = &cobra.Command{
	Use:   "watch [paths...]",
	Short: "Re-classify files as they change (report-only)",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			fmt.Println("error: Please provide directory paths")
			os.Exit(1)
		}

		engine, err := migrate.New(".", cfgFile)
		if err != nil {
			logger.Fatal("Failed to initialize migration engine", zap.Error(err))
		}

		watcher, err := internal.NewWatcher(engine, args, logger, reportResult)
		if err != nil {
			logger.Fatal("Failed to create watcher", zap.Error(err))
		}
		if err := watcher.StartWatching(); err != nil {
			logger.Fatal("Failed to start watching", zap.Error(err))
		}
		defer watcher.StopWatching()

		fmt.Println("Watching for changes. Press Ctrl+C to stop.")
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
	},
}

func reportResult(res *internal.UnitResult) {
	if len(res.Findings) == 0 {
		return
	}
	sourceCode, err := internal.ReadSourceCode(res.Filename)
	if err != nil {
		return
	}
	fmt.Println(formatter.GenerateFormattedFindings(res.Findings, sourceCode))
}
