package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/txmigrate/formatter"
	"github.com/gnolang/txmigrate/internal"
	tt "github.com/gnolang/txmigrate/internal/types"
	"github.com/gnolang/txmigrate/migrate"
)

var (
	checkJsonOutput bool
	outPath         string
	cacheDir        string
)

var checkCmd = &cobra.Command{
	Use:   "check [paths...]",
	Short: "Classify transaction blocks without modifying any file",
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

		processor := migrate.Processor(migrate.AnalyzeFile)
		if cacheDir != "" {
			var deps []string
			if cfgFile != "" {
				deps = append(deps, cfgFile)
			}
			cache, err := internal.NewCache(cacheDir, deps...)
			if err != nil {
				logger.Fatal("Failed to open findings cache", zap.Error(err))
			}
			processor = migrate.CachedAnalyze(cache)
		}

		runCheckProcess(ctx, logger, engine, args, config, processor, checkJsonOutput, outPath)
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkJsonOutput, "json", false, "Output findings in JSON format")
	checkCmd.Flags().StringVarP(&outPath, "output", "o", "", "Output path (when using JSON)")
	checkCmd.Flags().StringVar(&cacheDir, "cache-dir", "", "Directory for the findings cache (disabled when empty)")
}

func runCheckProcess(
	ctx context.Context,
	logger *zap.Logger,
	engine migrate.MigrationEngine,
	paths []string,
	config migrate.Config,
	processor migrate.Processor,
	isJson bool,
	jsonOutput string,
) {
	results, err := migrate.ProcessFiles(ctx, logger, engine, paths, config, processor)
	if err != nil {
		logger.Error("Error processing files", zap.Error(err))
		os.Exit(1)
	}

	total := printFindings(logger, results, isJson, jsonOutput)
	if !isJson {
		fmt.Print(formatter.GenerateSummary(results))
	}

	if total > 0 {
		os.Exit(1)
	}
}

func printFindings(logger *zap.Logger, results []*internal.UnitResult, isJson bool, jsonOutput string) int {
	findingsByFile := make(map[string][]tt.Finding)
	total := 0
	for _, res := range results {
		if len(res.Findings) == 0 {
			continue
		}
		findingsByFile[res.Filename] = append(findingsByFile[res.Filename], res.Findings...)
		total += len(res.Findings)
	}

	sortedFiles := make([]string, 0, len(findingsByFile))
	for filename := range findingsByFile {
		sortedFiles = append(sortedFiles, filename)
	}
	sort.Strings(sortedFiles)

	if !isJson {
		// text output
		for _, filename := range sortedFiles {
			fileFindings := findingsByFile[filename]
			sourceCode, err := internal.ReadSourceCode(filename)
			if err != nil {
				logger.Error("Error reading source file", zap.String("file", filename), zap.Error(err))
				continue
			}
			output := formatter.GenerateFormattedFindings(fileFindings, sourceCode)
			fmt.Println(output)
		}
		return total
	}

	// JSON output
	d, err := json.Marshal(findingsByFile)
	if err != nil {
		logger.Error("Error marshalling findings to JSON", zap.Error(err))
		return total
	}
	if jsonOutput == "" {
		fmt.Println(string(d))
	} else {
		f, err := os.Create(jsonOutput)
		if err != nil {
			logger.Error("Error creating JSON output file", zap.Error(err))
			return total
		}
		defer f.Close()
		if _, err := f.Write(d); err != nil {
			logger.Error("Error writing JSON output file", zap.Error(err))
		}
	}
	return total
}
