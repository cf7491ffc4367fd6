// Package migrate is the embedding surface of the migration tool: it loads
// configuration, builds the engine, and fans file processing out over a
// bounded worker pool.
package migrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/gnolang/txmigrate/internal"
	"github.com/gnolang/txmigrate/scanner"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

const maxShowRecentFiles = 25

// MigrationEngine is the per-unit surface ProcessPath drives. The concrete
// implementation is internal.Engine.
type MigrationEngine interface {
	Analyze(filePath string) (*internal.UnitResult, error)
	AnalyzeSource(filePath string, source []byte) (*internal.UnitResult, error)
	Apply(filePath string, dryRun bool) (*internal.UnitResult, error)
	ApplySource(filePath string, source []byte) (*internal.UnitResult, error)
}

// Processor runs one unit through the engine.
type Processor func(MigrationEngine, string) (*internal.UnitResult, error)

// New builds an engine from the configuration at configurationPath. An empty
// path uses the default configuration.
func New(rootDir string, configurationPath string) (*internal.Engine, error) {
	config, err := LoadConfig(configurationPath)
	if err != nil {
		return nil, err
	}

	ec, err := config.EngineConfig()
	if err != nil {
		return nil, err
	}
	return internal.NewEngine(ec)
}

func ProcessSources(
	ctx context.Context,
	logger *zap.Logger,
	engine MigrationEngine,
	sources [][]byte,
	processor func(MigrationEngine, []byte) (*internal.UnitResult, error),
) ([]*internal.UnitResult, error) {
	var all []*internal.UnitResult
	for i, source := range sources {
		res, err := processor(engine, source)
		if err != nil {
			if logger != nil {
				logger.Error("Error processing source", zap.Int("source", i), zap.Error(err))
			}
			return nil, err
		}
		all = append(all, res)
	}

	return all, nil
}

func ProcessFiles(
	ctx context.Context,
	logger *zap.Logger,
	engine MigrationEngine,
	paths []string,
	cfg Config,
	processor Processor,
) ([]*internal.UnitResult, error) {
	var all []*internal.UnitResult
	for _, path := range paths {
		results, err := ProcessPath(ctx, logger, engine, path, cfg, processor)
		if err != nil {
			if logger != nil {
				logger.Error("Error processing path", zap.String("path", path), zap.Error(err))
			}
			return nil, err
		}
		all = append(all, results...)
	}

	return all, nil
}

func ProcessPath(
	ctx context.Context,
	logger *zap.Logger,
	engine MigrationEngine,
	path string,
	cfg Config,
	processor Processor,
) ([]*internal.UnitResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing %s: %w", path, err)
	}

	var all []*internal.UnitResult
	if info.IsDir() {
		scanned, err := scanner.New(path, cfg.IgnorePaths, cfg.SkipTests).Scan()
		if err != nil {
			return nil, fmt.Errorf("error scanning %s: %w", path, err)
		}
		files := make([]string, 0, len(scanned))
		for _, fi := range scanned {
			files = append(files, fi.Path)
		}

		// mutex for recent files
		var recentFilesMutex sync.Mutex
		recentFiles := make([]string, maxShowRecentFiles)

		// make space for recent files
		for i := 0; i < maxShowRecentFiles+1; i++ {
			fmt.Println()
		}
		fmt.Printf("\033[%dA", maxShowRecentFiles+1)

		// channels for results and errors
		resultChan := make(chan *internal.UnitResult, len(files))
		errorChan := make(chan error, len(files))

		// limit the number of workers
		maxWorkers := runtime.NumCPU()
		sem := make(chan struct{}, maxWorkers)

		bar := progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription(path),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}))

		// update recent files
		updateRecentFiles := func(filename string) {
			recentFilesMutex.Lock()
			defer recentFilesMutex.Unlock()

			// update the list
			for j := maxShowRecentFiles - 1; j > 0; j-- {
				recentFiles[j] = recentFiles[j-1]
			}
			recentFiles[0] = filename

			// move the cursor up
			fmt.Printf("\033[%dA", maxShowRecentFiles)

			// print the list
			for j := range recentFiles {
				if recentFiles[j] != "" {
					// \033[2k: clear the line
					// \r: move the cursor to the beginning of the line
					fmt.Printf("\033[2K\r%s\n", recentFiles[j])
				} else {
					fmt.Printf("\033[2K\r\n")
				}
			}
		}

		// for each file, run a goroutine
		for _, filePath := range files {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
				sem <- struct{}{}
				go func(fp string) {
					defer func() { <-sem }()

					// show the start of file processing
					updateRecentFiles(filepath.Base(fp))

					res, err := processor(engine, fp)
					if err != nil {
						if logger != nil {
							logger.Error("Error processing file", zap.String("file", fp), zap.Error(err))
						}
						errorChan <- err
						resultChan <- nil
					} else {
						resultChan <- res
						errorChan <- nil
					}
					bar.Add(1)
				}(filePath)
			}
		}

		// collect all results
		failed := 0
		for range files {
			if err := <-errorChan; err != nil {
				failed++
				continue
			}
			if result := <-resultChan; result != nil {
				all = append(all, result)
			}
		}

		fmt.Println()
		if failed > 0 {
			if logger != nil {
				logger.Warn("Some files failed to process",
					zap.String("path", path), zap.Int("failed", failed))
			}
			fmt.Printf("%d file(s) failed to process\n", failed)
		}
		return all, nil
	} else if filepath.Ext(path) == ".go" {
		res, err := processor(engine, path)
		if err != nil {
			return nil, err
		}
		all = append(all, res)
	}

	return all, nil
}

// AnalyzeFile is the classification-only processor.
func AnalyzeFile(engine MigrationEngine, filePath string) (*internal.UnitResult, error) {
	return engine.Analyze(filePath)
}

// ApplyFile returns a processor that rewrites files in place, or only
// reports what would change when dryRun is set.
func ApplyFile(dryRun bool) Processor {
	return func(engine MigrationEngine, filePath string) (*internal.UnitResult, error) {
		return engine.Apply(filePath, dryRun)
	}
}

// CachedAnalyze wraps AnalyzeFile with the findings cache: unchanged files
// reuse the previous run's findings.
func CachedAnalyze(cache *internal.Cache) Processor {
	return func(engine MigrationEngine, filePath string) (*internal.UnitResult, error) {
		if findings, ok := cache.Get(filePath); ok {
			return &internal.UnitResult{Filename: filePath, Findings: findings}, nil
		}
		res, err := engine.Analyze(filePath)
		if err != nil {
			return nil, err
		}
		if err := cache.Set(filePath, res.Findings); err != nil {
			return nil, err
		}
		return res, nil
	}
}

// AnalyzeSource is the in-memory analogue of AnalyzeFile.
func AnalyzeSource(engine MigrationEngine, source []byte) (*internal.UnitResult, error) {
	return engine.AnalyzeSource("", source)
}
