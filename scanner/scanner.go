package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gnolang/txmigrate/internal/trie"
)

type FileInfo struct {
	Path string
	Size int64
}

// Scanner walks a project tree and collects the Go source files eligible for
// migration. Vendored trees, testdata and underscore- or dot-prefixed
// directories are skipped, as are any configured ignore paths.
type Scanner struct {
	rootDir   string
	ignored   *trie.Trie
	skipTests bool
}

func New(rootDir string, ignorePaths []string, skipTests bool) *Scanner {
	ignored := trie.New()
	for _, p := range ignorePaths {
		p = strings.Trim(filepath.ToSlash(p), "/")
		if p == "" {
			continue
		}
		ignored.Insert(strings.Split(p, "/"))
	}
	return &Scanner{
		rootDir:   rootDir,
		ignored:   ignored,
		skipTests: skipTests,
	}
}

// Scan returns the eligible files sorted by path so repeated runs process in
// the same order.
func (s *Scanner) Scan() ([]FileInfo, error) {
	var (
		files []FileInfo
		mutex sync.Mutex
		wg    sync.WaitGroup
	)

	err := filepath.Walk(s.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if path != s.rootDir && skipDir(info.Name()) {
				return filepath.SkipDir
			}
			if s.isIgnored(path) {
				return filepath.SkipDir
			}
			return nil
		}

		if s.isTargetFile(path) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				fileInfo := FileInfo{
					Path: path,
					Size: info.Size(),
				}
				mutex.Lock()
				files = append(files, fileInfo)
				mutex.Unlock()
			}()
		}
		return nil
	})

	wg.Wait()
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, err
}

func skipDir(name string) bool {
	if name == "vendor" || name == "testdata" {
		return true
	}
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

func (s *Scanner) isIgnored(path string) bool {
	if s.ignored.Empty() {
		return false
	}
	rel, err := filepath.Rel(s.rootDir, path)
	if err != nil || rel == "." {
		return false
	}
	return s.ignored.HasPrefix(strings.Split(filepath.ToSlash(rel), "/"))
}

func (s *Scanner) isTargetFile(path string) bool {
	if filepath.Ext(path) != ".go" {
		return false
	}
	if s.skipTests && strings.HasSuffix(path, "_test.go") {
		return false
	}
	return !s.isIgnored(path)
}
