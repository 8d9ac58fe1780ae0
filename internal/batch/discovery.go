package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/labelscan/internal/utils"
)

// Kind tells how a discovered file is fed to the pipeline.
type Kind string

const (
	KindTokens Kind = "tokens"
	KindImage  Kind = "image"
)

// File is one discovered input.
type File struct {
	Path string `json:"path"`
	Kind Kind   `json:"kind"`
}

// kindOf classifies a path by extension.
func kindOf(path string) (Kind, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return KindTokens, true
	}
	if utils.IsSupportedImage(path) {
		return KindImage, true
	}
	return "", false
}

// DiscoverFiles expands args into token dumps and images. Directories are
// walked (recursively when asked) and unsupported files in them are skipped;
// an explicitly named unsupported file is an error.
func DiscoverFiles(args []string, recursive bool, includePatterns, excludePatterns []string) ([]File, error) {
	var files []File

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if info.IsDir() {
			found, err := discoverInDirectory(arg, recursive, includePatterns, excludePatterns)
			if err != nil {
				return nil, err
			}
			files = append(files, found...)
			continue
		}

		kind, ok := kindOf(arg)
		if !ok {
			return nil, fmt.Errorf("unsupported input file: %s", arg)
		}
		if shouldIncludeFile(arg, includePatterns, excludePatterns) {
			files = append(files, File{Path: arg, Kind: kind})
		}
	}

	return files, nil
}

func discoverInDirectory(dir string, recursive bool, includePatterns, excludePatterns []string) ([]File, error) {
	var files []File

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		kind, ok := kindOf(path)
		if ok && shouldIncludeFile(path, includePatterns, excludePatterns) {
			files = append(files, File{Path: path, Kind: kind})
		}
		return nil
	})
	return files, err
}

// shouldIncludeFile determines if a file should be included based on include/exclude patterns.
func shouldIncludeFile(path string, includePatterns, excludePatterns []string) bool {
	if matchesAnyPattern(path, excludePatterns) {
		return false
	}
	if len(includePatterns) == 0 {
		return true
	}
	return matchesAnyPattern(path, includePatterns)
}

// matchesAnyPattern matches the base name against shell globs.
func matchesAnyPattern(path string, patterns []string) bool {
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
