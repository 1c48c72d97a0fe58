package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/JonMunkholm/usageimport/internal/logging"
)

// BootstrapOptions designates the seed file loaded on first start.
type BootstrapOptions struct {
	FileName    string   // Bare name or absolute path
	SearchPaths []string // Directories searched in order for a bare name
}

// Bootstrap imports the seed file when no generation has been committed.
// It returns (nil, nil) when a dataset already exists or no seed file is
// found. The seed goes through the same pipeline as an upload.
func (s *Service) Bootstrap(ctx context.Context, opts BootstrapOptions) (*ImportResult, error) {
	logger := logging.FromContext(ctx)

	if gen := s.Current(); gen != nil {
		logger.Info("dataset already committed, skipping seed", "generation", gen.Number)
		return nil, nil
	}

	path, ok := findSeedFile(opts)
	if !ok {
		logger.Info("seed file not found, starting with empty dataset",
			"file", opts.FileName,
			"search_paths", opts.SearchPaths,
		)
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	logger.Info("loading seed file", "path", path)
	return s.Import(ctx, ImportRequest{FileName: filepath.Base(path), Body: f})
}

func findSeedFile(opts BootstrapOptions) (string, bool) {
	if opts.FileName == "" {
		return "", false
	}

	candidates := []string{opts.FileName}
	if !filepath.IsAbs(opts.FileName) {
		candidates = candidates[:0]
		for _, dir := range opts.SearchPaths {
			candidates = append(candidates, filepath.Join(dir, opts.FileName))
		}
		if len(candidates) == 0 {
			candidates = append(candidates, opts.FileName)
		}
	}

	for _, c := range candidates {
		info, err := os.Stat(c)
		if err != nil {
			continue
		}
		if info.Mode().IsRegular() {
			return c, true
		}
	}
	return "", false
}
