package fs

import (
	"context"
	"fmt"
	iofs "io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"codeflow/internal/domain"
	"github.com/bmatcuk/doublestar/v4"
)

// Options controls which directories and files a Collector keeps.
type Options struct {
	IgnoreDirs      []string
	Extensions      []string
	ArtifactMarkers []string
	Excludes        []string
	// ComponentMatch compares ignore entries and markers against whole path
	// components instead of raw substrings.
	ComponentMatch bool
}

type Collector struct {
	ignoreDirs map[string]struct{}
	ignoreList []string
	includes   []string
	excludes   []string
	markers    []string
	component  bool
	logger     *slog.Logger
}

func NewCollector(opts Options, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}

	ignore := make(map[string]struct{}, len(opts.IgnoreDirs))
	for _, d := range opts.IgnoreDirs {
		ignore[d] = struct{}{}
	}

	includes := make([]string, 0, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		includes = append(includes, "*"+ext)
	}

	return &Collector{
		ignoreDirs: ignore,
		ignoreList: opts.IgnoreDirs,
		includes:   includes,
		excludes:   opts.Excludes,
		markers:    opts.ArtifactMarkers,
		component:  opts.ComponentMatch,
		logger:     logger,
	}
}

// Collect walks root and returns every eligible file in lexical walk order.
func (c *Collector) Collect(ctx context.Context, root string) ([]domain.RepositoryFile, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, &domain.RepositoryNotFoundError{Path: root}
	}

	root, err = filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	// WalkDir does not follow a symlinked root.
	root, err = filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	var files []domain.RepositoryFile

	err = filepath.WalkDir(root, func(path string, d iofs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			c.logger.Warn("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if path != root && c.skipDir(d.Name(), relPath) {
				return filepath.SkipDir
			}
			return nil
		}

		if !c.shouldInclude(d.Name(), relPath) {
			return nil
		}

		content, err := readFile(path)
		if err != nil {
			c.logger.Warn("failed to read file", "path", relPath, "error", err)
			return nil
		}

		c.logger.Debug("collected file", "index", len(files)+1, "path", relPath)
		files = append(files, domain.RepositoryFile{
			Path:    path,
			RelPath: relPath,
			Content: content,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	c.logger.Info("collected repository files", "root", root, "files", len(files))

	if len(files) == 0 {
		return nil, domain.ErrNoContent
	}
	return files, nil
}

func (c *Collector) skipDir(name, relPath string) bool {
	if _, ok := c.ignoreDirs[name]; ok {
		return true
	}
	for _, ignored := range c.ignoreList {
		if c.pathContains(relPath, ignored) {
			return true
		}
	}
	return false
}

func (c *Collector) shouldInclude(name, relPath string) bool {
	if !matchAny(c.includes, name) {
		return false
	}

	dir := pathDir(relPath)
	for _, marker := range c.markers {
		if c.pathContains(dir, marker) {
			return false
		}
	}

	return !matchAny(c.excludes, relPath)
}

// pathContains reports whether needle occurs in the slash separated path,
// either anywhere or only on component boundaries.
func (c *Collector) pathContains(path, needle string) bool {
	if needle == "" || path == "" {
		return false
	}
	if !c.component {
		return strings.Contains(path, needle)
	}
	return strings.Contains("/"+path+"/", "/"+strings.Trim(needle, "/")+"/")
}

func pathDir(relPath string) string {
	i := strings.LastIndex(relPath, "/")
	if i < 0 {
		return ""
	}
	return relPath[:i]
}

func matchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		matched, err := doublestar.Match(pattern, name)
		if err == nil && matched {
			return true
		}
	}
	return false
}

// readFile returns the file as text, dropping invalid UTF-8 sequences.
func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(data), ""), nil
}
