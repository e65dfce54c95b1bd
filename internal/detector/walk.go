package detector

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/mattn/go-zglob"

	"github.com/StinkyLord/depscan/internal/errors"
	"github.com/StinkyLord/depscan/internal/exclusion"
)

// FindFiles walks root and returns, in lexical order, the files whose base name
// matches one of the patterns. Directories the predicate excludes are pruned
// together with everything below them; this includes root itself.
// Unreadable directories are skipped.
func FindFiles(ctx context.Context, root string, exclude exclusion.Predicate, patterns []string) ([]string, error) {
	if exclude == nil {
		exclude = exclusion.None
	}

	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}

			return nil
		}

		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}

			if exclude(d.Name(), filepath.ToSlash(filepath.Dir(path))) {
				return filepath.SkipDir
			}

			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		if matchesAny(d.Name(), patterns) {
			files = append(files, path)
		}

		return nil
	})
	if err != nil {
		return nil, errors.New(err)
	}

	return files, nil
}

func matchesAny(name string, patterns []string) bool {
	lower := strings.ToLower(name)

	for _, pattern := range patterns {
		if !strings.ContainsAny(pattern, "*{") {
			if strings.EqualFold(pattern, name) {
				return true
			}

			continue
		}

		if ok, err := zglob.Match(strings.ToLower(pattern), lower); err == nil && ok {
			return true
		}
	}

	return false
}
