// Package exclusion compiles the directory exclusion configuration into the
// predicate the filesystem walker calls for every candidate directory.
package exclusion

import (
	"path"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mattn/go-zglob"

	"github.com/StinkyLord/depscan/internal/errors"
)

// defaultCacheSize bounds the memo of directory decisions shared by all detectors.
const defaultCacheSize = 8192

// Predicate reports whether the directory name inside parentPath must be pruned.
type Predicate func(name, parentPath string) bool

// Options is the exclusion configuration surface.
type Options struct {
	// Globs are the current exclusion patterns. "**" spans directories, "*" a
	// single path segment and "/" is the separator.
	Globs []string

	// Legacy entries are plain path fragments matched by substring against the
	// directory's full path. Kept for backward compatibility.
	Legacy []string

	// AllowWindowsPaths treats "\" as an additional separator.
	AllowWindowsPaths bool

	// IgnoreCase folds case before matching.
	IgnoreCase bool

	// CacheSize overrides the number of memoised decisions; 0 uses the default.
	CacheSize int
}

// matcher is a compiled exclusion pattern.
type matcher func(candidate string) bool

// None never excludes anything.
func None(string, string) bool { return false }

// Compile builds a single predicate from the glob and legacy lists. A
// directory is excluded if any glob or any legacy fragment matches it, so the
// two lists union. The returned predicate is safe for concurrent use and is
// shared read-only by every detector.
func Compile(opts Options) (Predicate, error) {
	var matchers []matcher

	for _, pattern := range opts.Globs {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}

		m, err := compileGlob(normalize(pattern, opts))
		if err != nil {
			return nil, err
		}

		matchers = append(matchers, m)
	}

	for _, fragment := range opts.Legacy {
		fragment = normalize(strings.TrimSpace(fragment), opts)
		if fragment == "" {
			continue
		}

		matchers = append(matchers, func(candidate string) bool {
			return strings.Contains(candidate, fragment)
		})
	}

	if len(matchers) == 0 {
		return None, nil
	}

	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}

	cache, err := lru.New[string, bool](size)
	if err != nil {
		return nil, errors.New(err)
	}

	return func(name, parentPath string) bool {
		candidate := normalize(join(parentPath, name), opts)

		if excluded, ok := cache.Get(candidate); ok {
			return excluded
		}

		excluded := false

		for _, m := range matchers {
			if m(candidate) {
				excluded = true
				break
			}
		}

		cache.Add(candidate, excluded)

		return excluded
	}, nil
}

// compileGlob validates a pattern and returns its matcher. A directory is the
// root of the subtree being pruned, so it is also tested with a trailing
// separator: "**/node_modules/**" then excludes "a/node_modules" itself.
func compileGlob(pattern string) (matcher, error) {
	if !hasMeta(pattern) {
		literal := strings.TrimSuffix(pattern, "/")

		return func(candidate string) bool {
			return candidate == literal
		}, nil
	}

	// zglob treats only "**/" as crossing directories, so a trailing "**" is
	// spelled out to match at any depth.
	if strings.HasSuffix(pattern, "**") {
		pattern += "/*"
	}

	if err := validateGlob(pattern); err != nil {
		return nil, errors.Errorf("invalid directory exclusion pattern %q: %w", pattern, err)
	}

	return func(candidate string) bool {
		for _, c := range []string{candidate, candidate + "/"} {
			if ok, err := zglob.Match(pattern, c); err == nil && ok {
				return true
			}
		}

		return false
	}, nil
}

// validateGlob rejects malformed patterns. zglob reads an unterminated "[" as
// a class running to the end of the pattern, so each segment is also checked
// with path.Match, which reports it.
func validateGlob(pattern string) error {
	for _, segment := range strings.Split(pattern, "/") {
		if _, err := path.Match(segment, ""); err != nil {
			return err
		}
	}

	if _, err := zglob.New(pattern); err != nil {
		return err
	}

	return nil
}

func normalize(p string, opts Options) string {
	if opts.AllowWindowsPaths {
		p = strings.ReplaceAll(p, `\`, "/")
	}

	if opts.IgnoreCase {
		p = strings.ToLower(p)
	}

	return p
}

func join(parentPath, name string) string {
	if parentPath == "" {
		return name
	}

	if name == "" {
		return parentPath
	}

	if strings.HasSuffix(parentPath, "/") || strings.HasSuffix(parentPath, `\`) {
		return parentPath + name
	}

	return path.Join(parentPath, name)
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}
