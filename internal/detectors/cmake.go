package detectors

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/StinkyLord/depscan/internal/detector"
	"github.com/StinkyLord/depscan/internal/errors"
	"github.com/StinkyLord/depscan/internal/fingerprints"
	"github.com/StinkyLord/depscan/internal/model"
)

// CMakeDetectorID identifies the cmake detector.
const CMakeDetectorID = "cmake"

// reCMakeFindPackage matches find_package(Foo [1.2.3] ...).
var reCMakeFindPackage = regexp.MustCompile(`(?i)\bfind_package\s*\(\s*([A-Za-z0-9_\-]+)(?:\s+([0-9][0-9A-Za-z.\-]*))?`)

// reCMakeFetchContent matches FetchContent_Declare(foo ...) up to the closing parenthesis.
var reCMakeFetchContent = regexp.MustCompile(`(?is)\bFetchContent_Declare\s*\(\s*([A-Za-z0-9_\-]+)([^)]*)\)`)

// reCMakeGitTag only accepts tags that look like versions; commit hashes are ignored.
var reCMakeGitTag = regexp.MustCompile(`(?i)\bGIT_TAG\s+v?([0-9]+(?:\.[0-9A-Za-z\-]+)*)\b`)

var reCMakeCacheDir = regexp.MustCompile(`^([A-Za-z0-9_]+)_DIR:PATH\s*=\s*(.*)$`)

var reCMakeCacheVersion = regexp.MustCompile(`^([A-Za-z0-9_]+?)_VERSION(_STRING)?:(?:STRING|INTERNAL)\s*=\s*(.*)$`)

// cmakeBuiltins are modules shipped with CMake, keyed by lowercased name.
var cmakeBuiltins = map[string]bool{
	"threads": true, "openmp": true, "mpi": true, "cuda": true, "cudatoolkit": true,
	"python": true, "python2": true, "python3": true, "pkgconfig": true,
	"gnuinstalldirs": true, "cmakepackageconfighelpers": true,
	"externalproject": true, "fetchcontent": true, "ctest": true, "cpack": true,
	"doxygen": true, "git": true, "perl": true,
}

// NewCMakeDetector detects find_package and FetchContent_Declare calls in
// CMakeLists.txt and resolved packages in CMakeCache.txt. It is experimental.
func NewCMakeDetector() *detector.FileDetector {
	return &detector.FileDetector{
		Meta:           detector.Info{ID: CMakeDetectorID, Version: 1, Experimental: true},
		SearchPatterns: []string{"CMakeLists.txt", "CMakeCache.txt"},
		Process:        processCMakeFile,
	}
}

func processCMakeFile(_ context.Context, req *detector.FileRequest) error {
	data, err := os.ReadFile(req.Path)
	if err != nil {
		return errors.New(err)
	}

	if strings.EqualFold(filepath.Base(req.Path), "CMakeCache.txt") {
		req.Logger.Debug("Parsing CMakeCache.txt")

		found, err := parseCMakeCache(data)
		if err != nil {
			return err
		}

		return commit(req.Recorder, found)
	}

	req.Logger.Debug("Parsing CMakeLists.txt")

	return commit(req.Recorder, parseCMakeLists(data))
}

func parseCMakeLists(data []byte) usages {
	var found usages

	content := string(data)

	for _, m := range reCMakeFindPackage.FindAllStringSubmatch(content, -1) {
		if cmakeBuiltins[strings.ToLower(m[1])] {
			continue
		}

		found.add(model.NewComponent(model.ComponentTypeGeneric, fingerprints.Canonical(m[1]), m[2]), true, "", nil)
	}

	for _, m := range reCMakeFetchContent.FindAllStringSubmatch(content, -1) {
		version := ""
		if tm := reCMakeGitTag.FindStringSubmatch(m[2]); tm != nil {
			version = tm[1]
		}

		found.add(model.NewComponent(model.ComponentTypeGeneric, fingerprints.Canonical(m[1]), version), true, "", nil)
	}

	return found
}

// parseCMakeCache reads the packages a configure run resolved. Only known
// libraries are reported; the cache holds many unrelated *_DIR entries.
func parseCMakeCache(data []byte) (usages, error) {
	resolved := map[string]bool{}
	versions := map[string]string{}
	versionStrings := map[string]string{}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}

		if m := reCMakeCacheDir.FindStringSubmatch(line); m != nil {
			lib, ok := fingerprints.Lookup(m[1])
			if !ok || m[2] == "" || strings.HasSuffix(m[2], "-NOTFOUND") {
				continue
			}

			resolved[lib.Name] = true

			continue
		}

		if m := reCMakeCacheVersion.FindStringSubmatch(line); m != nil {
			lib, ok := fingerprints.Lookup(m[1])
			if !ok || m[3] == "" || strings.HasSuffix(m[3], "-NOTFOUND") {
				continue
			}

			if m[2] != "" {
				versionStrings[lib.Name] = m[3]
			} else {
				versions[lib.Name] = m[3]
			}
		}
	}

	if err := sc.Err(); err != nil {
		return nil, errors.New(err)
	}

	var found usages

	for _, name := range sortedKeys(resolved) {
		version := versionStrings[name]
		if version == "" {
			version = versions[name]
		}

		found.add(model.NewComponent(model.ComponentTypeGeneric, name, version), false, "", nil)
	}

	return found, nil
}
