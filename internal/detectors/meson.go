package detectors

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/StinkyLord/depscan/internal/depgraph"
	"github.com/StinkyLord/depscan/internal/detector"
	"github.com/StinkyLord/depscan/internal/errors"
	"github.com/StinkyLord/depscan/internal/model"
)

// MesonDetectorID identifies the meson detector.
const MesonDetectorID = "meson"

// reMesonDependency matches dependency('foo', ...) up to the closing parenthesis.
var reMesonDependency = regexp.MustCompile(`(?is)\bdependency\s*\(\s*['"]([A-Za-z0-9_\-\.+]+)['"]([^)]*)\)`)

// reMesonVersion matches version: '>=1.2.3' inside a dependency call.
var reMesonVersion = regexp.MustCompile(`version\s*:\s*['"][>=<!~\s]*([0-9][^\s'"]*)['"]`)

var reMesonNative = regexp.MustCompile(`native\s*:\s*true`)

// reMesonSubproject matches subproject('foo').
var reMesonSubproject = regexp.MustCompile(`(?i)\bsubproject\s*\(\s*['"]([A-Za-z0-9_\-\.+]+)['"]`)

// reMesonWrapDirectory extracts the version from directory = zlib-1.2.13.
var reMesonWrapDirectory = regexp.MustCompile(`^[A-Za-z0-9_\.+]+?-([0-9][A-Za-z0-9_\.\-+]*)$`)

// mesonBuiltins are dependencies provided by the toolchain, not packages.
var mesonBuiltins = map[string]bool{
	"threads": true, "dl": true, "m": true, "rt": true,
	"openmp": true, "mpi": true, "cuda": true, "intl": true,
}

// NewMesonDetector detects meson.build dependencies and subprojects/*.wrap files.
// It is experimental.
func NewMesonDetector() *detector.FileDetector {
	return &detector.FileDetector{
		Meta:           detector.Info{ID: MesonDetectorID, Version: 1, Experimental: true},
		SearchPatterns: []string{"meson.build", "*.wrap"},
		Process:        processMesonFile,
	}
}

func processMesonFile(_ context.Context, req *detector.FileRequest) error {
	data, err := os.ReadFile(req.Path)
	if err != nil {
		return errors.New(err)
	}

	if strings.EqualFold(filepath.Base(req.Path), "meson.build") {
		req.Logger.Debug("Parsing meson.build")
		return commit(req.Recorder, parseMesonBuild(data))
	}

	if filepath.Base(filepath.Dir(req.Path)) != "subprojects" {
		return nil
	}

	req.Logger.Debug("Parsing wrap file")

	name, version, err := parseMesonWrap(req.Path, data)
	if err != nil {
		return err
	}

	var found usages
	found.add(model.NewComponent(model.ComponentTypeMeson, name, version), false, "", nil)

	// subprojects/ sits next to the project's meson.build.
	recorder := req.Recorder

	project := filepath.Join(filepath.Dir(filepath.Dir(req.Path)), "meson.build")
	if _, err := os.Stat(project); err == nil {
		recorder = func() *depgraph.SingleFileRecorder {
			r := req.ComponentRecorder.CreateSingleFileComponentRecorder(project)
			r.AddAdditionalRelatedFile(req.Path)

			return r
		}
	}

	return commit(recorder, found)
}

func parseMesonBuild(data []byte) usages {
	var found usages

	content := string(data)

	for _, m := range reMesonDependency.FindAllStringSubmatch(content, -1) {
		name := strings.ToLower(m[1])
		if mesonBuiltins[name] {
			continue
		}

		version := ""
		if vm := reMesonVersion.FindStringSubmatch(m[2]); vm != nil {
			version = vm[1]
		}

		native := reMesonNative.MatchString(m[2])

		found.add(model.NewComponent(model.ComponentTypeMeson, name, version), true, "", model.Bool(native))
	}

	for _, m := range reMesonSubproject.FindAllStringSubmatch(content, -1) {
		name := strings.ToLower(m[1])
		if mesonBuiltins[name] {
			continue
		}

		found.add(model.NewComponent(model.ComponentTypeMeson, name, ""), true, "", nil)
	}

	return found
}

// parseMesonWrap reads an INI style wrap file. The package is named after the
// file; its version comes from wrapdb_version, version or the directory name.
func parseMesonWrap(path string, data []byte) (name, version string, err error) {
	name = strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))

	var directory string

	sawSection := false

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			sawSection = true
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "wrapdb_version":
			version, _, _ = strings.Cut(value, "-")
		case "version":
			if version == "" {
				version = value
			}
		case "directory":
			directory = value
		}
	}

	if err := sc.Err(); err != nil {
		return "", "", errors.New(err)
	}

	if !sawSection {
		return "", "", errors.Errorf("%s is not a wrap file", filepath.Base(path))
	}

	if version == "" {
		if m := reMesonWrapDirectory.FindStringSubmatch(directory); m != nil {
			version = m[1]
		}
	}

	return name, version, nil
}
