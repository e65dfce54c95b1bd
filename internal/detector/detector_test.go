package detector_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StinkyLord/depscan/internal/depgraph"
	"github.com/StinkyLord/depscan/internal/detector"
	"github.com/StinkyLord/depscan/internal/errors"
	"github.com/StinkyLord/depscan/internal/exclusion"
	"github.com/StinkyLord/depscan/internal/model"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return logger
}

func TestParseDetectorArgs(t *testing.T) {
	t.Parallel()

	args := detector.ParseDetectorArgs([]string{
		"conan.IncludeBuildRequires=false",
		"bare-token",
		"key=first",
		"key=second",
		"empty=",
		"url=https://example.com/?a=b",
	})

	assert.Equal(t, map[string]string{
		"conan.IncludeBuildRequires": "false",
		"key":                        "second",
		"empty":                      "",
		"url":                        "https://example.com/?a=b",
	}, args)
}

func TestDecodeArgs(t *testing.T) {
	t.Parallel()

	type options struct {
		IncludeBuildRequires bool
		Depth                int
		Name                 string
	}

	opts := options{IncludeBuildRequires: true, Name: "default"}

	err := detector.DecodeArgs(map[string]string{
		"conan.IncludeBuildRequires": "false",
		"conan.Depth":                "3",
		"vcpkg.Name":                 "ignored",
	}, "conan", &opts)
	require.NoError(t, err)

	assert.False(t, opts.IncludeBuildRequires)
	assert.Equal(t, 3, opts.Depth)
	assert.Equal(t, "default", opts.Name)
}

func TestDecodeArgsRejectsBadValue(t *testing.T) {
	t.Parallel()

	var opts struct{ Depth int }

	err := detector.DecodeArgs(map[string]string{"conan.Depth": "deep"}, "conan", &opts)
	require.Error(t, err)
}

func TestFindFilesHonoursExclusion(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "conanfile.txt"), "")
	writeFile(t, filepath.Join(root, "libs", "a", "conanfile.txt"), "")
	writeFile(t, filepath.Join(root, "node_modules", "conanfile.txt"), "")
	writeFile(t, filepath.Join(root, "subprojects", "zlib.wrap"), "")
	writeFile(t, filepath.Join(root, "README.md"), "")

	exclude, err := exclusion.Compile(exclusion.Options{Globs: []string{"**/node_modules/**"}})
	require.NoError(t, err)

	files, err := detector.FindFiles(t.Context(), root, exclude, []string{"conanfile.txt", "*.wrap"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(root, "conanfile.txt"),
		filepath.Join(root, "libs", "a", "conanfile.txt"),
		filepath.Join(root, "subprojects", "zlib.wrap"),
	}, files)
}

func TestFindFilesExcludedRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "conanfile.txt"), "")

	files, err := detector.FindFiles(t.Context(), root, func(string, string) bool { return true }, []string{"conanfile.txt"})
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestFileDetectorSkipsMalformedFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "good", "deps.txt"), "zlib")
	writeFile(t, filepath.Join(root, "bad", "deps.txt"), "")

	fd := &detector.FileDetector{
		Meta:           detector.Info{ID: "fake", Version: 1},
		SearchPatterns: []string{"deps.txt"},
		Process: func(_ context.Context, req *detector.FileRequest) error {
			data, err := os.ReadFile(req.Path)
			if err != nil {
				return err
			}

			if len(data) == 0 {
				return errors.New("empty manifest")
			}

			_, err = req.Recorder().RegisterUsage(
				model.NewDetectedComponent(model.NewComponent(model.ComponentTypeGeneric, string(data), "1.0")),
				true, "", nil,
			)

			return err
		},
	}

	recorder := depgraph.NewComponentRecorder()

	result, err := fd.Execute(t.Context(), &detector.ScanRequest{
		SourceDirectory:   root,
		ComponentRecorder: recorder,
		Logger:            quietLogger(),
	})
	require.NoError(t, err)

	assert.Equal(t, model.ResultSuccess, result.Code)
	assert.Equal(t, "2", result.AdditionalTelemetryDetails["filesFound"])
	assert.Equal(t, "1", result.AdditionalTelemetryDetails["filesSkipped"])
	assert.Len(t, recorder.DetectedComponents(), 1)
}

func TestFileDetectorPanicFailsDetector(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "deps.txt"), "x")

	fd := &detector.FileDetector{
		Meta:           detector.Info{ID: "fake"},
		SearchPatterns: []string{"deps.txt"},
		Process: func(context.Context, *detector.FileRequest) error {
			panic("unexpected layout")
		},
	}

	_, err := fd.Execute(t.Context(), &detector.ScanRequest{
		SourceDirectory:   root,
		ComponentRecorder: depgraph.NewComponentRecorder(),
		Logger:            quietLogger(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected layout")
}
