package orchestrator_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StinkyLord/depscan/internal/detector"
	"github.com/StinkyLord/depscan/internal/detectors"
	"github.com/StinkyLord/depscan/internal/errors"
	"github.com/StinkyLord/depscan/internal/model"
	"github.com/StinkyLord/depscan/internal/orchestrator"
	"github.com/StinkyLord/depscan/internal/scanner"
	"github.com/StinkyLord/depscan/internal/telemetry"
)

type failingDetector struct {
	info detector.Info
}

func (f failingDetector) Info() detector.Info { return f.info }

func (f failingDetector) Execute(context.Context, *detector.ScanRequest) (*detector.Result, error) {
	return nil, errors.New("boom")
}

func newOrchestrator(sink telemetry.Sink) *orchestrator.Orchestrator {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return orchestrator.New(logger, sink)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func fixture(t *testing.T) string {
	t.Helper()

	root := t.TempDir()

	writeFile(t, filepath.Join(root, "app", "conanfile.txt"), "[requires]\nzlib/1.3\n\n[tool_requires]\ncmake/3.27.0\n")
	writeFile(t, filepath.Join(root, "lib", "conanfile.txt"), "[requires]\nzlib/1.3\n")
	writeFile(t, filepath.Join(root, "vcpkg.json"), `{"name": "app", "dependencies": ["fmt", {"name": "zlib", "host": true}]}`)
	writeFile(t, filepath.Join(root, "third_party", "vcpkg.json"), `{"name": "vendored", "dependencies": ["openssl"]}`)
	writeFile(t, filepath.Join(root, "meson.build"), "project('demo', 'c')\ndep = dependency('glib-2.0')\n")

	return root
}

func componentIDs(result *model.ScanResult) []string {
	var out []string

	for _, sc := range result.ComponentsFound {
		out = append(out, sc.DetectorID+":"+sc.Component.ID())
	}

	return out
}

func TestRunEndToEnd(t *testing.T) {
	t.Parallel()

	root := fixture(t)
	collector := telemetry.NewCollector()

	result, err := newOrchestrator(collector).Run(t.Context(), scanner.Options{
		SourceDirectory:        root,
		DirectoryExclusionList: []string{"**/third_party/**"},
	}, detectors.All(), scanner.Restrictions{})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"conan:cmake 3.27.0 - Conan",
		"vcpkg:fmt unknown - Vcpkg",
		"conan:zlib 1.3 - Conan",
		"vcpkg:zlib unknown - Vcpkg",
	}, componentIDs(result))

	for _, sc := range result.ComponentsFound {
		if sc.Component.Name == "zlib" && sc.DetectorID == "conan" {
			assert.Equal(t, []string{"/app/conanfile.txt", "/lib/conanfile.txt"}, sc.LocationsFoundAt)
			require.NotNil(t, sc.IsDevelopmentDependency)
			assert.False(t, *sc.IsDevelopmentDependency)
		}
	}

	assert.Equal(t, model.ResultSuccess, result.ResultCode)
	assert.Len(t, result.DetectorsInRun, 6)
	assert.Len(t, collector.Records(), 6)
	assert.Contains(t, result.DependencyGraphs, filepath.Join(root, "vcpkg.json"))
	assert.NotContains(t, result.DependencyGraphs, filepath.Join(root, "third_party", "vcpkg.json"))
}

func TestRunKeepsEnabledExperimentalComponents(t *testing.T) {
	t.Parallel()

	root := fixture(t)

	result, err := newOrchestrator(nil).Run(t.Context(), scanner.Options{SourceDirectory: root},
		detectors.All(), scanner.Restrictions{
			AllowedDetectorIDs:           []string{detectors.MesonDetectorID},
			ExplicitlyEnabledDetectorIDs: []string{detectors.MesonDetectorID},
		})
	require.NoError(t, err)

	assert.Equal(t, []string{"meson:glib-2.0 unknown - Meson"}, componentIDs(result))
	assert.Equal(t, []string{"/meson.build"}, result.ComponentsFound[0].LocationsFoundAt)
}

func TestRunFailsOnFatalDetectorError(t *testing.T) {
	t.Parallel()

	result, err := newOrchestrator(nil).Run(t.Context(), scanner.Options{SourceDirectory: t.TempDir()},
		[]detector.Detector{failingDetector{info: detector.Info{ID: "broken", Version: 1}}},
		scanner.Restrictions{})
	require.Error(t, err)
	assert.Nil(t, result)

	var failed scanner.DetectorFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "broken", failed.DetectorID)
}

func TestRunIsolatesExperimentalFailure(t *testing.T) {
	t.Parallel()

	result, err := newOrchestrator(nil).Run(t.Context(), scanner.Options{SourceDirectory: t.TempDir()},
		[]detector.Detector{failingDetector{info: detector.Info{ID: "broken", Version: 1, Experimental: true}}},
		scanner.Restrictions{})
	require.NoError(t, err)

	assert.Empty(t, result.ComponentsFound)
	require.Len(t, result.DetectorsInRun, 1)
	assert.True(t, result.DetectorsInRun[0].IsExperimental)
	assert.Equal(t, model.ResultSuccess, result.ResultCode)
}

func TestRunRejectsMissingSourceDirectory(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "file.txt")
	writeFile(t, file, "")

	testCases := []struct {
		name string
		dir  string
	}{
		{name: "empty", dir: ""},
		{name: "missing", dir: filepath.Join(t.TempDir(), "nope")},
		{name: "file", dir: file},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := newOrchestrator(nil).Run(t.Context(), scanner.Options{SourceDirectory: tc.dir},
				detectors.All(), scanner.Restrictions{})
			require.ErrorIs(t, err, errors.ErrNoSourceDirectory)
		})
	}
}
