package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StinkyLord/depscan/internal/config"
	"github.com/StinkyLord/depscan/internal/errors"
)

// Tests in this file touch process environment and cannot run in parallel.

func newFlags(t *testing.T, args ...string) (*pflag.FlagSet, map[string]string) {
	t.Helper()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("dir", ".", "")
	flags.StringArray("exclude", nil, "")
	flags.StringSlice("enable", nil, "")
	flags.Int("max-file-parallelism", 4, "")
	flags.String("format", "json", "")

	require.NoError(t, flags.Parse(args))

	return flags, map[string]string{
		config.KeySourceDirectory:        "dir",
		config.KeyDirectoryExclusionList: "exclude",
		config.KeyDetectorsEnabled:       "enable",
		config.KeyMaxFileParallelism:     "max-file-parallelism",
		config.KeyFormat:                 "format",
	}
}

func load(t *testing.T, opts config.LoadOptions) (*config.Config, string) {
	t.Helper()

	if opts.DotEnvPath == "" {
		opts.DotEnvPath = filepath.Join(t.TempDir(), ".env")
	}

	cfg, used, err := config.Load(opts)
	require.NoError(t, err)

	return cfg, used
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	flags, keys := newFlags(t, "--dir", dir)

	cfg, used := load(t, config.LoadOptions{Flags: flags, FlagKeys: keys})

	assert.Empty(t, used)
	assert.Equal(t, dir, cfg.SourceDirectory)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "-", cfg.Output)
	assert.Equal(t, 4, cfg.MaxFileParallelism)
	assert.Equal(t, runtime.GOOS == "windows", cfg.IgnoreCase)
	assert.Equal(t, runtime.GOOS == "windows", cfg.AllowWindowsPaths)
	assert.Empty(t, cfg.DetectorsEnabled)
}

func TestLoadConfigFileFromSourceDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "depscan.yaml"), []byte(`
ignore_case: true
directory_exclusion_list:
  - "**/node_modules/**"
detector_args:
  - conan.IncludeBuildRequires=false
max_detector_parallelism: 2
`), 0o644))

	flags, keys := newFlags(t, "--dir", dir)

	cfg, used := load(t, config.LoadOptions{Flags: flags, FlagKeys: keys})

	assert.Equal(t, filepath.Join(dir, "depscan.yaml"), used)
	assert.True(t, cfg.IgnoreCase)
	assert.Equal(t, []string{"**/node_modules/**"}, cfg.DirectoryExclusionList)
	assert.Equal(t, []string{"conan.IncludeBuildRequires=false"}, cfg.DetectorArgs)
	assert.Equal(t, 2, cfg.MaxDetectorParallelism)
}

func TestLoadExplicitConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("format: tree\n"), 0o644))

	flags, keys := newFlags(t, "--dir", t.TempDir())

	cfg, used := load(t, config.LoadOptions{Flags: flags, FlagKeys: keys, ConfigFilePath: path})

	assert.Equal(t, path, used)
	assert.Equal(t, "tree", cfg.Format)
}

func TestLoadMissingExplicitConfigFile(t *testing.T) {
	_, _, err := config.Load(config.LoadOptions{
		ConfigFilePath: filepath.Join(t.TempDir(), "missing.yaml"),
		DotEnvPath:     filepath.Join(t.TempDir(), ".env"),
	})
	require.Error(t, err)
}

func TestEnvironmentOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "depscan.yaml"), []byte("max_file_parallelism: 2\n"), 0o644))

	t.Setenv("DEPSCAN_MAX_FILE_PARALLELISM", "9")
	t.Setenv("DEPSCAN_DETECTORS_FILTER", "conan,vcpkg")

	flags, keys := newFlags(t, "--dir", dir)

	cfg, _ := load(t, config.LoadOptions{Flags: flags, FlagKeys: keys})

	assert.Equal(t, 9, cfg.MaxFileParallelism)
	assert.Equal(t, []string{"conan", "vcpkg"}, cfg.DetectorsFilter)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("DEPSCAN_MAX_FILE_PARALLELISM", "9")
	t.Setenv("DEPSCAN_DETECTORS_ENABLED", "conan")

	flags, keys := newFlags(t, "--dir", t.TempDir(), "--max-file-parallelism", "1", "--enable", "meson")

	cfg, _ := load(t, config.LoadOptions{Flags: flags, FlagKeys: keys})

	assert.Equal(t, 1, cfg.MaxFileParallelism)
	assert.Equal(t, []string{"meson"}, cfg.DetectorsEnabled)
}

func TestExcludeFlagKeepsBraceGlobsWhole(t *testing.T) {
	flags, keys := newFlags(t, "--dir", t.TempDir(),
		"--exclude", "**/{vendor,third_party}/**", "--exclude", "**/build/**")

	cfg, _ := load(t, config.LoadOptions{Flags: flags, FlagKeys: keys})

	assert.Equal(t, []string{"**/{vendor,third_party}/**", "**/build/**"}, cfg.DirectoryExclusionList)
}

func TestDotEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DEPSCAN_IGNORE_CASE=true\n"), 0o644))

	t.Cleanup(func() { os.Unsetenv("DEPSCAN_IGNORE_CASE") })

	flags, keys := newFlags(t, "--dir", t.TempDir())

	cfg, _ := load(t, config.LoadOptions{Flags: flags, FlagKeys: keys, DotEnvPath: envFile})

	assert.True(t, cfg.IgnoreCase)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	testCases := []struct {
		name string
		args []string
	}{
		{name: "format", args: []string{"--format", "spdx"}},
		{name: "empty source directory", args: []string{"--dir", ""}},
		{name: "negative parallelism", args: []string{"--max-file-parallelism", "-1"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			flags, keys := newFlags(t, tc.args...)

			_, _, err := config.Load(config.LoadOptions{
				Flags:      flags,
				FlagKeys:   keys,
				DotEnvPath: filepath.Join(t.TempDir(), ".env"),
			})
			require.Error(t, err)
		})
	}
}

func TestLoadRejectsUnknownFlag(t *testing.T) {
	flags, _ := newFlags(t)

	_, _, err := config.Load(config.LoadOptions{
		Flags:      flags,
		FlagKeys:   map[string]string{config.KeyVerbose: "verbose"},
		DotEnvPath: filepath.Join(t.TempDir(), ".env"),
	})
	require.Error(t, err)
}

func TestScanOptionsAndRestrictions(t *testing.T) {
	cfg := &config.Config{
		SourceDirectory:                "/src",
		DetectorArgs:                   []string{"a=b"},
		DirectoryExclusionList:         []string{"**/out/**"},
		DirectoryExclusionListObsolete: []string{"build"},
		DetectorsEnabled:               []string{"meson"},
		DetectorsFilter:                []string{"conan", "meson"},
		MaxDetectorParallelism:         3,
		MaxFileParallelism:             5,
		AllowWindowsPaths:              true,
		IgnoreCase:                     true,
		Format:                         "json",
	}

	require.NoError(t, cfg.Validate())

	opts := cfg.ScanOptions()
	assert.Equal(t, "/src", opts.SourceDirectory)
	assert.Equal(t, []string{"a=b"}, opts.DetectorArgs)
	assert.Equal(t, []string{"**/out/**"}, opts.DirectoryExclusionList)
	assert.Equal(t, []string{"build"}, opts.DirectoryExclusionListObsolete)
	assert.Equal(t, 3, opts.MaxDetectorParallelism)
	assert.Equal(t, 5, opts.MaxFileParallelism)
	assert.True(t, opts.AllowWindowsPaths)
	assert.True(t, opts.IgnoreCase)

	restrictions := cfg.Restrictions()
	assert.Equal(t, []string{"conan", "meson"}, restrictions.AllowedDetectorIDs)
	assert.Equal(t, []string{"meson"}, restrictions.ExplicitlyEnabledDetectorIDs)

	cfg.SourceDirectory = ""
	require.ErrorIs(t, cfg.Validate(), errors.ErrNoSourceDirectory)
}
