// Package config loads depscan settings from defaults, an optional depscan.yaml,
// a .env file, DEPSCAN_* environment variables and command line flags, in
// increasing order of precedence.
package config

import (
	"os"
	"runtime"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/StinkyLord/depscan/internal/errors"
	"github.com/StinkyLord/depscan/internal/scanner"
)

const (
	// EnvPrefix prefixes every environment variable, e.g. DEPSCAN_IGNORE_CASE.
	EnvPrefix = "DEPSCAN"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "depscan"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "yaml"
	// DotEnvFile is read from the working directory when present.
	DotEnvFile = ".env"
)

// Setting keys.
const (
	KeySourceDirectory                = "source_directory"
	KeyDetectorArgs                   = "detector_args"
	KeyDirectoryExclusionList         = "directory_exclusion_list"
	KeyDirectoryExclusionListObsolete = "directory_exclusion_list_obsolete"
	KeyAllowWindowsPaths              = "allow_windows_paths"
	KeyIgnoreCase                     = "ignore_case"
	KeyDetectorsEnabled               = "detectors_enabled"
	KeyDetectorsFilter                = "detectors_filter"
	KeyMaxDetectorParallelism         = "max_detector_parallelism"
	KeyMaxFileParallelism             = "max_file_parallelism"
	KeyOutput                         = "output"
	KeyFormat                         = "format"
	KeyVerbose                        = "verbose"
	KeyTraceStdout                    = "trace_stdout"
)

var formats = []string{"json", "cyclonedx", "cdx", "tree"}

// Config holds the resolved settings of one depscan invocation.
type Config struct {
	SourceDirectory                string   `mapstructure:"source_directory"`
	DetectorArgs                   []string `mapstructure:"detector_args"`
	DirectoryExclusionList         []string `mapstructure:"directory_exclusion_list"`
	DirectoryExclusionListObsolete []string `mapstructure:"directory_exclusion_list_obsolete"`
	DetectorsEnabled               []string `mapstructure:"detectors_enabled"`
	DetectorsFilter                []string `mapstructure:"detectors_filter"`
	Output                         string   `mapstructure:"output"`
	Format                         string   `mapstructure:"format"`
	MaxDetectorParallelism         int      `mapstructure:"max_detector_parallelism"`
	MaxFileParallelism             int      `mapstructure:"max_file_parallelism"`
	AllowWindowsPaths              bool     `mapstructure:"allow_windows_paths"`
	IgnoreCase                     bool     `mapstructure:"ignore_case"`
	Verbose                        bool     `mapstructure:"verbose"`
	TraceStdout                    bool     `mapstructure:"trace_stdout"`
}

// DefaultConfig returns the settings used when nothing else is configured.
// Path handling follows the host: Windows separators and case-insensitive
// matching are on by default only on Windows.
func DefaultConfig() *Config {
	windows := runtime.GOOS == "windows"

	return &Config{
		SourceDirectory:    ".",
		Output:             "-",
		Format:             "json",
		MaxFileParallelism: 4,
		AllowWindowsPaths:  windows,
		IgnoreCase:         windows,
	}
}

// LoadOptions control where settings are read from.
type LoadOptions struct {
	// Flags are bound to their settings through FlagKeys. May be nil.
	Flags *pflag.FlagSet

	// FlagKeys maps a setting key to the name of the flag that sets it.
	FlagKeys map[string]string

	// ConfigFilePath is used exclusively when set and must exist. Otherwise
	// depscan.yaml is looked up in the source directory, then the working
	// directory; a missing file is not an error.
	ConfigFilePath string

	// DotEnvPath overrides DotEnvFile.
	DotEnvPath string
}

// Load resolves the configuration. It returns the config file used, if any.
func Load(opts LoadOptions) (*Config, string, error) {
	dotEnv := opts.DotEnvPath
	if dotEnv == "" {
		dotEnv = DotEnvFile
	}

	if err := godotenv.Load(dotEnv); err != nil && !os.IsNotExist(err) {
		return nil, "", errors.Errorf("failed to load %s: %w", dotEnv, err)
	}

	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault(KeySourceDirectory, defaults.SourceDirectory)
	v.SetDefault(KeyDetectorArgs, defaults.DetectorArgs)
	v.SetDefault(KeyDirectoryExclusionList, defaults.DirectoryExclusionList)
	v.SetDefault(KeyDirectoryExclusionListObsolete, defaults.DirectoryExclusionListObsolete)
	v.SetDefault(KeyAllowWindowsPaths, defaults.AllowWindowsPaths)
	v.SetDefault(KeyIgnoreCase, defaults.IgnoreCase)
	v.SetDefault(KeyDetectorsEnabled, defaults.DetectorsEnabled)
	v.SetDefault(KeyDetectorsFilter, defaults.DetectorsFilter)
	v.SetDefault(KeyMaxDetectorParallelism, defaults.MaxDetectorParallelism)
	v.SetDefault(KeyMaxFileParallelism, defaults.MaxFileParallelism)
	v.SetDefault(KeyOutput, defaults.Output)
	v.SetDefault(KeyFormat, defaults.Format)
	v.SetDefault(KeyVerbose, defaults.Verbose)
	v.SetDefault(KeyTraceStdout, defaults.TraceStdout)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if opts.Flags != nil {
		for key, name := range opts.FlagKeys {
			flag := opts.Flags.Lookup(name)
			if flag == nil {
				return nil, "", errors.Errorf("no flag %q for setting %s", name, key)
			}

			if err := v.BindPFlag(key, flag); err != nil {
				return nil, "", errors.New(err)
			}
		}
	}

	resolvedPath, err := readConfigFile(v, opts.ConfigFilePath)
	if err != nil {
		return nil, "", err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", errors.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	return &cfg, resolvedPath, nil
}

func readConfigFile(v *viper.Viper, path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", errors.Errorf("config file not found: %s", path)
		}

		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return "", errors.Errorf("failed to read %s: %w", path, err)
		}

		return path, nil
	}

	v.SetConfigName(ConfigFileName)
	v.SetConfigType(ConfigFileExt)
	v.AddConfigPath(v.GetString(KeySourceDirectory))
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}

		return "", errors.Errorf("failed to read config: %w", err)
	}

	return v.ConfigFileUsed(), nil
}

// Validate rejects settings no scan can run with.
func (c *Config) Validate() error {
	if c.SourceDirectory == "" {
		return errors.Errorf("%w: %s is empty", errors.ErrNoSourceDirectory, KeySourceDirectory)
	}

	if !slices.Contains(formats, c.Format) {
		return errors.Errorf("unsupported format %q (supported: json, cyclonedx, tree)", c.Format)
	}

	if c.MaxDetectorParallelism < 0 {
		return errors.Errorf("%s must not be negative", KeyMaxDetectorParallelism)
	}

	if c.MaxFileParallelism < 0 {
		return errors.Errorf("%s must not be negative", KeyMaxFileParallelism)
	}

	return nil
}

// ScanOptions returns the engine options described by the config.
func (c *Config) ScanOptions() scanner.Options {
	return scanner.Options{
		SourceDirectory:                c.SourceDirectory,
		DetectorArgs:                   c.DetectorArgs,
		DirectoryExclusionList:         c.DirectoryExclusionList,
		DirectoryExclusionListObsolete: c.DirectoryExclusionListObsolete,
		AllowWindowsPaths:              c.AllowWindowsPaths,
		IgnoreCase:                     c.IgnoreCase,
		MaxDetectorParallelism:         c.MaxDetectorParallelism,
		MaxFileParallelism:             c.MaxFileParallelism,
	}
}

// Restrictions returns the detector selection described by the config.
func (c *Config) Restrictions() scanner.Restrictions {
	return scanner.Restrictions{
		AllowedDetectorIDs:           c.DetectorsFilter,
		ExplicitlyEnabledDetectorIDs: c.DetectorsEnabled,
	}
}
