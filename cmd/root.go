package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/StinkyLord/depscan/internal/config"
	"github.com/StinkyLord/depscan/internal/detectors"
	"github.com/StinkyLord/depscan/internal/errors"
	"github.com/StinkyLord/depscan/internal/orchestrator"
	"github.com/StinkyLord/depscan/internal/output"
	"github.com/StinkyLord/depscan/internal/telemetry"
)

const toolVersion = "1.0.0"

var flagConfig string

// flagKeys binds scan flags to their configuration settings.
var flagKeys = map[string]string{
	config.KeySourceDirectory:                "dir",
	config.KeyDirectoryExclusionList:         "exclude",
	config.KeyDirectoryExclusionListObsolete: "exclude-obsolete",
	config.KeyDetectorArgs:                   "detector-arg",
	config.KeyDetectorsEnabled:               "enable",
	config.KeyDetectorsFilter:                "detectors",
	config.KeyIgnoreCase:                     "ignore-case",
	config.KeyAllowWindowsPaths:              "allow-windows-paths",
	config.KeyMaxDetectorParallelism:         "max-detector-parallelism",
	config.KeyMaxFileParallelism:             "max-file-parallelism",
	config.KeyFormat:                         "format",
	config.KeyOutput:                         "output",
	config.KeyVerbose:                        "verbose",
	config.KeyTraceStdout:                    "trace-stdout",
}

var rootCmd = &cobra.Command{
	Use:   "depscan",
	Short: "Component detection engine",
	Long: `depscan walks a source tree, runs every registered detector against it and
reports the third-party components it found, deduplicated per detector, with
the manifests they were found in and the top-level dependencies that pull
them in.

Detectors:
  • cmake            CMakeLists.txt, CMakeCache.txt (experimental)
  • compilecommands  compile_commands.json (experimental)
  • conan            conanfile.txt, conanfile.py, conan.lock, graph.json
  • linkermap        *.map from GNU ld or MSVC (experimental)
  • meson            meson.build, subprojects/*.wrap (experimental)
  • vcpkg            vcpkg.json, vcpkg-lock.json, installed/vcpkg/status`,
	SilenceUsage: true,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a source tree for components",
	Long: `Scan a source tree and write the detected components.

Settings can also come from depscan.yaml (in the scanned directory or the
working directory, or --config), from DEPSCAN_* environment variables and
from a .env file. Flags take precedence.

Examples:
  depscan scan --dir /path/to/project --output scan.json
  depscan scan --dir . --format cyclonedx --output sbom.json
  depscan scan --dir . --exclude '**/third_party/**' --enable meson --verbose`,
	RunE: runScan,
}

var detectorsCmd = &cobra.Command{
	Use:   "detectors",
	Short: "List the registered detectors",
	RunE:  runDetectors,
}

func init() {
	defaults := config.DefaultConfig()

	f := scanCmd.Flags()
	f.StringP("dir", "d", defaults.SourceDirectory, "Path to the source tree to scan")
	f.StringArray("exclude", nil, "Glob of directories to skip, e.g. '**/node_modules/**' (repeatable)")
	f.StringArray("exclude-obsolete", nil, "Path fragment of directories to skip, matched as a substring (repeatable)")
	f.StringArray("detector-arg", nil, "Detector setting as key=value, e.g. conan.IncludeBuildRequires=false (repeatable)")
	f.StringSlice("enable", nil, "Experimental detector to run like a stable one (repeatable)")
	f.StringSlice("detectors", nil, "Only run the listed detectors (repeatable)")
	f.Bool("ignore-case", defaults.IgnoreCase, "Match exclusions case-insensitively")
	f.Bool("allow-windows-paths", defaults.AllowWindowsPaths, "Treat backslashes in paths as separators when matching exclusions")
	f.Int("max-detector-parallelism", defaults.MaxDetectorParallelism, "Maximum detectors running at once (0 = no limit)")
	f.Int("max-file-parallelism", defaults.MaxFileParallelism, "Maximum files parsed at once by one detector")
	f.StringP("format", "f", defaults.Format, "Output format: json, cyclonedx, tree")
	f.StringP("output", "o", defaults.Output, "Output file path (use '-' for stdout)")
	f.BoolP("verbose", "v", defaults.Verbose, "Enable verbose output")
	f.Bool("trace-stdout", defaults.TraceStdout, "Print OpenTelemetry spans and metrics of detector runs to stderr")
	f.StringVar(&flagConfig, "config", "", "Path to a config file (default: depscan.yaml)")

	rootCmd.AddCommand(scanCmd, detectorsCmd)
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)

	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	return logger
}

func runScan(cmd *cobra.Command, _ []string) (err error) {
	cfg, used, err := config.Load(config.LoadOptions{
		Flags:          cmd.Flags(),
		FlagKeys:       flagKeys,
		ConfigFilePath: flagConfig,
	})
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Verbose)
	logger.Debugf("depscan v%s", toolVersion)

	if used != "" {
		logger.Debugf("Using config file %s", used)
	}

	collector := telemetry.NewCollector()
	sink := telemetry.Multi{telemetry.LogSink{Logger: logger}, collector}

	if cfg.TraceStdout {
		shutdown, installErr := telemetry.InstallStdout(toolVersion, os.Stderr)
		if installErr != nil {
			return installErr
		}

		defer func() {
			if shutdownErr := shutdown(context.WithoutCancel(cmd.Context())); shutdownErr != nil && err == nil {
				err = shutdownErr
			}
		}()

		otelSink, sinkErr := telemetry.NewOTelSink(otel.GetTracerProvider(), otel.GetMeterProvider())
		if sinkErr != nil {
			return sinkErr
		}

		sink = append(sink, otelSink)
	}

	result, err := orchestrator.New(logger, sink).Run(cmd.Context(), cfg.ScanOptions(), detectors.All(), cfg.Restrictions())
	if err != nil {
		return errors.Errorf("scan failed: %w", err)
	}

	logger.Infof("Found %d component(s)", len(result.ComponentsFound))

	if cfg.Verbose {
		for _, record := range collector.Records() {
			logger.Debugf("%-8s %-14s %4d components in %s", record.DetectorID, record.ReturnCode, record.DetectedComponentCount, record.ExecutionTime)
		}
	}

	if err := output.Write(result, cfg.Format, cfg.Output, toolVersion); err != nil {
		return errors.Errorf("failed to write %s output: %w", cfg.Format, err)
	}

	if cfg.Output != "-" {
		logger.Infof("Result written to: %s", cfg.Output)
	}

	return nil
}

func runDetectors(cmd *cobra.Command, _ []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "ID\tVERSION\tEXPERIMENTAL")

	for _, d := range detectors.All() {
		info := d.Info()
		fmt.Fprintf(w, "%s\t%d\t%t\n", info.ID, info.Version, info.Experimental)
	}

	return w.Flush()
}
