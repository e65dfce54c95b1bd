// Package orchestrator runs a complete scan: detectors first, then graph
// translation into the final ScanResult.
package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/StinkyLord/depscan/internal/detector"
	"github.com/StinkyLord/depscan/internal/errors"
	"github.com/StinkyLord/depscan/internal/model"
	"github.com/StinkyLord/depscan/internal/scanner"
	"github.com/StinkyLord/depscan/internal/telemetry"
	"github.com/StinkyLord/depscan/internal/translation"
)

// Orchestrator wires the detector engine to the translation service.
type Orchestrator struct {
	logger      logrus.FieldLogger
	scanner     *scanner.Service
	translation *translation.Service
}

// New returns an orchestrator. Both arguments may be nil.
func New(logger logrus.FieldLogger, sink telemetry.Sink) *Orchestrator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Orchestrator{
		logger:      logger,
		scanner:     scanner.NewService(logger, sink),
		translation: translation.NewService(logger),
	}
}

// Run scans opts.SourceDirectory with the given detectors. A fatal detector
// failure fails the whole scan and no result is returned.
func (o *Orchestrator) Run(
	ctx context.Context,
	opts scanner.Options,
	detectors []detector.Detector,
	restrictions scanner.Restrictions,
) (*model.ScanResult, error) {
	root, err := resolveSourceDirectory(opts.SourceDirectory)
	if err != nil {
		return nil, err
	}

	opts.SourceDirectory = root

	start := time.Now()

	o.logger.WithField("dir", root).Infof("Scanning with %d detectors", len(detectors))

	processing, err := o.scanner.ProcessDetectors(ctx, opts, detectors, restrictions)
	if err != nil {
		return nil, err
	}

	result := o.translation.GenerateScanResult(processing, root)

	o.logger.WithFields(logrus.Fields{
		"components": len(result.ComponentsFound),
		"locations":  len(result.DependencyGraphs),
		"resultCode": result.ResultCode,
	}).Infof("Scan finished in %s", time.Since(start).Round(time.Millisecond))

	return result, nil
}

func resolveSourceDirectory(dir string) (string, error) {
	if dir == "" {
		return "", errors.Errorf("%w: no source directory given", errors.ErrNoSourceDirectory)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Errorf("%w: %s: %v", errors.ErrNoSourceDirectory, dir, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", errors.Errorf("%w: %s: %v", errors.ErrNoSourceDirectory, dir, err)
	}

	if !info.IsDir() {
		return "", errors.Errorf("%w: %s", errors.ErrNoSourceDirectory, dir)
	}

	return filepath.Clean(abs), nil
}
