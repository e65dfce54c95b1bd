// Package scanner is the detector execution engine. It runs every configured
// detector concurrently against a source tree, isolates experimental
// detectors, records per-detector telemetry and hands the populated component
// recorders to graph translation.
package scanner

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/StinkyLord/depscan/internal/depgraph"
	"github.com/StinkyLord/depscan/internal/detector"
	"github.com/StinkyLord/depscan/internal/errors"
	"github.com/StinkyLord/depscan/internal/exclusion"
	"github.com/StinkyLord/depscan/internal/model"
	"github.com/StinkyLord/depscan/internal/telemetry"
)

// DetectorRecorder pairs a detector with the recorder it populated.
type DetectorRecorder struct {
	Recorder *depgraph.ComponentRecorder
	Detector detector.Info
}

// ProcessingResult is the aggregate outcome of running all detectors.
type ProcessingResult struct {
	ContainerDetails map[int]*model.ContainerDetails

	// ComponentRecorders holds the recorders whose components belong in the
	// final result, ordered by detector ID. Isolated experimental detectors
	// are not included.
	ComponentRecorders []DetectorRecorder

	DetectorsInRun   []model.DetectorInRun
	TelemetryRecords []telemetry.DetectorExecutionRecord
	ResultCode       model.ResultCode
}

// Service runs detectors.
type Service struct {
	logger logrus.FieldLogger
	sink   telemetry.Sink
}

// NewService returns an engine logging to logger and emitting one telemetry
// record per detector run to sink. Both may be nil.
func NewService(logger logrus.FieldLogger, sink telemetry.Sink) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	if sink == nil {
		sink = telemetry.Discard{}
	}

	return &Service{logger: logger, sink: sink}
}

type detectorRun struct {
	err      error
	recorder *depgraph.ComponentRecorder
	result   *detector.Result
	record   telemetry.DetectorExecutionRecord
	info     detector.Info
	isolated bool
}

// ProcessDetectors runs the allowed detectors and waits for all of them.
//
// A failure of an isolated detector (experimental and not explicitly
// enabled) is logged and reported through telemetry only. Any other failure
// cancels the remaining detectors and is returned; no result is produced then.
func (s *Service) ProcessDetectors(
	ctx context.Context,
	opts Options,
	detectors []detector.Detector,
	restrictions Restrictions,
) (*ProcessingResult, error) {
	exclude, err := exclusion.Compile(exclusion.Options{
		Globs:             opts.DirectoryExclusionList,
		Legacy:            opts.DirectoryExclusionListObsolete,
		AllowWindowsPaths: opts.AllowWindowsPaths,
		IgnoreCase:        opts.IgnoreCase,
	})
	if err != nil {
		return nil, err
	}

	args := detector.ParseDetectorArgs(opts.DetectorArgs)

	var selected []detector.Detector

	for _, d := range detectors {
		if restrictions.allows(d.Info().ID) {
			selected = append(selected, d)
		} else {
			s.logger.WithField("detector", d.Info().ID).Debug("Detector filtered out")
		}
	}

	runs := make([]*detectorRun, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	if opts.MaxDetectorParallelism > 0 {
		g.SetLimit(opts.MaxDetectorParallelism)
	}

	for i, d := range selected {
		g.Go(func() error {
			info := d.Info()

			run := s.runDetector(gctx, d, &detector.ScanRequest{
				SourceDirectory:    opts.SourceDirectory,
				ExcludeDirectory:   exclude,
				DetectorArgs:       args,
				ComponentRecorder:  depgraph.NewComponentRecorder(),
				Logger:             s.logger,
				MaxFileParallelism: opts.MaxFileParallelism,
			}, info.Experimental && !restrictions.explicitlyEnabled(info.ID))

			runs[i] = run

			if run.err != nil && !run.isolated {
				return DetectorFailedError{DetectorID: info.ID, Err: run.err}
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fatalErrors(runs, err)
	}

	return s.aggregate(runs), nil
}

// runDetector executes a single detector and emits its telemetry record.
func (s *Service) runDetector(ctx context.Context, d detector.Detector, req *detector.ScanRequest, isolated bool) *detectorRun {
	info := d.Info()
	logger := s.logger.WithField("detector", info.ID)

	run := &detectorRun{
		info:     info,
		recorder: req.ComponentRecorder,
		isolated: isolated,
	}

	logger.Debug("Starting detector")

	start := time.Now()

	run.result, run.err = execute(ctx, d, req)

	elapsed := time.Since(start)

	if run.err == nil && run.result == nil {
		run.result = detector.Success()
	}

	run.record = telemetry.DetectorExecutionRecord{
		DetectorID:                         info.ID,
		DetectorVersion:                    info.Version,
		CorrelationID:                      uuid.NewString(),
		StartTime:                          start,
		ExecutionTime:                      elapsed,
		DetectedComponentCount:             len(run.recorder.DetectedComponents()),
		ExplicitlyReferencedComponentCount: run.recorder.ExplicitlyReferencedComponentCount(),
		IsExperimental:                     isolated,
	}

	if run.err != nil {
		run.record.ReturnCode = model.ResultInputError
		run.record.ExperimentalInformation = run.err.Error()

		if isolated {
			logger.Warnf("Experimental detector failed, its results are discarded: %v", run.err)
		}
	} else {
		run.record.ReturnCode = run.result.Code
		run.record.AdditionalTelemetryDetails = run.result.AdditionalTelemetryDetails
	}

	s.sink.Emit(context.WithoutCancel(ctx), run.record)

	return run
}

// execute calls the detector, turning a panic into an error.
func execute(ctx context.Context, d detector.Detector, req *detector.ScanRequest) (result *detector.Result, err error) {
	defer errors.Recover(func(cause error) {
		result, err = nil, cause
	})

	return d.Execute(ctx, req)
}

func (s *Service) aggregate(runs []*detectorRun) *ProcessingResult {
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].info.ID < runs[j].info.ID
	})

	res := &ProcessingResult{
		ContainerDetails: map[int]*model.ContainerDetails{},
		ResultCode:       model.ResultSuccess,
	}

	for _, run := range runs {
		res.TelemetryRecords = append(res.TelemetryRecords, run.record)
		res.DetectorsInRun = append(res.DetectorsInRun, model.DetectorInRun{
			DetectorID:     run.info.ID,
			Version:        run.info.Version,
			IsExperimental: run.isolated,
			ResultCode:     run.record.ReturnCode,
		})

		if run.isolated {
			continue
		}

		res.ResultCode = res.ResultCode.Worst(run.result.Code)
		res.ComponentRecorders = append(res.ComponentRecorders, DetectorRecorder{
			Detector: run.info,
			Recorder: run.recorder,
		})

		for id, details := range run.result.ContainerDetails {
			res.ContainerDetails[id] = details
		}
	}

	return res
}

// fatalErrors collects every non-isolated failure. Detectors that only failed
// because the first failure cancelled them are left out.
func fatalErrors(runs []*detectorRun, first error) error {
	errs := &errors.MultiError{}

	for _, run := range runs {
		if run == nil || run.err == nil || run.isolated || errors.IsContextCanceled(run.err) {
			continue
		}

		errs = errs.Append(DetectorFailedError{DetectorID: run.info.ID, Err: run.err})
	}

	if errs.Len() == 0 {
		return first
	}

	return errs.ErrorOrNil()
}
