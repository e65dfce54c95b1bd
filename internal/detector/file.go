package detector

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/StinkyLord/depscan/internal/depgraph"
	"github.com/StinkyLord/depscan/internal/worker"
)

const defaultFileParallelism = 4

// FileRequest is one matched manifest handed to a FileProcessor.
type FileRequest struct {
	// ComponentRecorder lets a processor record into a sibling location, e.g.
	// a lock file contributing to its manifest's graph.
	ComponentRecorder *depgraph.ComponentRecorder

	Logger          logrus.FieldLogger
	Args            map[string]string
	Path            string
	SourceDirectory string
}

// Recorder returns the single-file recorder for Path. The location is only
// created on first use, so files that record nothing leave no empty graph.
func (r *FileRequest) Recorder() *depgraph.SingleFileRecorder {
	return r.ComponentRecorder.CreateSingleFileComponentRecorder(r.Path)
}

// FileProcessor parses a single file. A returned error marks the file as
// malformed: it is logged and skipped without failing the detector. Panics are
// not recovered here and fail the detector.
type FileProcessor func(ctx context.Context, req *FileRequest) error

// FileDetector is a Detector driven by manifest discovery: every file whose
// name matches SearchPatterns is processed concurrently.
type FileDetector struct {
	Process        FileProcessor
	SearchPatterns []string
	Meta           Info
}

// Info implements Detector.
func (d *FileDetector) Info() Info {
	return d.Meta
}

// Execute implements Detector.
func (d *FileDetector) Execute(ctx context.Context, req *ScanRequest) (*Result, error) {
	logger := req.logger(d.Meta.ID)

	files, err := FindFiles(ctx, req.SourceDirectory, req.exclude(), d.SearchPatterns)
	if err != nil {
		return nil, err
	}

	logger.Debugf("Found %d candidate files", len(files))

	parallelism := req.MaxFileParallelism
	if parallelism <= 0 {
		parallelism = defaultFileParallelism
	}

	pool := worker.NewPool(ctx, parallelism)

	var skipped atomic.Int32

	for _, path := range files {
		pool.Submit(func(ctx context.Context) error {
			fileLogger := logger.WithField("file", path)

			fileReq := &FileRequest{
				ComponentRecorder: req.ComponentRecorder,
				Logger:            fileLogger,
				Args:              req.DetectorArgs,
				Path:              path,
				SourceDirectory:   req.SourceDirectory,
			}

			if err := d.Process(ctx, fileReq); err != nil {
				skipped.Add(1)
				fileLogger.Warnf("Failed to parse file, skipping: %v", err)
			}

			return nil
		})
	}

	if err := pool.GracefulStop(); err != nil {
		return nil, err
	}

	return &Result{
		AdditionalTelemetryDetails: map[string]string{
			"filesFound":   strconv.Itoa(len(files)),
			"filesSkipped": strconv.Itoa(int(skipped.Load())),
		},
	}, nil
}
